package script

import (
	stderrors "errors"
	"reflect"
	"slices"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/signature"
	"github.com/wippyai/script-bridge/typeid"
)

// ValueKind is the runtime class of a dynamic value.
type ValueKind uint8

const (
	ValueNone ValueKind = iota
	ValueBool
	ValueInteger
	ValueFloat
	ValueText
	ValueObject
)

func (k ValueKind) String() string {
	switch k {
	case ValueNone:
		return "none"
	case ValueBool:
		return "bool"
	case ValueInteger:
		return "integer"
	case ValueFloat:
		return "float"
	case ValueText:
		return "text"
	case ValueObject:
		return "object"
	default:
		return "unknown"
	}
}

// ValueClass classifies one dynamic argument. Objects carry the ID of their
// registered native type when they have one.
type ValueClass struct {
	ID    typeid.ID
	Kind  ValueKind
	HasID bool
}

// Classes of the primitive kinds.
var (
	None    = ValueClass{Kind: ValueNone}
	Bool    = ValueClass{Kind: ValueBool}
	Integer = ValueClass{Kind: ValueInteger}
	Float   = ValueClass{Kind: ValueFloat}
	Text    = ValueClass{Kind: ValueText}
)

// ObjectOf classifies a foreign object of a registered type.
func ObjectOf(id typeid.ID) ValueClass {
	return ValueClass{Kind: ValueObject, ID: id, HasID: true}
}

// Opaque classifies a runtime object without a native type.
func Opaque() ValueClass {
	return ValueClass{Kind: ValueObject}
}

func (c ValueClass) String() string {
	if c.Kind == ValueObject && c.HasID {
		return c.ID.String()
	}
	return c.Kind.String()
}

// MatchLevel scores one argument against one parameter slot.
type MatchLevel uint8

const (
	NoMatch MatchLevel = iota
	Convertible
	Exact
)

func (l MatchLevel) String() string {
	switch l {
	case Exact:
		return "exact"
	case Convertible:
		return "convertible"
	default:
		return "no-match"
	}
}

// Match scores c against slot. Unbound slots accept anything without
// counting as exact.
func (c ValueClass) Match(slot signature.Slot) MatchLevel {
	if !slot.Bound {
		return Convertible
	}
	id := slot.ID

	switch id.Kind {
	case typeid.POD:
		return c.matchPOD(id)
	case typeid.Enum:
		if c.Kind == ValueInteger {
			return Convertible
		}
		return NoMatch
	case typeid.Pointer:
		if c.Kind == ValueNone {
			return Convertible
		}
		return c.matchObject(id.Referent())
	case typeid.Class, typeid.Reference, typeid.RValueReference:
		return c.matchObject(id.Referent())
	default:
		return NoMatch
	}
}

func (c ValueClass) matchObject(want typeid.ID) MatchLevel {
	if c.Kind == ValueObject && c.HasID && c.ID == want {
		return Exact
	}
	return NoMatch
}

func (c ValueClass) matchPOD(id typeid.ID) MatchLevel {
	t := id.Type()
	if t == nil {
		return NoMatch
	}
	switch t.Kind() {
	case reflect.Bool:
		switch c.Kind {
		case ValueBool:
			return Exact
		case ValueInteger:
			return Convertible
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		switch c.Kind {
		case ValueInteger:
			return Exact
		case ValueBool:
			return Convertible
		}
	case reflect.Float32, reflect.Float64:
		switch c.Kind {
		case ValueFloat:
			return Exact
		case ValueInteger:
			return Convertible
		}
	case reflect.String:
		if c.Kind == ValueText {
			return Exact
		}
	}
	return NoMatch
}

// Score returns the number of exact slots of args against sig, or ok=false
// when arity differs or any slot does not match.
func Score(sig signature.Signature, args []ValueClass) (exact int, ok bool) {
	if sig.Len() != len(args) {
		return 0, false
	}
	for i, a := range args {
		switch a.Match(sig.At(i)) {
		case NoMatch:
			return 0, false
		case Exact:
			exact++
		}
	}
	return exact, true
}

// BestMatch selects the candidate with the most exact slots among those
// that match every slot. Ties resolve to the first candidate in registration
// order. It returns -1 when nothing matches.
func BestMatch(candidates []signature.Signature, args []ValueClass) (index, exact int) {
	index = -1
	exact = -1
	for i, sig := range candidates {
		n, ok := Score(sig, args)
		if !ok {
			continue
		}
		if n > exact {
			index, exact = i, n
		}
	}
	if index < 0 {
		return -1, 0
	}
	return index, exact
}

// ClassNames renders classes for error messages.
func ClassNames(args []ValueClass) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = a.String()
	}
	return out
}

// Classify collects the classes of all arguments of cc.
func Classify(cc CallContext) []ValueClass {
	args := make([]ValueClass, cc.Len())
	for i := range args {
		args[i] = cc.Class(i)
	}
	return args
}

// Resolve returns the overloads that accept the arguments of cc, best
// first: more exact slots rank higher and ties keep registration order.
// path names the callable in the error when nothing matches. A single
// candidate with the right arity is returned without scoring so that
// argument conversion can report the offending position and types.
func Resolve(ovs []Overload, cc CallContext, path ...string) ([]*Overload, error) {
	if len(ovs) == 1 && ovs[0].Signature.Len() == cc.Len() {
		return []*Overload{&ovs[0]}, nil
	}
	args := Classify(cc)
	type ranked struct {
		ov    *Overload
		exact int
	}
	var found []ranked
	for i := range ovs {
		if n, ok := Score(ovs[i].Signature, args); ok {
			found = append(found, ranked{&ovs[i], n})
		}
	}
	if len(found) == 0 {
		return nil, errors.NoMatchingOverload(path, ClassNames(args))
	}
	slices.SortStableFunc(found, func(a, b ranked) int { return b.exact - a.exact })
	out := make([]*Overload, len(found))
	for i, r := range found {
		out[i] = r.ov
	}
	return out, nil
}

// Invoke calls the best overload of ovs for the arguments of cc. A candidate
// whose arguments are rejected with a type mismatch is skipped in favor of
// the next one; the last rejection is returned when none remains.
func Invoke(ovs []Overload, cc CallContext, path ...string) error {
	candidates, err := Resolve(ovs, cc, path...)
	if err != nil {
		return err
	}
	for _, ov := range candidates {
		err = ov.Invoke(cc)
		if !Rejected(err) {
			return unreject(err)
		}
	}
	return unreject(err)
}

type rejection struct{ err error }

func (r *rejection) Error() string { return r.err.Error() }
func (r *rejection) Unwrap() error { return r.err }

// Reject marks err as raised while reading arguments, before the native
// function ran. Invoke may then retry the call with another overload.
func Reject(err error) error {
	if err == nil {
		return nil
	}
	var r *rejection
	if stderrors.As(err, &r) {
		return err
	}
	return &rejection{err: err}
}

// Rejected reports whether err is a rejected type mismatch.
func Rejected(err error) bool {
	var r *rejection
	return stderrors.As(err, &r) && errors.IsKind(r.err, errors.KindTypeMismatch)
}

func unreject(err error) error {
	if r, ok := err.(*rejection); ok {
		return r.err
	}
	return err
}
