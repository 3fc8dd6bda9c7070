// Package signature describes the parameter lists of bound callables.
//
// A Signature is a fixed-length sequence of slots. A bound slot carries a
// typeid.ID; an unbound slot is a placeholder used in partial signatures
// (for example a variadic tail). Matching at this layer is exact: there is no
// widening or coercion. Scoring dynamic arguments against signatures belongs
// to value classification in package script.
package signature

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/wippyai/script-bridge/typeid"
)

// Slot is one parameter position.
type Slot struct {
	ID    typeid.ID
	Bound bool
}

// Bind returns a bound slot for id.
func Bind(id typeid.ID) Slot {
	return Slot{ID: id, Bound: true}
}

// Placeholder returns an unbound slot.
func Placeholder() Slot {
	return Slot{}
}

func (s Slot) String() string {
	if !s.Bound {
		return "_"
	}
	return s.ID.String()
}

// Signature is an ordered parameter list. The zero value is the empty
// signature.
type Signature struct {
	slots []Slot
}

// Of creates a signature with every slot bound.
func Of(ids ...typeid.ID) Signature {
	slots := make([]Slot, len(ids))
	for i, id := range ids {
		slots[i] = Bind(id)
	}
	return Signature{slots: slots}
}

// New creates a signature from explicit slots.
func New(slots ...Slot) Signature {
	return Signature{slots: append([]Slot(nil), slots...)}
}

// FromFunc builds the signature of a func type's parameters.
// A variadic tail becomes a placeholder slot.
func FromFunc(t reflect.Type) Signature {
	if t == nil || t.Kind() != reflect.Func {
		panic(fmt.Sprintf("signature: FromFunc called with %v", t))
	}
	n := t.NumIn()
	slots := make([]Slot, n)
	for i := 0; i < n; i++ {
		if t.IsVariadic() && i == n-1 {
			slots[i] = Placeholder()
			continue
		}
		slots[i] = Bind(typeid.FromType(t.In(i)))
	}
	return Signature{slots: slots}
}

// Len returns the number of slots.
func (s Signature) Len() int {
	return len(s.slots)
}

// At returns slot i. An index out of range is a programming error and panics.
func (s Signature) At(i int) Slot {
	if i < 0 || i >= len(s.slots) {
		panic(fmt.Sprintf("signature: index %d out of range [0,%d)", i, len(s.slots)))
	}
	return s.slots[i]
}

// Skip returns the signature without its first n slots.
func (s Signature) Skip(n int) Signature {
	if n >= len(s.slots) {
		return Signature{}
	}
	return Signature{slots: s.slots[n:]}
}

// Equal reports element-wise equality. Two unbound slots are equal.
func (s Signature) Equal(other Signature) bool {
	if len(s.slots) != len(other.slots) {
		return false
	}
	for i := range s.slots {
		if s.slots[i] != other.slots[i] {
			return false
		}
	}
	return true
}

// Matches reports whether other is compatible with s: same length, and every
// pair of bound slots has equal IDs. An unbound slot on either side matches
// anything.
func (s Signature) Matches(other Signature) bool {
	if len(s.slots) != len(other.slots) {
		return false
	}
	for i, a := range s.slots {
		b := other.slots[i]
		if !a.Bound || !b.Bound {
			continue
		}
		if a.ID != b.ID {
			return false
		}
	}
	return true
}

// String renders the signature as "(int32, const main.Point, _)".
func (s Signature) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, sl := range s.slots {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sl.String())
	}
	b.WriteByte(')')
	return b.String()
}
