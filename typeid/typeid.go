// Package typeid provides canonical, comparable identifiers for Go types.
//
// An ID records the type token, its category and its const/volatile
// qualifiers. The qualifiers do not exist in Go; they are carried so that a
// read-only view and a mutable view of the same Go type can be registered and
// bound as distinct types. T, const T and volatile T share a Key but are
// different IDs.
//
// IDs are plain values: compare with ==, order with Compare or Less, use them
// directly as map keys.
package typeid

import (
	"reflect"
	"strings"
)

// Kind is the category of a type.
type Kind uint8

const (
	Void Kind = iota
	POD
	Enum
	Class
	Pointer
	Reference
	RValueReference
)

var kindNames = [...]string{
	Void:            "void",
	POD:             "pod",
	Enum:            "enum",
	Class:           "class",
	Pointer:         "pointer",
	Reference:       "reference",
	RValueReference: "rvalue-reference",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// ID identifies a type together with its category and qualifiers.
// The zero value is void.
type ID struct {
	Key        Token
	Kind       Kind
	IsConst    bool
	IsVolatile bool
}

// Of returns the ID of T.
func Of[T any]() ID {
	return FromType(reflect.TypeFor[T]())
}

// FromType classifies t. A nil type is void.
func FromType(t reflect.Type) ID {
	if t == nil {
		return ID{}
	}
	return ID{Key: intern(t), Kind: classify(t)}
}

// FromValue returns the ID of v's dynamic type.
func FromValue(v any) ID {
	return FromType(reflect.TypeOf(v))
}

func classify(t reflect.Type) Kind {
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer:
		return Pointer
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if t.PkgPath() != "" {
			return Enum
		}
		return POD
	case reflect.Bool, reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128, reflect.String:
		return POD
	default:
		return Class
	}
}

// Const returns id with the const qualifier set.
func (id ID) Const() ID {
	id.IsConst = true
	return id
}

// Volatile returns id with the volatile qualifier set.
func (id ID) Volatile() ID {
	id.IsVolatile = true
	return id
}

// Unqualified returns id with both qualifiers cleared.
func (id ID) Unqualified() ID {
	id.IsConst = false
	id.IsVolatile = false
	return id
}

// Reference returns an lvalue reference to id's type.
// The key is kept; only the kind changes.
func (id ID) Reference() ID {
	if id.Kind == Void {
		return id
	}
	id.Kind = Reference
	return id
}

// RValueReference returns an rvalue reference to id's type.
func (id ID) RValueReference() ID {
	if id.Kind == Void {
		return id
	}
	id.Kind = RValueReference
	return id
}

// Referent strips one level of reference or pointer indirection.
// Qualifiers are kept. Other kinds are returned unchanged.
func (id ID) Referent() ID {
	switch id.Kind {
	case Reference, RValueReference:
		id.Kind = classify(TypeOf(id.Key))
		return id
	case Pointer:
		t := TypeOf(id.Key)
		if t == nil || t.Kind() != reflect.Pointer {
			return id
		}
		r := FromType(t.Elem())
		r.IsConst = id.IsConst
		r.IsVolatile = id.IsVolatile
		return r
	default:
		return id
	}
}

// IsVoid reports whether id is void.
func (id ID) IsVoid() bool {
	return id.Kind == Void
}

// Type returns the Go type behind id's key.
func (id ID) Type() reflect.Type {
	return TypeOf(id.Key)
}

// Compare orders IDs lexicographically over (Key, Kind, IsConst, IsVolatile).
// It returns -1, 0 or +1.
func Compare(a, b ID) int {
	switch {
	case a.Key != b.Key:
		if a.Key < b.Key {
			return -1
		}
		return 1
	case a.Kind != b.Kind:
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	case a.IsConst != b.IsConst:
		if !a.IsConst {
			return -1
		}
		return 1
	case a.IsVolatile != b.IsVolatile:
		if !a.IsVolatile {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports whether id orders before other.
func (id ID) Less(other ID) bool {
	return Compare(id, other) < 0
}

// String renders id as "const volatile name&".
func (id ID) String() string {
	if id.Kind == Void {
		return "void"
	}

	var b strings.Builder
	if id.IsConst {
		b.WriteString("const ")
	}
	if id.IsVolatile {
		b.WriteString("volatile ")
	}
	if t := TypeOf(id.Key); t != nil {
		b.WriteString(t.String())
	} else {
		b.WriteString("?")
	}
	switch id.Kind {
	case Reference:
		b.WriteByte('&')
	case RValueReference:
		b.WriteString("&&")
	}
	return b.String()
}
