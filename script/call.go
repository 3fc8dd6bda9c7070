package script

import (
	"context"

	"github.com/wippyai/script-bridge/typeid"
)

// CallContext carries one script-to-native call: positional arguments in,
// at most one result out. A backend creates one per call and discards it
// when the call returns.
//
// Argument accessors apply the coercion policy shared by every backend:
//   - Bool accepts booleans and integers (0 is false).
//   - Integer accessors accept booleans and integers, range-checked per width.
//   - Float accessors accept floats and integers.
//   - String accepts text only.
//   - Object accepts a registered foreign object whose type ID equals the
//     requested ID after one level of reference or pointer stripping.
//
// Failures are *errors.Error values of kind type_mismatch, unregistered_type,
// overflow or released, naming the argument position.
type CallContext interface {
	// Context returns the context of the call chain, carrying runtime lock
	// ownership for re-entrant dispatch.
	Context() context.Context

	// Len returns the number of arguments, receiver excluded.
	Len() int

	// This returns the native receiver, or an error when there is none or it
	// has been released.
	This() (any, error)

	// Class classifies argument i for overload resolution.
	Class(i int) ValueClass

	Bool(i int) (bool, error)
	Int8(i int) (int8, error)
	Int16(i int) (int16, error)
	Int32(i int) (int32, error)
	Int64(i int) (int64, error)
	Uint8(i int) (uint8, error)
	Uint16(i int) (uint16, error)
	Uint32(i int) (uint32, error)
	Uint64(i int) (uint64, error)
	Float32(i int) (float32, error)
	Float64(i int) (float64, error)
	LongDouble(i int) (float64, error)
	String(i int) (string, error)
	Object(i int, id typeid.ID) (any, error)

	StoreBool(v bool)
	StoreInt8(v int8)
	StoreInt16(v int16)
	StoreInt32(v int32)
	StoreInt64(v int64)
	StoreUint8(v uint8)
	StoreUint16(v uint16)
	StoreUint32(v uint32)
	StoreUint64(v uint64)
	StoreFloat32(v float32)
	StoreFloat64(v float64)
	StoreLongDouble(v float64)
	StoreString(v string)

	// StoreObject returns a native object the script side now owns; its
	// destructor runs when the script object is collected.
	StoreObject(id typeid.ID, v any) error

	// StoreReference returns a borrowed view of an object native code keeps
	// owning.
	StoreReference(id typeid.ID, v any) error

	// StoreNone returns the runtime's nil. A call that stores nothing
	// returns nil as well.
	StoreNone()
}
