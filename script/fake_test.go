package script

import (
	"context"
	"math"
	"reflect"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/typeid"
)

// fakeCall is an in-memory CallContext. Arguments are plain Go values:
// bool, int64, float64, string, nil, or pointers to native objects.
type fakeCall struct {
	ctx    context.Context
	this   any
	args   []any
	result any
	owned  bool
	stored bool

	storedID     typeid.ID
	unregistered map[typeid.ID]bool
}

func newFakeCall(this any, args ...any) *fakeCall {
	return &fakeCall{ctx: context.Background(), this: this, args: args}
}

func (f *fakeCall) Context() context.Context { return f.ctx }
func (f *fakeCall) Len() int { return len(f.args) }

func (f *fakeCall) This() (any, error) {
	if f.this == nil {
		return nil, errors.Released(errors.PhaseCall, "self")
	}
	return f.this, nil
}

func (f *fakeCall) Class(i int) ValueClass {
	switch v := f.args[i].(type) {
	case nil:
		return None
	case bool:
		return Bool
	case int64:
		return Integer
	case float64:
		return Float
	case string:
		return Text
	default:
		return ObjectOf(typeid.FromValue(v).Referent())
	}
}

func (f *fakeCall) mismatch(i int, want string) error {
	return errors.TypeMismatch(errors.PhaseCall, []string{argName(i)}, want, f.Class(i).String())
}

func argName(i int) string {
	return "arg" + string(rune('0'+i))
}

func (f *fakeCall) integer(i int, lo, hi int64, want string) (int64, error) {
	switch v := f.args[i].(type) {
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case int64:
		if v < lo || v > hi {
			return 0, errors.New(errors.PhaseCall, errors.KindTypeMismatch).
				Path(argName(i)).
				GoType(want).
				Cause(errors.Overflow(errors.PhaseCall, []string{argName(i)}, v, want)).
				Build()
		}
		return v, nil
	}
	return 0, f.mismatch(i, want)
}

func (f *fakeCall) Bool(i int) (bool, error) {
	switch v := f.args[i].(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	}
	return false, f.mismatch(i, "bool")
}

func (f *fakeCall) Int8(i int) (int8, error) {
	n, err := f.integer(i, math.MinInt8, math.MaxInt8, "int8")
	return int8(n), err
}

func (f *fakeCall) Int16(i int) (int16, error) {
	n, err := f.integer(i, math.MinInt16, math.MaxInt16, "int16")
	return int16(n), err
}

func (f *fakeCall) Int32(i int) (int32, error) {
	n, err := f.integer(i, math.MinInt32, math.MaxInt32, "int32")
	return int32(n), err
}

func (f *fakeCall) Int64(i int) (int64, error) {
	return f.integer(i, math.MinInt64, math.MaxInt64, "int64")
}

func (f *fakeCall) Uint8(i int) (uint8, error) {
	n, err := f.integer(i, 0, math.MaxUint8, "uint8")
	return uint8(n), err
}

func (f *fakeCall) Uint16(i int) (uint16, error) {
	n, err := f.integer(i, 0, math.MaxUint16, "uint16")
	return uint16(n), err
}

func (f *fakeCall) Uint32(i int) (uint32, error) {
	n, err := f.integer(i, 0, math.MaxUint32, "uint32")
	return uint32(n), err
}

func (f *fakeCall) Uint64(i int) (uint64, error) {
	n, err := f.integer(i, 0, math.MaxInt64, "uint64")
	return uint64(n), err
}

func (f *fakeCall) Float64(i int) (float64, error) {
	switch v := f.args[i].(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	}
	return 0, f.mismatch(i, "float64")
}

func (f *fakeCall) Float32(i int) (float32, error) {
	v, err := f.Float64(i)
	return float32(v), err
}

func (f *fakeCall) LongDouble(i int) (float64, error) {
	return f.Float64(i)
}

func (f *fakeCall) String(i int) (string, error) {
	if s, ok := f.args[i].(string); ok {
		return s, nil
	}
	return "", f.mismatch(i, "string")
}

func (f *fakeCall) Object(i int, id typeid.ID) (any, error) {
	v := f.args[i]
	if v == nil {
		return nil, nil
	}
	if reflect.TypeOf(v).Kind() != reflect.Pointer || typeid.FromValue(v).Referent() != id {
		return nil, f.mismatch(i, id.String())
	}
	return v, nil
}

func (f *fakeCall) store(v any, owned bool) {
	f.result, f.owned, f.stored = v, owned, true
}

func (f *fakeCall) StoreBool(v bool) { f.store(v, false) }
func (f *fakeCall) StoreInt8(v int8) { f.store(int64(v), false) }
func (f *fakeCall) StoreInt16(v int16) { f.store(int64(v), false) }
func (f *fakeCall) StoreInt32(v int32) { f.store(int64(v), false) }
func (f *fakeCall) StoreInt64(v int64) { f.store(v, false) }
func (f *fakeCall) StoreUint8(v uint8) { f.store(int64(v), false) }
func (f *fakeCall) StoreUint16(v uint16) { f.store(int64(v), false) }
func (f *fakeCall) StoreUint32(v uint32) { f.store(int64(v), false) }
func (f *fakeCall) StoreUint64(v uint64) { f.store(int64(v), false) }
func (f *fakeCall) StoreFloat32(v float32) { f.store(float64(v), false) }
func (f *fakeCall) StoreFloat64(v float64) { f.store(v, false) }
func (f *fakeCall) StoreLongDouble(v float64) { f.store(v, false) }
func (f *fakeCall) StoreString(v string) { f.store(v, false) }
func (f *fakeCall) StoreNone() { f.store(nil, false) }

func (f *fakeCall) StoreObject(id typeid.ID, v any) error {
	return f.storeAs(id, v, true)
}

func (f *fakeCall) StoreReference(id typeid.ID, v any) error {
	return f.storeAs(id, v, false)
}

func (f *fakeCall) storeAs(id typeid.ID, v any, owned bool) error {
	if f.unregistered[id] {
		return errors.UnregisteredType(errors.PhaseCall, nil, id.String())
	}
	f.storedID = id
	f.store(v, owned)
	return nil
}
