package luabind

import (
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/script"
	"github.com/wippyai/script-bridge/typeid"
)

// Lua 5.1 has a single number type. Integral values classify as Integer;
// magnitudes beyond 2^53 lose precision before they reach Go.

// classify returns the overload-resolution class of v.
func (rt *Runtime) classify(v lua.LValue) script.ValueClass {
	switch v := v.(type) {
	case *lua.LNilType:
		return script.None
	case lua.LBool:
		return script.Bool
	case lua.LNumber:
		if isIntegral(float64(v)) {
			return script.Integer
		}
		return script.Float
	case lua.LString:
		return script.Text
	case *lua.LUserData:
		if inst, ok := v.Value.(*instance); ok {
			return script.ObjectOf(inst.ft.td.ID)
		}
		return script.Opaque()
	default:
		return script.Opaque()
	}
}

func isIntegral(f float64) bool {
	return !math.IsInf(f, 0) && f == math.Trunc(f)
}

// typeName names v for error messages: foreign objects by their type,
// everything else by its Lua type.
func typeName(v lua.LValue) string {
	if ud, ok := v.(*lua.LUserData); ok {
		if inst, ok := ud.Value.(*instance); ok {
			return inst.ft.td.QualifiedName()
		}
	}
	return v.Type().String()
}

// reader converts Lua values to Go values, naming path in its errors.
type reader struct {
	phase errors.Phase
	path  []string
}

func (r reader) at(label string) []string {
	return append(append([]string(nil), r.path...), label)
}

func (r reader) mismatch(label, want string, v lua.LValue) error {
	return errors.TypeMismatch(r.phase, r.at(label), want, typeName(v))
}

func (r reader) toBool(label string, v lua.LValue) (bool, error) {
	switch v := v.(type) {
	case lua.LBool:
		return bool(v), nil
	case lua.LNumber:
		if isIntegral(float64(v)) {
			return v != 0, nil
		}
	}
	return false, r.mismatch(label, "bool", v)
}

// toInt reads an integer within [lo, hi]. Booleans convert to 0 and 1.
func (r reader) toInt(label string, v lua.LValue, lo, hi float64, want string) (float64, error) {
	switch v := v.(type) {
	case lua.LBool:
		if v {
			return 1, nil
		}
		return 0, nil
	case lua.LNumber:
		f := float64(v)
		if !isIntegral(f) {
			return 0, r.mismatch(label, want, v)
		}
		if f < lo || f > hi {
			return 0, errors.New(r.phase, errors.KindTypeMismatch).
				Path(r.at(label)...).
				GoType(want).
				ScriptType("number").
				Value(f).
				Cause(errors.Overflow(r.phase, r.at(label), f, want)).
				Build()
		}
		return f, nil
	}
	return 0, r.mismatch(label, want, v)
}

func (r reader) toFloat(label string, v lua.LValue, want string) (float64, error) {
	if n, ok := v.(lua.LNumber); ok {
		return float64(n), nil
	}
	return 0, r.mismatch(label, want, v)
}

func (r reader) toString(label string, v lua.LValue) (string, error) {
	if s, ok := v.(lua.LString); ok {
		return string(s), nil
	}
	return "", r.mismatch(label, "string", v)
}

func (r reader) toInt8(label string, v lua.LValue) (int8, error) {
	f, err := r.toInt(label, v, math.MinInt8, math.MaxInt8, "int8")
	return int8(f), err
}

func (r reader) toInt16(label string, v lua.LValue) (int16, error) {
	f, err := r.toInt(label, v, math.MinInt16, math.MaxInt16, "int16")
	return int16(f), err
}

func (r reader) toInt32(label string, v lua.LValue) (int32, error) {
	f, err := r.toInt(label, v, math.MinInt32, math.MaxInt32, "int32")
	return int32(f), err
}

func (r reader) toInt64(label string, v lua.LValue) (int64, error) {
	// 2^63 is the first float64 above MaxInt64
	f, err := r.toInt(label, v, math.MinInt64, math.Nextafter(1<<63, 0), "int64")
	return int64(f), err
}

func (r reader) toUint8(label string, v lua.LValue) (uint8, error) {
	f, err := r.toInt(label, v, 0, math.MaxUint8, "uint8")
	return uint8(f), err
}

func (r reader) toUint16(label string, v lua.LValue) (uint16, error) {
	f, err := r.toInt(label, v, 0, math.MaxUint16, "uint16")
	return uint16(f), err
}

func (r reader) toUint32(label string, v lua.LValue) (uint32, error) {
	f, err := r.toInt(label, v, 0, math.MaxUint32, "uint32")
	return uint32(f), err
}

func (r reader) toUint64(label string, v lua.LValue) (uint64, error) {
	f, err := r.toInt(label, v, 0, math.Nextafter(1<<64, 0), "uint64")
	return uint64(f), err
}

func (r reader) toFloat32(label string, v lua.LValue) (float32, error) {
	f, err := r.toFloat(label, v, "float32")
	return float32(f), err
}

func (r reader) toFloat64(label string, v lua.LValue) (float64, error) {
	return r.toFloat(label, v, "float64")
}

// toObject returns the native object behind a foreign instance whose type
// is id after one level of reference or pointer stripping.
func (r reader) toObject(rt *Runtime, label string, v lua.LValue, id typeid.ID) (any, error) {
	want := id.Referent()
	if _, ok := rt.registry.Get(want); !ok {
		return nil, errors.UnregisteredType(r.phase, r.at(label), want.String())
	}
	ud, ok := v.(*lua.LUserData)
	if !ok {
		return nil, r.mismatch(label, want.String(), v)
	}
	inst, ok := ud.Value.(*instance)
	if !ok {
		return nil, r.mismatch(label, want.String(), v)
	}
	if inst.ft.td.ID != want {
		return nil, errors.TypeMismatch(r.phase, r.at(label), want.String(), inst.ft.td.ID.String())
	}
	obj, ok := rt.native(inst)
	if !ok {
		return nil, errors.Released(r.phase, inst.ft.td.QualifiedName())
	}
	return obj, nil
}

// toLua converts a Go value to Lua for Call and SetGlobal. Registered
// native objects are wrapped as borrowed views.
func (rt *Runtime) toLua(v any) (lua.LValue, error) {
	switch v := v.(type) {
	case nil:
		return lua.LNil, nil
	case lua.LValue:
		return v, nil
	case bool:
		return lua.LBool(v), nil
	case string:
		return lua.LString(v), nil
	case int:
		return lua.LNumber(v), nil
	case int8:
		return lua.LNumber(v), nil
	case int16:
		return lua.LNumber(v), nil
	case int32:
		return lua.LNumber(v), nil
	case int64:
		return lua.LNumber(v), nil
	case uint:
		return lua.LNumber(v), nil
	case uint8:
		return lua.LNumber(v), nil
	case uint16:
		return lua.LNumber(v), nil
	case uint32:
		return lua.LNumber(v), nil
	case uint64:
		return lua.LNumber(v), nil
	case float32:
		return lua.LNumber(v), nil
	case float64:
		return lua.LNumber(v), nil
	}

	id := typeid.FromValue(v).Referent()
	if _, ok := rt.registry.Get(id); !ok {
		return nil, errors.UnregisteredType(errors.PhaseRuntime, nil, fmt.Sprintf("%T", v))
	}
	return rt.wrap(id, v, false)
}

// fromLua converts a Lua value to a plain Go value: nil, bool, int64 for
// integral numbers, float64, string, the native object of a foreign
// instance, or the Lua value itself for anything else.
func (rt *Runtime) fromLua(v lua.LValue) any {
	switch v := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if isIntegral(f) && math.Abs(f) < 1<<63 {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LUserData:
		if inst, ok := v.Value.(*instance); ok {
			if obj, ok := rt.native(inst); ok {
				return obj
			}
			return nil
		}
	}
	return v
}
