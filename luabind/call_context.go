package luabind

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/script"
	"github.com/wippyai/script-bridge/typeid"
)

// callContext implements script.CallContext over the Lua stack. Arguments
// occupy stack slots base through the top.
type callContext struct {
	reader
	rt     *Runtime
	L      *lua.LState
	self   *instance
	result lua.LValue
	base   int
	n      int
}

var _ script.CallContext = (*callContext)(nil)

func (rt *Runtime) newCall(L *lua.LState, self *instance, base int, path []string) *callContext {
	n := L.GetTop() - base + 1
	if n < 0 {
		n = 0
	}
	return &callContext{
		reader: reader{phase: errors.PhaseCall, path: path},
		rt:     rt,
		L:      L,
		self:   self,
		base:   base,
		n:      n,
	}
}

func (cc *callContext) arg(i int) lua.LValue {
	if i < 0 || i >= cc.n {
		return lua.LNil
	}
	return cc.L.Get(cc.base + i)
}

func label(i int) string {
	return fmt.Sprintf("arg%d", i+1)
}

func (cc *callContext) push() int {
	if cc.result == nil {
		cc.L.Push(lua.LNil)
	} else {
		cc.L.Push(cc.result)
	}
	return 1
}

func (cc *callContext) Context() context.Context {
	if ctx := cc.L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func (cc *callContext) Len() int { return cc.n }

func (cc *callContext) This() (any, error) {
	if cc.self == nil {
		return nil, errors.NotFound(errors.PhaseCall, "receiver", cc.path[0])
	}
	v, ok := cc.rt.native(cc.self)
	if !ok {
		return nil, errors.Released(errors.PhaseCall, cc.self.ft.td.QualifiedName())
	}
	return v, nil
}

func (cc *callContext) Class(i int) script.ValueClass { return cc.rt.classify(cc.arg(i)) }

func (cc *callContext) Bool(i int) (bool, error) { return cc.toBool(label(i), cc.arg(i)) }
func (cc *callContext) Int8(i int) (int8, error) { return cc.toInt8(label(i), cc.arg(i)) }
func (cc *callContext) Int16(i int) (int16, error) { return cc.toInt16(label(i), cc.arg(i)) }
func (cc *callContext) Int32(i int) (int32, error) { return cc.toInt32(label(i), cc.arg(i)) }
func (cc *callContext) Int64(i int) (int64, error) { return cc.toInt64(label(i), cc.arg(i)) }
func (cc *callContext) Uint8(i int) (uint8, error) { return cc.toUint8(label(i), cc.arg(i)) }
func (cc *callContext) Uint16(i int) (uint16, error) { return cc.toUint16(label(i), cc.arg(i)) }
func (cc *callContext) Uint32(i int) (uint32, error) { return cc.toUint32(label(i), cc.arg(i)) }
func (cc *callContext) Uint64(i int) (uint64, error) { return cc.toUint64(label(i), cc.arg(i)) }
func (cc *callContext) Float32(i int) (float32, error) { return cc.toFloat32(label(i), cc.arg(i)) }
func (cc *callContext) Float64(i int) (float64, error) { return cc.toFloat64(label(i), cc.arg(i)) }
func (cc *callContext) LongDouble(i int) (float64, error) {
	return cc.toFloat64(label(i), cc.arg(i))
}
func (cc *callContext) String(i int) (string, error) { return cc.toString(label(i), cc.arg(i)) }

func (cc *callContext) Object(i int, id typeid.ID) (any, error) {
	return cc.toObject(cc.rt, label(i), cc.arg(i), id)
}

func (cc *callContext) StoreBool(v bool) { cc.result = lua.LBool(v) }
func (cc *callContext) StoreInt8(v int8) { cc.result = lua.LNumber(v) }
func (cc *callContext) StoreInt16(v int16) { cc.result = lua.LNumber(v) }
func (cc *callContext) StoreInt32(v int32) { cc.result = lua.LNumber(v) }
func (cc *callContext) StoreInt64(v int64) { cc.result = lua.LNumber(v) }
func (cc *callContext) StoreUint8(v uint8) { cc.result = lua.LNumber(v) }
func (cc *callContext) StoreUint16(v uint16) { cc.result = lua.LNumber(v) }
func (cc *callContext) StoreUint32(v uint32) { cc.result = lua.LNumber(v) }
func (cc *callContext) StoreUint64(v uint64) { cc.result = lua.LNumber(v) }
func (cc *callContext) StoreFloat32(v float32) { cc.result = lua.LNumber(v) }
func (cc *callContext) StoreFloat64(v float64) { cc.result = lua.LNumber(v) }
func (cc *callContext) StoreLongDouble(v float64) { cc.result = lua.LNumber(v) }
func (cc *callContext) StoreString(v string) { cc.result = lua.LString(v) }
func (cc *callContext) StoreNone() { cc.result = lua.LNil }

func (cc *callContext) StoreObject(id typeid.ID, v any) error {
	return cc.store(id, v, true)
}

func (cc *callContext) StoreReference(id typeid.ID, v any) error {
	return cc.store(id, v, false)
}

func (cc *callContext) store(id typeid.ID, v any, owned bool) error {
	ud, err := cc.rt.wrap(id.Referent(), v, owned)
	if err != nil {
		return err
	}
	cc.result = ud
	return nil
}
