package luabind

import (
	"context"
	"weak"

	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/resource"
	"github.com/wippyai/script-bridge/script"
	"github.com/wippyai/script-bridge/typeid"
)

// dispatcher links a native object to its Lua userdata. It holds the
// userdata weakly so the link never keeps the Lua object alive.
type dispatcher struct {
	rt     *Runtime
	ud     weak.Pointer[lua.LUserData]
	handle resource.Handle
}

func newDispatcher(rt *Runtime, ud *lua.LUserData, h resource.Handle) *dispatcher {
	return &dispatcher{rt: rt, ud: weak.Make(ud), handle: h}
}

func (d *dispatcher) Invocation(ctx context.Context) (script.InvocationContext, func(), error) {
	ctx, release, err := d.rt.enter(ctx)
	if err != nil {
		return nil, nil, err
	}
	return &invocation{
		reader: reader{phase: errors.PhaseDispatch},
		rt:     d.rt,
		ctx:    ctx,
		ud:     d.ud.Value(),
	}, release, nil
}

// invocation implements script.InvocationContext for one virtual call into
// a Lua override.
type invocation struct {
	reader
	rt       *Runtime
	ctx      context.Context
	ud       *lua.LUserData
	args     []lua.LValue
	result   lua.LValue
	err      error
	poisoned error
}

var _ script.InvocationContext = (*invocation)(nil)

// override returns the script function overriding method, or nil when the
// object only has the native trampoline.
func (inv *invocation) override(method string) *lua.LFunction {
	if inv.ud == nil {
		return nil
	}
	inst, ok := inv.ud.Value.(*instance)
	if !ok {
		return nil
	}
	fn, ok := inv.rt.scripted(inst, method).(*lua.LFunction)
	if !ok {
		return nil
	}
	if m, ok := inst.ft.methods[method]; ok && m.fn == fn {
		return nil
	}
	return fn
}

func (inv *invocation) Implemented(method string) bool {
	return inv.override(method) != nil
}

func (inv *invocation) set(i int, v lua.LValue) {
	for len(inv.args) <= i {
		inv.args = append(inv.args, lua.LNil)
	}
	inv.args[i] = v
}

func (inv *invocation) StoreBool(i int, v bool) { inv.set(i, lua.LBool(v)) }
func (inv *invocation) StoreInt8(i int, v int8) { inv.set(i, lua.LNumber(v)) }
func (inv *invocation) StoreInt16(i int, v int16) { inv.set(i, lua.LNumber(v)) }
func (inv *invocation) StoreInt32(i int, v int32) { inv.set(i, lua.LNumber(v)) }
func (inv *invocation) StoreInt64(i int, v int64) { inv.set(i, lua.LNumber(v)) }
func (inv *invocation) StoreUint8(i int, v uint8) { inv.set(i, lua.LNumber(v)) }
func (inv *invocation) StoreUint16(i int, v uint16) { inv.set(i, lua.LNumber(v)) }
func (inv *invocation) StoreUint32(i int, v uint32) { inv.set(i, lua.LNumber(v)) }
func (inv *invocation) StoreUint64(i int, v uint64) { inv.set(i, lua.LNumber(v)) }
func (inv *invocation) StoreFloat32(i int, v float32) { inv.set(i, lua.LNumber(v)) }
func (inv *invocation) StoreFloat64(i int, v float64) { inv.set(i, lua.LNumber(v)) }
func (inv *invocation) StoreLongDouble(i int, v float64) { inv.set(i, lua.LNumber(v)) }
func (inv *invocation) StoreString(i int, v string) { inv.set(i, lua.LString(v)) }

func (inv *invocation) StoreObject(i int, id typeid.ID, v any) error {
	ud, err := inv.rt.wrap(id.Referent(), v, false)
	if err != nil {
		inv.poisoned = err
		return err
	}
	inv.set(i, ud)
	return nil
}

func (inv *invocation) Call(method string) script.CallResult {
	if inv.poisoned != nil {
		inv.err = inv.poisoned
		return script.CallFailed
	}
	fn := inv.override(method)
	if fn == nil {
		return script.CallNotFound
	}

	args := make([]lua.LValue, 0, len(inv.args)+1)
	args = append(args, inv.ud)
	args = append(args, inv.args...)
	L := inv.rt.L
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
		inv.err = inv.rt.scriptError(inv.ctx, err)
		return script.CallFailed
	}
	inv.result = L.Get(-1)
	L.Pop(1)
	inv.path = []string{method}
	return script.CallExecuted
}

func (inv *invocation) value() lua.LValue {
	if inv.result == nil {
		return lua.LNil
	}
	return inv.result
}

func (inv *invocation) BoolResult() (bool, error) { return inv.toBool("result", inv.value()) }
func (inv *invocation) Int8Result() (int8, error) { return inv.toInt8("result", inv.value()) }
func (inv *invocation) Int16Result() (int16, error) { return inv.toInt16("result", inv.value()) }
func (inv *invocation) Int32Result() (int32, error) { return inv.toInt32("result", inv.value()) }
func (inv *invocation) Int64Result() (int64, error) { return inv.toInt64("result", inv.value()) }
func (inv *invocation) Uint8Result() (uint8, error) { return inv.toUint8("result", inv.value()) }
func (inv *invocation) Uint16Result() (uint16, error) { return inv.toUint16("result", inv.value()) }
func (inv *invocation) Uint32Result() (uint32, error) { return inv.toUint32("result", inv.value()) }
func (inv *invocation) Uint64Result() (uint64, error) { return inv.toUint64("result", inv.value()) }
func (inv *invocation) Float32Result() (float32, error) { return inv.toFloat32("result", inv.value()) }
func (inv *invocation) Float64Result() (float64, error) { return inv.toFloat64("result", inv.value()) }
func (inv *invocation) LongDoubleResult() (float64, error) {
	return inv.toFloat64("result", inv.value())
}
func (inv *invocation) StringResult() (string, error) { return inv.toString("result", inv.value()) }

func (inv *invocation) ObjectResult(id typeid.ID) (any, error) {
	return inv.toObject(inv.rt, "result", inv.value(), id)
}

func (inv *invocation) Err() error {
	err := inv.err
	inv.err = nil
	return err
}
