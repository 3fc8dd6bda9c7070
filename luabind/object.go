package luabind

import (
	"fmt"
	"runtime"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/resource"
	"github.com/wippyai/script-bridge/script"
	"github.com/wippyai/script-bridge/typeid"
)

// extendKey is the class-table entry that derives script subclasses.
const extendKey = "extend"

// foreignType is the materialized Lua side of a registered type.
type foreignType struct {
	td      *script.TypeData
	class   *luaClass // nil for enums
	table   *lua.LTable
	fields  map[string]*script.Field
	methods map[string]*boundMethod
}

type boundMethod struct {
	m  *script.Method
	fn *lua.LFunction
}

// luaClass is a class table: the native class of a foreign type or a
// script subclass deriving from it.
type luaClass struct {
	table *lua.LTable
	ft    *foreignType
	base  *luaClass // nil for the native class
}

// instance is the userdata payload of a foreign object.
type instance struct {
	handle atomic.Uint32
	ft     *foreignType
	class  *luaClass
	attrs  *lua.LTable
}

func isObject(v lua.LValue) bool {
	ud, ok := v.(*lua.LUserData)
	if !ok {
		return false
	}
	_, ok = ud.Value.(*instance)
	return ok
}

func toInstance(v lua.LValue) *instance {
	if ud, ok := v.(*lua.LUserData); ok {
		if inst, ok := ud.Value.(*instance); ok {
			return inst
		}
	}
	return nil
}

// wrap stores v in the handle table and returns a userdata for it. The
// type of v must be registered under id.
func (rt *Runtime) wrap(id typeid.ID, v any, owned bool) (lua.LValue, error) {
	td, ok := rt.registry.Get(id)
	if !ok {
		return nil, errors.UnregisteredType(errors.PhaseRuntime, nil, id.String())
	}
	idx, _ := rt.registry.Index(id)
	ft, err := rt.materialize(td)
	if err != nil {
		return nil, err
	}
	if ft.class == nil {
		return nil, errors.InvalidInput(errors.PhaseRuntime, "enum "+td.QualifiedName()+" has no instances")
	}

	h, err := rt.handles.Insert(idx, v, owned)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindInvalidInput, err, "store "+td.QualifiedName())
	}

	inst := &instance{ft: ft, class: ft.class}
	inst.handle.Store(uint32(h))
	ud := rt.L.NewUserData()
	ud.Value = inst
	ud.Metatable = rt.instMeta
	runtime.SetFinalizer(ud, rt.finalize)

	rt.attach(ud, h, v, owned)
	return ud, nil
}

func (rt *Runtime) finalize(ud *lua.LUserData) {
	if inst, ok := ud.Value.(*instance); ok {
		rt.enqueue(inst)
	}
}

// scripted returns the instance-level override or subclass member called
// name, or nil. Class members of the native class are not consulted.
func (rt *Runtime) scripted(inst *instance, name string) lua.LValue {
	if inst.attrs != nil {
		if v := inst.attrs.RawGetString(name); v != lua.LNil {
			return v
		}
	}
	if name == extendKey {
		return nil
	}
	for c := inst.class; c != nil && c.base != nil; c = c.base {
		if v := c.table.RawGetString(name); v != lua.LNil {
			return v
		}
	}
	return nil
}

func (rt *Runtime) newInstanceMeta() *lua.LTable {
	L := rt.L
	mt := L.NewTable()
	mt.RawSetString("__index", L.NewFunction(rt.instanceIndex))
	mt.RawSetString("__newindex", L.NewFunction(rt.instanceNewIndex))
	mt.RawSetString("__tostring", L.NewFunction(rt.instanceString))
	mt.RawSetString("__eq", L.NewFunction(rt.instanceEqual))
	mt.RawSetString("__metatable", lua.LString("foreign"))
	return mt
}

func (rt *Runtime) instanceIndex(L *lua.LState) int {
	inst := toInstance(L.Get(1))
	key, ok := L.Get(2).(lua.LString)
	if inst == nil || !ok {
		L.Push(lua.LNil)
		return 1
	}
	name := string(key)

	if v := rt.scripted(inst, name); v != nil {
		L.Push(v)
		return 1
	}
	if f, ok := inst.ft.fields[name]; ok {
		path := []string{inst.ft.td.QualifiedName(), name}
		return rt.invoke(L, inst, L.GetTop()+1, path, func(cc *callContext) error {
			return f.Get(cc)
		})
	}
	if m, ok := inst.ft.methods[name]; ok {
		L.Push(m.fn)
		return 1
	}
	L.Push(lua.LNil)
	return 1
}

func (rt *Runtime) instanceNewIndex(L *lua.LState) int {
	inst := toInstance(L.Get(1))
	key, ok := L.Get(2).(lua.LString)
	if inst == nil || !ok {
		L.ArgError(2, "attribute name must be a string")
		return 0
	}
	name := string(key)
	path := []string{inst.ft.td.QualifiedName(), name}

	if f, ok := inst.ft.fields[name]; ok {
		if f.ReadOnly() {
			rt.raise(L, errors.New(errors.PhaseCall, errors.KindInvalidInput).
				Path(path...).
				Detail("field is read-only").
				Build())
		}
		return rt.invoke(L, inst, 3, path, func(cc *callContext) error {
			return f.Set(cc)
		})
	}
	if m, ok := inst.ft.methods[name]; ok && !m.m.Virtual {
		rt.raise(L, errors.New(errors.PhaseCall, errors.KindInvalidInput).
			Path(path...).
			Detail("method is not virtual").
			Build())
	}

	if inst.attrs == nil {
		inst.attrs = L.NewTable()
	}
	inst.attrs.RawSetString(name, L.Get(3))
	return 0
}

func (rt *Runtime) instanceString(L *lua.LState) int {
	inst := toInstance(L.Get(1))
	if inst == nil {
		L.Push(lua.LString("<invalid>"))
		return 1
	}
	obj, ok := rt.native(inst)
	switch {
	case !ok:
		L.Push(lua.LString(inst.ft.td.QualifiedName() + ": <released>"))
	default:
		if s, ok := obj.(fmt.Stringer); ok {
			L.Push(lua.LString(s.String()))
		} else {
			L.Push(lua.LString(fmt.Sprintf("%s: %p", inst.ft.td.QualifiedName(), obj)))
		}
	}
	return 1
}

// instanceEqual compares native identity, so two views of one object are
// equal.
func (rt *Runtime) instanceEqual(L *lua.LState) int {
	a, b := toInstance(L.Get(1)), toInstance(L.Get(2))
	if a == nil || b == nil {
		L.Push(lua.LFalse)
		return 1
	}
	va, oka := rt.native(a)
	vb, okb := rt.native(b)
	L.Push(lua.LBool(oka && okb && va == vb))
	return 1
}

// self reads the receiver of a method call at stack index 1.
func (rt *Runtime) self(L *lua.LState, ft *foreignType, path []string) *instance {
	inst := toInstance(L.Get(1))
	if inst == nil || inst.ft != ft {
		rt.raise(L, errors.TypeMismatch(errors.PhaseCall, append(path, "self"), ft.td.QualifiedName(), typeName(L.Get(1))))
	}
	return inst
}

// attach links a native value embedding script.Scripted to its userdata so
// virtual calls reach script overrides. A borrowed view never replaces an
// existing link.
func (rt *Runtime) attach(ud *lua.LUserData, h resource.Handle, v any, owned bool) {
	s, ok := v.(scriptLinked)
	if !ok {
		return
	}
	if !owned && s.Script() != nil {
		return
	}
	s.AttachScript(newDispatcher(rt, ud, h))
}

// detach unlinks s when it is still linked to the released handle h.
func (rt *Runtime) detach(s scriptLinked, h resource.Handle) {
	if d, ok := s.Script().(*dispatcher); ok && d.rt == rt && d.handle == h {
		s.DetachScript()
	}
}

type scriptLinked interface {
	script.Attacher
	Script() script.Dispatcher
}
