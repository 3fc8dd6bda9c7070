package luabind

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/script"
)

// materialize builds the Lua side of td once. A failure caches nothing.
// The caller holds the runtime lock.
func (rt *Runtime) materialize(td *script.TypeData) (*foreignType, error) {
	if ft, ok := rt.types[td]; ok {
		return ft, nil
	}

	var (
		ft  *foreignType
		err error
	)
	if td.IsEnum() {
		ft = rt.materializeEnum(td)
	} else {
		ft, err = rt.materializeClass(td)
	}
	if err != nil {
		return nil, errors.Materialization(td.QualifiedName(), err)
	}

	rt.types[td] = ft
	Logger().Debug("materialized type",
		zap.String("type", td.QualifiedName()),
		zap.Int("fields", len(td.Fields)),
		zap.Int("methods", len(td.Methods)))
	return ft, nil
}

// materializeEnum exposes the constants through a read-only proxy.
func (rt *Runtime) materializeEnum(td *script.TypeData) *foreignType {
	L := rt.L
	values := L.NewTable()
	for _, v := range td.EnumValues {
		values.RawSetString(v.Name, lua.LNumber(v.Value))
	}

	proxy := L.NewTable()
	mt := L.NewTable()
	mt.RawSetString("__index", values)
	mt.RawSetString("__newindex", L.NewFunction(func(L *lua.LState) int {
		rt.raise(L, errors.New(errors.PhaseCall, errors.KindInvalidInput).
			Path(td.QualifiedName(), L.OptString(2, "?")).
			Detail("enum is read-only").
			Build())
		return 0
	}))
	mt.RawSetString("__metatable", lua.LString("enum"))
	L.SetMetatable(proxy, mt)

	return &foreignType{td: td, table: proxy}
}

func (rt *Runtime) materializeClass(td *script.TypeData) (*foreignType, error) {
	seen := make(map[string]bool, len(td.Fields)+len(td.Methods))
	claim := func(name string) error {
		if name == extendKey {
			return errors.InvalidInput(errors.PhaseMaterialize, "member name "+extendKey+" is reserved")
		}
		if seen[name] {
			return errors.New(errors.PhaseMaterialize, errors.KindInvalidInput).
				Path(td.QualifiedName(), name).
				Detail("duplicate member name").
				Build()
		}
		seen[name] = true
		return nil
	}

	ft := &foreignType{
		td:      td,
		fields:  make(map[string]*script.Field, len(td.Fields)),
		methods: make(map[string]*boundMethod, len(td.Methods)),
	}
	for i := range td.Fields {
		f := &td.Fields[i]
		if err := claim(f.Name); err != nil {
			return nil, err
		}
		ft.fields[f.Name] = f
	}

	L := rt.L
	cls := L.NewTable()
	for i := range td.Methods {
		m := &td.Methods[i]
		if err := claim(m.Name); err != nil {
			return nil, err
		}
		if len(m.Overloads) == 0 {
			return nil, errors.New(errors.PhaseMaterialize, errors.KindInvalidInput).
				Path(td.QualifiedName(), m.Name).
				Detail("method has no overloads").
				Build()
		}
		fn := L.NewFunction(rt.methodFunc(ft, m))
		cls.RawSetString(m.Name, fn)
		if !m.Static {
			ft.methods[m.Name] = &boundMethod{m: m, fn: fn}
		}
	}

	ft.table = cls
	ft.class = rt.newClass(cls, ft, nil)
	return ft, nil
}

// newClass registers cls as a class table and installs its constructor and
// extend entry.
func (rt *Runtime) newClass(cls *lua.LTable, ft *foreignType, base *luaClass) *luaClass {
	L := rt.L
	c := &luaClass{table: cls, ft: ft, base: base}
	rt.classes[cls] = c

	cls.RawSetString(extendKey, L.NewFunction(func(L *lua.LState) int {
		return rt.extend(L, c)
	}))

	mt := L.NewTable()
	mt.RawSetString("__call", L.NewFunction(func(L *lua.LState) int {
		return rt.construct(L, c)
	}))
	mt.RawSetString("__tostring", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString("class " + ft.td.QualifiedName()))
		return 1
	}))
	if base != nil {
		mt.RawSetString("__index", base.table)
	}
	L.SetMetatable(cls, mt)
	return c
}

// extend derives a script subclass. It accepts Class.extend(def) and
// Class:extend(def); def becomes the subclass table and may be omitted.
func (rt *Runtime) extend(L *lua.LState, base *luaClass) int {
	idx := 1
	if t, ok := L.Get(1).(*lua.LTable); ok && rt.classes[t] != nil {
		idx = 2
	}
	def := L.OptTable(idx, nil)
	if def == nil {
		def = L.NewTable()
	}
	if rt.classes[def] != nil {
		L.ArgError(idx, "table is already a class")
	}
	sub := rt.newClass(def, base.ft, base)
	L.Push(sub.table)
	return 1
}

// lookupClass finds name in the script subclasses between c and its native
// class.
func lookupClass(c *luaClass, name string) lua.LValue {
	for ; c != nil && c.base != nil; c = c.base {
		if v := c.table.RawGetString(name); v != lua.LNil {
			return v
		}
	}
	return nil
}

// construct implements Class(...). A subclass defining init is built with
// the default constructor and then initialized by init(self, ...);
// otherwise the arguments select a native constructor.
func (rt *Runtime) construct(L *lua.LState, c *luaClass) int {
	td := c.ft.td
	path := []string{td.QualifiedName()}
	if !td.Instantiable() {
		rt.raise(L, errors.NotInstantiable(td.QualifiedName()))
	}

	init, _ := lookupClass(c, "init").(*lua.LFunction)
	top := L.GetTop()
	base := 2
	if init != nil {
		base = top + 1
	}

	cc := rt.newCall(L, nil, base, path)
	if err := script.Invoke(td.Constructors, cc, path...); err != nil {
		if errors.IsKind(err, errors.KindNoMatchingOverload) {
			err = errors.NoMatchingConstructor(td.QualifiedName(), script.ClassNames(script.Classify(cc)))
		}
		rt.raise(L, err)
	}

	ud, ok := cc.result.(*lua.LUserData)
	inst := toInstance(cc.result)
	if !ok || inst == nil {
		rt.raise(L, errors.New(errors.PhaseCall, errors.KindInvalidInput).
			Path(path...).
			Detail("constructor returned no object").
			Build())
	}
	inst.class = c

	if init != nil {
		args := make([]lua.LValue, 0, top)
		args = append(args, ud)
		for i := 2; i <= top; i++ {
			args = append(args, L.Get(i))
		}
		L.CallByParam(lua.P{Fn: init, NRet: 0, Protect: false}, args...)
	}
	L.Push(ud)
	return 1
}

func (rt *Runtime) methodFunc(ft *foreignType, m *script.Method) lua.LGFunction {
	return func(L *lua.LState) int {
		path := []string{ft.td.QualifiedName(), m.Name}
		if m.Static {
			return rt.invokeOverloads(L, nil, 1, path, m.Overloads)
		}
		inst := rt.self(L, ft, path)
		return rt.invokeOverloads(L, inst, 2, path, m.Overloads)
	}
}

func (rt *Runtime) functionFunc(fd *script.FunctionData) lua.LGFunction {
	ovs := fd.Candidates()
	return func(L *lua.LState) int {
		return rt.invokeOverloads(L, nil, 1, []string{fd.QualifiedName()}, ovs)
	}
}

func (rt *Runtime) invokeOverloads(L *lua.LState, inst *instance, base int, path []string, ovs []script.Overload) int {
	return rt.invoke(L, inst, base, path, func(cc *callContext) error {
		return script.Invoke(ovs, cc, path...)
	})
}

// invoke runs fn with a call context over the stack from base. A receiver
// stays pinned for the duration so a release from inside the call is
// deferred until it returns.
func (rt *Runtime) invoke(L *lua.LState, inst *instance, base int, path []string, fn func(*callContext) error) int {
	if inst != nil {
		unpin, err := rt.pin(inst)
		if err != nil {
			rt.raise(L, err)
		}
		defer unpin()
	}

	cc := rt.newCall(L, inst, base, path)
	if err := fn(cc); err != nil {
		rt.raise(L, err)
	}
	return cc.push()
}
