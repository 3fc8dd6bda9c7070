package luabind

import (
	"context"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/script"
)

var _ script.Backend = (*Runtime)(nil)

// Bind binds every module, type and function of tree into the runtime.
func (rt *Runtime) Bind(ctx context.Context, tree *script.Tree) error {
	return script.NewBinder(rt).Bind(ctx, tree)
}

// BindModule creates the module table of m: the globals table for the root,
// otherwise a table stored under the module name in its parent. An existing
// table is reused.
func (rt *Runtime) BindModule(ctx context.Context, m *script.Module) error {
	_, release, err := rt.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	_, err = rt.moduleTable(m)
	return err
}

func (rt *Runtime) moduleTable(m *script.Module) (*lua.LTable, error) {
	if m == nil || m.IsRoot() {
		return rt.L.G.Global, nil
	}
	if t, ok := rt.modules[m]; ok {
		return t, nil
	}
	parent, err := rt.moduleTable(m.Parent())
	if err != nil {
		return nil, err
	}

	var t *lua.LTable
	switch v := parent.RawGetString(m.Name()).(type) {
	case *lua.LTable:
		if rt.classes[v] != nil {
			return nil, errors.DuplicateBinding(m.Parent().Path(), "module", m.Name())
		}
		t = v
	case *lua.LNilType:
		t = rt.L.NewTable()
		parent.RawSetString(m.Name(), t)
	default:
		return nil, errors.DuplicateBinding(m.Parent().Path(), "module", m.Name())
	}
	rt.modules[m] = t
	Logger().Debug("bound module", zap.String("module", m.Path()))
	return t, nil
}

// BindType materializes td and stores its class table or enum proxy in the
// module table.
func (rt *Runtime) BindType(ctx context.Context, td *script.TypeData) error {
	_, release, err := rt.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	ft, err := rt.materialize(td)
	if err != nil {
		return err
	}
	mt, err := rt.moduleTable(td.Module)
	if err != nil {
		return err
	}
	mt.RawSetString(td.Name, ft.table)
	return nil
}

// BindFunction installs a trampoline for fd in its module table.
func (rt *Runtime) BindFunction(ctx context.Context, fd *script.FunctionData) error {
	_, release, err := rt.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if len(fd.Candidates()) == 0 {
		return errors.InvalidInput(errors.PhaseBind, "function "+fd.QualifiedName()+" has no overloads")
	}
	mt, err := rt.moduleTable(fd.Module)
	if err != nil {
		return err
	}
	mt.RawSetString(fd.Name, rt.L.NewFunction(rt.functionFunc(fd)))
	return nil
}

// Materialize builds the Lua side of td without binding it to a module.
// Repeated calls return without rebuilding.
func (rt *Runtime) Materialize(ctx context.Context, td *script.TypeData) error {
	_, release, err := rt.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	_, err = rt.materialize(td)
	return err
}
