package wasmbind

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/internal/gil"
	"github.com/wippyai/script-bridge/resource"
	"github.com/wippyai/script-bridge/script"
	"github.com/wippyai/script-bridge/typeid"
)

// Runtime exports registered native types and functions to WebAssembly
// guests as wazero host modules.
//
// Binding plans one host function per overload. Finish instantiates the
// planned host modules; guests instantiated afterwards import them by
// module path. Native objects cross the boundary as u32 handles.
type Runtime struct {
	wz        wazero.Runtime
	lock      *gil.Lock
	registry  *script.Registry
	handles   *resource.Table
	plan      *planner
	hosts     map[string]api.Module
	instances map[string]*Instance

	closed atomic.Bool
}

// Stats reports runtime bookkeeping.
type Stats struct {
	HostModules int // instantiated host modules
	Exports     int // planned host functions
	Instances   int // live guest instances
	Objects     int // native objects reachable through handles
}

// New creates a runtime over registry.
func New(ctx context.Context, registry *script.Registry, opts Options) (*Runtime, error) {
	if registry == nil {
		return nil, errors.InvalidInput(errors.PhaseConfig, "registry is required")
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	rt := &Runtime{
		wz:        wazero.NewRuntimeWithConfig(ctx, opts.runtimeConfig()),
		lock:      gil.New(),
		registry:  registry,
		plan:      newPlanner(registry, opts.RootModule),
		hosts:     make(map[string]api.Module),
		instances: make(map[string]*Instance),
	}
	rt.handles = resource.NewTable(rt.destroy)

	Logger().Debug("wasm runtime created",
		zap.String("root_module", opts.RootModule),
		zap.Uint32("memory_limit_pages", opts.MemoryLimitPages))
	return rt, nil
}

// Registry returns the registry the runtime resolves types against.
func (rt *Runtime) Registry() *script.Registry {
	return rt.registry
}

func (rt *Runtime) errClosed() error {
	return errors.InvalidInput(errors.PhaseRuntime, "runtime is closed")
}

// enter acquires the runtime lock for ctx. Host calls made by a guest that
// was called under the lock join the outer acquisition.
func (rt *Runtime) enter(ctx context.Context) (context.Context, func(), error) {
	if rt.closed.Load() {
		return nil, nil, rt.errClosed()
	}
	ctx, release, err := rt.lock.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	if rt.closed.Load() {
		release()
		return nil, nil, rt.errClosed()
	}
	return ctx, release, nil
}

var (
	_ script.Backend  = (*Runtime)(nil)
	_ script.Finisher = (*Runtime)(nil)
)

// Bind plans every module, type and function of tree and instantiates the
// resulting host modules.
func (rt *Runtime) Bind(ctx context.Context, tree *script.Tree) error {
	return script.NewBinder(rt).Bind(ctx, tree)
}

func (rt *Runtime) BindModule(ctx context.Context, m *script.Module) error {
	ctx, release, err := rt.enter(ctx)
	if err != nil {
		return err
	}
	defer release()
	return rt.plan.BindModule(ctx, m)
}

func (rt *Runtime) BindType(ctx context.Context, td *script.TypeData) error {
	ctx, release, err := rt.enter(ctx)
	if err != nil {
		return err
	}
	defer release()
	return rt.plan.BindType(ctx, td)
}

func (rt *Runtime) BindFunction(ctx context.Context, fd *script.FunctionData) error {
	ctx, release, err := rt.enter(ctx)
	if err != nil {
		return err
	}
	defer release()
	return rt.plan.BindFunction(ctx, fd)
}

// Finish instantiates every planned host module that has functions and is
// not instantiated yet. Instantiated modules are frozen.
func (rt *Runtime) Finish(ctx context.Context) error {
	ctx, release, err := rt.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	var errs error
	for _, hm := range rt.plan.order {
		if hm.frozen || len(hm.Funcs) == 0 {
			continue
		}
		errs = multierr.Append(errs, rt.instantiateHost(ctx, hm))
	}
	return errs
}

func (rt *Runtime) instantiateHost(ctx context.Context, hm *HostModule) error {
	b := rt.wz.NewHostModuleBuilder(hm.Name)
	for _, hf := range hm.Funcs {
		names := make([]string, 0, len(hf.CoreParams()))
		for i, p := range hf.Params {
			if hf.params[i].width() == 1 {
				names = append(names, p.Name)
				continue
			}
			names = append(names, p.Name+"-ptr", p.Name+"-len")
		}
		b = b.NewFunctionBuilder().
			WithGoModuleFunction(rt.hostFunction(hf), hf.CoreParams(), hf.CoreResults()).
			WithName(hf.Name).
			WithParameterNames(names...).
			Export(hf.Name)
	}
	mod, err := b.Instantiate(ctx)
	if err != nil {
		return errors.Wrap(errors.PhaseBind, errors.KindInvalidInput, err, "instantiate host module "+hm.Name)
	}
	hm.frozen = true
	rt.hosts[hm.Name] = mod
	Logger().Debug("host module instantiated",
		zap.String("module", hm.Name),
		zap.Int("exports", len(hm.Funcs)))
	return nil
}

// HostModules returns the planned host modules in binding order.
func (rt *Runtime) HostModules() []*HostModule {
	return append([]*HostModule(nil), rt.plan.order...)
}

// HostModule returns the planned host module name.
func (rt *Runtime) HostModule(name string) (*HostModule, bool) {
	hm, ok := rt.plan.modules[name]
	return hm, ok
}

// hostFunction adapts hf to wazero. Errors unwind the guest as a panic;
// wazero returns them to the outer caller wrapped with %w.
func (rt *Runtime) hostFunction(hf *HostFunc) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		if err := rt.callHost(ctx, moduleGuest{mod: mod}, hf, stack); err != nil {
			panic(err)
		}
	}
}

// callHost runs hf with arguments decoded from stack and writes its result
// back to stack.
func (rt *Runtime) callHost(ctx context.Context, g guest, hf *HostFunc, stack []uint64) error {
	ctx, release, err := rt.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	hc, err := rt.newHostCall(ctx, g, hf, stack)
	if err != nil {
		return err
	}

	switch hf.kind {
	case callEnum:
		hc.storeSigned(hf.value)
	case callDrop:
		if err := rt.checkSelf(hc); err != nil {
			return err
		}
		rt.handles.Release(hc.self)
		return nil
	default:
		if hf.method() {
			if err := rt.checkSelf(hc); err != nil {
				return err
			}
			if !rt.handles.Pin(hc.self) {
				return errors.Released(errors.PhaseCall, hf.td.QualifiedName())
			}
			defer rt.handles.Unpin(hc.self)
		}
		if err := hf.invoke(hc); err != nil {
			return err
		}
	}
	if hc.err != nil {
		return hc.err
	}

	want := hf.result.width()
	switch {
	case len(hc.result) == want:
	case hc.result == nil:
		hc.result = make([]uint64, want)
	default:
		return errors.TypeMismatch(errors.PhaseCall, hc.resultPath(), TypeString(hf.result.wit), "mismatched result")
	}
	copy(stack, hc.result)
	return nil
}

// checkSelf verifies the receiver handle refers to a live object of the
// method's type.
func (rt *Runtime) checkSelf(hc *hostCall) error {
	idx, ok := rt.handles.TypeID(hc.self)
	if !ok {
		return errors.Released(errors.PhaseCall, hc.hf.td.QualifiedName())
	}
	if idx != hc.hf.params[0].index {
		got := "unknown"
		if td, ok := rt.registry.ByIndex(idx); ok {
			got = td.QualifiedName()
		}
		return errors.TypeMismatch(errors.PhaseCall, append(append([]string(nil), hc.hf.path...), "self"),
			hc.hf.td.QualifiedName(), got)
	}
	return nil
}

// insert stores a native object of registered type id in the handle table.
func (rt *Runtime) insert(id typeid.ID, v any, owned bool) (resource.Handle, error) {
	td, ok := rt.registry.Get(id)
	if !ok {
		return 0, errors.UnregisteredType(errors.PhaseCall, nil, fmt.Sprintf("%T", v))
	}
	if td.IsEnum() {
		return 0, errors.InvalidInput(errors.PhaseCall, "enum "+td.QualifiedName()+" has no instances")
	}
	idx, _ := rt.registry.Index(id)
	return rt.handles.Insert(idx, v, owned)
}

// object resolves a handle argument to its native object of type want.
func (rt *Runtime) object(h resource.Handle, want typeid.ID, path []string) (any, error) {
	name := want.String()
	if td, ok := rt.registry.Get(want); ok {
		name = td.QualifiedName()
	}
	if h == 0 {
		return nil, errors.TypeMismatch(errors.PhaseCall, path, name, "null handle")
	}
	idx, ok := rt.handles.TypeID(h)
	if !ok {
		return nil, errors.Released(errors.PhaseCall, name)
	}
	td, ok := rt.registry.ByIndex(idx)
	if !ok || td.ID != want {
		got := "unknown"
		if ok {
			got = td.QualifiedName()
		}
		return nil, errors.TypeMismatch(errors.PhaseCall, path, name, got)
	}
	v, ok := rt.handles.Get(h)
	if !ok {
		return nil, errors.Released(errors.PhaseCall, name)
	}
	return v, nil
}

// NewHandle lends v to guests as a borrowed handle. Native code keeps
// owning v; Release drops the handle without running a destructor.
func (rt *Runtime) NewHandle(ctx context.Context, v any) (resource.Handle, error) {
	_, release, err := rt.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer release()
	return rt.insert(typeid.FromValue(v).Referent(), v, false)
}

// Native returns the object behind h.
func (rt *Runtime) Native(h resource.Handle) (any, bool) {
	return rt.handles.Get(h)
}

// Release drops h. Owned objects run their destructor. Releasing an
// unknown handle is a no-op.
func (rt *Runtime) Release(ctx context.Context, h resource.Handle) error {
	_, release, err := rt.enter(ctx)
	if err != nil {
		return err
	}
	defer release()
	rt.handles.Release(h)
	return nil
}

// Stats returns current bookkeeping counts.
func (rt *Runtime) Stats(ctx context.Context) (Stats, error) {
	_, release, err := rt.enter(ctx)
	if err != nil {
		return Stats{}, err
	}
	defer release()

	s := Stats{
		HostModules: len(rt.hosts),
		Instances:   len(rt.instances),
		Objects:     rt.handles.Len(),
	}
	for _, hm := range rt.plan.order {
		s.Exports += len(hm.Funcs)
	}
	return s, nil
}

// Close releases every handle, running destructors of owned objects, and
// closes all guest and host modules. Close is idempotent.
func (rt *Runtime) Close() error {
	ctx, release, err := rt.lock.Acquire(context.Background())
	if err != nil {
		return err
	}
	defer release()

	if rt.closed.Swap(true) {
		return nil
	}
	err = multierr.Append(rt.handles.Close(), rt.wz.Close(ctx))
	rt.instances = nil
	Logger().Debug("wasm runtime closed")
	return err
}

// destroy is the handle table finalizer.
func (rt *Runtime) destroy(e resource.Entry) {
	if s, ok := e.Value.(scriptLinked); ok {
		rt.detach(s, e.Handle)
	}
	if !e.Owned {
		return
	}
	td, _ := rt.registry.ByIndex(e.TypeID)
	switch {
	case td != nil && td.Destructor != nil:
		td.Destructor(e.Value)
	default:
		if d, ok := e.Value.(resource.Dropper); ok {
			d.Drop()
		}
	}
}
