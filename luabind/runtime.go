package luabind

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/internal/gil"
	"github.com/wippyai/script-bridge/resource"
	"github.com/wippyai/script-bridge/script"
	"github.com/wippyai/script-bridge/typeid"
)

// Runtime is a Lua state with registered native types bound into it.
//
// Every entry point acquires the runtime lock. Calls made from inside a
// running script (native code dispatching back to a script override) pass
// the lock-carrying context through and re-enter without blocking.
type Runtime struct {
	L        *lua.LState
	lock     *gil.Lock
	registry *script.Registry
	handles  *resource.Table

	types   map[*script.TypeData]*foreignType
	classes map[*lua.LTable]*luaClass
	modules map[*script.Module]*lua.LTable

	instMeta *lua.LTable
	errMeta  *lua.LTable

	collectMu sync.Mutex
	collected []*instance

	closed atomic.Bool
}

// Stats reports runtime bookkeeping.
type Stats struct {
	Types   int // materialized foreign types
	Objects int // live native objects referenced from Lua
	Pending int // collected objects awaiting release
}

// New creates a runtime over registry.
func New(registry *script.Registry, opts Options) (*Runtime, error) {
	if registry == nil {
		return nil, errors.InvalidInput(errors.PhaseConfig, "registry is required")
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	L := lua.NewState(opts.state())
	if err := openLibs(L, opts.Libs); err != nil {
		L.Close()
		return nil, err
	}

	rt := &Runtime{
		L:        L,
		lock:     gil.New(),
		registry: registry,
		types:    make(map[*script.TypeData]*foreignType),
		classes:  make(map[*lua.LTable]*luaClass),
		modules:  make(map[*script.Module]*lua.LTable),
	}
	rt.handles = resource.NewTable(rt.destroy)
	rt.instMeta = rt.newInstanceMeta()
	rt.errMeta = rt.newErrorMeta()

	Logger().Debug("lua runtime created", zap.Strings("libs", opts.Libs))
	return rt, nil
}

// Registry returns the registry the runtime resolves types against.
func (rt *Runtime) Registry() *script.Registry {
	return rt.registry
}

func (rt *Runtime) errClosed() error {
	return errors.InvalidInput(errors.PhaseRuntime, "runtime is closed")
}

// enter acquires the runtime lock for ctx and installs the lock-carrying
// context on the Lua state. Nested entries join the outer acquisition and
// leave the state untouched.
func (rt *Runtime) enter(ctx context.Context) (context.Context, func(), error) {
	ctx, release, _, err := rt.open(ctx)
	return ctx, release, err
}

// open is enter that also reports how many collected objects the outermost
// entry released.
func (rt *Runtime) open(ctx context.Context) (context.Context, func(), int, error) {
	if rt.closed.Load() {
		return nil, nil, 0, rt.errClosed()
	}
	nested := rt.lock.Held(ctx)
	ctx, release, err := rt.lock.Acquire(ctx)
	if err != nil {
		return nil, nil, 0, err
	}
	if nested {
		return ctx, release, 0, nil
	}
	if rt.closed.Load() {
		release()
		return nil, nil, 0, rt.errClosed()
	}

	rt.L.SetContext(ctx)
	n := rt.drain()
	return ctx, func() {
		rt.L.RemoveContext()
		release()
	}, n, nil
}

// DoString runs a chunk of Lua source.
func (rt *Runtime) DoString(ctx context.Context, src string) error {
	ctx, release, err := rt.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	fn, err := rt.L.LoadString(src)
	if err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindInvalidInput, err, "compile chunk")
	}
	return rt.run(ctx, fn, 0)
}

// DoFile runs a Lua source file.
func (rt *Runtime) DoFile(ctx context.Context, path string) error {
	ctx, release, err := rt.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	fn, err := rt.L.LoadFile(path)
	if err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindInvalidInput, err, "load "+path)
	}
	return rt.run(ctx, fn, 0)
}

// Eval runs src as an expression when it parses as one, otherwise as a
// statement chunk, and returns the produced values converted with the same
// rules as Call.
func (rt *Runtime) Eval(ctx context.Context, src string) ([]any, error) {
	ctx, release, err := rt.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	fn, err := rt.L.LoadString("return " + src)
	if err != nil {
		fn, err = rt.L.LoadString(src)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseRuntime, errors.KindInvalidInput, err, "compile chunk")
		}
	}

	top := rt.L.GetTop()
	if err := rt.run(ctx, fn, lua.MultRet); err != nil {
		return nil, err
	}
	n := rt.L.GetTop() - top
	out := make([]any, n)
	for i := 0; i < n; i++ {
		out[i] = rt.fromLua(rt.L.Get(top + 1 + i))
	}
	rt.L.Pop(n)
	return out, nil
}

func (rt *Runtime) run(ctx context.Context, fn *lua.LFunction, nret int, args ...lua.LValue) error {
	err := rt.L.CallByParam(lua.P{Fn: fn, NRet: nret, Protect: true}, args...)
	if err != nil {
		return rt.scriptError(ctx, err)
	}
	return nil
}

// Call invokes the global function at the dotted path name and returns its
// first result. Arguments convert as in SetGlobal.
func (rt *Runtime) Call(ctx context.Context, name string, args ...any) (any, error) {
	ctx, release, err := rt.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	v, err := rt.lookup(name)
	if err != nil {
		return nil, err
	}
	fn, ok := v.(*lua.LFunction)
	if !ok {
		return nil, errors.New(errors.PhaseRuntime, errors.KindTypeMismatch).
			Path(name).
			GoType("function").
			ScriptType(v.Type().String()).
			Build()
	}

	largs := make([]lua.LValue, len(args))
	for i, a := range args {
		if largs[i], err = rt.toLua(a); err != nil {
			return nil, err
		}
	}
	if err := rt.run(ctx, fn, 1, largs...); err != nil {
		return nil, err
	}
	ret := rt.L.Get(-1)
	rt.L.Pop(1)
	return rt.fromLua(ret), nil
}

// Global returns the value at the dotted path name, converted like a Call
// result.
func (rt *Runtime) Global(ctx context.Context, name string) (any, error) {
	_, release, err := rt.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	v, err := rt.lookup(name)
	if err != nil {
		return nil, err
	}
	return rt.fromLua(v), nil
}

func (rt *Runtime) lookup(name string) (lua.LValue, error) {
	var v lua.LValue = rt.L.G.Global
	for _, part := range strings.Split(name, ".") {
		if _, ok := v.(*lua.LTable); !ok && !isObject(v) {
			return nil, errors.NotFound(errors.PhaseRuntime, "global", name)
		}
		v = rt.L.GetField(v, part)
	}
	if v == lua.LNil {
		return nil, errors.NotFound(errors.PhaseRuntime, "global", name)
	}
	return v, nil
}

// SetGlobal assigns a Go value to a global. Primitives convert to Lua
// values; registered native objects are exposed as borrowed views.
func (rt *Runtime) SetGlobal(ctx context.Context, name string, v any) error {
	_, release, err := rt.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	lv, err := rt.toLua(v)
	if err != nil {
		return err
	}
	rt.L.SetGlobal(name, lv)
	return nil
}

// NewObject wraps a registered native object. With owned set the runtime
// takes ownership and runs the type's destructor when the Lua object is
// collected or released.
func (rt *Runtime) NewObject(ctx context.Context, v any, owned bool) (lua.LValue, error) {
	_, release, err := rt.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	id := typeid.FromValue(v).Referent()
	return rt.wrap(id, v, owned)
}

// Native returns the native object behind a foreign instance. It reports
// false for other values and for released instances.
func (rt *Runtime) Native(v lua.LValue) (any, bool) {
	ud, ok := v.(*lua.LUserData)
	if !ok {
		return nil, false
	}
	inst, ok := ud.Value.(*instance)
	if !ok {
		return nil, false
	}
	return rt.native(inst)
}

// Release drops the native object behind a foreign instance now instead of
// waiting for collection. Owned objects are destroyed; the Lua value stays
// valid but every further access fails with a released error.
func (rt *Runtime) Release(ctx context.Context, v lua.LValue) error {
	_, release, err := rt.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	ud, ok := v.(*lua.LUserData)
	if !ok {
		return errors.InvalidInput(errors.PhaseRuntime, "not a foreign object")
	}
	inst, ok := ud.Value.(*instance)
	if !ok {
		return errors.InvalidInput(errors.PhaseRuntime, "not a foreign object")
	}
	rt.release(inst)
	return nil
}

// Collect runs a Go garbage collection and releases every foreign instance
// whose Lua object was found unreachable. It returns the number released.
// Finalizers run asynchronously, so an object dropped just before Collect
// may only be released by a later entry.
func (rt *Runtime) Collect(ctx context.Context) (int, error) {
	runtime.GC()
	_, release, n, err := rt.open(ctx)
	if err != nil {
		return 0, err
	}
	defer release()
	return n + rt.drain(), nil
}

// Stats returns current bookkeeping counters.
func (rt *Runtime) Stats(ctx context.Context) (Stats, error) {
	_, release, err := rt.lock.Acquire(ctx)
	if err != nil {
		return Stats{}, err
	}
	defer release()

	rt.collectMu.Lock()
	pending := len(rt.collected)
	rt.collectMu.Unlock()
	return Stats{
		Types:   len(rt.types),
		Objects: rt.handles.Len(),
		Pending: pending,
	}, nil
}

// Close releases every native object, running destructors of owned ones,
// and closes the Lua state. Close is idempotent.
func (rt *Runtime) Close() error {
	_, release, err := rt.lock.Acquire(context.Background())
	if err != nil {
		return err
	}
	defer release()

	if rt.closed.Swap(true) {
		return nil
	}
	rt.drain()
	err = multierr.Append(nil, rt.handles.Close())
	rt.L.Close()
	Logger().Debug("lua runtime closed")
	return err
}

// enqueue is called from Go finalizers, outside the runtime lock.
func (rt *Runtime) enqueue(inst *instance) {
	rt.collectMu.Lock()
	rt.collected = append(rt.collected, inst)
	rt.collectMu.Unlock()
}

// drain releases instances queued by finalizers. The caller holds the lock.
func (rt *Runtime) drain() int {
	rt.collectMu.Lock()
	pending := rt.collected
	rt.collected = nil
	rt.collectMu.Unlock()

	for _, inst := range pending {
		rt.release(inst)
	}
	if len(pending) > 0 {
		Logger().Debug("released collected objects", zap.Int("count", len(pending)))
	}
	return len(pending)
}

// release clears the instance slot before releasing the handle so that a
// destructor re-entering the runtime observes the object as gone.
func (rt *Runtime) release(inst *instance) {
	h := resource.Handle(inst.handle.Swap(0))
	if h == 0 {
		return
	}
	rt.handles.Release(h)
}

// destroy is the handle table finalizer.
func (rt *Runtime) destroy(e resource.Entry) {
	td, _ := rt.registry.ByIndex(e.TypeID)
	if s, ok := e.Value.(scriptLinked); ok {
		rt.detach(s, e.Handle)
	}
	if !e.Owned {
		return
	}
	switch {
	case td != nil && td.Destructor != nil:
		td.Destructor(e.Value)
	default:
		if d, ok := e.Value.(resource.Dropper); ok {
			d.Drop()
		}
	}
}

func (rt *Runtime) native(inst *instance) (any, bool) {
	h := resource.Handle(inst.handle.Load())
	if h == 0 {
		return nil, false
	}
	return rt.handles.Get(h)
}

func (rt *Runtime) pin(inst *instance) (func(), error) {
	h := resource.Handle(inst.handle.Load())
	if h == 0 || !rt.handles.Pin(h) {
		return nil, errors.Released(errors.PhaseCall, inst.ft.td.QualifiedName())
	}
	return func() { rt.handles.Unpin(h) }, nil
}
