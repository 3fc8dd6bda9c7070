package bridge

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/luabind"
	"github.com/wippyai/script-bridge/script"
	"github.com/wippyai/script-bridge/wasmbind"
)

// Bridge owns one registry and module tree, loaded from reflectors, and
// the runtimes they are bound into.
type Bridge struct {
	opts     Options
	registry *script.Registry
	tree     *script.Tree
	lua      *luabind.Runtime
	wasm     *wasmbind.Runtime
}

// New loads the selected reflectors, then binds the resulting tree into a
// Lua runtime and, when enabled, a WebAssembly runtime. extra reflectors
// join the registered ones.
func New(ctx context.Context, opts Options, extra ...script.Reflector) (*Bridge, error) {
	rs, err := selectReflectors(opts.Reflectors, append(script.Reflectors(), extra...))
	if err != nil {
		return nil, err
	}

	b := &Bridge{opts: opts}
	if opts.Global {
		b.registry, b.tree, err = loadGlobal(ctx, rs)
	} else {
		b.registry, b.tree = script.NewRegistry(), script.NewTree()
		err = load(ctx, b.registry, b.tree, rs)
	}
	if err != nil {
		return nil, err
	}

	if b.lua, err = luabind.New(b.registry, opts.Lua); err != nil {
		return nil, err
	}
	if err := b.lua.Bind(ctx, b.tree); err != nil {
		return nil, multierr.Append(err, b.Close())
	}

	if opts.Wasm != nil {
		if b.wasm, err = wasmbind.New(ctx, b.registry, *opts.Wasm); err != nil {
			return nil, multierr.Append(err, b.Close())
		}
		if err := b.wasm.Bind(ctx, b.tree); err != nil {
			return nil, multierr.Append(err, b.Close())
		}
	}

	Logger().Info("bridge ready",
		zap.Int("reflectors", len(rs)),
		zap.Int("types", b.registry.Len()),
		zap.Bool("wasm", b.wasm != nil))
	return b, nil
}

func load(ctx context.Context, registry *script.Registry, tree *script.Tree, rs []script.Reflector) error {
	loader := script.NewLoader(registry, tree)
	if err := loader.Add(rs...); err != nil {
		return err
	}
	return loader.LoadAll(ctx)
}

var globalMu sync.Mutex

// loadGlobal loads rs into the process-wide registry and tree unless an
// earlier bridge already sealed them.
func loadGlobal(ctx context.Context, rs []script.Reflector) (*script.Registry, *script.Tree, error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	registry, tree := script.Global()
	if registry.Sealed() {
		Logger().Debug("reusing the process-wide registry", zap.Int("types", registry.Len()))
		return registry, tree, nil
	}
	if err := load(ctx, registry, tree, rs); err != nil {
		return nil, nil, err
	}
	return registry, tree, nil
}

// selectReflectors picks the named reflectors from pool together with
// their transitive dependencies, keeping pool order.
func selectReflectors(names []string, pool []script.Reflector) ([]script.Reflector, error) {
	if len(names) == 0 {
		return pool, nil
	}
	byName := make(map[string]script.Reflector, len(pool))
	for _, r := range pool {
		byName[r.Name()] = r
	}

	want := make(map[string]bool)
	var visit func(name string) error
	visit = func(name string) error {
		if want[name] {
			return nil
		}
		r, ok := byName[name]
		if !ok {
			return errors.NotFound(errors.PhaseConfig, "reflector", name)
		}
		want[name] = true
		for _, dep := range r.Dependencies() {
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	out := make([]script.Reflector, 0, len(want))
	for _, r := range pool {
		if want[r.Name()] {
			out = append(out, r)
		}
	}
	return out, nil
}

// Registry returns the bridge's type registry.
func (b *Bridge) Registry() *script.Registry { return b.registry }

// Tree returns the bridge's module tree.
func (b *Bridge) Tree() *script.Tree { return b.tree }

// Lua returns the Lua runtime.
func (b *Bridge) Lua() *luabind.Runtime { return b.lua }

// Wasm returns the WebAssembly runtime, or nil when it is disabled.
func (b *Bridge) Wasm() *wasmbind.Runtime { return b.wasm }

// RunString runs a chunk of Lua source.
func (b *Bridge) RunString(ctx context.Context, src string) error {
	return b.lua.DoString(ctx, src)
}

// RunFile runs a Lua source file.
func (b *Bridge) RunFile(ctx context.Context, path string) error {
	Logger().Debug("running script", zap.String("path", path))
	return b.lua.DoFile(ctx, path)
}

// Eval evaluates a Lua expression or statement chunk.
func (b *Bridge) Eval(ctx context.Context, src string) ([]any, error) {
	return b.lua.Eval(ctx, src)
}

// LoadWasm reads and instantiates a guest module under name.
func (b *Bridge) LoadWasm(ctx context.Context, name, path string) (*wasmbind.Instance, error) {
	if b.wasm == nil {
		return nil, errors.InvalidInput(errors.PhaseConfig, "wasm backend is disabled")
	}
	bin, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindNotFound, err, "read "+path)
	}
	Logger().Debug("loading guest", zap.String("name", name), zap.String("path", path))
	return b.wasm.Instantiate(ctx, name, bin)
}

// Export describes one bound callable in WIT terms.
type Export struct {
	Module    string
	Name      string
	Signature string
	Virtual   bool
}

// Describe lists every bound callable with its WIT signature, grouped by
// module and sorted by name within a module. Callables that cannot be
// expressed are left out and reported in the returned error alongside
// the rest.
func (b *Bridge) Describe(ctx context.Context) ([]Export, error) {
	mods, err := wasmbind.Plan(ctx, b.registry, b.tree, b.opts.rootModule())
	var out []Export
	for _, hm := range mods {
		start := len(out)
		for _, hf := range hm.Funcs {
			out = append(out, Export{
				Module:    hm.Name,
				Name:      hf.Name,
				Signature: hf.Signature(),
				Virtual:   hf.Virtual,
			})
		}
		slices.SortFunc(out[start:], func(a, b Export) int { return strings.Compare(a.Name, b.Name) })
	}
	return out, err
}

// RunManifest instantiates the manifest's guest modules, then runs its
// scripts in order. The first failure stops the run.
func (b *Bridge) RunManifest(ctx context.Context, m *Manifest) error {
	for _, g := range m.Guests {
		if _, err := b.LoadWasm(ctx, g.Name, g.Path); err != nil {
			return err
		}
	}
	for _, path := range m.Scripts {
		if err := b.RunFile(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

// Close closes both runtimes. Owned native objects run their destructors.
func (b *Bridge) Close() error {
	var err error
	if b.wasm != nil {
		err = multierr.Append(err, b.wasm.Close())
	}
	if b.lua != nil {
		err = multierr.Append(err, b.lua.Close())
	}
	return err
}
