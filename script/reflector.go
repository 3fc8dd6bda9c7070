package script

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/internal/graph"
)

// Reflector contributes types and functions to the module tree during the
// load phase. Dependencies name reflectors that must run first.
type Reflector interface {
	Name() string
	Dependencies() []string
	Reflect(r *Reflection) error
}

type funcReflector struct {
	fn   func(*Reflection) error
	name string
	deps []string
}

func (f *funcReflector) Name() string { return f.name }
func (f *funcReflector) Dependencies() []string { return f.deps }
func (f *funcReflector) Reflect(r *Reflection) error { return f.fn(r) }

// NewReflector adapts a function to Reflector.
func NewReflector(name string, deps []string, fn func(*Reflection) error) Reflector {
	return &funcReflector{name: name, deps: deps, fn: fn}
}

var (
	reflectorsMu sync.Mutex
	reflectors   = make(map[string]Reflector)
)

// RegisterReflector makes a reflector available to loaders created with
// Reflectors(). It is meant to be called from package init functions and
// panics on a duplicate name.
func RegisterReflector(r Reflector) {
	reflectorsMu.Lock()
	defer reflectorsMu.Unlock()
	if _, dup := reflectors[r.Name()]; dup {
		panic("script: RegisterReflector called twice for " + r.Name())
	}
	reflectors[r.Name()] = r
}

// Reflectors returns the registered reflectors sorted by name.
func Reflectors() []Reflector {
	reflectorsMu.Lock()
	defer reflectorsMu.Unlock()
	out := make([]Reflector, 0, len(reflectors))
	for _, r := range reflectors {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Reflection is the view a reflector gets of the registry and tree.
type Reflection struct {
	registry  *Registry
	tree      *Tree
	reflector string
}

// Name returns the name of the running reflector.
func (r *Reflection) Name() string {
	return r.reflector
}

// Registry returns the type registry being populated.
func (r *Reflection) Registry() *Registry {
	return r.registry
}

// Tree returns the module tree being populated.
func (r *Reflection) Tree() *Tree {
	return r.tree
}

// Module returns the module at a dotted path, creating it if needed.
func (r *Reflection) Module(path string) (*Module, error) {
	return r.tree.Create(path)
}

// AddType registers td and binds it into the module at path.
func (r *Reflection) AddType(path string, td *TypeData) error {
	m, err := r.tree.Create(path)
	if err != nil {
		return err
	}
	if err := r.registry.Register(td); err != nil {
		return err
	}
	return m.AddType(td)
}

// AddFunction binds fd into the module at path.
func (r *Reflection) AddFunction(path string, fd *FunctionData) error {
	m, err := r.tree.Create(path)
	if err != nil {
		return err
	}
	return m.AddFunction(fd)
}

// Loader runs reflectors in dependency order against one registry and tree.
type Loader struct {
	registry   *Registry
	tree       *Tree
	names      map[string]bool
	reflectors []Reflector
}

// NewLoader creates a loader populating registry and tree.
func NewLoader(registry *Registry, tree *Tree) *Loader {
	return &Loader{
		registry: registry,
		tree:     tree,
		names:    make(map[string]bool),
	}
}

// Add queues reflectors. Names must be unique.
func (l *Loader) Add(rs ...Reflector) error {
	for _, r := range rs {
		if l.names[r.Name()] {
			return errors.New(errors.PhaseLoad, errors.KindDuplicateRegistration).
				Detail("reflector %q added twice", r.Name()).
				Build()
		}
		l.names[r.Name()] = true
		l.reflectors = append(l.reflectors, r)
	}
	return nil
}

// LoadAll runs every queued reflector once, dependencies first, then seals
// the registry and tree. The first registration error aborts the load.
func (l *Loader) LoadAll(ctx context.Context) error {
	g := graph.New()
	byName := make(map[string]Reflector, len(l.reflectors))
	for _, r := range l.reflectors {
		byName[r.Name()] = r
		g.Add(r.Name(), nil, r.Dependencies())
	}

	order, err := g.Order()
	if err != nil {
		return dependencyError(err)
	}

	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		r := byName[name]
		Logger().Debug("loading reflector", zap.String("reflector", name))
		refl := &Reflection{registry: l.registry, tree: l.tree, reflector: name}
		if err := r.Reflect(refl); err != nil {
			return errors.New(errors.PhaseLoad, kindOf(err, errors.KindInvalidInput)).
				Path(name).
				Cause(err).
				Detail("reflector failed").
				Build()
		}
	}

	l.registry.Seal()
	l.tree.Seal()
	Logger().Info("reflectors loaded",
		zap.Int("reflectors", len(order)),
		zap.Int("types", l.registry.Len()))
	return nil
}

func dependencyError(err error) error {
	var missing *graph.MissingError
	var cycle *graph.CycleError
	var cause error = err
	switch {
	case stderrors.As(err, &missing):
		cause = errors.NewMissingDependencyError(missing.Keys)
	case stderrors.As(err, &cycle):
		cause = errors.NewCycleError(cycle.Path)
	}
	return errors.Wrap(errors.PhaseLoad, errors.KindDependency, cause, "order reflectors")
}

// kindOf returns the kind of the first *errors.Error in err's chain.
func kindOf(err error, fallback errors.Kind) errors.Kind {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return fallback
}
