package script

import (
	"context"
	stderrors "errors"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/internal/graph"
)

// Backend turns the module tree into bindings of one embedded runtime.
// Each method must be idempotent.
type Backend interface {
	// BindModule creates the runtime module for m. The parent has already
	// been bound.
	BindModule(ctx context.Context, m *Module) error

	// BindType materializes td and attaches it to its module.
	BindType(ctx context.Context, td *TypeData) error

	// BindFunction installs a trampoline for fd in its module.
	BindFunction(ctx context.Context, fd *FunctionData) error
}

// Finisher is implemented by backends that need a final step after every
// module has been bound.
type Finisher interface {
	Finish(ctx context.Context) error
}

// Binder walks a module tree and drives a Backend.
type Binder struct {
	backend   Backend
	modules   map[*Module]bool
	types     map[*TypeData]error
	functions map[*FunctionData]bool
}

// NewBinder creates a binder for backend.
func NewBinder(backend Backend) *Binder {
	return &Binder{
		backend:   backend,
		modules:   make(map[*Module]bool),
		types:     make(map[*TypeData]error),
		functions: make(map[*FunctionData]bool),
	}
}

// Bind walks tree depth-first. A module is bound before its types, its
// functions and its children; functions follow their dependencies. A module
// failure aborts the walk. Type and function failures are collected and the
// walk continues; the combined error is returned.
func (b *Binder) Bind(ctx context.Context, tree *Tree) error {
	var errs error

	walkErr := tree.Walk(func(m *Module) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.bindModule(ctx, m); err != nil {
			return err
		}
		for _, td := range m.Types() {
			errs = multierr.Append(errs, b.bindType(ctx, td))
		}
		errs = multierr.Append(errs, b.bindFunctions(ctx, m))
		return nil
	})
	if walkErr != nil {
		return multierr.Append(walkErr, errs)
	}

	if f, ok := b.backend.(Finisher); ok {
		errs = multierr.Append(errs, f.Finish(ctx))
	}

	if errs != nil {
		Logger().Warn("binding finished with errors", zap.Int("errors", len(multierr.Errors(errs))))
	}
	return errs
}

func (b *Binder) bindModule(ctx context.Context, m *Module) error {
	if b.modules[m] {
		return nil
	}
	if p := m.Parent(); p != nil {
		if err := b.bindModule(ctx, p); err != nil {
			return err
		}
	}
	if err := b.backend.BindModule(ctx, m); err != nil {
		return errors.New(errors.PhaseBind, kindOf(err, errors.KindMaterialization)).
			Path(m.Path()).
			Cause(err).
			Detail("bind module").
			Build()
	}
	b.modules[m] = true
	Logger().Debug("bound module", zap.String("module", m.Path()))
	return nil
}

// bindType binds td once and remembers the outcome, so a failed type is
// reported once even when several functions depend on it.
func (b *Binder) bindType(ctx context.Context, td *TypeData) error {
	if _, done := b.types[td]; done {
		return nil
	}
	if td.Module != nil {
		if err := b.bindModule(ctx, td.Module); err != nil {
			b.types[td] = err
			return err
		}
	}

	err := b.backend.BindType(ctx, td)
	if err != nil {
		var e *errors.Error
		if !stderrors.As(err, &e) || e.Kind != errors.KindMaterialization {
			err = errors.Materialization(td.QualifiedName(), err)
		}
		Logger().Debug("type binding failed", zap.String("type", td.QualifiedName()), zap.Error(err))
	} else {
		Logger().Debug("bound type", zap.String("type", td.QualifiedName()))
	}
	b.types[td] = err
	return err
}

func (b *Binder) bindFunctions(ctx context.Context, m *Module) error {
	fns := m.Functions()
	if len(fns) == 0 {
		return nil
	}

	g := graph.New()
	byName := make(map[string]*FunctionData, len(fns))
	for _, fd := range fns {
		byName[fd.Name] = fd
		var requires []string
		for _, dep := range fd.Dependencies {
			if dep.Kind == DependsOnFunction && dep.Function != nil && dep.Function.Module == m {
				requires = append(requires, dep.Function.Name)
			}
		}
		g.Add(fd.Name, nil, requires)
	}
	order, err := g.Order()
	if err != nil {
		return errors.Wrap(errors.PhaseBind, errors.KindDependency, err, "order functions of "+m.Path())
	}

	var errs error
	for _, name := range order {
		errs = multierr.Append(errs, b.bindFunction(ctx, byName[name]))
	}
	return errs
}

func (b *Binder) bindFunction(ctx context.Context, fd *FunctionData) error {
	if b.functions[fd] {
		return nil
	}
	b.functions[fd] = true

	for _, dep := range fd.Dependencies {
		var err error
		switch dep.Kind {
		case DependsOnModule:
			if dep.Module != nil {
				err = b.bindModule(ctx, dep.Module)
			}
		case DependsOnType:
			if dep.Type != nil {
				_ = b.bindType(ctx, dep.Type)
				err = b.types[dep.Type]
			}
		case DependsOnFunction:
			if dep.Function != nil && dep.Function.Module != fd.Module {
				err = b.bindFunction(ctx, dep.Function)
			}
		}
		if err != nil {
			return errors.New(errors.PhaseBind, errors.KindDependency).
				Path(fd.QualifiedName()).
				Cause(err).
				Detail("dependency %s unavailable", dep.Key()).
				Build()
		}
	}

	if err := b.backend.BindFunction(ctx, fd); err != nil {
		return errors.New(errors.PhaseBind, kindOf(err, errors.KindInvalidInput)).
			Path(fd.QualifiedName()).
			Cause(err).
			Detail("bind function").
			Build()
	}
	Logger().Debug("bound function", zap.String("function", fd.QualifiedName()))
	return nil
}
