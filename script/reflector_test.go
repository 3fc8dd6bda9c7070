package script

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/typeid"
)

func recorder(order *[]string, name string, deps ...string) Reflector {
	return NewReflector(name, deps, func(r *Reflection) error {
		*order = append(*order, r.Name())
		return nil
	})
}

func TestLoader_DependencyOrder(t *testing.T) {
	var order []string
	l := NewLoader(NewRegistry(), NewTree())
	err := l.Add(
		recorder(&order, "game", "input", "math"),
		recorder(&order, "input", "math"),
		recorder(&order, "math"),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if got := strings.Join(order, ","); got != "math,input,game" {
		t.Errorf("order = %s", got)
	}
}

func TestLoader_Seals(t *testing.T) {
	reg, tree := NewRegistry(), NewTree()
	l := NewLoader(reg, tree)
	_ = l.Add(NewReflector("math", nil, func(r *Reflection) error {
		return r.AddType("core.math", &TypeData{Name: "Point", ID: typeid.Of[point]()})
	}))
	if err := l.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if !reg.Sealed() || !tree.Sealed() {
		t.Error("registry and tree must be sealed after loading")
	}
	m, ok := tree.Lookup("core.math")
	if !ok {
		t.Fatal("module not created")
	}
	if td, ok := m.Type("Point"); !ok || td.Module != m {
		t.Error("type not bound into its module")
	}
	if _, ok := reg.Get(typeid.Of[point]()); !ok {
		t.Error("type not registered")
	}
}

func TestLoader_MissingDependency(t *testing.T) {
	var order []string
	l := NewLoader(NewRegistry(), NewTree())
	_ = l.Add(recorder(&order, "game", "physics"))

	err := l.LoadAll(context.Background())
	if !errors.IsKind(err, errors.KindDependency) {
		t.Fatalf("error = %v, want dependency", err)
	}
	var dep *errors.DependencyError
	if !stderrors.As(err, &dep) {
		t.Fatalf("error %v does not carry a DependencyError", err)
	}
	if len(dep.Missing) != 1 || dep.Missing[0].Reflector != "game" || dep.Missing[0].Dependency != "physics" {
		t.Errorf("missing = %+v", dep.Missing)
	}
	if len(order) != 0 {
		t.Error("reflectors ran despite unresolved dependencies")
	}
}

func TestLoader_Cycle(t *testing.T) {
	var order []string
	l := NewLoader(NewRegistry(), NewTree())
	_ = l.Add(recorder(&order, "a", "b"), recorder(&order, "b", "a"))

	err := l.LoadAll(context.Background())
	var dep *errors.DependencyError
	if !stderrors.As(err, &dep) || len(dep.Cycle) == 0 {
		t.Fatalf("error = %v, want a cycle", err)
	}
}

func TestLoader_AbortsOnRegistrationError(t *testing.T) {
	var order []string
	reg := NewRegistry()
	l := NewLoader(reg, NewTree())
	_ = l.Add(
		NewReflector("a", nil, func(r *Reflection) error {
			return r.AddType("x", &TypeData{Name: "P", ID: typeid.Of[point]()})
		}),
		NewReflector("b", []string{"a"}, func(r *Reflection) error {
			return r.AddType("y", &TypeData{Name: "P", ID: typeid.Of[point]()})
		}),
		recorder(&order, "c", "b"),
	)

	err := l.LoadAll(context.Background())
	if !errors.IsKind(err, errors.KindDuplicateRegistration) {
		t.Fatalf("error = %v, want duplicate_registration", err)
	}
	if len(order) != 0 {
		t.Error("load continued after a registration error")
	}
	if reg.Sealed() {
		t.Error("registry sealed after a failed load")
	}
}

func TestLoader_DuplicateName(t *testing.T) {
	var order []string
	l := NewLoader(NewRegistry(), NewTree())
	err := l.Add(recorder(&order, "a"), recorder(&order, "a"))
	if !errors.IsKind(err, errors.KindDuplicateRegistration) {
		t.Errorf("error = %v, want duplicate_registration", err)
	}
}

func TestLoader_Canceled(t *testing.T) {
	var order []string
	l := NewLoader(NewRegistry(), NewTree())
	_ = l.Add(recorder(&order, "a"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.LoadAll(ctx); !stderrors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestLoader_ModuleClashesWithType(t *testing.T) {
	l := NewLoader(NewRegistry(), NewTree())
	_ = l.Add(NewReflector("geom", nil, func(r *Reflection) error {
		if err := r.AddType("", &TypeData{Name: "geom", ID: typeid.Of[point]()}); err != nil {
			return err
		}
		return r.AddFunction("geom", &FunctionData{Name: "distance"})
	}))
	err := l.LoadAll(context.Background())
	if !errors.IsKind(err, errors.KindDuplicateBinding) {
		t.Fatalf("error = %v, want duplicate_binding", err)
	}
}
