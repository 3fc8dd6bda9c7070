package luabind

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/wippyai/script-bridge/script"
)

type vec struct{ X, Y float64 }

func newVec(x, y float64) vec { return vec{x, y} }

func (v *vec) Len() float64 { return math.Hypot(v.X, v.Y) }
func (v vec) Add(o vec) vec { return vec{v.X + o.X, v.Y + o.Y} }
func (v *vec) Scale(f float64) { v.X *= f; v.Y *= f }
func (v vec) String() string { return fmt.Sprintf("vec(%g, %g)", v.X, v.Y) }

type kind int32

const (
	idle kind = iota
	running
)

type actor struct {
	script.Scripted
	Name    string
	Pos     vec
	Health  int32
	updates int
}

func (a *actor) baseUpdate(dt float64) { a.updates++ }

func (a *actor) Update(ctx context.Context, dt float64) error {
	return script.Dispatch(ctx, &a.Scripted, "update", func(inv script.InvocationContext) error {
		inv.StoreFloat64(0, dt)
		return nil
	}, func() { a.baseUpdate(dt) })
}

func (a *actor) Damage(ctx context.Context, n int32) (int32, error) {
	return script.DispatchResult(ctx, &a.Scripted, "damage",
		func(inv script.InvocationContext) error {
			inv.StoreInt32(0, n)
			return nil
		},
		func(inv script.InvocationContext) (int32, error) { return inv.Int32Result() },
		func() int32 { return n },
	)
}

type ghost struct{ ID int32 }

type fixture struct {
	rt        *Runtime
	types     map[string]*script.TypeData
	destroyed int
}

// must panics on a build error, like template.Must.
func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{types: make(map[string]*script.TypeData)}

	f.types["Vec"] = must(script.Class[vec]("Vec").
		Constructor(newVec).
		Fields().
		Method("len", (*vec).Len).
		Method("add", vec.Add).
		Method("scale", (*vec).Scale).
		Static("zero", func() vec { return vec{} }).
		Build())
	f.types["Actor"] = must(script.Class[actor]("Actor").
		DefaultConstructor().
		Constructor(func(name string) *actor { return &actor{Name: name, Health: 10} }).
		Fields().
		Virtual("update", (*actor).baseUpdate).
		Virtual("damage", func(a *actor, n int32) int32 { return n }).
		Destructor(func(*actor) { f.destroyed++ }).
		Build())
	f.types["Ghost"] = must(script.Class[ghost]("Ghost").Fields().Build())
	f.types["Kind"] = must(script.Enum[kind]("Kind").
		Value("Idle", idle).
		Value("Running", running).
		Build())

	distance := must(script.Func("distance", func(a, b *vec) float64 {
		return math.Hypot(a.X-b.X, a.Y-b.Y)
	}))
	describe := must(script.Overloaded("describe",
		func(n int32) string { return fmt.Sprintf("int %d", n) },
		func(s string) string { return "text " + s },
		func(x float64) string { return fmt.Sprintf("float %g", x) },
	))

	reg, tree := script.NewRegistry(), script.NewTree()
	loader := script.NewLoader(reg, tree)
	err := loader.Add(script.NewReflector("game", nil, func(r *script.Reflection) error {
		for _, name := range []string{"Kind", "Vec", "Actor", "Ghost"} {
			if err := r.AddType("game", f.types[name]); err != nil {
				return err
			}
		}
		if err := r.AddFunction("game", distance); err != nil {
			return err
		}
		return r.AddFunction("game", describe)
	}))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := loader.LoadAll(ctx); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	rt, err := New(reg, DefaultOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	if err := rt.Bind(ctx, tree); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	f.rt = rt
	return f
}

func (f *fixture) run(t *testing.T, src string) {
	t.Helper()
	if err := f.rt.DoString(context.Background(), src); err != nil {
		t.Fatalf("script failed: %v", err)
	}
}

func (f *fixture) actor(t *testing.T, global string) *actor {
	t.Helper()
	v, err := f.rt.Global(context.Background(), global)
	if err != nil {
		t.Fatalf("Global(%s): %v", global, err)
	}
	a, ok := v.(*actor)
	if !ok {
		t.Fatalf("%s is %T, want *actor", global, v)
	}
	return a
}
