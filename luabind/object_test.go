package luabind

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/script"
	"github.com/wippyai/script-bridge/typeid"
)

func TestObject_Fields(t *testing.T) {
	f := newFixture(t)
	f.run(t, `
		local v = game.Vec(0, 5)
		assert(v.x == 0, "x")
		assert(v.y == 5, "y")
		v.x = 3
		assert(math.abs(v:len() - math.sqrt(34)) < 1e-9)
		v:scale(2)
		assert(v.x == 6 and v.y == 10)
	`)
}

func TestObject_ByValueResultIsCopied(t *testing.T) {
	f := newFixture(t)
	f.run(t, `
		local a = game.Vec(1, 2)
		local b = a:add(game.Vec(10, 20))
		assert(b.x == 11 and b.y == 22)
		b.x = 0
		assert(a.x == 1)
		local z = game.Vec.zero()
		assert(z.x == 0 and z.y == 0)
	`)
}

func TestObject_StructFieldIsView(t *testing.T) {
	f := newFixture(t)
	f.run(t, `
		a = game.Actor("bob")
		local p = a.pos
		p.x = 7
		assert(a.pos.x == 7)
		assert(a.pos == a.pos)
		assert(game.Vec(1, 2) ~= game.Vec(1, 2))
	`)
	if a := f.actor(t, "a"); a.Pos.X != 7 {
		t.Errorf("Pos.X = %v, want 7", a.Pos.X)
	}
}

func TestObject_Tostring(t *testing.T) {
	f := newFixture(t)
	f.run(t, `
		assert(tostring(game.Vec(1, 2)) == "vec(1, 2)")
		assert(string.find(tostring(game.Actor("x")), "^game.Actor: "))
		assert(tostring(game.Vec) == "class game.Vec")
	`)
}

func TestObject_Int32Bounds(t *testing.T) {
	f := newFixture(t)
	f.run(t, `
		a = game.Actor("bob")
		a.health = -2147483648
		assert(a.health == -2147483648)
		a.health = 2147483647
		assert(a.health == 2147483647)
	`)

	err := f.rt.DoString(context.Background(), `a.health = 2147483648`)
	if !errors.IsKind(err, errors.KindTypeMismatch) || !errors.IsKind(err, errors.KindOverflow) {
		t.Errorf("overflow error = %v", err)
	}
	err = f.rt.DoString(context.Background(), `a.health = 1.5`)
	if !errors.IsKind(err, errors.KindTypeMismatch) {
		t.Errorf("fraction error = %v", err)
	}
	if a := f.actor(t, "a"); a.Health != 2147483647 {
		t.Errorf("Health = %d after failed writes", a.Health)
	}
}

func TestObject_Constructors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		src  string
		kind errors.Kind
	}{
		{"no constructors", `game.Ghost()`, errors.KindNotInstantiable},
		{"wrong arity", `game.Vec(1)`, errors.KindNoMatchingConstructor},
		{"wrong type", `game.Actor(true)`, errors.KindNoMatchingConstructor},
		{"bad argument", `game.Vec("a", 1)`, errors.KindTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.rt.DoString(ctx, tt.src); !errors.IsKind(err, tt.kind) {
				t.Errorf("error = %v, want %s", err, tt.kind)
			}
		})
	}

	f.run(t, `
		local a = game.Actor()
		assert(a.name == "" and a.health == 0)
		local b = game.Actor("b")
		assert(b.name == "b" and b.health == 10)
	`)
}

func TestObject_Overloads(t *testing.T) {
	f := newFixture(t)
	f.run(t, `
		assert(game.describe(3) == "int 3")
		assert(game.describe("x") == "text x")
		assert(game.describe(1.5) == "float 1.5")
		assert(game.distance(game.Vec(0, 0), game.Vec(3, 4)) == 5)
	`)
	err := f.rt.DoString(context.Background(), `game.describe({})`)
	if !errors.IsKind(err, errors.KindNoMatchingOverload) {
		t.Errorf("error = %v, want no_matching_overload", err)
	}
	err = f.rt.DoString(context.Background(), `game.distance(game.Vec(0, 0), game.Actor("x"))`)
	if !errors.IsKind(err, errors.KindTypeMismatch) {
		t.Errorf("error = %v, want type_mismatch", err)
	}
}

func TestObject_OverloadFallsBackOnOverflow(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		expr string
		want string
	}{
		{"game.describe(2147483647)", "int 2147483647"},
		{"game.describe(2^32)", fmt.Sprintf("float %g", math.Pow(2, 32))},
		{"game.describe(-2147483649)", fmt.Sprintf("float %g", -2147483649.0)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			vals, err := f.rt.Eval(context.Background(), tt.expr)
			if err != nil {
				t.Fatalf("Eval: %v", err)
			}
			if len(vals) != 1 || vals[0] != tt.want {
				t.Errorf("= %v, want %q", vals, tt.want)
			}
		})
	}
}

func TestObject_SelfChecked(t *testing.T) {
	f := newFixture(t)
	err := f.rt.DoString(context.Background(), `local v = game.Vec(1, 1); v.len(game.Actor("x"))`)
	if !errors.IsKind(err, errors.KindTypeMismatch) {
		t.Errorf("error = %v, want type_mismatch", err)
	}
}

func TestObject_Enum(t *testing.T) {
	f := newFixture(t)
	f.run(t, `assert(game.Kind.Idle == 0 and game.Kind.Running == 1)`)

	err := f.rt.DoString(context.Background(), `game.Kind.Running = 5`)
	if !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("error = %v, want invalid_input", err)
	}
	f.run(t, `assert(game.Kind.Running == 1)`)
}

func TestObject_Attributes(t *testing.T) {
	f := newFixture(t)
	f.run(t, `
		local a = game.Actor("x")
		a.tag = "boss"
		assert(a.tag == "boss")
		assert(a.missing == nil)
	`)
	err := f.rt.DoString(context.Background(), `local v = game.Vec(1, 1); v.len = function() return 0 end`)
	if !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("overriding a non-virtual method: %v", err)
	}
}

func TestObject_ReleaseRunsDestructor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.run(t, `owned = game.Actor("tmp")`)

	lv := f.rt.L.GetGlobal("owned")
	if err := f.rt.Release(ctx, lv); err != nil {
		t.Fatal(err)
	}
	if f.destroyed != 1 {
		t.Fatalf("destroyed = %d, want 1", f.destroyed)
	}
	if _, ok := f.rt.Native(lv); ok {
		t.Error("released object still resolves")
	}
	err := f.rt.DoString(ctx, `return owned.name`)
	if !errors.IsKind(err, errors.KindReleased) {
		t.Errorf("access after release: %v", err)
	}
	f.run(t, `assert(string.find(tostring(owned), "released"))`)

	// a second release is a no-op
	if err := f.rt.Release(ctx, lv); err != nil || f.destroyed != 1 {
		t.Errorf("second release: %v, destroyed = %d", err, f.destroyed)
	}
}

func TestObject_BorrowedNotDestroyed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := &actor{Name: "kept"}
	if err := f.rt.SetGlobal(ctx, "kept", a); err != nil {
		t.Fatal(err)
	}
	if err := f.rt.Release(ctx, f.rt.L.GetGlobal("kept")); err != nil {
		t.Fatal(err)
	}
	if f.destroyed != 0 {
		t.Errorf("borrowed object destroyed")
	}
	if a.Script() != nil {
		t.Error("released view left the script link attached")
	}
}

func TestObject_CollectedQueueReleases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.run(t, `gone = game.Actor("gone")`)

	inst := toInstance(f.rt.L.GetGlobal("gone"))
	f.rt.enqueue(inst)
	n, err := f.rt.Collect(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || f.destroyed != 1 {
		t.Errorf("Collect released %d, destroyed = %d", n, f.destroyed)
	}
	stats, err := f.rt.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Pending != 0 {
		t.Errorf("Pending = %d", stats.Pending)
	}
}

func TestObject_CloseDestroysOwned(t *testing.T) {
	f := newFixture(t)
	f.run(t, `a = game.Actor("a"); b = game.Actor("b")`)
	if err := f.rt.Close(); err != nil {
		t.Fatal(err)
	}
	if f.destroyed != 2 {
		t.Errorf("destroyed = %d, want 2", f.destroyed)
	}
}

func TestMaterialize_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	td := f.types["Vec"]

	before, _ := f.rt.Stats(ctx)
	for i := 0; i < 2; i++ {
		if err := f.rt.Materialize(ctx, td); err != nil {
			t.Fatal(err)
		}
	}
	after, _ := f.rt.Stats(ctx)
	if before.Types != after.Types {
		t.Errorf("Types %d -> %d", before.Types, after.Types)
	}
	if f.rt.types[td].table != f.rt.L.GetField(f.rt.L.GetGlobal("game"), "Vec") {
		t.Error("module entry is not the materialized class")
	}
}

func TestMaterialize_DuplicateMember(t *testing.T) {
	tests := []struct {
		name  string
		build func() (*script.TypeData, error)
	}{
		{"field and method", func() (*script.TypeData, error) {
			return script.Class[vec]("Clash").Fields().Method("x", (*vec).Len).Build()
		}},
		{"reserved name", func() (*script.TypeData, error) {
			return script.Class[vec]("Reserved").Method("extend", (*vec).Len).Build()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			td := must(tt.build())
			rt, err := New(script.NewRegistry(), DefaultOptions())
			if err != nil {
				t.Fatal(err)
			}
			defer rt.Close()

			for i := 0; i < 2; i++ {
				err := rt.Materialize(context.Background(), td)
				if !errors.IsKind(err, errors.KindMaterialization) {
					t.Fatalf("attempt %d: error = %v, want materialization", i, err)
				}
			}
			if len(rt.types) != 0 {
				t.Error("failed materialization was cached")
			}
		})
	}
}

func TestBind_MaterializationFailureReported(t *testing.T) {
	td := must(script.Class[vec]("Clash").Fields().Method("y", (*vec).Len).Build())
	reg, tree := script.NewRegistry(), script.NewTree()
	loader := script.NewLoader(reg, tree)
	_ = loader.Add(script.NewReflector("clash", nil, func(r *script.Reflection) error {
		return r.AddType("bad", td)
	}))
	if err := loader.LoadAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	rt, err := New(reg, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()

	err = rt.Bind(context.Background(), tree)
	if !errors.IsKind(err, errors.KindMaterialization) || !strings.Contains(err.Error(), "bad.Clash") {
		t.Errorf("Bind error = %v", err)
	}
	if err := rt.DoString(context.Background(), `assert(bad ~= nil and bad.Clash == nil)`); err != nil {
		t.Error(err)
	}
}

func TestObject_ConstViewFieldsAreCopies(t *testing.T) {
	ctx := context.Background()
	reg, tree := script.NewRegistry(), script.NewTree()
	loader := script.NewLoader(reg, tree)
	_ = loader.Add(script.NewReflector("frozen", nil, func(r *script.Reflection) error {
		if err := r.AddType("frozen", must(script.Class[vec]("Vec").Fields().Build())); err != nil {
			return err
		}
		return r.AddType("frozen", must(script.Class[actor]("ConstActor").Fields().Const().Build()))
	}))
	if err := loader.LoadAll(ctx); err != nil {
		t.Fatal(err)
	}
	rt, err := New(reg, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()
	if err := rt.Bind(ctx, tree); err != nil {
		t.Fatal(err)
	}

	a := &actor{Name: "still", Pos: vec{X: 1, Y: 2}}
	_, release, err := rt.enter(ctx)
	if err != nil {
		t.Fatal(err)
	}
	ud, err := rt.wrap(typeid.Of[actor]().Const(), a, false)
	if err == nil {
		rt.L.SetGlobal("a", ud)
	}
	release()
	if err != nil {
		t.Fatal(err)
	}

	if err := rt.DoString(ctx, `local p = a.pos; p.x = 5; assert(p.x == 5 and a.pos.x == 1)`); err != nil {
		t.Fatalf("pos copy: %v", err)
	}
	if a.Pos.X != 1 {
		t.Errorf("Pos.X = %v, const view leaked a mutable field", a.Pos.X)
	}
	if err := rt.DoString(ctx, `a.name = "changed"`); err == nil || a.Name != "still" {
		t.Errorf("assigning through a const view: %v, name %q", err, a.Name)
	}
}
