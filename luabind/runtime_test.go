package luabind

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/script"
)

func TestNew_InvalidOptions(t *testing.T) {
	if _, err := New(nil, DefaultOptions()); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("nil registry: %v", err)
	}
	opts := DefaultOptions()
	opts.Libs = append(opts.Libs, "sockets")
	if _, err := New(script.NewRegistry(), opts); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("unknown lib: %v", err)
	}
}

func TestNew_HostLibsClosedByDefault(t *testing.T) {
	rt, err := New(script.NewRegistry(), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()

	if err := rt.DoString(context.Background(), `assert(os == nil and io == nil)`); err != nil {
		t.Errorf("host libraries opened: %v", err)
	}
}

func TestRuntime_CallAndEval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.run(t, `function add(a, b) return a + b end`)

	got, err := f.rt.Call(ctx, "add", 1, int32(2))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != int64(3) {
		t.Errorf("add = %v (%T), want 3", got, got)
	}

	vals, err := f.rt.Eval(ctx, "1.5, 'x'")
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if len(vals) != 2 || vals[0] != 1.5 || vals[1] != "x" {
		t.Errorf("Eval = %v", vals)
	}

	if _, err := f.rt.Call(ctx, "missing"); !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("missing function: %v", err)
	}
}

func TestRuntime_ScriptErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.rt.DoString(ctx, `error("kaput")`)
	if !errors.IsKind(err, errors.KindCallFailed) || !strings.Contains(err.Error(), "kaput") {
		t.Errorf("error = %v", err)
	}

	err = f.rt.DoString(ctx, `local x = `)
	if !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("syntax error = %v", err)
	}

	// native errors survive pcall and rethrow unchanged
	err = f.rt.DoString(ctx, `
		local ok, e = pcall(function() return game.Ghost() end)
		assert(not ok)
		assert(string.find(tostring(e), "not_instantiable"))
		error(e)
	`)
	if !errors.IsKind(err, errors.KindNotInstantiable) {
		t.Errorf("rethrown error = %v", err)
	}
}

func TestRuntime_Cancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := f.rt.DoString(ctx, `while true do end`)
	if !stderrors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}

	// the runtime stays usable
	f.run(t, `assert(1 + 1 == 2)`)
}

func TestRuntime_Closed(t *testing.T) {
	f := newFixture(t)
	if err := f.rt.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.rt.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := f.rt.DoString(context.Background(), `x = 1`); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("DoString after Close: %v", err)
	}
}

func TestRuntime_SetGlobal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := &actor{Name: "ext", Health: 3}

	if err := f.rt.SetGlobal(ctx, "ext", a); err != nil {
		t.Fatal(err)
	}
	if err := f.rt.SetGlobal(ctx, "n", uint16(7)); err != nil {
		t.Fatal(err)
	}
	f.run(t, `
		assert(ext.name == "ext" and n == 7)
		ext.health = ext.health + n
	`)
	if a.Health != 10 {
		t.Errorf("Health = %d, want 10", a.Health)
	}

	type unknown struct{}
	if err := f.rt.SetGlobal(ctx, "u", &unknown{}); !errors.IsKind(err, errors.KindUnregisteredType) {
		t.Errorf("unregistered value: %v", err)
	}
}

func TestRuntime_Reentrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.run(t, `
		hero = game.Actor("hero")
		function hero:update(dt) self.health = self.health + dt end
	`)
	hero := f.actor(t, "hero")

	// native code called from Lua dispatches back into Lua on the same chain
	fd, err := script.Func("tick", func(ctx context.Context, a *actor) error {
		return a.Update(ctx, 5)
	})
	if err != nil {
		t.Fatal(err)
	}
	_, release, err := f.rt.enter(ctx)
	if err != nil {
		t.Fatal(err)
	}
	f.rt.L.SetGlobal("tick", f.rt.L.NewFunction(f.rt.functionFunc(fd)))
	release()

	f.run(t, `tick(hero)`)
	if hero.Health != 15 {
		t.Errorf("Health = %d, want 15", hero.Health)
	}
}

func TestRuntime_Native(t *testing.T) {
	f := newFixture(t)
	f.run(t, `v = game.Vec(3, 4)`)

	lv := f.rt.L.GetGlobal("v")
	obj, ok := f.rt.Native(lv)
	if !ok {
		t.Fatal("Native failed")
	}
	if v, ok := obj.(*vec); !ok || v.X != 3 {
		t.Errorf("native = %#v", obj)
	}
	if _, ok := f.rt.Native(lua.LNumber(1)); ok {
		t.Error("Native accepted a number")
	}
}
