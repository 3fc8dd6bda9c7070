package wasmbind

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/script-bridge/script"
)

type vec struct{ X, Y float64 }

func newVec(x, y float64) vec { return vec{x, y} }

func (v *vec) Len() float64 { return math.Hypot(v.X, v.Y) }
func (v vec) Add(o vec) vec { return vec{v.X + o.X, v.Y + o.Y} }

type kind int32

const (
	idle kind = iota
	running
)

type actor struct {
	Name   string
	Pos    vec
	Health int32
}

type ghost struct{ ID int32 }

type counter struct {
	script.Scripted
	N int32
}

func (c *counter) baseStep(by int32) int32 {
	c.N += by
	return c.N
}

func (c *counter) Step(ctx context.Context, by int32) (int32, error) {
	return script.DispatchResult(ctx, &c.Scripted, "step",
		func(inv script.InvocationContext) error {
			inv.StoreInt32(0, by)
			return nil
		},
		func(inv script.InvocationContext) (int32, error) { return inv.Int32Result() },
		func() int32 { return c.baseStep(by) },
	)
}

type fixture struct {
	rt        *Runtime
	reg       *script.Registry
	tree      *script.Tree
	forwards  map[string]api.Function
	destroyed int
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}

	types := []*script.TypeData{
		must(script.Enum[kind]("Kind").Value("Idle", idle).Value("Running", running).Build()),
		must(script.Class[vec]("Vec").
			Constructor(newVec).
			Fields().
			Method("len", (*vec).Len).
			Method("add", vec.Add).
			Static("zero", func() vec { return vec{} }).
			Build()),
		must(script.Class[actor]("Actor").
			DefaultConstructor().
			Constructor(func(name string) *actor { return &actor{Name: name, Health: 10} }).
			Fields().
			Destructor(func(*actor) { f.destroyed++ }).
			Build()),
		must(script.Class[ghost]("Ghost").Fields().Build()),
		must(script.Class[counter]("Counter").
			DefaultConstructor().
			Fields().
			Virtual("step", (*counter).baseStep).
			Build()),
	}
	funcs := []*script.FunctionData{
		must(script.Func("twice", func(n int32) int32 { return n * 2 })),
		must(script.Func("shade", func(b uint8) uint8 { return 255 - b })),
		must(script.Overloaded("describe",
			func(n int32) string { return fmt.Sprintf("int %d", n) },
			func(s string) string { return "text " + s },
			func(x float64) string { return fmt.Sprintf("float %g", x) },
		)),
	}

	f.reg, f.tree = script.NewRegistry(), script.NewTree()
	loader := script.NewLoader(f.reg, f.tree)
	err := loader.Add(script.NewReflector("game", nil, func(r *script.Reflection) error {
		for _, td := range types {
			if err := r.AddType("game", td); err != nil {
				return err
			}
		}
		for _, fd := range funcs {
			if err := r.AddFunction("game", fd); err != nil {
				return err
			}
		}
		return nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := loader.LoadAll(ctx); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	rt, err := New(ctx, f.reg, DefaultOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	if err := rt.Bind(ctx, f.tree); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	f.rt = rt
	return f
}

// export returns the host function name of module game as a guest sees
// it: a forwarding guest imports the function and re-exports a wrapper.
func (f *fixture) export(t *testing.T, name string) api.Function {
	t.Helper()
	if fn, ok := f.forwards[name]; ok {
		return fn
	}
	hf := f.hostFunc(t, name)
	inst, err := f.rt.Instantiate(context.Background(), fmt.Sprintf("forward%d", len(f.forwards)), guestForward("game", hf))
	if err != nil {
		t.Fatalf("forward %s: %v", name, err)
	}
	fn := inst.mod.ExportedFunction("call")
	if fn == nil {
		t.Fatalf("forward %s has no export", name)
	}
	if f.forwards == nil {
		f.forwards = make(map[string]api.Function)
	}
	f.forwards[name] = fn
	return fn
}

func (f *fixture) call(t *testing.T, name string, params ...uint64) []uint64 {
	t.Helper()
	res, err := f.export(t, name).Call(context.Background(), params...)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return res
}

func (f *fixture) hostFunc(t *testing.T, name string) *HostFunc {
	t.Helper()
	hm, ok := f.rt.HostModule("game")
	if !ok {
		t.Fatal("no host module game")
	}
	hf, ok := hm.Func(name)
	if !ok {
		t.Fatalf("no host func %q", name)
	}
	return hf
}

// fakeGuest is a flat memory with a bump allocator.
type fakeGuest struct {
	mem  []byte
	next uint32
}

func (g *fakeGuest) Read(offset, n uint32) ([]byte, bool) {
	end := uint64(offset) + uint64(n)
	if end > uint64(len(g.mem)) {
		return nil, false
	}
	return g.mem[offset:end], true
}

func (g *fakeGuest) Write(offset uint32, b []byte) bool {
	if uint64(offset)+uint64(len(b)) > uint64(len(g.mem)) {
		return false
	}
	copy(g.mem[offset:], b)
	return true
}

func (g *fakeGuest) Alloc(_ context.Context, size, _ uint32) (uint32, error) {
	p := g.next
	g.next += size
	return p, nil
}

// Hand-assembled guest modules. Section sizes stay below 128 bytes so
// every length is a single LEB128 byte.

func wasmModule(sections ...[]byte) []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	for _, s := range sections {
		out = append(out, s...)
	}
	return out
}

func section(id byte, body ...[]byte) []byte {
	var b []byte
	for _, p := range body {
		b = append(b, p...)
	}
	return append([]byte{id, byte(len(b))}, b...)
}

func wasmName(s string) []byte {
	return append([]byte{byte(len(s))}, s...)
}

func raw(b ...byte) []byte { return b }

// guestTwice imports game.twice and exports run(n) = twice(n).
func guestTwice() []byte {
	return wasmModule(
		section(1, raw(1, 0x60, 1, 0x7f, 1, 0x7f)),
		section(2, raw(1), wasmName("game"), wasmName("twice"), raw(0x00, 0x00)),
		section(3, raw(1, 0)),
		section(7, raw(1), wasmName("run"), raw(0x00, 0x01)),
		section(10, raw(1, 6, 0x00, 0x20, 0x00, 0x10, 0x00, 0x0b)),
	)
}

// guestStep exports [method]counter.step(self, by) = by * 10.
func guestStep() []byte {
	return wasmModule(
		section(1, raw(1, 0x60, 2, 0x7f, 0x7f, 1, 0x7f)),
		section(3, raw(1, 0)),
		section(7, raw(1), wasmName("[method]counter.step"), raw(0x00, 0x00)),
		section(10, raw(1, 7, 0x00, 0x20, 0x01, 0x41, 0x0a, 0x6c, 0x0b)),
	)
}

// guestDouble exports double(n) = n * 2 and imports nothing.
func guestDouble() []byte {
	return wasmModule(
		section(1, raw(1, 0x60, 1, 0x7f, 1, 0x7f)),
		section(3, raw(1, 0)),
		section(7, raw(1), wasmName("double"), raw(0x00, 0x00)),
		section(10, raw(1, 7, 0x00, 0x20, 0x00, 0x41, 0x02, 0x6c, 0x0b)),
	)
}

// guestForward imports module.hf and exports call with the same core
// signature, passing every parameter through.
func guestForward(module string, hf *HostFunc) []byte {
	params, results := hf.CoreParams(), hf.CoreResults()
	typ := raw(1, 0x60, byte(len(params)))
	typ = append(typ, params...)
	typ = append(typ, byte(len(results)))
	typ = append(typ, results...)

	body := raw(0x00)
	for i := range params {
		body = append(body, 0x20, byte(i))
	}
	body = append(body, 0x10, 0x00, 0x0b)

	return wasmModule(
		section(1, typ),
		section(2, raw(1), wasmName(module), wasmName(hf.Name), raw(0x00, 0x00)),
		section(3, raw(1, 0)),
		section(7, raw(1), wasmName("call"), raw(0x00, 0x01)),
		section(10, raw(1, byte(len(body))), body),
	)
}
