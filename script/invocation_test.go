package script

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/typeid"
)

type fakeInvocation struct {
	overrides map[string]func(args []any) (any, error)
	args      []any
	result    any
	err       error
	released  int
}

func (f *fakeInvocation) Invocation(context.Context) (InvocationContext, func(), error) {
	f.args = nil
	return f, func() { f.released++ }, nil
}

func (f *fakeInvocation) Implemented(method string) bool {
	_, ok := f.overrides[method]
	return ok
}

func (f *fakeInvocation) put(i int, v any) {
	for len(f.args) <= i {
		f.args = append(f.args, nil)
	}
	f.args[i] = v
}

func (f *fakeInvocation) StoreBool(i int, v bool) { f.put(i, v) }
func (f *fakeInvocation) StoreInt8(i int, v int8) { f.put(i, int64(v)) }
func (f *fakeInvocation) StoreInt16(i int, v int16) { f.put(i, int64(v)) }
func (f *fakeInvocation) StoreInt32(i int, v int32) { f.put(i, int64(v)) }
func (f *fakeInvocation) StoreInt64(i int, v int64) { f.put(i, v) }
func (f *fakeInvocation) StoreUint8(i int, v uint8) { f.put(i, int64(v)) }
func (f *fakeInvocation) StoreUint16(i int, v uint16) { f.put(i, int64(v)) }
func (f *fakeInvocation) StoreUint32(i int, v uint32) { f.put(i, int64(v)) }
func (f *fakeInvocation) StoreUint64(i int, v uint64) { f.put(i, int64(v)) }
func (f *fakeInvocation) StoreFloat32(i int, v float32) { f.put(i, float64(v)) }
func (f *fakeInvocation) StoreFloat64(i int, v float64) { f.put(i, v) }
func (f *fakeInvocation) StoreLongDouble(i int, v float64) { f.put(i, v) }
func (f *fakeInvocation) StoreString(i int, v string) { f.put(i, v) }

func (f *fakeInvocation) StoreObject(i int, id typeid.ID, v any) error {
	if id != typeid.Of[point]() {
		return errors.UnregisteredType(errors.PhaseDispatch, []string{"arg"}, id.String())
	}
	f.put(i, v)
	return nil
}

func (f *fakeInvocation) Call(method string) CallResult {
	fn, ok := f.overrides[method]
	if !ok {
		return CallNotFound
	}
	res, err := fn(f.args)
	if err != nil {
		f.err = err
		return CallFailed
	}
	f.result = res
	return CallExecuted
}

func (f *fakeInvocation) BoolResult() (bool, error) {
	b, ok := f.result.(bool)
	if !ok {
		return false, stderrors.New("not a bool")
	}
	return b, nil
}

func (f *fakeInvocation) Int32Result() (int32, error) {
	n, ok := f.result.(int64)
	if !ok {
		return 0, stderrors.New("not an integer")
	}
	return int32(n), nil
}

func (f *fakeInvocation) Int8Result() (int8, error) { return 0, nil }
func (f *fakeInvocation) Int16Result() (int16, error) { return 0, nil }
func (f *fakeInvocation) Int64Result() (int64, error) { return 0, nil }
func (f *fakeInvocation) Uint8Result() (uint8, error) { return 0, nil }
func (f *fakeInvocation) Uint16Result() (uint16, error) { return 0, nil }
func (f *fakeInvocation) Uint32Result() (uint32, error) { return 0, nil }
func (f *fakeInvocation) Uint64Result() (uint64, error) { return 0, nil }
func (f *fakeInvocation) Float32Result() (float32, error) { return 0, nil }
func (f *fakeInvocation) Float64Result() (float64, error) { return 0, nil }
func (f *fakeInvocation) LongDoubleResult() (float64, error) { return 0, nil }
func (f *fakeInvocation) StringResult() (string, error) { return "", nil }
func (f *fakeInvocation) ObjectResult(typeid.ID) (any, error) { return nil, nil }

func (f *fakeInvocation) Err() error {
	err := f.err
	f.err = nil
	return err
}

type handler struct {
	Scripted
	updates int
}

func (h *handler) Update(ctx context.Context, dt float64) error {
	return Dispatch(ctx, &h.Scripted, "update",
		func(inv InvocationContext) error {
			inv.StoreFloat64(0, dt)
			return nil
		},
		func() { h.updates++ })
}

func (h *handler) Score(ctx context.Context, n int32) (int32, error) {
	return DispatchResult(ctx, &h.Scripted, "score",
		func(inv InvocationContext) error {
			inv.StoreInt32(0, n)
			return nil
		},
		func(inv InvocationContext) (int32, error) { return inv.Int32Result() },
		func() int32 { return n })
}

func TestDispatch_NoScript(t *testing.T) {
	h := &handler{}
	if err := h.Update(context.Background(), 0.5); err != nil {
		t.Fatal(err)
	}
	if h.updates != 1 {
		t.Errorf("base ran %d times, want 1", h.updates)
	}
}

func TestDispatch_NotFoundRunsBaseOnce(t *testing.T) {
	h := &handler{}
	inv := &fakeInvocation{overrides: map[string]func([]any) (any, error){}}
	h.AttachScript(inv)

	if err := h.Update(context.Background(), 0.5); err != nil {
		t.Fatal(err)
	}
	if h.updates != 1 {
		t.Errorf("base ran %d times, want 1", h.updates)
	}
	if inv.released != 1 {
		t.Errorf("released %d times, want 1", inv.released)
	}
}

func TestDispatch_Override(t *testing.T) {
	h := &handler{}
	var seen float64
	inv := &fakeInvocation{overrides: map[string]func([]any) (any, error){
		"update": func(args []any) (any, error) { seen = args[0].(float64); return nil, nil },
		"score":  func(args []any) (any, error) { return args[0].(int64) * 2, nil },
	}}
	h.AttachScript(inv)

	if err := h.Update(context.Background(), 0.25); err != nil {
		t.Fatal(err)
	}
	if seen != 0.25 || h.updates != 0 {
		t.Errorf("seen=%v updates=%d", seen, h.updates)
	}

	n, err := h.Score(context.Background(), 21)
	if err != nil || n != 42 {
		t.Errorf("Score = %d, %v; want 42", n, err)
	}
}

func TestDispatch_OverrideFails(t *testing.T) {
	h := &handler{}
	inv := &fakeInvocation{overrides: map[string]func([]any) (any, error){
		"update": func([]any) (any, error) { return nil, stderrors.New("boom in script") },
	}}
	h.AttachScript(inv)

	err := h.Update(context.Background(), 1)
	if !errors.IsKind(err, errors.KindCallFailed) {
		t.Fatalf("error = %v, want call_failed", err)
	}
	if !strings.Contains(err.Error(), "boom in script") {
		t.Errorf("error %q lacks the script error text", err)
	}
	if h.updates != 0 {
		t.Error("base ran after a failed override")
	}
	if inv.Err() != nil {
		t.Error("Err must report the failure only once")
	}
}

func TestDispatch_BadResult(t *testing.T) {
	h := &handler{}
	h.AttachScript(&fakeInvocation{overrides: map[string]func([]any) (any, error){
		"score": func([]any) (any, error) { return "nope", nil },
	}})
	_, err := h.Score(context.Background(), 1)
	if !errors.IsKind(err, errors.KindTypeMismatch) {
		t.Errorf("error = %v, want type_mismatch", err)
	}
}

func TestDispatch_StoreError(t *testing.T) {
	h := &handler{}
	inv := &fakeInvocation{overrides: map[string]func([]any) (any, error){
		"update": func([]any) (any, error) { return nil, nil },
	}}
	h.AttachScript(inv)

	err := Dispatch(context.Background(), &h.Scripted, "update",
		func(inv InvocationContext) error { return inv.StoreObject(0, typeid.Of[sprite](), &sprite{}) },
		func() { h.updates++ })
	if !errors.IsKind(err, errors.KindUnregisteredType) {
		t.Errorf("error = %v, want unregistered_type", err)
	}
}

func TestScripted_Detach(t *testing.T) {
	h := &handler{}
	h.AttachScript(&fakeInvocation{})
	if h.Script() == nil {
		t.Fatal("Script() = nil after attach")
	}
	h.DetachScript()
	if h.Script() != nil {
		t.Error("Script() != nil after detach")
	}
	var nilScripted *Scripted
	if nilScripted.Script() != nil {
		t.Error("nil Scripted must have no script")
	}
}

func TestCallResult_String(t *testing.T) {
	for r, want := range map[CallResult]string{
		CallExecuted: "executed",
		CallNotFound: "not-found",
		CallFailed:   "failed",
		CallResult(9): "unknown",
	} {
		if r.String() != want {
			t.Errorf("%d.String() = %q, want %q", r, r.String(), want)
		}
	}
}
