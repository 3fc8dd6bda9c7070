package corelib

import (
	"context"

	"github.com/wippyai/script-bridge/script"
)

// Key identifies an input key.
type Key int32

const (
	KeyNone Key = iota
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyFire
)

// Handler receives input events. Scripts subclass it or assign methods on
// an instance to override on_key and update.
type Handler struct {
	script.Scripted

	Name    string
	Pos     Vec2
	Speed   float64
	Presses int32
	Elapsed float64
}

// NewHandler returns a handler moving one unit per key press.
func NewHandler(name string) *Handler {
	return &Handler{Name: name, Speed: 1}
}

// baseOnKey moves the handler with the arrow keys and reports whether k
// was handled.
func (h *Handler) baseOnKey(k Key) bool {
	h.Presses++
	switch k {
	case KeyUp:
		h.Pos.Y -= h.Speed
	case KeyDown:
		h.Pos.Y += h.Speed
	case KeyLeft:
		h.Pos.X -= h.Speed
	case KeyRight:
		h.Pos.X += h.Speed
	default:
		return false
	}
	return true
}

func (h *Handler) baseUpdate(dt float64) { h.Elapsed += dt }

// OnKey delivers k to the script override, or to the built-in movement
// when there is none.
func (h *Handler) OnKey(ctx context.Context, k Key) (bool, error) {
	return script.DispatchResult(ctx, &h.Scripted, "on_key",
		func(inv script.InvocationContext) error {
			inv.StoreInt32(0, int32(k))
			return nil
		},
		func(inv script.InvocationContext) (bool, error) { return inv.BoolResult() },
		func() bool { return h.baseOnKey(k) },
	)
}

// Update advances the handler by dt seconds.
func (h *Handler) Update(ctx context.Context, dt float64) error {
	return script.Dispatch(ctx, &h.Scripted, "update", func(inv script.InvocationContext) error {
		inv.StoreFloat64(0, dt)
		return nil
	}, func() { h.baseUpdate(dt) })
}

// Feed delivers keys in order and returns how many were handled.
func Feed(ctx context.Context, h *Handler, keys []Key) (int, error) {
	n := 0
	for _, k := range keys {
		ok, err := h.OnKey(ctx, k)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func reflectInput(r *script.Reflection) error {
	key, err := script.Enum[Key]("Key").
		Value("None", KeyNone).
		Value("Up", KeyUp).
		Value("Down", KeyDown).
		Value("Left", KeyLeft).
		Value("Right", KeyRight).
		Value("Fire", KeyFire).
		Build()
	if err != nil {
		return err
	}
	handler, err := script.Class[Handler]("Handler").
		DefaultConstructor().
		Constructor(NewHandler).
		Fields().
		Virtual("on_key", (*Handler).baseOnKey).
		Virtual("update", (*Handler).baseUpdate).
		Build()
	if err != nil {
		return err
	}
	for _, td := range []*script.TypeData{key, handler} {
		if err := r.AddType(InputModule, td); err != nil {
			return err
		}
	}

	// press and tick enter through the native side so overrides run
	press, err := script.Func("press", func(ctx context.Context, h *Handler, k Key) (bool, error) {
		return h.OnKey(ctx, k)
	})
	if err != nil {
		return err
	}
	tick, err := script.Func("tick", func(ctx context.Context, h *Handler, dt float64) error {
		return h.Update(ctx, dt)
	})
	if err != nil {
		return err
	}
	for _, fd := range []*script.FunctionData{press, tick} {
		if err := r.AddFunction(InputModule, fd); err != nil {
			return err
		}
	}
	return nil
}
