package script

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/typeid"
)

// CallResult is the outcome of InvocationContext.Call.
type CallResult uint8

const (
	// CallExecuted: the script override ran; read its result, if any.
	CallExecuted CallResult = iota
	// CallNotFound: no override; run the native base implementation.
	CallNotFound
	// CallFailed: the override raised; Err returns the script error.
	CallFailed
)

func (r CallResult) String() string {
	switch r {
	case CallExecuted:
		return "executed"
	case CallNotFound:
		return "not-found"
	case CallFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// InvocationContext drives one native-to-script virtual call.
//
// The protocol, in order: probe Implemented; store every argument exactly
// once in declaration order; Call; after CallExecuted read exactly one
// result with the accessor matching the declared return type (none for
// void). Call always runs on the goroutine holding the runtime lock.
type InvocationContext interface {
	// Implemented reports whether the script object overrides method with
	// something other than the native trampoline.
	Implemented(method string) bool

	StoreBool(i int, v bool)
	StoreInt8(i int, v int8)
	StoreInt16(i int, v int16)
	StoreInt32(i int, v int32)
	StoreInt64(i int, v int64)
	StoreUint8(i int, v uint8)
	StoreUint16(i int, v uint16)
	StoreUint32(i int, v uint32)
	StoreUint64(i int, v uint64)
	StoreFloat32(i int, v float32)
	StoreFloat64(i int, v float64)
	StoreLongDouble(i int, v float64)
	StoreString(i int, v string)

	// StoreObject passes a native object as a borrowed view. The type must
	// be registered; otherwise it fails with unregistered_type and the
	// context refuses to execute the call.
	StoreObject(i int, id typeid.ID, v any) error

	Call(method string) CallResult

	BoolResult() (bool, error)
	Int8Result() (int8, error)
	Int16Result() (int16, error)
	Int32Result() (int32, error)
	Int64Result() (int64, error)
	Uint8Result() (uint8, error)
	Uint16Result() (uint16, error)
	Uint32Result() (uint32, error)
	Uint64Result() (uint64, error)
	Float32Result() (float32, error)
	Float64Result() (float64, error)
	LongDoubleResult() (float64, error)
	StringResult() (string, error)
	ObjectResult(id typeid.ID) (any, error)

	// Err returns the error behind CallFailed. It reports the error once;
	// later calls return nil.
	Err() error
}

// Dispatcher opens invocation contexts against the script object attached
// to a native value. release must be called when the invocation is done.
type Dispatcher interface {
	Invocation(ctx context.Context) (inv InvocationContext, release func(), err error)
}

// Attacher is implemented by native values that accept a script object.
// Embedding Scripted provides it.
type Attacher interface {
	AttachScript(d Dispatcher)
	DetachScript()
}

// Scripted links a native object to the script object that owns it so that
// virtual methods can dispatch to script overrides. Embed it by value.
type Scripted struct {
	target atomic.Pointer[dispatcherBox]
}

type dispatcherBox struct {
	d Dispatcher
}

// AttachScript records d as the script side of the object.
func (s *Scripted) AttachScript(d Dispatcher) {
	s.target.Store(&dispatcherBox{d: d})
}

// DetachScript forgets the script side; dispatch falls back to native.
func (s *Scripted) DetachScript() {
	s.target.Store(nil)
}

// Script returns the attached dispatcher, or nil.
func (s *Scripted) Script() Dispatcher {
	if s == nil {
		return nil
	}
	if b := s.target.Load(); b != nil {
		return b.d
	}
	return nil
}

// Dispatch runs a void virtual method: the script override when one exists,
// otherwise base. store writes the arguments and may be nil. A failing
// override is returned as a call_failed error carrying the script error.
func Dispatch(ctx context.Context, s *Scripted, method string, store func(InvocationContext) error, base func()) error {
	_, err := DispatchResult(ctx, s, method, store, nil, func() struct{} {
		if base != nil {
			base()
		}
		return struct{}{}
	})
	return err
}

// DispatchResult runs a virtual method returning T. get reads the result
// after a successful override and may be nil for void methods.
func DispatchResult[T any](
	ctx context.Context,
	s *Scripted,
	method string,
	store func(InvocationContext) error,
	get func(InvocationContext) (T, error),
	base func() T,
) (T, error) {
	var zero T
	d := s.Script()
	if d == nil {
		return base(), nil
	}

	inv, release, err := d.Invocation(ctx)
	if err != nil {
		return zero, err
	}
	defer release()

	if !inv.Implemented(method) {
		return base(), nil
	}

	if store != nil {
		if err := store(inv); err != nil {
			return zero, err
		}
	}

	switch inv.Call(method) {
	case CallNotFound:
		return base(), nil
	case CallFailed:
		cause := inv.Err()
		Logger().Debug("script override failed", zap.String("method", method), zap.Error(cause))
		return zero, errors.CallFailed(method, cause)
	}

	if get == nil {
		return zero, nil
	}
	v, err := get(inv)
	if err != nil {
		return zero, errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
			Path(method, "result").
			Cause(err).
			Detail("script override returned an incompatible value").
			Build()
	}
	return v, nil
}
