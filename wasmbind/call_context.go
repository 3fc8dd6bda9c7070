package wasmbind

import (
	"context"
	"math"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/resource"
	"github.com/wippyai/script-bridge/script"
	"github.com/wippyai/script-bridge/typeid"
)

// guest is the calling module's linear memory and allocator.
type guest interface {
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, b []byte) bool
	Alloc(ctx context.Context, size, align uint32) (uint32, error)
}

// moduleGuest adapts the api.Module that called a host function.
type moduleGuest struct {
	mod api.Module
}

func (g moduleGuest) Read(offset, byteCount uint32) ([]byte, bool) {
	mem := g.mod.Memory()
	if mem == nil {
		return nil, false
	}
	return mem.Read(offset, byteCount)
}

func (g moduleGuest) Write(offset uint32, b []byte) bool {
	mem := g.mod.Memory()
	if mem == nil {
		return false
	}
	return mem.Write(offset, b)
}

func (g moduleGuest) Alloc(ctx context.Context, size, align uint32) (uint32, error) {
	fn := g.mod.ExportedFunction(CabiRealloc)
	if fn == nil {
		return 0, errors.Unsupported(errors.PhaseCall, "guest "+g.mod.Name()+" does not export "+CabiRealloc)
	}
	res, err := fn.Call(ctx, 0, 0, uint64(align), uint64(size))
	if err != nil {
		return 0, errors.Wrap(errors.PhaseCall, errors.KindCallFailed, err, CabiRealloc)
	}
	if len(res) == 0 {
		return 0, errors.InvalidInput(errors.PhaseCall, CabiRealloc+" returned no pointer")
	}
	return api.DecodeU32(res[0]), nil
}

// arg is one decoded parameter.
type arg struct {
	l    lowering
	bits uint64
	str  string
}

func (a arg) signed() int64 {
	switch a.l.bits {
	case 64:
		return int64(a.bits)
	default:
		return int64(api.DecodeI32(a.bits))
	}
}

func (a arg) unsigned() uint64 {
	switch a.l.bits {
	case 64:
		return a.bits
	default:
		return uint64(api.DecodeU32(a.bits))
	}
}

func (a arg) float() float64 {
	if a.l.bits == 32 {
		return float64(api.DecodeF32(a.bits))
	}
	return api.DecodeF64(a.bits)
}

// hostCall implements script.CallContext over the core wasm value stack of
// one host function call.
type hostCall struct {
	rt     *Runtime
	ctx    context.Context
	g      guest
	hf     *HostFunc
	args   []arg
	self   resource.Handle
	result []uint64
	err    error
}

var _ script.CallContext = (*hostCall)(nil)

// newHostCall decodes stack according to hf's parameter lowerings.
func (rt *Runtime) newHostCall(ctx context.Context, g guest, hf *HostFunc, stack []uint64) (*hostCall, error) {
	hc := &hostCall{rt: rt, ctx: ctx, g: g, hf: hf}
	off := 0
	for i, l := range hf.params {
		if i == 0 && hf.method() {
			hc.self = resource.Handle(api.DecodeU32(stack[0]))
			off++
			continue
		}
		a := arg{l: l}
		switch l.kind {
		case kindString:
			ptr, n := api.DecodeU32(stack[off]), api.DecodeU32(stack[off+1])
			b, ok := g.Read(ptr, n)
			if !ok {
				return nil, errors.New(errors.PhaseCall, errors.KindOutOfBounds).
					Path(hc.at(len(hc.args))...).
					Value(ptr).
					Detail("string [%d, %d) is outside guest memory", ptr, uint64(ptr)+uint64(n)).
					Build()
			}
			a.str = string(b)
		default:
			a.bits = stack[off]
		}
		hc.args = append(hc.args, a)
		off += l.width()
	}
	return hc, nil
}

func (hc *hostCall) at(i int) []string {
	return append(append([]string(nil), hc.hf.path...), argName(i))
}

func (hc *hostCall) arg(i int) (arg, bool) {
	if i < 0 || i >= len(hc.args) {
		return arg{}, false
	}
	return hc.args[i], true
}

func (hc *hostCall) mismatch(i int, want string) error {
	got := "none"
	if a, ok := hc.arg(i); ok {
		got = TypeString(a.l.wit)
	}
	return errors.TypeMismatch(errors.PhaseCall, hc.at(i), want, got)
}

func (hc *hostCall) overflow(i int, v any, want string) error {
	return errors.New(errors.PhaseCall, errors.KindTypeMismatch).
		Path(hc.at(i)...).
		GoType(want).
		Value(v).
		Cause(errors.Overflow(errors.PhaseCall, hc.at(i), v, want)).
		Build()
}

func (hc *hostCall) Context() context.Context {
	if hc.ctx == nil {
		return context.Background()
	}
	return hc.ctx
}

func (hc *hostCall) Len() int { return len(hc.args) }

func (hc *hostCall) This() (any, error) {
	if hc.self == 0 {
		return nil, errors.NotFound(errors.PhaseCall, "receiver", hc.hf.Name)
	}
	v, ok := hc.rt.handles.Get(hc.self)
	if !ok {
		return nil, errors.Released(errors.PhaseCall, hc.hf.td.QualifiedName())
	}
	return v, nil
}

func (hc *hostCall) Class(i int) script.ValueClass {
	a, ok := hc.arg(i)
	if !ok {
		return script.None
	}
	switch a.l.kind {
	case kindBool:
		return script.Bool
	case kindSigned, kindUnsigned:
		return script.Integer
	case kindFloat:
		return script.Float
	case kindString:
		return script.Text
	case kindHandle:
		h := resource.Handle(api.DecodeU32(a.bits))
		if h == 0 {
			return script.None
		}
		if idx, ok := hc.rt.handles.TypeID(h); ok {
			if td, ok := hc.rt.registry.ByIndex(idx); ok {
				return script.ObjectOf(td.ID)
			}
		}
		return script.Opaque()
	}
	return script.None
}

func (hc *hostCall) Bool(i int) (bool, error) {
	a, _ := hc.arg(i)
	switch a.l.kind {
	case kindBool, kindUnsigned:
		return a.unsigned() != 0, nil
	case kindSigned:
		return a.signed() != 0, nil
	}
	return false, hc.mismatch(i, "bool")
}

// toSigned reads an integer within [lo, hi].
func (hc *hostCall) toSigned(i int, lo, hi int64, want string) (int64, error) {
	a, _ := hc.arg(i)
	switch a.l.kind {
	case kindBool:
		return int64(a.unsigned() & 1), nil
	case kindSigned:
		v := a.signed()
		if v < lo || v > hi {
			return 0, hc.overflow(i, v, want)
		}
		return v, nil
	case kindUnsigned:
		u := a.unsigned()
		if u > uint64(hi) {
			return 0, hc.overflow(i, u, want)
		}
		return int64(u), nil
	}
	return 0, hc.mismatch(i, want)
}

// toUnsigned reads an integer within [0, hi].
func (hc *hostCall) toUnsigned(i int, hi uint64, want string) (uint64, error) {
	a, _ := hc.arg(i)
	switch a.l.kind {
	case kindBool:
		return a.unsigned() & 1, nil
	case kindSigned:
		v := a.signed()
		if v < 0 || uint64(v) > hi {
			return 0, hc.overflow(i, v, want)
		}
		return uint64(v), nil
	case kindUnsigned:
		u := a.unsigned()
		if u > hi {
			return 0, hc.overflow(i, u, want)
		}
		return u, nil
	}
	return 0, hc.mismatch(i, want)
}

func (hc *hostCall) toFloat(i int, want string) (float64, error) {
	a, _ := hc.arg(i)
	switch a.l.kind {
	case kindFloat:
		return a.float(), nil
	case kindSigned:
		return float64(a.signed()), nil
	case kindUnsigned:
		return float64(a.unsigned()), nil
	}
	return 0, hc.mismatch(i, want)
}

func (hc *hostCall) Int8(i int) (int8, error) {
	v, err := hc.toSigned(i, math.MinInt8, math.MaxInt8, "int8")
	return int8(v), err
}

func (hc *hostCall) Int16(i int) (int16, error) {
	v, err := hc.toSigned(i, math.MinInt16, math.MaxInt16, "int16")
	return int16(v), err
}

func (hc *hostCall) Int32(i int) (int32, error) {
	v, err := hc.toSigned(i, math.MinInt32, math.MaxInt32, "int32")
	return int32(v), err
}

func (hc *hostCall) Int64(i int) (int64, error) {
	return hc.toSigned(i, math.MinInt64, math.MaxInt64, "int64")
}

func (hc *hostCall) Uint8(i int) (uint8, error) {
	v, err := hc.toUnsigned(i, math.MaxUint8, "uint8")
	return uint8(v), err
}

func (hc *hostCall) Uint16(i int) (uint16, error) {
	v, err := hc.toUnsigned(i, math.MaxUint16, "uint16")
	return uint16(v), err
}

func (hc *hostCall) Uint32(i int) (uint32, error) {
	v, err := hc.toUnsigned(i, math.MaxUint32, "uint32")
	return uint32(v), err
}

func (hc *hostCall) Uint64(i int) (uint64, error) {
	return hc.toUnsigned(i, math.MaxUint64, "uint64")
}

func (hc *hostCall) Float32(i int) (float32, error) {
	v, err := hc.toFloat(i, "float32")
	return float32(v), err
}

func (hc *hostCall) Float64(i int) (float64, error) { return hc.toFloat(i, "float64") }

func (hc *hostCall) LongDouble(i int) (float64, error) { return hc.toFloat(i, "float64") }

func (hc *hostCall) String(i int) (string, error) {
	a, _ := hc.arg(i)
	if a.l.kind != kindString {
		return "", hc.mismatch(i, "string")
	}
	return a.str, nil
}

func (hc *hostCall) Object(i int, id typeid.ID) (any, error) {
	want := id.Referent()
	if _, ok := hc.rt.registry.Get(want); !ok {
		return nil, errors.UnregisteredType(errors.PhaseCall, hc.at(i), want.String())
	}
	a, _ := hc.arg(i)
	if a.l.kind != kindHandle {
		return nil, hc.mismatch(i, want.String())
	}
	return hc.rt.object(resource.Handle(api.DecodeU32(a.bits)), want, hc.at(i))
}

// store encodes v for the declared result type.
func (hc *hostCall) store(bits uint64) {
	hc.result = []uint64{bits}
}

func (hc *hostCall) storeSigned(v int64) {
	switch hc.hf.result.kind {
	case kindFloat:
		hc.storeFloat(float64(v))
	case kindVoid:
	default:
		if len(hc.hf.result.core) == 1 && hc.hf.result.core[0] == api.ValueTypeI32 {
			hc.store(api.EncodeI32(int32(v)))
			return
		}
		hc.store(api.EncodeI64(v))
	}
}

func (hc *hostCall) storeUnsigned(v uint64) {
	switch hc.hf.result.kind {
	case kindFloat:
		hc.storeFloat(float64(v))
	case kindVoid:
	default:
		if len(hc.hf.result.core) == 1 && hc.hf.result.core[0] == api.ValueTypeI32 {
			hc.store(api.EncodeU32(uint32(v)))
			return
		}
		hc.store(v)
	}
}

func (hc *hostCall) storeFloat(v float64) {
	switch hc.hf.result.kind {
	case kindFloat:
		if hc.hf.result.bits == 32 {
			hc.store(api.EncodeF32(float32(v)))
			return
		}
		hc.store(api.EncodeF64(v))
	case kindVoid:
	default:
		hc.fail(errors.TypeMismatch(errors.PhaseCall, hc.resultPath(), TypeString(hc.hf.result.wit), "float"))
	}
}

func (hc *hostCall) resultPath() []string {
	return append(append([]string(nil), hc.hf.path...), "result")
}

func (hc *hostCall) fail(err error) {
	if hc.err == nil {
		hc.err = err
	}
}

func (hc *hostCall) StoreBool(v bool) {
	if v {
		hc.storeUnsigned(1)
	} else {
		hc.storeUnsigned(0)
	}
}

func (hc *hostCall) StoreInt8(v int8) { hc.storeSigned(int64(v)) }
func (hc *hostCall) StoreInt16(v int16) { hc.storeSigned(int64(v)) }
func (hc *hostCall) StoreInt32(v int32) { hc.storeSigned(int64(v)) }
func (hc *hostCall) StoreInt64(v int64) { hc.storeSigned(v) }
func (hc *hostCall) StoreUint8(v uint8) { hc.storeUnsigned(uint64(v)) }
func (hc *hostCall) StoreUint16(v uint16) { hc.storeUnsigned(uint64(v)) }
func (hc *hostCall) StoreUint32(v uint32) { hc.storeUnsigned(uint64(v)) }
func (hc *hostCall) StoreUint64(v uint64) { hc.storeUnsigned(v) }
func (hc *hostCall) StoreFloat32(v float32) { hc.storeFloat(float64(v)) }
func (hc *hostCall) StoreFloat64(v float64) { hc.storeFloat(v) }
func (hc *hostCall) StoreLongDouble(v float64) { hc.storeFloat(v) }

// StoreString copies v into guest memory allocated with cabi_realloc and
// returns (ptr, len).
func (hc *hostCall) StoreString(v string) {
	if hc.hf.result.kind != kindString {
		hc.fail(errors.TypeMismatch(errors.PhaseCall, hc.resultPath(), TypeString(hc.hf.result.wit), "string"))
		return
	}
	ptr, err := hc.g.Alloc(hc.Context(), uint32(len(v)), 1)
	if err != nil {
		hc.fail(err)
		return
	}
	if !hc.g.Write(ptr, []byte(v)) {
		hc.fail(errors.New(errors.PhaseCall, errors.KindOutOfBounds).
			Path(hc.resultPath()...).
			Value(ptr).
			Detail("allocated string does not fit guest memory").
			Build())
		return
	}
	hc.result = []uint64{api.EncodeU32(ptr), api.EncodeU32(uint32(len(v)))}
}

func (hc *hostCall) StoreObject(id typeid.ID, v any) error {
	return hc.storeHandle(id, v, true)
}

func (hc *hostCall) StoreReference(id typeid.ID, v any) error {
	return hc.storeHandle(id, v, false)
}

func (hc *hostCall) storeHandle(id typeid.ID, v any, owned bool) error {
	h, err := hc.rt.insert(id.Referent(), v, owned)
	if err != nil {
		return err
	}
	hc.store(api.EncodeU32(uint32(h)))
	return nil
}

func (hc *hostCall) StoreNone() {
	if hc.hf.result.kind == kindVoid {
		return
	}
	hc.result = make([]uint64, hc.hf.result.width())
}
