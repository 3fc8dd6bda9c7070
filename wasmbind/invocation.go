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

type scriptLinked interface {
	script.Attacher
	Script() script.Dispatcher
}

// detach unlinks s when it is still linked to the released handle h.
func (rt *Runtime) detach(s scriptLinked, h resource.Handle) {
	if d, ok := s.Script().(*dispatcher); ok && d.inst.rt == rt && d.handle == h {
		s.DetachScript()
	}
}

// dispatcher routes virtual calls of an attached native object to guest
// exports.
type dispatcher struct {
	inst   *Instance
	td     *script.TypeData
	handle resource.Handle
}

func (d *dispatcher) Invocation(ctx context.Context) (script.InvocationContext, func(), error) {
	ctx, release, err := d.inst.rt.enter(ctx)
	if err != nil {
		return nil, nil, err
	}
	return &invocation{inst: d.inst, ctx: ctx, td: d.td, self: d.handle}, release, nil
}

// invocation implements script.InvocationContext for one virtual call into
// a guest export.
type invocation struct {
	inst     *Instance
	ctx      context.Context
	td       *script.TypeData
	self     resource.Handle
	method   string
	args     [][]uint64
	borrowed []resource.Handle
	results  []uint64
	types    []api.ValueType
	err      error
	poisoned error
}

var _ script.InvocationContext = (*invocation)(nil)

func (inv *invocation) export(method string) api.Function {
	return inv.inst.mod.ExportedFunction(VirtualName(inv.td, method))
}

func (inv *invocation) Implemented(method string) bool {
	return inv.export(method) != nil
}

func (inv *invocation) set(i int, v ...uint64) {
	for len(inv.args) <= i {
		inv.args = append(inv.args, nil)
	}
	inv.args[i] = v
}

func (inv *invocation) poison(err error) {
	if inv.poisoned == nil {
		inv.poisoned = err
	}
}

func (inv *invocation) StoreBool(i int, v bool) {
	if v {
		inv.set(i, 1)
	} else {
		inv.set(i, 0)
	}
}

func (inv *invocation) StoreInt8(i int, v int8) { inv.set(i, api.EncodeI32(int32(v))) }
func (inv *invocation) StoreInt16(i int, v int16) { inv.set(i, api.EncodeI32(int32(v))) }
func (inv *invocation) StoreInt32(i int, v int32) { inv.set(i, api.EncodeI32(v)) }
func (inv *invocation) StoreInt64(i int, v int64) { inv.set(i, api.EncodeI64(v)) }
func (inv *invocation) StoreUint8(i int, v uint8) { inv.set(i, api.EncodeU32(uint32(v))) }
func (inv *invocation) StoreUint16(i int, v uint16) { inv.set(i, api.EncodeU32(uint32(v))) }
func (inv *invocation) StoreUint32(i int, v uint32) { inv.set(i, api.EncodeU32(v)) }
func (inv *invocation) StoreUint64(i int, v uint64) { inv.set(i, v) }
func (inv *invocation) StoreFloat32(i int, v float32) { inv.set(i, api.EncodeF32(v)) }
func (inv *invocation) StoreFloat64(i int, v float64) { inv.set(i, api.EncodeF64(v)) }
func (inv *invocation) StoreLongDouble(i int, v float64) { inv.set(i, api.EncodeF64(v)) }

// StoreString copies v into guest memory and passes (ptr, len).
func (inv *invocation) StoreString(i int, v string) {
	g := moduleGuest{mod: inv.inst.mod}
	ptr, err := g.Alloc(inv.ctx, uint32(len(v)), 1)
	if err != nil {
		inv.poison(err)
		return
	}
	if !g.Write(ptr, []byte(v)) {
		inv.poison(errors.New(errors.PhaseDispatch, errors.KindOutOfBounds).
			Path(argName(i)).
			Value(ptr).
			Detail("string argument does not fit guest memory").
			Build())
		return
	}
	inv.set(i, api.EncodeU32(ptr), api.EncodeU32(uint32(len(v))))
}

// StoreObject lends v for the duration of the call.
func (inv *invocation) StoreObject(i int, id typeid.ID, v any) error {
	h, err := inv.inst.rt.insert(id.Referent(), v, false)
	if err != nil {
		inv.poison(err)
		return err
	}
	inv.borrowed = append(inv.borrowed, h)
	inv.set(i, api.EncodeU32(uint32(h)))
	return nil
}

func (inv *invocation) Call(method string) script.CallResult {
	defer inv.releaseBorrowed()
	if inv.poisoned != nil {
		inv.err = inv.poisoned
		return script.CallFailed
	}
	fn := inv.export(method)
	if fn == nil {
		return script.CallNotFound
	}

	params := []uint64{api.EncodeU32(uint32(inv.self))}
	for _, a := range inv.args {
		params = append(params, a...)
	}
	def := fn.Definition()
	if n := len(def.ParamTypes()); n != len(params) {
		inv.err = errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
			Path(inv.td.QualifiedName(), method).
			Detail("guest override takes %d core values, got %d", n, len(params)).
			Build()
		return script.CallFailed
	}

	res, err := fn.Call(inv.ctx, params...)
	if err != nil {
		inv.err = errors.CallFailed(inv.td.QualifiedName()+"."+method, inv.inst.callError(inv.ctx, def.Name(), err))
		return script.CallFailed
	}
	inv.method = method
	inv.results = res
	inv.types = def.ResultTypes()
	return script.CallExecuted
}

func (inv *invocation) releaseBorrowed() {
	for _, h := range inv.borrowed {
		inv.inst.rt.handles.Release(h)
	}
	inv.borrowed = nil
}

func (inv *invocation) path() []string {
	return []string{inv.td.QualifiedName(), inv.method, "result"}
}

func (inv *invocation) mismatch(want string) error {
	got := "none"
	if len(inv.types) > 0 {
		got = api.ValueTypeName(inv.types[0])
	}
	return errors.TypeMismatch(errors.PhaseDispatch, inv.path(), want, got)
}

func (inv *invocation) overflow(v any, want string) error {
	return errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
		Path(inv.path()...).
		GoType(want).
		Value(v).
		Cause(errors.Overflow(errors.PhaseDispatch, inv.path(), v, want)).
		Build()
}

func (inv *invocation) first() (uint64, api.ValueType, bool) {
	if len(inv.results) == 0 || len(inv.types) == 0 {
		return 0, 0, false
	}
	return inv.results[0], inv.types[0], true
}

func (inv *invocation) signed(lo, hi int64, want string) (int64, error) {
	v, t, ok := inv.first()
	if !ok {
		return 0, inv.mismatch(want)
	}
	var n int64
	switch t {
	case api.ValueTypeI32:
		n = int64(api.DecodeI32(v))
	case api.ValueTypeI64:
		n = int64(v)
	default:
		return 0, inv.mismatch(want)
	}
	if n < lo || n > hi {
		return 0, inv.overflow(n, want)
	}
	return n, nil
}

func (inv *invocation) unsigned(hi uint64, want string) (uint64, error) {
	v, t, ok := inv.first()
	if !ok {
		return 0, inv.mismatch(want)
	}
	var n uint64
	switch t {
	case api.ValueTypeI32:
		n = uint64(api.DecodeU32(v))
	case api.ValueTypeI64:
		n = v
	default:
		return 0, inv.mismatch(want)
	}
	if n > hi {
		return 0, inv.overflow(n, want)
	}
	return n, nil
}

func (inv *invocation) float(want string) (float64, error) {
	v, t, ok := inv.first()
	if !ok {
		return 0, inv.mismatch(want)
	}
	switch t {
	case api.ValueTypeF32:
		return float64(api.DecodeF32(v)), nil
	case api.ValueTypeF64:
		return api.DecodeF64(v), nil
	case api.ValueTypeI32:
		return float64(api.DecodeI32(v)), nil
	case api.ValueTypeI64:
		return float64(int64(v)), nil
	}
	return 0, inv.mismatch(want)
}

func (inv *invocation) BoolResult() (bool, error) {
	v, t, ok := inv.first()
	if !ok || t != api.ValueTypeI32 {
		return false, inv.mismatch("bool")
	}
	return api.DecodeU32(v) != 0, nil
}

func (inv *invocation) Int8Result() (int8, error) {
	n, err := inv.signed(math.MinInt8, math.MaxInt8, "int8")
	return int8(n), err
}

func (inv *invocation) Int16Result() (int16, error) {
	n, err := inv.signed(math.MinInt16, math.MaxInt16, "int16")
	return int16(n), err
}

func (inv *invocation) Int32Result() (int32, error) {
	n, err := inv.signed(math.MinInt32, math.MaxInt32, "int32")
	return int32(n), err
}

func (inv *invocation) Int64Result() (int64, error) {
	return inv.signed(math.MinInt64, math.MaxInt64, "int64")
}

func (inv *invocation) Uint8Result() (uint8, error) {
	n, err := inv.unsigned(math.MaxUint8, "uint8")
	return uint8(n), err
}

func (inv *invocation) Uint16Result() (uint16, error) {
	n, err := inv.unsigned(math.MaxUint16, "uint16")
	return uint16(n), err
}

func (inv *invocation) Uint32Result() (uint32, error) {
	n, err := inv.unsigned(math.MaxUint32, "uint32")
	return uint32(n), err
}

func (inv *invocation) Uint64Result() (uint64, error) {
	return inv.unsigned(math.MaxUint64, "uint64")
}

func (inv *invocation) Float32Result() (float32, error) {
	f, err := inv.float("float32")
	return float32(f), err
}

func (inv *invocation) Float64Result() (float64, error) { return inv.float("float64") }

func (inv *invocation) LongDoubleResult() (float64, error) { return inv.float("float64") }

// StringResult reads a (ptr, len) result pair from guest memory.
func (inv *invocation) StringResult() (string, error) {
	if len(inv.results) != 2 || inv.types[0] != api.ValueTypeI32 || inv.types[1] != api.ValueTypeI32 {
		return "", inv.mismatch("string")
	}
	ptr, n := api.DecodeU32(inv.results[0]), api.DecodeU32(inv.results[1])
	b, ok := moduleGuest{mod: inv.inst.mod}.Read(ptr, n)
	if !ok {
		return "", errors.New(errors.PhaseDispatch, errors.KindOutOfBounds).
			Path(inv.path()...).
			Value(ptr).
			Detail("string result is outside guest memory").
			Build()
	}
	return string(b), nil
}

func (inv *invocation) ObjectResult(id typeid.ID) (any, error) {
	v, t, ok := inv.first()
	if !ok || t != api.ValueTypeI32 {
		return nil, inv.mismatch(id.Referent().String())
	}
	return inv.inst.rt.object(resource.Handle(api.DecodeU32(v)), id.Referent(), inv.path())
}

func (inv *invocation) Err() error {
	err := inv.err
	inv.err = nil
	return err
}
