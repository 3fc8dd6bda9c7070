package wasmbind

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/resource"
	"github.com/wippyai/script-bridge/script"
	"github.com/wippyai/script-bridge/typeid"
)

// Instance is an instantiated guest module.
type Instance struct {
	rt   *Runtime
	mod  api.Module
	name string
}

// Instantiate compiles and instantiates a guest. Its imports resolve
// against the host modules instantiated by Finish.
func (rt *Runtime) Instantiate(ctx context.Context, name string, wasm []byte) (*Instance, error) {
	ctx, release, err := rt.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, dup := rt.instances[name]; dup {
		return nil, errors.DuplicateBinding("", "instance", name)
	}
	if _, dup := rt.hosts[name]; dup {
		return nil, errors.DuplicateBinding("", "instance", name)
	}

	compiled, err := rt.wz.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "compile guest "+name)
	}
	mod, err := rt.wz.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "instantiate guest "+name)
	}

	inst := &Instance{rt: rt, mod: mod, name: name}
	rt.instances[name] = inst
	Logger().Debug("guest instantiated",
		zap.String("name", name),
		zap.Int("exports", len(mod.ExportedFunctionDefinitions())))
	return inst, nil
}

// Name returns the guest's module name.
func (in *Instance) Name() string { return in.name }

// Exports returns the names of the guest's exported functions, sorted.
func (in *Instance) Exports() []string {
	return slices.Sorted(maps.Keys(in.mod.ExportedFunctionDefinitions()))
}

// Call invokes the guest export name. Arguments are Go numbers, bools or
// resource handles matched to the export's core parameter types; results
// come back as int32, int64, float32 or float64.
func (in *Instance) Call(ctx context.Context, name string, args ...any) ([]any, error) {
	ctx, release, err := in.rt.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	fn := in.mod.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "export", in.name+"."+name)
	}
	def := fn.Definition()
	params := def.ParamTypes()
	if len(args) != len(params) {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Path(in.name, name).
			Detail("export takes %d arguments, got %d", len(params), len(args)).
			Build()
	}
	stack := make([]uint64, len(params))
	for i, a := range args {
		if stack[i], err = encodeArg(a, params[i]); err != nil {
			return nil, errors.New(errors.PhaseRuntime, errors.KindTypeMismatch).
				Path(in.name, name, argName(i)).
				GoType(fmt.Sprintf("%T", a)).
				ScriptType(api.ValueTypeName(params[i])).
				Cause(err).
				Build()
		}
	}

	res, err := fn.Call(ctx, stack...)
	if err != nil {
		return nil, in.callError(ctx, name, err)
	}
	out := make([]any, len(res))
	for i, t := range def.ResultTypes() {
		out[i] = decodeResult(res[i], t)
	}
	return out, nil
}

func (in *Instance) callError(ctx context.Context, name string, err error) error {
	if ctx.Err() != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindCallFailed, ctx.Err(), "guest "+in.name+" interrupted")
	}
	return errors.Wrap(errors.PhaseRuntime, errors.KindCallFailed, err, "guest call "+in.name+"."+name)
}

// Attach lends v to the guest and links it for virtual dispatch: virtual
// methods of v dispatch to guest exports named [method]<type>.<method>,
// called with the returned handle first. Release the handle to unlink.
func (in *Instance) Attach(ctx context.Context, v script.Attacher) (resource.Handle, error) {
	_, release, err := in.rt.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	id := typeid.FromValue(v).Referent()
	h, err := in.rt.insert(id, v, false)
	if err != nil {
		return 0, err
	}
	td, _ := in.rt.registry.Get(id)
	v.AttachScript(&dispatcher{inst: in, td: td, handle: h})
	return h, nil
}

// Close closes the guest module.
func (in *Instance) Close(ctx context.Context) error {
	ctx, release, err := in.rt.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	delete(in.rt.instances, in.name)
	return in.mod.Close(ctx)
}

func encodeArg(v any, t api.ValueType) (uint64, error) {
	switch t {
	case api.ValueTypeI32:
		switch v := v.(type) {
		case bool:
			if v {
				return 1, nil
			}
			return 0, nil
		case int32:
			return api.EncodeI32(v), nil
		case uint32:
			return api.EncodeU32(v), nil
		case resource.Handle:
			return api.EncodeU32(uint32(v)), nil
		case int:
			if int64(v) == int64(int32(v)) {
				return api.EncodeI32(int32(v)), nil
			}
			return 0, errors.Overflow(errors.PhaseRuntime, nil, v, "i32")
		case int8:
			return api.EncodeI32(int32(v)), nil
		case int16:
			return api.EncodeI32(int32(v)), nil
		case uint8:
			return api.EncodeU32(uint32(v)), nil
		case uint16:
			return api.EncodeU32(uint32(v)), nil
		}
	case api.ValueTypeI64:
		switch v := v.(type) {
		case int64:
			return api.EncodeI64(v), nil
		case uint64:
			return v, nil
		case int:
			return api.EncodeI64(int64(v)), nil
		case int32:
			return api.EncodeI64(int64(v)), nil
		case uint32:
			return uint64(v), nil
		}
	case api.ValueTypeF32:
		switch v := v.(type) {
		case float32:
			return api.EncodeF32(v), nil
		case float64:
			return api.EncodeF32(float32(v)), nil
		}
	case api.ValueTypeF64:
		switch v := v.(type) {
		case float64:
			return api.EncodeF64(v), nil
		case float32:
			return api.EncodeF64(float64(v)), nil
		case int:
			return api.EncodeF64(float64(v)), nil
		}
	}
	return 0, fmt.Errorf("cannot pass %T as %s", v, api.ValueTypeName(t))
}

func decodeResult(v uint64, t api.ValueType) any {
	switch t {
	case api.ValueTypeI32:
		return api.DecodeI32(v)
	case api.ValueTypeI64:
		return int64(v)
	case api.ValueTypeF32:
		return api.DecodeF32(v)
	case api.ValueTypeF64:
		return api.DecodeF64(v)
	default:
		return v
	}
}
