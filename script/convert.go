package script

import (
	"context"
	"fmt"
	"reflect"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/signature"
	"github.com/wippyai/script-bridge/typeid"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// argReader reads argument i of cc as a value of one Go type.
type argReader func(cc CallContext, i int) (reflect.Value, error)

// resultWriter stores one Go value as the result of cc.
type resultWriter func(cc CallContext, v reflect.Value) error

// readerFor returns the argument reader for t.
func readerFor(t reflect.Type) (argReader, error) {
	switch t.Kind() {
	case reflect.Bool:
		return convertTo(t, func(cc CallContext, i int) (any, error) { return cc.Bool(i) }), nil
	case reflect.Int8:
		return convertTo(t, func(cc CallContext, i int) (any, error) { return cc.Int8(i) }), nil
	case reflect.Int16:
		return convertTo(t, func(cc CallContext, i int) (any, error) { return cc.Int16(i) }), nil
	case reflect.Int32:
		return convertTo(t, func(cc CallContext, i int) (any, error) { return cc.Int32(i) }), nil
	case reflect.Int, reflect.Int64:
		return convertTo(t, func(cc CallContext, i int) (any, error) { return cc.Int64(i) }), nil
	case reflect.Uint8:
		return convertTo(t, func(cc CallContext, i int) (any, error) { return cc.Uint8(i) }), nil
	case reflect.Uint16:
		return convertTo(t, func(cc CallContext, i int) (any, error) { return cc.Uint16(i) }), nil
	case reflect.Uint32:
		return convertTo(t, func(cc CallContext, i int) (any, error) { return cc.Uint32(i) }), nil
	case reflect.Uint, reflect.Uint64, reflect.Uintptr:
		return convertTo(t, func(cc CallContext, i int) (any, error) { return cc.Uint64(i) }), nil
	case reflect.Float32:
		return convertTo(t, func(cc CallContext, i int) (any, error) { return cc.Float32(i) }), nil
	case reflect.Float64:
		return convertTo(t, func(cc CallContext, i int) (any, error) { return cc.Float64(i) }), nil
	case reflect.String:
		return convertTo(t, func(cc CallContext, i int) (any, error) { return cc.String(i) }), nil
	case reflect.Pointer:
		if t.Elem().Kind() != reflect.Struct {
			return nil, fmt.Errorf("pointer parameter %s must point to a struct", t)
		}
		elem := typeid.FromType(t.Elem())
		return func(cc CallContext, i int) (reflect.Value, error) {
			if cc.Class(i).Kind == ValueNone {
				return reflect.Zero(t), nil
			}
			obj, err := cc.Object(i, elem)
			if err != nil {
				return reflect.Value{}, err
			}
			return pointerValue(obj, t)
		}, nil
	case reflect.Struct:
		id := typeid.FromType(t)
		ptr := reflect.PointerTo(t)
		return func(cc CallContext, i int) (reflect.Value, error) {
			obj, err := cc.Object(i, id)
			if err != nil {
				return reflect.Value{}, err
			}
			pv, err := pointerValue(obj, ptr)
			if err != nil {
				return reflect.Value{}, err
			}
			if pv.IsNil() {
				return reflect.Zero(t), nil
			}
			return pv.Elem(), nil
		}, nil
	default:
		return nil, fmt.Errorf("parameter type %s is not supported", t)
	}
}

func convertTo(t reflect.Type, read func(cc CallContext, i int) (any, error)) argReader {
	return func(cc CallContext, i int) (reflect.Value, error) {
		v, err := read(cc, i)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(v).Convert(t), nil
	}
}

func pointerValue(obj any, t reflect.Type) (reflect.Value, error) {
	if obj == nil {
		return reflect.Zero(t), nil
	}
	v := reflect.ValueOf(obj)
	if v.Type() != t {
		return reflect.Value{}, errors.TypeMismatch(errors.PhaseCall, nil, t.String(), v.Type().String())
	}
	return v, nil
}

// writerFor returns the result writer for t. Pointers to structs are
// returned as borrowed views; structs by value are copied and owned by the
// script side.
func writerFor(t reflect.Type) (resultWriter, error) {
	switch t.Kind() {
	case reflect.Bool:
		return func(cc CallContext, v reflect.Value) error { cc.StoreBool(v.Bool()); return nil }, nil
	case reflect.Int8:
		return func(cc CallContext, v reflect.Value) error { cc.StoreInt8(int8(v.Int())); return nil }, nil
	case reflect.Int16:
		return func(cc CallContext, v reflect.Value) error { cc.StoreInt16(int16(v.Int())); return nil }, nil
	case reflect.Int32:
		return func(cc CallContext, v reflect.Value) error { cc.StoreInt32(int32(v.Int())); return nil }, nil
	case reflect.Int, reflect.Int64:
		return func(cc CallContext, v reflect.Value) error { cc.StoreInt64(v.Int()); return nil }, nil
	case reflect.Uint8:
		return func(cc CallContext, v reflect.Value) error { cc.StoreUint8(uint8(v.Uint())); return nil }, nil
	case reflect.Uint16:
		return func(cc CallContext, v reflect.Value) error { cc.StoreUint16(uint16(v.Uint())); return nil }, nil
	case reflect.Uint32:
		return func(cc CallContext, v reflect.Value) error { cc.StoreUint32(uint32(v.Uint())); return nil }, nil
	case reflect.Uint, reflect.Uint64, reflect.Uintptr:
		return func(cc CallContext, v reflect.Value) error { cc.StoreUint64(v.Uint()); return nil }, nil
	case reflect.Float32:
		return func(cc CallContext, v reflect.Value) error { cc.StoreFloat32(float32(v.Float())); return nil }, nil
	case reflect.Float64:
		return func(cc CallContext, v reflect.Value) error { cc.StoreFloat64(v.Float()); return nil }, nil
	case reflect.String:
		return func(cc CallContext, v reflect.Value) error { cc.StoreString(v.String()); return nil }, nil
	case reflect.Pointer:
		if t.Elem().Kind() != reflect.Struct {
			return nil, fmt.Errorf("pointer result %s must point to a struct", t)
		}
		id := typeid.FromType(t.Elem())
		return func(cc CallContext, v reflect.Value) error {
			if v.IsNil() {
				cc.StoreNone()
				return nil
			}
			return cc.StoreReference(id, v.Interface())
		}, nil
	case reflect.Struct:
		id := typeid.FromType(t)
		return func(cc CallContext, v reflect.Value) error {
			p := reflect.New(t)
			p.Elem().Set(v)
			return cc.StoreObject(id, p.Interface())
		}, nil
	default:
		return nil, fmt.Errorf("result type %s is not supported", t)
	}
}

// callable is a Go func prepared for invocation through a CallContext.
type callable struct {
	fn       reflect.Value
	readers  []argReader
	write    resultWriter
	params   []reflect.Type // script-visible parameters
	result   reflect.Type
	receiver bool // first Go parameter is taken from cc.This()
	context  bool // first script-invisible parameter is a context.Context
	failable bool // last result is an error
}

// prepare inspects fn. With receiver set, the first parameter must be a
// pointer to recv or recv itself and is filled from the call's receiver.
func prepare(fn any, recv reflect.Type) (*callable, error) {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func {
		return nil, fmt.Errorf("expected a func, got %T", fn)
	}
	t := v.Type()
	if t.IsVariadic() {
		return nil, fmt.Errorf("variadic func %s is not supported", t)
	}

	c := &callable{fn: v}
	in := 0
	if recv != nil {
		if t.NumIn() == 0 || (t.In(0) != recv && t.In(0) != reflect.PointerTo(recv)) {
			return nil, fmt.Errorf("method %s must take %s or *%s first", t, recv, recv)
		}
		c.receiver = true
		in = 1
	}
	if in < t.NumIn() && t.In(in) == contextType {
		c.context = true
		in++
	}
	for ; in < t.NumIn(); in++ {
		pt := t.In(in)
		r, err := readerFor(pt)
		if err != nil {
			return nil, err
		}
		c.params = append(c.params, pt)
		c.readers = append(c.readers, r)
	}

	outs := t.NumOut()
	if outs > 0 && t.Out(outs-1) == errorType {
		c.failable = true
		outs--
	}
	switch outs {
	case 0:
	case 1:
		c.result = t.Out(0)
		w, err := writerFor(c.result)
		if err != nil {
			return nil, err
		}
		c.write = w
	default:
		return nil, fmt.Errorf("func %s returns more than one value", t)
	}
	return c, nil
}

// signature returns the signature of the script-visible parameters.
func (c *callable) signature() signature.Signature {
	hidden := 0
	if c.receiver {
		hidden++
	}
	if c.context {
		hidden++
	}
	return signature.FromFunc(c.fn.Type()).Skip(hidden)
}

func (c *callable) resultID() typeid.ID {
	return typeid.FromType(c.result)
}

// invoke reads the arguments, calls the func and stores its result.
func (c *callable) invoke(cc CallContext) error {
	v, err := c.call(cc)
	if err != nil {
		return err
	}
	if c.write != nil {
		return c.write(cc, v)
	}
	return nil
}

// call reads the arguments and calls the func. It returns the first result,
// or the zero Value when the func returns nothing.
func (c *callable) call(cc CallContext) (reflect.Value, error) {
	args := make([]reflect.Value, 0, len(c.readers)+2)

	if c.receiver {
		this, err := cc.This()
		if err != nil {
			return reflect.Value{}, err
		}
		rv, err := receiverValue(this, c.fn.Type().In(0))
		if err != nil {
			return reflect.Value{}, Reject(err)
		}
		args = append(args, rv)
	}
	if c.context {
		args = append(args, reflect.ValueOf(cc.Context()))
	}
	for i, r := range c.readers {
		v, err := r(cc, i)
		if err != nil {
			return reflect.Value{}, Reject(err)
		}
		args = append(args, v)
	}

	outs := c.fn.Call(args)
	if c.failable {
		if err, _ := outs[len(outs)-1].Interface().(error); err != nil {
			return reflect.Value{}, err
		}
	}
	if c.result == nil {
		return reflect.Value{}, nil
	}
	return outs[0], nil
}

func receiverValue(this any, want reflect.Type) (reflect.Value, error) {
	v := reflect.ValueOf(this)
	if !v.IsValid() {
		return reflect.Value{}, errors.Released(errors.PhaseCall, want.String())
	}
	switch {
	case v.Type() == want:
		return v, nil
	case v.Kind() == reflect.Pointer && v.Type().Elem() == want:
		if v.IsNil() {
			return reflect.Value{}, errors.Released(errors.PhaseCall, want.String())
		}
		return v.Elem(), nil
	default:
		return reflect.Value{}, errors.TypeMismatch(errors.PhaseCall, []string{"self"}, want.String(), v.Type().String())
	}
}
