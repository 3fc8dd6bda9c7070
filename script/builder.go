package script

import (
	"fmt"
	"reflect"

	"go.uber.org/multierr"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/typeid"
)

// ClassBuilder describes a Go struct type T as a script class. Instances
// live on the script side as *T.
//
//	td, err := script.Class[Point]("Point").
//		DefaultConstructor().
//		Constructor(NewPoint).
//		Fields().
//		Method("length", (*Point).Length).
//		Build()
type ClassBuilder[T any] struct {
	td   *TypeData
	typ  reflect.Type
	errs error
}

// Class starts a class description for T, which must be a struct.
func Class[T any](name string) *ClassBuilder[T] {
	t := reflect.TypeFor[T]()
	b := &ClassBuilder[T]{
		typ: t,
		td: &TypeData{
			Name: name,
			ID:   typeid.FromType(t),
			Size: t.Size(),
			Traits: Traits{
				TriviallyDestructible: true,
				Copyable:              true,
			},
		},
	}
	if t.Kind() != reflect.Struct {
		b.fail(fmt.Errorf("class %s: %s is not a struct", name, t))
	}
	return b
}

func (b *ClassBuilder[T]) fail(err error) {
	b.errs = multierr.Append(b.errs, err)
}

// Const registers the read-only view of T. Fields get no setters.
func (b *ClassBuilder[T]) Const() *ClassBuilder[T] {
	b.td.ID = b.td.ID.Const()
	for i := range b.td.Fields {
		b.td.Fields[i].Set = nil
	}
	return b
}

// Abstract marks the class as not constructible from scripts.
func (b *ClassBuilder[T]) Abstract() *ClassBuilder[T] {
	b.td.Traits.Abstract = true
	return b
}

// Constructor adds a constructor overload. fn returns T, *T, or either
// followed by an error. The constructed object is owned by the script side.
func (b *ClassBuilder[T]) Constructor(fn any) *ClassBuilder[T] {
	c, err := prepare(fn, nil)
	if err != nil {
		b.fail(fmt.Errorf("class %s constructor: %w", b.td.Name, err))
		return b
	}
	if c.result != b.typ && c.result != reflect.PointerTo(b.typ) {
		b.fail(fmt.Errorf("class %s constructor must return %s or *%s, not %v", b.td.Name, b.typ, b.typ, c.result))
		return b
	}

	id := b.td.ID
	byValue := c.result == b.typ
	invoke := func(cc CallContext) error {
		v, err := c.call(cc)
		if err != nil {
			return err
		}
		if byValue {
			p := reflect.New(b.typ)
			p.Elem().Set(v)
			v = p
		}
		if v.IsNil() {
			return errors.New(errors.PhaseCall, errors.KindInvalidInput).
				Path(b.td.Name).
				Detail("constructor returned nil").
				Build()
		}
		return cc.StoreObject(id, v.Interface())
	}

	b.td.Constructors = append(b.td.Constructors, Overload{
		Invoke:    invoke,
		Signature: c.signature(),
		Result:    id,
	})
	return b
}

// DefaultConstructor adds the zero-argument constructor returning new(T).
func (b *ClassBuilder[T]) DefaultConstructor() *ClassBuilder[T] {
	b.td.Traits.DefaultConstructible = true
	return b.Constructor(func() *T { return new(T) })
}

// Destructor runs fn when the script side collects an owned instance.
func (b *ClassBuilder[T]) Destructor(fn func(*T)) *ClassBuilder[T] {
	b.td.Traits.TriviallyDestructible = false
	b.td.Destructor = func(v any) {
		if p, ok := v.(*T); ok && p != nil {
			fn(p)
		}
	}
	return b
}

// Field exposes the Go struct field goName under name.
func (b *ClassBuilder[T]) Field(name, goName string) *ClassBuilder[T] {
	sf, ok := b.typ.FieldByName(goName)
	if !ok || !sf.IsExported() {
		b.fail(fmt.Errorf("class %s: no exported field %s", b.td.Name, goName))
		return b
	}
	b.addField(name, sf)
	return b
}

// Fields exposes every exported field of T that has a supported type, named
// in snake_case. A `script:"name"` tag renames a field; `script:"-"` hides it.
func (b *ClassBuilder[T]) Fields() *ClassBuilder[T] {
	if b.typ.Kind() != reflect.Struct {
		return b
	}
	for i := 0; i < b.typ.NumField(); i++ {
		sf := b.typ.Field(i)
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		name := SnakeCase(sf.Name)
		if tag, ok := sf.Tag.Lookup("script"); ok {
			if tag == "-" {
				continue
			}
			name = tag
		}
		if _, err := readerFor(sf.Type); err != nil {
			continue
		}
		b.addField(name, sf)
	}
	return b
}

func (b *ClassBuilder[T]) addField(name string, sf reflect.StructField) {
	ft := sf.Type
	index := sf.Index

	read, err := readerFor(ft)
	if err != nil {
		b.fail(fmt.Errorf("class %s field %s: %w", b.td.Name, name, err))
		return
	}

	// struct-valued fields are handed out as views into the parent. A const
	// parent hands out the const view of the field type, or an owned copy
	// when that view is not registered.
	var write resultWriter
	if ft.Kind() == reflect.Struct {
		id := typeid.FromType(ft)
		td := b.td
		write = func(cc CallContext, v reflect.Value) error {
			if !td.ID.IsConst {
				return cc.StoreReference(id, v.Addr().Interface())
			}
			err := cc.StoreReference(id.Const(), v.Addr().Interface())
			if !errors.IsKind(err, errors.KindUnregisteredType) {
				return err
			}
			cp := reflect.New(ft)
			cp.Elem().Set(v)
			return cc.StoreObject(id, cp.Interface())
		}
	} else if write, err = writerFor(ft); err != nil {
		b.fail(fmt.Errorf("class %s field %s: %w", b.td.Name, name, err))
		return
	}

	self := func(cc CallContext) (reflect.Value, error) {
		this, err := cc.This()
		if err != nil {
			return reflect.Value{}, err
		}
		p, ok := this.(*T)
		if !ok || p == nil {
			return reflect.Value{}, errors.Released(errors.PhaseCall, b.td.Name)
		}
		return reflect.ValueOf(p).Elem().FieldByIndex(index), nil
	}

	f := Field{
		Name: name,
		Type: typeid.FromType(ft),
		Get: func(cc CallContext) error {
			fv, err := self(cc)
			if err != nil {
				return err
			}
			return write(cc, fv)
		},
	}
	if !b.td.ID.IsConst {
		f.Set = func(cc CallContext) error {
			fv, err := self(cc)
			if err != nil {
				return err
			}
			v, err := read(cc, 0)
			if err != nil {
				return err
			}
			fv.Set(v)
			return nil
		}
	}
	b.td.Fields = append(b.td.Fields, f)
}

// Method adds an overload of the method name. fn takes T or *T first,
// typically a method expression such as (*T).Move.
func (b *ClassBuilder[T]) Method(name string, fn any) *ClassBuilder[T] {
	return b.method(name, fn, false, false)
}

// Virtual adds an overridable method. Script subclasses and instances may
// replace it; native callers reach the override through Dispatch.
func (b *ClassBuilder[T]) Virtual(name string, fn any) *ClassBuilder[T] {
	return b.method(name, fn, true, false)
}

// Static adds a class-level function that takes no receiver.
func (b *ClassBuilder[T]) Static(name string, fn any) *ClassBuilder[T] {
	return b.method(name, fn, false, true)
}

func (b *ClassBuilder[T]) method(name string, fn any, virtual, static bool) *ClassBuilder[T] {
	var recv reflect.Type
	if !static {
		recv = b.typ
	}
	c, err := prepare(fn, recv)
	if err != nil {
		b.fail(fmt.Errorf("class %s method %s: %w", b.td.Name, name, err))
		return b
	}
	ov := Overload{
		Invoke:    c.invoke,
		Signature: c.signature(),
		Result:    c.resultID(),
	}

	for i := range b.td.Methods {
		m := &b.td.Methods[i]
		if m.Name != name {
			continue
		}
		if m.Static != static {
			b.fail(fmt.Errorf("class %s method %s: mixes static and instance overloads", b.td.Name, name))
			return b
		}
		m.Overloads = append(m.Overloads, ov)
		m.Virtual = m.Virtual || virtual
		return b
	}
	b.td.Methods = append(b.td.Methods, Method{
		Name:      name,
		Overloads: []Overload{ov},
		Virtual:   virtual,
		Static:    static,
	})
	return b
}

// Build returns the descriptor, or every error recorded while building.
func (b *ClassBuilder[T]) Build() (*TypeData, error) {
	if b.errs != nil {
		return nil, errors.Wrap(errors.PhaseRegister, errors.KindInvalidInput, b.errs, "class "+b.td.Name)
	}
	if len(b.td.Constructors) == 0 {
		b.td.Traits.Copyable = false
	}
	return b.td, nil
}

// EnumBuilder describes a named integer type as a script enum.
type EnumBuilder[T any] struct {
	td   *TypeData
	errs error
}

// Enum starts an enum description. T must be a named integer type.
func Enum[T any](name string) *EnumBuilder[T] {
	t := reflect.TypeFor[T]()
	b := &EnumBuilder[T]{td: &TypeData{
		Name:   name,
		ID:     typeid.FromType(t),
		Size:   t.Size(),
		Traits: Traits{Enum: true, TriviallyDestructible: true, Copyable: true},
	}}
	if b.td.ID.Kind != typeid.Enum {
		b.errs = fmt.Errorf("enum %s: %s is not a named integer type", name, t)
	}
	return b
}

// Value adds a named constant.
func (b *EnumBuilder[T]) Value(name string, v T) *EnumBuilder[T] {
	rv := reflect.ValueOf(v)
	var n int64
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n = rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n = int64(rv.Uint())
	default:
		return b
	}
	if _, dup := b.td.Enum(name); dup {
		b.errs = multierr.Append(b.errs, fmt.Errorf("enum %s: duplicate value %s", b.td.Name, name))
		return b
	}
	b.td.EnumValues = append(b.td.EnumValues, EnumValue{Name: name, Value: n})
	return b
}

// Build returns the descriptor.
func (b *EnumBuilder[T]) Build() (*TypeData, error) {
	if b.errs != nil {
		return nil, errors.Wrap(errors.PhaseRegister, errors.KindInvalidInput, b.errs, "enum "+b.td.Name)
	}
	return b.td, nil
}

// Func describes a free function. A leading context.Context parameter is
// filled from the call chain and is not visible to scripts.
func Func(name string, fn any, deps ...Dependency) (*FunctionData, error) {
	c, err := prepare(fn, nil)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRegister, errors.KindInvalidInput, err, "function "+name)
	}
	return &FunctionData{
		Entry:        fn,
		Invoke:       c.invoke,
		Name:         name,
		Signature:    c.signature(),
		Result:       c.resultID(),
		Dependencies: deps,
	}, nil
}

// Overloaded describes a free function with several candidates. The first
// func is the primary entry; calls pick the best match in order.
func Overloaded(name string, fns ...any) (*FunctionData, error) {
	if len(fns) == 0 {
		return nil, errors.InvalidInput(errors.PhaseRegister, "function "+name+" has no overloads")
	}
	fd, err := Func(name, fns[0])
	if err != nil {
		return nil, err
	}
	for _, fn := range fns[1:] {
		c, err := prepare(fn, nil)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseRegister, errors.KindInvalidInput, err, "function "+name)
		}
		fd.Overloads = append(fd.Overloads, Overload{
			Invoke:    c.invoke,
			Signature: c.signature(),
			Result:    c.resultID(),
		})
	}
	return fd, nil
}
