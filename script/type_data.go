package script

import (
	"github.com/wippyai/script-bridge/signature"
	"github.com/wippyai/script-bridge/typeid"
)

// InvokeFunc is the type-erased entry point of a bound callable. It reads its
// arguments from cc and writes at most one result back to it.
type InvokeFunc func(cc CallContext) error

// DestroyFunc releases a native object owned by the script side.
type DestroyFunc func(v any)

// Traits describes static properties of a registered type.
type Traits struct {
	Enum                  bool
	Abstract              bool
	TriviallyDestructible bool
	DefaultConstructible  bool
	Copyable              bool
}

// Field is a data member exposed as a script property.
// Get reads the field of cc.This() and stores it as the result.
// Set writes argument 0 into the field; nil means read-only.
type Field struct {
	Get  InvokeFunc
	Set  InvokeFunc
	Name string
	Type typeid.ID
}

// ReadOnly reports whether the field has no setter.
func (f *Field) ReadOnly() bool {
	return f.Set == nil
}

// Overload is one callable candidate. Signature excludes the receiver.
type Overload struct {
	Invoke    InvokeFunc
	Signature signature.Signature
	Result    typeid.ID
}

// Method is a named member function with one or more overloads.
// Virtual methods may be overridden by script subclasses and instances.
type Method struct {
	Name      string
	Overloads []Overload
	Virtual   bool
	Static    bool
}

// EnumValue is one named enum constant.
type EnumValue struct {
	Name  string
	Value int64
}

// TypeData is the registered descriptor of a native type.
type TypeData struct {
	Destructor   DestroyFunc
	Module       *Module
	Name         string
	Fields       []Field
	Methods      []Method
	Constructors []Overload
	EnumValues   []EnumValue
	Size         uintptr
	ID           typeid.ID
	Traits       Traits
}

// IsEnum reports whether the type is an enum.
func (td *TypeData) IsEnum() bool {
	return td.Traits.Enum || td.ID.Kind == typeid.Enum
}

// Instantiable reports whether scripts may construct the type.
func (td *TypeData) Instantiable() bool {
	return len(td.Constructors) > 0 && !td.Traits.Abstract
}

// Field returns the field with the given name.
func (td *TypeData) Field(name string) (*Field, bool) {
	for i := range td.Fields {
		if td.Fields[i].Name == name {
			return &td.Fields[i], true
		}
	}
	return nil, false
}

// Method returns the method with the given name.
func (td *TypeData) Method(name string) (*Method, bool) {
	for i := range td.Methods {
		if td.Methods[i].Name == name {
			return &td.Methods[i], true
		}
	}
	return nil, false
}

// Enum returns the value of the named enum constant.
func (td *TypeData) Enum(name string) (int64, bool) {
	for _, v := range td.EnumValues {
		if v.Name == name {
			return v.Value, true
		}
	}
	return 0, false
}

// QualifiedName returns the dotted module path plus the type name.
func (td *TypeData) QualifiedName() string {
	if td.Module == nil || td.Module.IsRoot() {
		return td.Name
	}
	return td.Module.Path() + "." + td.Name
}

// Signatures returns the signatures of the given overloads in order.
func Signatures(ovs []Overload) []signature.Signature {
	sigs := make([]signature.Signature, len(ovs))
	for i := range ovs {
		sigs[i] = ovs[i].Signature
	}
	return sigs
}
