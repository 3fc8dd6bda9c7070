package script

import (
	"github.com/wippyai/script-bridge/signature"
	"github.com/wippyai/script-bridge/typeid"
)

// FunctionData describes a free function bound into a module.
type FunctionData struct {
	Entry        any // the native Go func, kept for reflection and describe
	Invoke       InvokeFunc
	Module       *Module
	Name         string
	Signature    signature.Signature
	Overloads    []Overload
	Dependencies []Dependency
	Result       typeid.ID
}

// Candidates returns the primary overload followed by the additional ones,
// in registration order.
func (fd *FunctionData) Candidates() []Overload {
	out := make([]Overload, 0, 1+len(fd.Overloads))
	if fd.Invoke != nil {
		out = append(out, Overload{Invoke: fd.Invoke, Signature: fd.Signature, Result: fd.Result})
	}
	return append(out, fd.Overloads...)
}

// QualifiedName returns the dotted module path plus the function name.
func (fd *FunctionData) QualifiedName() string {
	if fd.Module == nil || fd.Module.IsRoot() {
		return fd.Name
	}
	return fd.Module.Path() + "." + fd.Name
}

// DependencyKind tags a Dependency.
type DependencyKind uint8

const (
	DependsOnModule DependencyKind = iota + 1
	DependsOnFunction
	DependsOnType
)

// Dependency is something that must be bound before a function.
// Exactly one of the pointers is set, matching Kind.
type Dependency struct {
	Module   *Module
	Function *FunctionData
	Type     *TypeData
	Kind     DependencyKind
}

// OnModule declares a dependency on a module.
func OnModule(m *Module) Dependency {
	return Dependency{Kind: DependsOnModule, Module: m}
}

// OnFunction declares a dependency on another function.
func OnFunction(fd *FunctionData) Dependency {
	return Dependency{Kind: DependsOnFunction, Function: fd}
}

// OnType declares a dependency on a type.
func OnType(td *TypeData) Dependency {
	return Dependency{Kind: DependsOnType, Type: td}
}

// Key returns a stable name for ordering, e.g. "type:core.math.Vec2".
func (d Dependency) Key() string {
	switch d.Kind {
	case DependsOnModule:
		if d.Module != nil {
			return "module:" + d.Module.Path()
		}
	case DependsOnFunction:
		if d.Function != nil {
			return "function:" + d.Function.QualifiedName()
		}
	case DependsOnType:
		if d.Type != nil {
			return "type:" + d.Type.QualifiedName()
		}
	}
	return ""
}
