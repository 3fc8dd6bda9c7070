package wasmbind

import (
	"reflect"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/script"
	"github.com/wippyai/script-bridge/typeid"
)

// valueKind is how a lowered value travels through core wasm.
type valueKind uint8

const (
	kindVoid valueKind = iota
	kindBool
	kindSigned
	kindUnsigned
	kindFloat
	kindString // (ptr, len) into guest memory
	kindHandle // u32 handle into the runtime's resource table
)

// lowering maps one bridged type to its WIT type and core value types.
type lowering struct {
	wit   wit.Type
	core  []api.ValueType
	kind  valueKind
	bits  int
	td    *script.TypeData // handles only
	index uint32           // registry index of td
}

func (l lowering) width() int { return len(l.core) }

var (
	i32 = []api.ValueType{api.ValueTypeI32}
	i64 = []api.ValueType{api.ValueTypeI64}
)

// primitive lowers a Go scalar kind. Enums travel as their underlying
// integer type.
func primitive(k reflect.Kind) (lowering, bool) {
	switch k {
	case reflect.Bool:
		return lowering{wit: wit.Bool{}, core: i32, kind: kindBool, bits: 1}, true
	case reflect.Int8:
		return lowering{wit: wit.S8{}, core: i32, kind: kindSigned, bits: 8}, true
	case reflect.Int16:
		return lowering{wit: wit.S16{}, core: i32, kind: kindSigned, bits: 16}, true
	case reflect.Int32:
		return lowering{wit: wit.S32{}, core: i32, kind: kindSigned, bits: 32}, true
	case reflect.Int, reflect.Int64:
		return lowering{wit: wit.S64{}, core: i64, kind: kindSigned, bits: 64}, true
	case reflect.Uint8:
		return lowering{wit: wit.U8{}, core: i32, kind: kindUnsigned, bits: 8}, true
	case reflect.Uint16:
		return lowering{wit: wit.U16{}, core: i32, kind: kindUnsigned, bits: 16}, true
	case reflect.Uint32:
		return lowering{wit: wit.U32{}, core: i32, kind: kindUnsigned, bits: 32}, true
	case reflect.Uint, reflect.Uint64, reflect.Uintptr:
		return lowering{wit: wit.U64{}, core: i64, kind: kindUnsigned, bits: 64}, true
	case reflect.Float32:
		return lowering{wit: wit.F32{}, core: []api.ValueType{api.ValueTypeF32}, kind: kindFloat, bits: 32}, true
	case reflect.Float64:
		return lowering{wit: wit.F64{}, core: []api.ValueType{api.ValueTypeF64}, kind: kindFloat, bits: 64}, true
	case reflect.String:
		return lowering{wit: wit.String{}, core: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, kind: kindString}, true
	}
	return lowering{}, false
}

// lowerer resolves type IDs against a registry. Resource type definitions
// are shared so a WIT listing names each resource once.
type lowerer struct {
	registry  *script.Registry
	resources map[*script.TypeData]*wit.TypeDef
}

func newLowerer(registry *script.Registry) *lowerer {
	return &lowerer{registry: registry, resources: make(map[*script.TypeData]*wit.TypeDef)}
}

// lower maps id. Parameters of class type are borrowed; results are owned
// when returned by value.
func (lw *lowerer) lower(id typeid.ID, param bool) (lowering, error) {
	switch id.Kind {
	case typeid.Void:
		return lowering{kind: kindVoid}, nil
	case typeid.POD, typeid.Enum:
		t := id.Type()
		if t == nil {
			return lowering{}, errors.Unsupported(errors.PhaseBind, "type "+id.String())
		}
		if l, ok := primitive(t.Kind()); ok {
			return l, nil
		}
		return lowering{}, errors.Unsupported(errors.PhaseBind, "type "+t.String())
	}

	ref := id.Referent()
	td, ok := lw.registry.Get(ref)
	if !ok {
		return lowering{}, errors.UnregisteredType(errors.PhaseBind, nil, ref.String())
	}
	if td.IsEnum() {
		return lw.lower(ref, param)
	}
	idx, _ := lw.registry.Index(ref)

	var h wit.TypeDefKind
	if param || id.Kind != typeid.Class {
		h = &wit.Borrow{Type: lw.resource(td)}
	} else {
		h = &wit.Own{Type: lw.resource(td)}
	}
	return lowering{
		wit:   &wit.TypeDef{Kind: h},
		core:  i32,
		kind:  kindHandle,
		bits:  32,
		td:    td,
		index: idx,
	}, nil
}

func (lw *lowerer) resource(td *script.TypeData) *wit.TypeDef {
	if r, ok := lw.resources[td]; ok {
		return r
	}
	name := resourceName(td)
	r := &wit.TypeDef{Name: &name, Kind: &wit.Resource{}}
	lw.resources[td] = r
	return r
}

// TypeString renders t in WIT syntax.
func TypeString(t wit.Type) string {
	switch v := t.(type) {
	case nil:
		return "_"
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S8:
		return "s8"
	case wit.U16:
		return "u16"
	case wit.S16:
		return "s16"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		switch k := v.Kind.(type) {
		case *wit.Own:
			return "own<" + TypeString(k.Type) + ">"
		case *wit.Borrow:
			return "borrow<" + TypeString(k.Type) + ">"
		}
		if v.Name != nil {
			return *v.Name
		}
		return "typedef"
	default:
		return "unknown"
	}
}
