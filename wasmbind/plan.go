package wasmbind

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/script"
)

type funcKind uint8

const (
	callFunction funcKind = iota
	callConstructor
	callMethod
	callStatic
	callGetter
	callSetter
	callDrop
	callEnum
)

// HostModule is the set of host functions exported under one wasm import
// module name.
type HostModule struct {
	Name  string
	Funcs []*HostFunc

	byName map[string]*HostFunc
	frozen bool
}

// Func returns the function exported as name.
func (hm *HostModule) Func(name string) (*HostFunc, bool) {
	hf, ok := hm.byName[name]
	return hf, ok
}

// Param is one named WIT parameter.
type Param struct {
	Name string
	Type wit.Type
}

// HostFunc is one exported host function: a single overload of a bridged
// function, constructor, method or field accessor.
type HostFunc struct {
	Name    string
	Params  []Param
	Result  wit.Type // nil when the function returns nothing
	Virtual bool

	kind   funcKind
	td     *script.TypeData
	params []lowering
	result lowering
	invoke script.InvokeFunc
	value  int64
	path   []string
}

func (hf *HostFunc) addParam(name string, l lowering) {
	hf.Params = append(hf.Params, Param{Name: name, Type: l.wit})
	hf.params = append(hf.params, l)
}

func (hf *HostFunc) setResult(l lowering) {
	hf.result = l
	if l.kind != kindVoid {
		hf.Result = l.wit
	}
}

// method reports whether the first parameter is the receiver handle.
func (hf *HostFunc) method() bool {
	switch hf.kind {
	case callMethod, callGetter, callSetter, callDrop:
		return true
	}
	return false
}

// CoreParams returns the flattened core wasm parameter types.
func (hf *HostFunc) CoreParams() []api.ValueType {
	var out []api.ValueType
	for _, l := range hf.params {
		out = append(out, l.core...)
	}
	return out
}

// CoreResults returns the flattened core wasm result types.
func (hf *HostFunc) CoreResults() []api.ValueType {
	return append([]api.ValueType(nil), hf.result.core...)
}

// Signature renders hf in WIT syntax.
func (hf *HostFunc) Signature() string {
	s := "func("
	for i, p := range hf.Params {
		if i > 0 {
			s += ", "
		}
		s += p.Name + ": " + TypeString(p.Type)
	}
	s += ")"
	if hf.Result != nil {
		s += " -> " + TypeString(hf.Result)
	}
	return s
}

func argName(i int) string {
	return fmt.Sprintf("arg%d", i+1)
}

// planner lowers a module tree into host modules. It implements
// script.Backend so the shared binder drives it.
type planner struct {
	lw        *lowerer
	root      string
	modules   map[string]*HostModule
	order     []*HostModule
	types     map[*script.TypeData]bool
	functions map[*script.FunctionData]bool
}

var _ script.Backend = (*planner)(nil)

func newPlanner(registry *script.Registry, root string) *planner {
	return &planner{
		lw:        newLowerer(registry),
		root:      root,
		modules:   make(map[string]*HostModule),
		types:     make(map[*script.TypeData]bool),
		functions: make(map[*script.FunctionData]bool),
	}
}

func (p *planner) moduleName(m *script.Module) string {
	if m == nil || m.IsRoot() {
		return p.root
	}
	return m.Path()
}

func (p *planner) module(m *script.Module) *HostModule {
	name := p.moduleName(m)
	if hm, ok := p.modules[name]; ok {
		return hm
	}
	hm := &HostModule{Name: name, byName: make(map[string]*HostFunc)}
	p.modules[name] = hm
	p.order = append(p.order, hm)
	return hm
}

// add exports funcs in m all-or-nothing.
func (p *planner) add(m *script.Module, funcs []*HostFunc) error {
	hm := p.module(m)
	if hm.frozen {
		return errors.Sealed("host module " + hm.Name)
	}
	seen := make(map[string]bool, len(funcs))
	for _, hf := range funcs {
		if _, dup := hm.byName[hf.Name]; dup || seen[hf.Name] {
			return errors.DuplicateBinding(hm.Name, "export", hf.Name)
		}
		seen[hf.Name] = true
	}
	for _, hf := range funcs {
		hm.byName[hf.Name] = hf
		hm.Funcs = append(hm.Funcs, hf)
	}
	return nil
}

func (p *planner) BindModule(_ context.Context, m *script.Module) error {
	p.module(m)
	return nil
}

// BindType exports the constructors, methods, field accessors and drop of
// a class, or one static getter per constant of an enum.
func (p *planner) BindType(_ context.Context, td *script.TypeData) error {
	if p.types[td] {
		return nil
	}
	funcs, err := p.typeFuncs(td)
	if err != nil {
		return errors.Materialization(td.QualifiedName(), err)
	}
	if err := p.add(td.Module, funcs); err != nil {
		return errors.Materialization(td.QualifiedName(), err)
	}
	p.types[td] = true
	Logger().Debug("planned type",
		zap.String("module", p.moduleName(td.Module)),
		zap.String("type", td.QualifiedName()),
		zap.Int("exports", len(funcs)))
	return nil
}

func (p *planner) typeFuncs(td *script.TypeData) ([]*HostFunc, error) {
	if td.IsEnum() {
		return p.enumFuncs(td)
	}

	var funcs []*HostFunc
	self, err := p.lw.lower(td.ID, true)
	if err != nil {
		return nil, err
	}
	own, err := p.lw.lower(td.ID, false)
	if err != nil {
		return nil, err
	}

	if !td.Traits.Abstract {
		for i := range td.Constructors {
			hf, err := p.overload(constructorName(td, i), callConstructor, td, &td.Constructors[i], self)
			if err != nil {
				return nil, err
			}
			hf.setResult(own)
			funcs = append(funcs, hf)
		}
	}

	for i := range td.Fields {
		f := &td.Fields[i]
		path := []string{td.QualifiedName(), f.Name}
		// struct fields are returned as views
		val, err := p.lw.lower(f.Type, true)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}

		get := &HostFunc{Name: getterName(td, f), kind: callGetter, td: td, invoke: f.Get, path: path}
		get.addParam("self", self)
		get.setResult(val)
		funcs = append(funcs, get)

		if f.ReadOnly() {
			continue
		}
		set := &HostFunc{Name: setterName(td, f), kind: callSetter, td: td, invoke: f.Set, path: path}
		set.addParam("self", self)
		set.addParam("value", val)
		funcs = append(funcs, set)
	}

	for i := range td.Methods {
		m := &td.Methods[i]
		if len(m.Overloads) == 0 {
			return nil, fmt.Errorf("method %s has no overloads", m.Name)
		}
		kind := callMethod
		if m.Static {
			kind = callStatic
		}
		for j := range m.Overloads {
			hf, err := p.overload(methodName(td, m, j), kind, td, &m.Overloads[j], self)
			if err != nil {
				return nil, fmt.Errorf("method %s: %w", m.Name, err)
			}
			hf.Virtual = m.Virtual
			hf.path = []string{td.QualifiedName(), m.Name}
			funcs = append(funcs, hf)
		}
	}

	drop := &HostFunc{Name: dropName(td), kind: callDrop, td: td, path: []string{td.QualifiedName()}}
	drop.addParam("self", own)
	funcs = append(funcs, drop)
	return funcs, nil
}

func (p *planner) enumFuncs(td *script.TypeData) ([]*HostFunc, error) {
	val, err := p.lw.lower(td.ID, false)
	if err != nil {
		return nil, err
	}
	funcs := make([]*HostFunc, 0, len(td.EnumValues))
	for _, v := range td.EnumValues {
		hf := &HostFunc{Name: enumName(td, v), kind: callEnum, td: td, value: v.Value}
		hf.setResult(val)
		funcs = append(funcs, hf)
	}
	return funcs, nil
}

// overload lowers one overload. Methods take the receiver handle first.
func (p *planner) overload(name string, kind funcKind, td *script.TypeData, ov *script.Overload, self lowering) (*HostFunc, error) {
	if ov.Invoke == nil {
		return nil, errors.InvalidInput(errors.PhaseBind, name+" has no implementation")
	}
	hf := &HostFunc{Name: name, kind: kind, td: td, invoke: ov.Invoke, path: []string{name}}
	if kind == callMethod {
		hf.addParam("self", self)
	}
	for i := 0; i < ov.Signature.Len(); i++ {
		slot := ov.Signature.At(i)
		if !slot.Bound {
			return nil, errors.Unsupported(errors.PhaseBind, "placeholder parameter in "+name)
		}
		l, err := p.lw.lower(slot.ID, true)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", name, argName(i), err)
		}
		if l.kind == kindVoid {
			return nil, errors.Unsupported(errors.PhaseBind, "void parameter in "+name)
		}
		hf.addParam(argName(i), l)
	}
	res, err := p.lw.lower(ov.Result, false)
	if err != nil {
		return nil, fmt.Errorf("%s result: %w", name, err)
	}
	hf.setResult(res)
	return hf, nil
}

// BindFunction exports every overload of fd.
func (p *planner) BindFunction(_ context.Context, fd *script.FunctionData) error {
	if p.functions[fd] {
		return nil
	}
	cands := fd.Candidates()
	if len(cands) == 0 {
		return errors.InvalidInput(errors.PhaseBind, "function "+fd.QualifiedName()+" has no overloads")
	}
	funcs := make([]*HostFunc, 0, len(cands))
	for i := range cands {
		hf, err := p.overload(functionName(fd, i), callFunction, nil, &cands[i], lowering{})
		if err != nil {
			return err
		}
		hf.path = []string{fd.QualifiedName()}
		funcs = append(funcs, hf)
	}
	if err := p.add(fd.Module, funcs); err != nil {
		return err
	}
	p.functions[fd] = true
	return nil
}

// Plan lowers every module, type and function of tree into host module
// descriptions without instantiating anything. Types or functions that
// cannot be lowered are left out and reported in the combined error.
func Plan(ctx context.Context, registry *script.Registry, tree *script.Tree, rootModule string) ([]*HostModule, error) {
	if registry == nil || tree == nil {
		return nil, errors.InvalidInput(errors.PhaseConfig, "registry and tree are required")
	}
	if rootModule == "" {
		rootModule = DefaultOptions().RootModule
	}
	p := newPlanner(registry, rootModule)
	err := script.NewBinder(p).Bind(ctx, tree)
	return p.order, err
}
