package script

import (
	"strings"
	"sync"

	"github.com/wippyai/script-bridge/errors"
)

// Tree owns a module hierarchy and canonicalizes module identity: one dotted
// path always maps to the same *Module.
type Tree struct {
	root   *Module
	index  map[string]*Module
	mu     sync.Mutex
	sealed bool
}

// NewTree creates a tree holding only the root module.
func NewTree() *Tree {
	t := &Tree{index: make(map[string]*Module)}
	t.root = &Module{tree: t, members: make(map[string]string)}
	t.index[""] = t.root
	return t
}

// Root returns the root module
func (t *Tree) Root() *Module {
	return t.root
}

// Create returns the module at a dotted path, creating it and any missing
// ancestors. The empty path is the root. Creating a module whose name is
// already bound to a type or function of its parent fails with
// DuplicateBinding; creating one in a sealed tree fails with Sealed.
func (t *Tree) Create(path string) (*Module, error) {
	path = normalizePath(path)

	t.mu.Lock()
	defer t.mu.Unlock()

	if m, ok := t.index[path]; ok {
		return m, nil
	}
	if t.sealed {
		return nil, errors.Sealed("module tree")
	}

	// validate the whole path before creating anything
	current := t.root
	segs := strings.Split(path, ".")
	for i, seg := range segs {
		m, ok := t.index[strings.Join(segs[:i+1], ".")]
		if !ok {
			if prev, clash := current.members[seg]; clash {
				return nil, errors.DuplicateBinding(current.displayPath(), prev, seg)
			}
			break
		}
		current = m
	}

	current = t.root
	var prefix string
	for _, seg := range segs {
		if prefix == "" {
			prefix = seg
		} else {
			prefix += "." + seg
		}
		if m, ok := t.index[prefix]; ok {
			current = m
			continue
		}
		child := &Module{
			tree:    t,
			name:    seg,
			path:    prefix,
			parent:  current,
			members: make(map[string]string),
		}
		current.children = append(current.children, child)
		t.index[prefix] = child
		current = child
	}
	return current, nil
}

// Module is Create for paths known to be valid. It panics when the path
// cannot be created.
func (t *Tree) Module(path string) *Module {
	m, err := t.Create(path)
	if err != nil {
		panic(err)
	}
	return m
}

// Lookup returns the module at a dotted path without creating it.
func (t *Tree) Lookup(path string) (*Module, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.index[normalizePath(path)]
	return m, ok
}

// Seal makes every module read-only.
func (t *Tree) Seal() {
	t.mu.Lock()
	t.sealed = true
	t.mu.Unlock()
}

// Sealed reports whether Seal has been called.
func (t *Tree) Sealed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sealed
}

// Walk visits every module depth-first, parents before children, children
// in creation order. It stops at the first error.
func (t *Tree) Walk(fn func(*Module) error) error {
	return t.root.Walk(fn)
}

func normalizePath(path string) string {
	return strings.Trim(strings.TrimSpace(path), ".")
}

// Module is a named namespace of types, functions and child modules.
type Module struct {
	tree      *Tree
	parent    *Module
	members   map[string]string // name -> "type" | "function"
	name      string
	path      string
	children  []*Module
	types     []*TypeData
	functions []*FunctionData
}

// Name returns the module's own name; empty for the root.
func (m *Module) Name() string {
	return m.name
}

// Path returns the dotted path from the root.
func (m *Module) Path() string {
	return m.path
}

// Parent returns the parent module, nil for the root.
func (m *Module) Parent() *Module {
	return m.parent
}

// IsRoot reports whether m is the root module.
func (m *Module) IsRoot() bool {
	return m.name == "" && m.parent == nil
}

// Tree returns the owning tree.
func (m *Module) Tree() *Tree {
	return m.tree
}

// Child returns the child at a relative dotted path, creating it if needed.
// Repeated calls from anywhere in the tree return the same module. It
// panics where Tree.Module does; use Tree.Create to handle the error.
func (m *Module) Child(name string) *Module {
	name = normalizePath(name)
	if name == "" {
		return m
	}
	if m.path == "" {
		return m.tree.Module(name)
	}
	return m.tree.Module(m.path + "." + name)
}

// Lookup returns the module at a relative dotted path without creating it.
func (m *Module) Lookup(name string) (*Module, bool) {
	name = normalizePath(name)
	if name == "" {
		return m, true
	}
	if m.path == "" {
		return m.tree.Lookup(name)
	}
	return m.tree.Lookup(m.path + "." + name)
}

// Children returns the child modules in creation order.
func (m *Module) Children() []*Module {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()
	return append([]*Module(nil), m.children...)
}

// Types returns the module's types in registration order.
func (m *Module) Types() []*TypeData {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()
	return append([]*TypeData(nil), m.types...)
}

// Functions returns the module's functions in registration order.
func (m *Module) Functions() []*FunctionData {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()
	return append([]*FunctionData(nil), m.functions...)
}

// Type returns the type bound under name.
func (m *Module) Type(name string) (*TypeData, bool) {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()
	for _, td := range m.types {
		if td.Name == name {
			return td, true
		}
	}
	return nil, false
}

// Function returns the function bound under name.
func (m *Module) Function(name string) (*FunctionData, bool) {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()
	for _, fd := range m.functions {
		if fd.Name == name {
			return fd, true
		}
	}
	return nil, false
}

// AddType binds td into m under td.Name. Types and functions share one
// namespace per module.
func (m *Module) AddType(td *TypeData) error {
	if td == nil || td.Name == "" {
		return errors.InvalidInput(errors.PhaseRegister, "type requires a name")
	}
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()

	if err := m.claim(td.Name, "type"); err != nil {
		return err
	}
	td.Module = m
	m.types = append(m.types, td)
	return nil
}

// AddFunction binds fd into m under fd.Name.
func (m *Module) AddFunction(fd *FunctionData) error {
	if fd == nil || fd.Name == "" {
		return errors.InvalidInput(errors.PhaseRegister, "function requires a name")
	}
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()

	if err := m.claim(fd.Name, "function"); err != nil {
		return err
	}
	fd.Module = m
	m.functions = append(m.functions, fd)
	return nil
}

// claim reserves name. Caller holds the tree lock.
func (m *Module) claim(name, what string) error {
	if m.tree.sealed {
		return errors.Sealed("module tree")
	}
	if prev, ok := m.members[name]; ok {
		return errors.DuplicateBinding(m.displayPath(), prev, name)
	}
	for _, c := range m.children {
		if c.name == name {
			return errors.DuplicateBinding(m.displayPath(), "module", name)
		}
	}
	m.members[name] = what
	return nil
}

func (m *Module) displayPath() string {
	if m.path == "" {
		return "<root>"
	}
	return m.path
}

// Walk visits m and its descendants depth-first, parents first.
func (m *Module) Walk(fn func(*Module) error) error {
	if err := fn(m); err != nil {
		return err
	}
	for _, c := range m.Children() {
		if err := c.Walk(fn); err != nil {
			return err
		}
	}
	return nil
}
