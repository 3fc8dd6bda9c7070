package script

import (
	"strings"
	"testing"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/typeid"
)

func TestTree_RootModule(t *testing.T) {
	tree := NewTree()
	root := tree.Root()
	if !root.IsRoot() {
		t.Error("root is not root")
	}
	if root.Name() != "" || root.Path() != "" || root.Parent() != nil {
		t.Errorf("root name=%q path=%q parent=%v", root.Name(), root.Path(), root.Parent())
	}
	if tree.Module("") != root || tree.Module(" . ") != root {
		t.Error("empty path must resolve to the root")
	}
}

func TestTree_CanonicalIdentity(t *testing.T) {
	tree := NewTree()
	a := tree.Module("core.math")
	b := tree.Root().Child("core").Child("math")
	c := tree.Module("core").Child("math")
	d := tree.Root().Child("core.math")
	if a != b || b != c || c != d {
		t.Fatal("the same dotted path produced different modules")
	}
	if a.Name() != "math" || a.Path() != "core.math" {
		t.Errorf("name=%q path=%q", a.Name(), a.Path())
	}
	if a.Parent() != tree.Module("core") {
		t.Error("parent mismatch")
	}
	if a.IsRoot() {
		t.Error("child reported as root")
	}
	if got, ok := tree.Lookup("core.math"); !ok || got != a {
		t.Error("Lookup missed an existing module")
	}
	if _, ok := tree.Lookup("core.physics"); ok {
		t.Error("Lookup created a module")
	}
	if got, ok := tree.Module("core").Lookup("math"); !ok || got != a {
		t.Error("relative Lookup failed")
	}
}

func TestModule_DuplicateBinding(t *testing.T) {
	tree := NewTree()
	m := tree.Module("core.math")

	if err := m.AddType(&TypeData{Name: "Vec2", ID: typeid.Of[point]()}); err != nil {
		t.Fatalf("AddType: %v", err)
	}
	tests := []struct {
		name string
		add  func() error
	}{
		{"type twice", func() error { return m.AddType(&TypeData{Name: "Vec2", ID: typeid.Of[sprite]()}) }},
		{"function over type", func() error { return m.AddFunction(&FunctionData{Name: "Vec2"}) }},
		{"type over module", func() error { return tree.Module("core").AddType(&TypeData{Name: "math"}) }},
		{"module over type", func() error { _, err := tree.Create("core.math.Vec2"); return err }},
		{"nested module over type", func() error { _, err := tree.Create("core.math.Vec2.inner"); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.add(); !errors.IsKind(err, errors.KindDuplicateBinding) {
				t.Errorf("error = %v, want duplicate_binding", err)
			}
		})
	}

	if err := tree.Module("core.physics").AddType(&TypeData{Name: "Vec2", ID: typeid.Of[sprite]()}); err != nil {
		t.Errorf("same name in another module: %v", err)
	}
	if _, ok := tree.Lookup("core.math.Vec2"); ok {
		t.Error("a rejected module was created")
	}
}

func TestTree_CreateAfterSeal(t *testing.T) {
	tree := NewTree()
	m := tree.Module("game")
	tree.Seal()

	if got, err := tree.Create("game"); err != nil || got != m {
		t.Errorf("existing module after seal: %v, %v", got, err)
	}
	if _, err := tree.Create("game.late"); !errors.IsKind(err, errors.KindSealed) {
		t.Errorf("error = %v, want sealed", err)
	}
	defer func() {
		if recover() == nil {
			t.Error("Module did not panic on a sealed tree")
		}
	}()
	tree.Module("late")
}

func TestModule_Members(t *testing.T) {
	tree := NewTree()
	m := tree.Module("game")
	td := &TypeData{Name: "Sprite", ID: typeid.Of[sprite]()}
	fd := &FunctionData{Name: "spawn"}
	if err := m.AddType(td); err != nil {
		t.Fatal(err)
	}
	if err := m.AddFunction(fd); err != nil {
		t.Fatal(err)
	}
	if td.Module != m || fd.Module != m {
		t.Error("back-references not set")
	}
	if td.QualifiedName() != "game.Sprite" || fd.QualifiedName() != "game.spawn" {
		t.Errorf("qualified names %q %q", td.QualifiedName(), fd.QualifiedName())
	}
	if got, ok := m.Type("Sprite"); !ok || got != td {
		t.Error("Type lookup failed")
	}
	if got, ok := m.Function("spawn"); !ok || got != fd {
		t.Error("Function lookup failed")
	}
	if len(m.Types()) != 1 || len(m.Functions()) != 1 {
		t.Error("member lists wrong")
	}
}

func TestModule_InvalidMembers(t *testing.T) {
	m := NewTree().Module("x")
	if err := m.AddType(&TypeData{}); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("AddType without name = %v", err)
	}
	if err := m.AddFunction(nil); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("AddFunction(nil) = %v", err)
	}
}

func TestTree_Sealed(t *testing.T) {
	tree := NewTree()
	m := tree.Module("core")
	tree.Seal()
	if !tree.Sealed() {
		t.Fatal("Sealed = false")
	}
	if err := m.AddFunction(&FunctionData{Name: "f"}); !errors.IsKind(err, errors.KindSealed) {
		t.Errorf("error = %v, want sealed", err)
	}
}

func TestTree_WalkOrder(t *testing.T) {
	tree := NewTree()
	tree.Module("b.y")
	tree.Module("a")
	tree.Module("b.x")

	var got []string
	err := tree.Walk(func(m *Module) error {
		got = append(got, m.Path())
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := ",b,b.y,b.x,a"
	if s := strings.Join(got, ","); s != want {
		t.Errorf("walk = %q, want %q", s, want)
	}
}
