package script

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"go.uber.org/multierr"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/typeid"
)

type recordingBackend struct {
	failTypes map[string]bool
	failMods  map[string]bool
	events    []string
	finished  bool
}

func (b *recordingBackend) BindModule(_ context.Context, m *Module) error {
	if b.failMods[m.Path()] {
		return stderrors.New("module refused")
	}
	b.events = append(b.events, "module:"+m.Path())
	return nil
}

func (b *recordingBackend) BindType(_ context.Context, td *TypeData) error {
	if b.failTypes[td.Name] {
		return stderrors.New("duplicate member names")
	}
	b.events = append(b.events, "type:"+td.QualifiedName())
	return nil
}

func (b *recordingBackend) BindFunction(_ context.Context, fd *FunctionData) error {
	b.events = append(b.events, "function:"+fd.QualifiedName())
	return nil
}

func (b *recordingBackend) Finish(context.Context) error {
	b.finished = true
	return nil
}

func TestBinder_Order(t *testing.T) {
	tree := NewTree()
	math := tree.Module("core.math")
	_ = math.AddType(&TypeData{Name: "Vec2", ID: typeid.Of[point]()})

	game := tree.Module("game")
	spawn := &FunctionData{Name: "spawn"}
	setup := &FunctionData{Name: "setup", Dependencies: []Dependency{OnFunction(spawn)}}
	_ = game.AddFunction(setup)
	_ = game.AddFunction(spawn)

	be := &recordingBackend{}
	if err := NewBinder(be).Bind(context.Background(), tree); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	want := strings.Join([]string{
		"module:",
		"module:core",
		"module:core.math",
		"type:core.math.Vec2",
		"module:game",
		"function:game.spawn",
		"function:game.setup",
	}, "\n")
	if got := strings.Join(be.events, "\n"); got != want {
		t.Errorf("events:\n%s\nwant:\n%s", got, want)
	}
	if !be.finished {
		t.Error("Finish not called")
	}
}

func TestBinder_CrossModuleDependencies(t *testing.T) {
	tree := NewTree()
	a := tree.Module("a")
	z := tree.Module("z")
	td := &TypeData{Name: "Sprite", ID: typeid.Of[sprite]()}
	_ = z.AddType(td)
	fd := &FunctionData{Name: "draw", Dependencies: []Dependency{OnType(td), OnModule(z)}}
	_ = a.AddFunction(fd)

	be := &recordingBackend{}
	if err := NewBinder(be).Bind(context.Background(), tree); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	got := strings.Join(be.events, ",")
	if !strings.Contains(got, "module:z,type:z.Sprite,function:a.draw") {
		t.Errorf("dependencies not bound first: %s", got)
	}
	if strings.Count(got, "type:z.Sprite") != 1 {
		t.Errorf("type bound more than once: %s", got)
	}
}

func TestBinder_CollectsTypeFailures(t *testing.T) {
	tree := NewTree()
	m := tree.Module("m")
	_ = m.AddType(&TypeData{Name: "Bad", ID: typeid.Of[point]()})
	_ = m.AddType(&TypeData{Name: "Good", ID: typeid.Of[sprite]()})
	_ = tree.Module("n").AddType(&TypeData{Name: "Worse", ID: typeid.Of[box]()})

	be := &recordingBackend{failTypes: map[string]bool{"Bad": true, "Worse": true}}
	err := NewBinder(be).Bind(context.Background(), tree)
	if err == nil {
		t.Fatal("expected an error")
	}
	errs := multierr.Errors(err)
	if len(errs) != 2 {
		t.Fatalf("got %d errors, want 2: %v", len(errs), err)
	}
	for _, e := range errs {
		if !errors.IsKind(e, errors.KindMaterialization) {
			t.Errorf("error %v is not a materialization error", e)
		}
	}
	if !strings.Contains(strings.Join(be.events, ","), "type:m.Good") {
		t.Error("binding stopped at the first failing type")
	}
}

func TestBinder_FailedTypeDependency(t *testing.T) {
	tree := NewTree()
	m := tree.Module("m")
	td := &TypeData{Name: "Bad", ID: typeid.Of[point]()}
	_ = m.AddType(td)
	_ = m.AddFunction(&FunctionData{Name: "use", Dependencies: []Dependency{OnType(td)}})

	be := &recordingBackend{failTypes: map[string]bool{"Bad": true}}
	err := NewBinder(be).Bind(context.Background(), tree)
	errs := multierr.Errors(err)
	if len(errs) != 2 {
		t.Fatalf("got %d errors, want 2: %v", len(errs), err)
	}
	if !errors.IsKind(errs[1], errors.KindDependency) {
		t.Errorf("second error = %v, want dependency", errs[1])
	}
	if strings.Contains(strings.Join(be.events, ","), "function:m.use") {
		t.Error("function bound despite a failed dependency")
	}
}

func TestBinder_ModuleFailureAborts(t *testing.T) {
	tree := NewTree()
	tree.Module("a")
	tree.Module("b")

	be := &recordingBackend{failMods: map[string]bool{"a": true}}
	err := NewBinder(be).Bind(context.Background(), tree)
	if err == nil {
		t.Fatal("expected an error")
	}
	if strings.Contains(strings.Join(be.events, ","), "module:b") {
		t.Error("walk continued after a module failure")
	}
	if be.finished {
		t.Error("Finish called after an aborted walk")
	}
}
