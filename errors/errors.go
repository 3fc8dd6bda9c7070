package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Phase indicates where in the bridge lifecycle the error occurred
type Phase string

const (
	PhaseRegister    Phase = "register"    // reflector registration
	PhaseLoad        Phase = "load"        // reflector loading and ordering
	PhaseBind        Phase = "bind"        // binder walking the module tree
	PhaseMaterialize Phase = "materialize" // foreign type construction
	PhaseCall        Phase = "call"        // script to Go
	PhaseDispatch    Phase = "dispatch"    // Go to script
	PhaseRuntime     Phase = "runtime"     // embedded runtime operations
	PhaseConfig      Phase = "config"      // options and manifests
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch          Kind = "type_mismatch"
	KindUnregisteredType      Kind = "unregistered_type"
	KindDuplicateRegistration Kind = "duplicate_registration"
	KindDuplicateBinding      Kind = "duplicate_binding"
	KindNoMatchingConstructor Kind = "no_matching_constructor"
	KindNoMatchingOverload    Kind = "no_matching_overload"
	KindNotInstantiable       Kind = "not_instantiable"
	KindCallFailed            Kind = "call_failed"
	KindMaterialization       Kind = "materialization"
	KindNotFound              Kind = "not_found"
	KindInvalidInput          Kind = "invalid_input"
	KindSealed                Kind = "sealed"
	KindDependency            Kind = "dependency"
	KindReleased              Kind = "released"
	KindOutOfBounds           Kind = "out_of_bounds"
	KindOverflow              Kind = "overflow"
	KindUnsupported           Kind = "unsupported"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value      any
	Cause      error
	Phase      Phase
	Kind       Kind
	GoType     string
	ScriptType string
	Detail     string
	Path       []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.ScriptType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.ScriptType != "" {
			b.WriteString("expected ")
			b.WriteString(e.GoType)
			b.WriteString(", got ")
			b.WriteString(e.ScriptType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("script type ")
			b.WriteString(e.ScriptType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.ScriptType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// IsKind reports whether any *Error in err's chain has the given kind,
// regardless of phase.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Cause
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the location path (module path, type, member or argument)
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// ScriptType sets the script-side type name
func (b *Builder) ScriptType(t string) *Builder {
	b.err.ScriptType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// TypeMismatch creates a type mismatch error naming the expected Go type and
// the script-side type that was actually supplied.
func TypeMismatch(phase Phase, path []string, want, got string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindTypeMismatch,
		Path:       path,
		GoType:     want,
		ScriptType: got,
	}
}

// UnregisteredType creates an error for a type with no registry entry
func UnregisteredType(phase Phase, path []string, goType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnregisteredType,
		Path:   path,
		GoType: goType,
		Detail: "type is not registered",
	}
}

// DuplicateRegistration creates an error for a type registered twice
func DuplicateRegistration(goType, name string) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindDuplicateRegistration,
		GoType: goType,
		Detail: fmt.Sprintf("type %q already registered", name),
	}
}

// DuplicateBinding creates an error for a name bound twice in one module
func DuplicateBinding(module, what, name string) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindDuplicateBinding,
		Path:   []string{module},
		Detail: fmt.Sprintf("%s %q already bound", what, name),
	}
}

// NoMatchingConstructor creates an error for a construction attempt with no
// compatible constructor.
func NoMatchingConstructor(typeName string, args []string) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindNoMatchingConstructor,
		Path:   []string{typeName},
		Detail: fmt.Sprintf("no constructor accepts (%s)", strings.Join(args, ", ")),
	}
}

// NoMatchingOverload creates an error for a call with no compatible overload
func NoMatchingOverload(path []string, args []string) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindNoMatchingOverload,
		Path:   path,
		Detail: fmt.Sprintf("no overload accepts (%s)", strings.Join(args, ", ")),
	}
}

// NotInstantiable creates an error for a type without constructors
func NotInstantiable(typeName string) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindNotInstantiable,
		Path:   []string{typeName},
		Detail: "type cannot be instantiated from script",
	}
}

// CallFailed wraps an error raised by script code during a dispatched call
func CallFailed(method string, cause error) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindCallFailed,
		Path:   []string{method},
		Detail: "script raised an error",
		Cause:  cause,
	}
}

// Materialization creates a materialization failure for one type
func Materialization(typeName string, cause error) *Error {
	return &Error{
		Phase:  PhaseMaterialize,
		Kind:   KindMaterialization,
		Path:   []string{typeName},
		Detail: "materialize foreign type",
		Cause:  cause,
	}
}

// Released creates an error for access through a released ownership handle
func Released(phase Phase, typeName string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindReleased,
		Path:   []string{typeName},
		Detail: "native object has been released",
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		GoType: targetType,
		Detail: fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:  value,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Sealed creates an error for mutation after the load phase
func Sealed(what string) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindSealed,
		Detail: fmt.Sprintf("%s is sealed after loading", what),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingDependency represents a single unresolved reflector dependency
type MissingDependency struct {
	Reflector  string // reflector declaring the dependency
	Dependency string // name that no loaded reflector provides
}

// DependencyError is returned when reflector loading fails because declared
// dependencies are missing or form a cycle.
type DependencyError struct {
	Missing []MissingDependency
	Cycle   []string
}

// NewMissingDependencyError creates an error from "reflector#dependency" keys
func NewMissingDependencyError(keys []string) *DependencyError {
	result := &DependencyError{
		Missing: make([]MissingDependency, 0, len(keys)),
	}
	for _, k := range keys {
		r, d := parseDependencyKey(k)
		result.Missing = append(result.Missing, MissingDependency{
			Reflector:  r,
			Dependency: d,
		})
	}
	return result
}

// NewCycleError creates an error for a dependency cycle in load order
func NewCycleError(cycle []string) *DependencyError {
	return &DependencyError{Cycle: cycle}
}

func parseDependencyKey(key string) (reflector, dependency string) {
	r, d, found := strings.Cut(key, "#")
	if found {
		return r, d
	}
	return key, ""
}

func (e *DependencyError) Error() string {
	if len(e.Cycle) > 0 {
		return "[load] dependency: cycle " + strings.Join(e.Cycle, " -> ")
	}
	if len(e.Missing) == 0 {
		return "[load] dependency: no dependencies specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("missing %d reflector dependenc(ies):\n", len(e.Missing)))

	byReflector := make(map[string][]string)
	var order []string
	for _, m := range e.Missing {
		if _, exists := byReflector[m.Reflector]; !exists {
			order = append(order, m.Reflector)
		}
		byReflector[m.Reflector] = append(byReflector[m.Reflector], m.Dependency)
	}

	for _, r := range order {
		deps := byReflector[r]
		sort.Strings(deps)
		b.WriteString("\n  ")
		b.WriteString(r)
		b.WriteString(":\n")
		for _, d := range deps {
			b.WriteString("    - ")
			b.WriteString(d)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *DependencyError) Is(target error) bool {
	_, ok := target.(*DependencyError)
	return ok
}
