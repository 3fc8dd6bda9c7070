// Package errors provides structured error types for the script bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: member path, Go/script type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCall, errors.KindTypeMismatch).
//		Path("core.math", "Vec2", "scale", "arg1").
//		GoType("float64").
//		ScriptType("string").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.TypeMismatch(errors.PhaseCall, path, "int32", "string")
//	err := errors.DuplicateRegistration("main.Point", "Point")
//
// Registration-time kinds (duplicate_registration, duplicate_binding, sealed)
// abort the load phase. type_mismatch is recovered by overload resolution when
// other candidates exist. call_failed always reaches the Go caller.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
