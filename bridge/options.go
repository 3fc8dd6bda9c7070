package bridge

import (
	"github.com/wippyai/script-bridge/luabind"
	"github.com/wippyai/script-bridge/wasmbind"
)

// Options configures a Bridge.
type Options struct {
	// Lua configures the Lua runtime every bridge carries.
	Lua luabind.Options

	// Wasm enables the WebAssembly backend when non-nil.
	Wasm *wasmbind.Options

	// Reflectors selects registered reflectors by name. Dependencies of a
	// selected reflector are loaded too. Empty selects all of them.
	Reflectors []string

	// Global loads into the process-wide registry and tree of
	// script.Global. The first such bridge loads them; later ones bind the
	// sealed result and ignore Reflectors.
	Global bool
}

// DefaultOptions returns a Lua-only configuration loading every
// registered reflector.
func DefaultOptions() Options {
	return Options{
		Lua: luabind.DefaultOptions(),
	}
}

// WithWasm returns a copy of o with the WebAssembly backend enabled.
func (o Options) WithWasm(w wasmbind.Options) Options {
	o.Wasm = &w
	return o
}

func (o Options) rootModule() string {
	if o.Wasm != nil && o.Wasm.RootModule != "" {
		return o.Wasm.RootModule
	}
	return wasmbind.DefaultOptions().RootModule
}
