// Package bridge wires reflectors, the type registry and the script
// runtimes together.
//
// A Bridge loads reflectors into a private registry and module tree, then
// binds the tree into a Lua runtime and optionally a WebAssembly runtime:
//
//	b, err := bridge.New(ctx, bridge.DefaultOptions())
//	if err != nil {
//		return err
//	}
//	defer b.Close()
//	err = b.RunFile(ctx, "main.lua")
//
// Reflectors registered with script.RegisterReflector are available to
// every bridge; Options.Reflectors narrows the selection.
//
// # Manifest
//
// A YAML manifest configures a run:
//
//	log: debug
//	reflectors: [math, input]
//	scripts: [main.lua]
//	lua:
//	  libs: [base, table, string, math]
//	wasm:
//	  root_module: env
//	  modules:
//	    - name: ai
//	      path: ai.wasm
//
// Relative paths resolve against the manifest's directory and unknown keys
// are rejected.
package bridge
