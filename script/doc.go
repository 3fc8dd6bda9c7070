// Package script is the backend-neutral core of the bridge.
//
// # Main Types
//
//   - Registry: type descriptors keyed by typeid.ID
//   - Tree, Module: the dotted module hierarchy scripts see
//   - TypeData, FunctionData: descriptors produced by reflectors
//   - Loader: runs reflectors in dependency order, then seals
//   - Binder: walks the tree and drives a Backend
//   - CallContext: script-to-native call protocol
//   - InvocationContext: native-to-script virtual call protocol
//
// # Lifecycle
//
//  1. Reflectors register types and functions (load phase)
//  2. LoadAll seals the registry and the tree
//  3. A Binder materializes everything into one backend
//  4. Scripts run; native code dispatches virtual calls with Dispatch
//
// # Overload Resolution
//
// Arguments are classified (None, Bool, Integer, Float, Text, Object) and
// scored per slot as exact, convertible or no match. The candidate with the
// most exact slots wins; ties go to the first registered.
//
// # Example
//
//	td, _ := script.Class[Point]("Point").DefaultConstructor().Fields().Build()
//	reg, tree := script.NewRegistry(), script.NewTree()
//	loader := script.NewLoader(reg, tree)
//	loader.Add(script.NewReflector("math", nil, func(r *script.Reflection) error {
//		return r.AddType("core.math", td)
//	}))
//	err := loader.LoadAll(ctx)
package script
