// Package wasmbind exposes registered native types to WebAssembly guests
// running on wazero.
//
// Binding a module tree plans one host module per script module (the root
// module is named by Options.RootModule, "env" by default) and exports one
// host function per callable, named after the component-model canonical
// forms:
//
//	twice                     free function
//	describe#1                second overload of describe
//	[constructor]vec          constructor, returns own<vec>
//	[method]vec.len           method, self is borrow<vec>
//	[method]actor.get-pos     field getter
//	[method]actor.set-health  field setter
//	[static]vec.zero          static method
//	[static]kind.running      enum value
//	[resource-drop]vec        destroys an owned handle
//
// HostFunc.Signature renders the WIT signature of every export.
//
// # Handles
//
// Native objects cross the boundary as u32 handles into a resource table.
// Constructors and by-value results hand out owned handles whose destructor
// runs on drop or when the runtime closes. Pointer results and struct
// fields are borrowed views. Handle 0 is null.
//
// # Strings
//
// Strings travel as (ptr, len) pairs in guest memory. String results are
// allocated through the guest's cabi_realloc export.
//
// # Virtual dispatch
//
// Instance.Attach links a scripted native object to a guest. Its virtual
// methods call guest exports named [method]<type>.<method> with the
// object's handle first; a guest without the export leaves the native base
// implementation in place.
package wasmbind
