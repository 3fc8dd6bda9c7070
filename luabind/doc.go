// Package luabind binds registered native types into an embedded Lua 5.1
// state (gopher-lua).
//
// A Runtime is a script.Backend: binding a module tree creates one table per
// module, a class table per registered class and a read-only proxy per enum.
//
// # Objects
//
// Foreign objects are userdata sharing one metatable. Field access goes
// through the registered getters and setters; methods are shared
// trampolines that resolve overloads per call. Objects returned by
// constructors and by-value results are owned: their destructor runs when
// the userdata is collected, released with Release, or the runtime closes.
// Pointers and struct fields are borrowed views.
//
// # Subclassing
//
//	Hero = game.Actor:extend{}
//	function Hero:init(name) self.name = name end
//	function Hero:update(dt) ... end
//
// A subclass defining init is built with the default constructor and then
// initialized by init. Virtual methods defined on a subclass or assigned to
// an instance are reached from Go through script.Dispatch.
//
// # Concurrency
//
// A Runtime is safe for concurrent use; every entry point serializes on the
// runtime lock. Native code called from Lua receives the lock-carrying
// context through CallContext.Context and may re-enter the runtime with it.
package luabind
