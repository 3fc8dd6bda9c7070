package luabind

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/script-bridge/errors"
)

// Standard library names accepted in Options.Libs.
const (
	LibBase      = "base"
	LibPackage   = "package"
	LibTable     = "table"
	LibString    = "string"
	LibMath      = "math"
	LibCoroutine = "coroutine"
	LibOS        = "os"
	LibIO        = "io"
	LibDebug     = "debug"
	LibChannel   = "channel"
)

var libOpeners = map[string]struct {
	open lua.LGFunction
	name string
}{
	LibBase:      {lua.OpenBase, lua.BaseLibName},
	LibPackage:   {lua.OpenPackage, lua.LoadLibName},
	LibTable:     {lua.OpenTable, lua.TabLibName},
	LibString:    {lua.OpenString, lua.StringLibName},
	LibMath:      {lua.OpenMath, lua.MathLibName},
	LibCoroutine: {lua.OpenCoroutine, lua.CoroutineLibName},
	LibOS:        {lua.OpenOs, lua.OsLibName},
	LibIO:        {lua.OpenIo, lua.IoLibName},
	LibDebug:     {lua.OpenDebug, lua.DebugLibName},
	LibChannel:   {lua.OpenChannel, lua.ChannelLibName},
}

// Options configures a Runtime.
type Options struct {
	// Libs lists the standard libraries opened in the state. Host access
	// (os, io, debug) is off by default.
	Libs []string

	// CallStackSize and RegistrySize size the Lua state; zero keeps the
	// gopher-lua defaults.
	CallStackSize int
	RegistrySize  int

	// RegistryMaxSize lets the data stack grow up to this size.
	RegistryMaxSize int

	// IncludeGoStackTrace adds Go stacks to errors raised by panics.
	IncludeGoStackTrace bool
}

// DefaultOptions returns the default runtime configuration.
func DefaultOptions() Options {
	return Options{
		Libs: []string{LibBase, LibPackage, LibTable, LibString, LibMath, LibCoroutine},
	}
}

func (o Options) validate() error {
	for _, name := range o.Libs {
		if _, ok := libOpeners[name]; !ok {
			return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Path("libs").
				Detail("unknown Lua library %q", name).
				Build()
		}
	}
	if o.CallStackSize < 0 || o.RegistrySize < 0 || o.RegistryMaxSize < 0 {
		return errors.InvalidInput(errors.PhaseConfig, "Lua stack sizes must not be negative")
	}
	return nil
}

func (o Options) state() lua.Options {
	return lua.Options{
		CallStackSize:       o.CallStackSize,
		RegistrySize:        o.RegistrySize,
		RegistryMaxSize:     o.RegistryMaxSize,
		SkipOpenLibs:        true,
		IncludeGoStackTrace: o.IncludeGoStackTrace,
	}
}

func openLibs(L *lua.LState, libs []string) error {
	for _, name := range libs {
		lib := libOpeners[name]
		err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name))
		if err != nil {
			return errors.Wrap(errors.PhaseRuntime, errors.KindInvalidInput, err, "open Lua library "+name)
		}
	}
	return nil
}
