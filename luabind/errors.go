package luabind

import (
	"context"
	stderrors "errors"

	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/script-bridge/errors"
)

// raise throws err into Lua as a userdata so that a later scriptError
// recovers the structured error. It does not return.
func (rt *Runtime) raise(L *lua.LState, err error) {
	ud := L.NewUserData()
	ud.Value = err
	ud.Metatable = rt.errMeta
	L.Error(ud, 1)
}

func (rt *Runtime) newErrorMeta() *lua.LTable {
	L := rt.L
	mt := L.NewTable()
	mt.RawSetString("__tostring", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(errorText(L.Get(1))))
		return 1
	}))
	mt.RawSetString("__concat", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(errorText(L.Get(1)) + errorText(L.Get(2))))
		return 1
	}))
	mt.RawSetString("__metatable", lua.LString("error"))
	return mt
}

func errorText(v lua.LValue) string {
	if ud, ok := v.(*lua.LUserData); ok {
		if err, ok := ud.Value.(error); ok {
			return err.Error()
		}
	}
	if lua.LVCanConvToString(v) {
		return lua.LVAsString(v)
	}
	return v.String()
}

// scriptError converts an error returned by a protected Lua call. Errors
// raised by native code come back unchanged; script errors become
// call_failed errors carrying the Lua message and traceback.
func (rt *Runtime) scriptError(ctx context.Context, err error) error {
	var apiErr *lua.ApiError
	if !stderrors.As(err, &apiErr) {
		return err
	}
	if ud, ok := apiErr.Object.(*lua.LUserData); ok {
		if goErr, ok := ud.Value.(error); ok {
			return goErr
		}
	}
	if ctx != nil && ctx.Err() != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindCallFailed, ctx.Err(), "script interrupted")
	}

	msg := errorText(apiErr.Object)
	b := errors.New(errors.PhaseRuntime, errors.KindCallFailed).Detail("%s", msg)
	if apiErr.StackTrace != "" {
		b = b.Value(apiErr.StackTrace)
	}
	return b.Build()
}
