package resolver

import (
	lua "github.com/yuin/gopher-lua"
)

// newSandboxedVM creates a Lua state without filesystem, process or module
// loading access. string, table and math stay available.
func newSandboxedVM() *lua.LState {
	L := lua.NewState()

	for _, name := range []string{
		"os", "io", "debug",
		"require", "dofile", "loadfile", "load", "loadstring",
	} {
		L.SetGlobal(name, lua.LNil)
	}

	return L
}
