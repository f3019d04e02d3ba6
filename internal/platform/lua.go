package platform

import (
	lua "github.com/yuin/gopher-lua"
)

// InjectPlatformTable exposes the host to resolver scripts as the read-only
// global "platform":
//
//	platform.os              GOOS
//	platform.arch            host feed architecture
//	platform.resolver_os     "win", "linux" or "osx"
//	platform.archive_ext     ".zip" or ".tar.gz"
//	platform.libc            "glibc", "musl" or ""
//	platform.rid(arch)       runtime identifier, e.g. "linux-musl-x64"
func InjectPlatformTable(L *lua.LState, info *Info, flavor Flavor) error {
	t := L.NewTable()

	for k, v := range map[string]string{
		"os":             info.OS,
		"arch":           info.Arch,
		"distro":         info.Distro,
		"distro_version": info.DistroVersion,
		"libc":           info.Libc,
		"resolver_os":    flavor.ResolverOS(),
		"archive_format": flavor.ArchiveFormat(),
		"archive_ext":    flavor.ArchiveExtension(),
	} {
		if v != "" {
			t.RawSetString(k, lua.LString(v))
		}
	}
	t.RawSetString("is_windows", lua.LBool(info.IsWindows()))
	t.RawSetString("is_macos", lua.LBool(info.IsMacOS()))
	t.RawSetString("is_musl", lua.LBool(info.IsMusl()))

	t.RawSetString("rid", L.NewFunction(func(L *lua.LState) int {
		arch := L.OptString(1, info.Arch)
		L.Push(lua.LString(info.RuntimeIdentifier(arch)))
		return 1
	}))

	L.SetGlobal("platform", readOnly(L, t))
	return nil
}

// readOnly returns a proxy that reads through to t and rejects writes.
func readOnly(L *lua.LState, t *lua.LTable) *lua.LTable {
	mt := L.NewTable()
	mt.RawSetString("__index", t)
	mt.RawSetString("__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("platform table is read-only")
		return 0
	}))
	mt.RawSetString("__metatable", lua.LString("protected"))

	proxy := L.NewTable()
	L.SetMetatable(proxy, mt)
	return proxy
}
