package resolver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/ZebulonRouseFrantzich/usedotnet/internal/platform"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/tool"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/transport"
)

const resolveFunc = "resolve"

// LuaResolver evaluates a Lua resolver script. The script must define a
// global function
//
//	resolve(kind, version, arch) -> primary, legacy
//
// It runs in a sandbox and can read the host description from the global
// read-only "platform" table. Like a resolver program it is bounded by a
// timeout, DefaultTimeout unless overridden.
type LuaResolver struct {
	source  string
	name    string
	info    *platform.Info
	flavor  platform.Flavor
	timeout time.Duration
}

// LuaOption configures a LuaResolver.
type LuaOption func(*LuaResolver)

// WithLuaTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithLuaTimeout(d time.Duration) LuaOption {
	return func(r *LuaResolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewLuaResolver creates a resolver from Lua source. name is used in error messages.
func NewLuaResolver(name, source string, info *platform.Info, flavor platform.Flavor, opts ...LuaOption) *LuaResolver {
	r := &LuaResolver{source: source, name: name, info: info, flavor: flavor, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadLuaResolver reads a Lua resolver script from path.
func LoadLuaResolver(path string, info *platform.Info, flavor platform.Flavor, opts ...LuaOption) (*LuaResolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrResolutionFailed, path, err)
	}
	return NewLuaResolver(path, string(data), info, flavor, opts...), nil
}

// Resolve runs the script's resolve function. The transport configuration is
// not exposed to Lua code. The platform argument overrides the flavor's
// resolver OS in the platform table.
func (r *LuaResolver) Resolve(ctx context.Context, req tool.Request, platformName string, _ transport.Config) (URLSet, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	set, err := r.run(ctx, req, platformName)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return URLSet{}, fmt.Errorf("%w: %s timed out after %s", ErrResolutionFailed, r.name, r.timeout)
	}
	return set, err
}

func (r *LuaResolver) run(ctx context.Context, req tool.Request, platformName string) (URLSet, error) {
	L := newSandboxedVM()
	defer L.Close()
	L.SetContext(ctx)

	if r.info != nil {
		if err := platform.InjectPlatformTable(L, r.info, r.flavor); err != nil {
			return URLSet{}, fmt.Errorf("%w: %w", ErrResolutionFailed, err)
		}
	}
	L.SetGlobal("resolver_platform", lua.LString(platformName))

	if err := L.DoString(r.source); err != nil {
		return URLSet{}, fmt.Errorf("%w: %s: %w", ErrResolutionFailed, r.name, err)
	}

	fn, ok := L.GetGlobal(resolveFunc).(*lua.LFunction)
	if !ok {
		return URLSet{}, fmt.Errorf("%w: %s: global function %q is not defined", ErrResolutionFailed, r.name, resolveFunc)
	}

	err := L.CallByParam(lua.P{Fn: fn, NRet: 2, Protect: true},
		lua.LString(req.Kind.String()),
		lua.LString(req.Version.String()),
		lua.LString(req.Arch),
	)
	if err != nil {
		return URLSet{}, fmt.Errorf("%w: %s: %w", ErrResolutionFailed, r.name, err)
	}

	legacy := L.Get(-1)
	primary := L.Get(-2)
	L.Pop(2)

	if primary.Type() != lua.LTString || legacy.Type() != lua.LTString {
		return URLSet{}, fmt.Errorf("%w: %s: resolve must return two strings, got %s and %s",
			ErrResolutionFailed, r.name, primary.Type(), legacy.Type())
	}

	set := URLSet{Primary: primary.String(), Legacy: legacy.String()}
	if err := set.Validate(); err != nil {
		return URLSet{}, fmt.Errorf("%w: %s: %w", ErrResolutionFailed, r.name, err)
	}
	return set, nil
}
