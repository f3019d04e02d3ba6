package resolver

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZebulonRouseFrantzich/usedotnet/internal/event"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/platform"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/tool"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/transport"
)

func sdkRequest(t *testing.T) tool.Request {
	t.Helper()
	req, err := tool.NewRequest(tool.KindSDK, "1.0.4", "x64")
	require.NoError(t, err)
	return req
}

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    URLSet
		wantErr bool
	}{
		{
			name: "array",
			out:  `["https://primary-url","https://legacy-url"]`,
			want: URLSet{Primary: "https://primary-url", Legacy: "https://legacy-url"},
		},
		{
			name: "object with surrounding whitespace",
			out:  "\n {\"primary\": \"https://p.example/a.zip\", \"legacy\": \"http://l.example/a.zip\"}\n",
			want: URLSet{Primary: "https://p.example/a.zip", Legacy: "http://l.example/a.zip"},
		},
		{name: "empty", out: "  ", wantErr: true},
		{name: "plain text", out: "https://primary-url https://legacy-url", wantErr: true},
		{name: "one url", out: `["https://primary-url"]`, wantErr: true},
		{name: "relative url", out: `["/primary","https://legacy-url"]`, wantErr: true},
		{name: "ftp scheme", out: `{"primary":"ftp://p/a","legacy":"https://l/a"}`, wantErr: true},
		{name: "missing legacy", out: `{"primary":"https://p/a"}`, wantErr: true},
		{name: "broken json", out: `["https://p/a",`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOutput([]byte(tt.out))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrResolutionFailed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFunc(t *testing.T) {
	var r Resolver = Func(func(_ context.Context, req tool.Request, platformName string, _ transport.Config) (URLSet, error) {
		return URLSet{Primary: "https://p/" + req.ToolID() + "/" + platformName, Legacy: "https://l/"}, nil
	})

	got, err := r.Resolve(context.Background(), sdkRequest(t), "linux", transport.Config{})
	require.NoError(t, err)
	assert.Equal(t, "https://p/dncs/linux", got.Primary)
}

func posixFlavor() platform.Flavor {
	return platform.FlavorFor(&platform.Info{OS: "linux", Arch: "x64"})
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script resolver tests require a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "get-os-distro.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o644))
	return path
}

func TestScriptResolverSuccess(t *testing.T) {
	script := writeScript(t, `
if [ "$1 $2 $3 $4 $5 $6 $7 $8" != "--package-type sdk --version 1.0.4 --platform linux --architecture x64" ]; then
  echo "unexpected args: $*" >&2
  exit 3
fi
echo '["https://primary-url","https://legacy-url"]'
`)

	rec := &event.Recorder{}
	r := NewScriptResolver(script, posixFlavor(), WithReporter(rec))

	got, err := r.Resolve(context.Background(), sdkRequest(t), "linux", transport.Config{})
	require.NoError(t, err)
	assert.Equal(t, URLSet{Primary: "https://primary-url", Legacy: "https://legacy-url"}, got)

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, event.ScriptPermissionChanged, events[0].Kind)
	assert.Equal(t, "Changing attribute for file "+script+" to 777", events[0].Message())

	info, err := os.Stat(script)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o777), info.Mode().Perm())
}

func TestScriptResolverPassesTransportEnv(t *testing.T) {
	script := writeScript(t, `
printf '{"primary":"https://p.example/%s","legacy":"https://l.example/%s"}' "$USEDOTNET_FEED_SCOPE" "$USEDOTNET_FEED_API_KEY"
`)

	tc := transport.Build(transport.Inputs{AuthToken: "tok"}, nil)
	got, err := NewScriptResolver(script, posixFlavor()).Resolve(context.Background(), sdkRequest(t), "linux", tc)
	require.NoError(t, err)
	assert.Equal(t, "https://p.example/internal", got.Primary)
	assert.Equal(t, "https://l.example/tok", got.Legacy)
}

func TestScriptResolverFailure(t *testing.T) {
	script := writeScript(t, `
echo "install-script failed to get donwload urls" >&2
exit 1
`)

	_, err := NewScriptResolver(script, posixFlavor()).Resolve(context.Background(), sdkRequest(t), "linux", transport.Config{})
	require.ErrorIs(t, err, ErrResolutionFailed)

	var scriptErr *ScriptError
	require.ErrorAs(t, err, &scriptErr)
	assert.Equal(t, "install-script failed to get donwload urls", scriptErr.Stderr)
	assert.Contains(t, err.Error(), "install-script failed to get donwload urls")
}

func TestScriptResolverMalformedOutput(t *testing.T) {
	script := writeScript(t, `echo "not json"`)

	_, err := NewScriptResolver(script, posixFlavor()).Resolve(context.Background(), sdkRequest(t), "linux", transport.Config{})
	assert.ErrorIs(t, err, ErrResolutionFailed)
}

func TestScriptResolverTimeout(t *testing.T) {
	script := writeScript(t, `exec sleep 10`)

	start := time.Now()
	_, err := NewScriptResolver(script, posixFlavor(), WithTimeout(200*time.Millisecond)).
		Resolve(context.Background(), sdkRequest(t), "linux", transport.Config{})
	require.ErrorIs(t, err, ErrResolutionFailed)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestScriptResolverMissingScript(t *testing.T) {
	r := NewScriptResolver(filepath.Join(t.TempDir(), "missing.sh"), posixFlavor())
	_, err := r.Resolve(context.Background(), sdkRequest(t), "linux", transport.Config{})
	assert.ErrorIs(t, err, ErrResolutionFailed)

	_, err = NewScriptResolver("", posixFlavor()).Resolve(context.Background(), sdkRequest(t), "linux", transport.Config{})
	assert.ErrorIs(t, err, ErrResolutionFailed)
}

const luaScript = `
local base = "https://dotnetcli.example/dotnet/"

function resolve(kind, version, arch)
  local dir = "Runtime"
  if kind == "sdk" then dir = "Sdk" end
  local rid = platform.rid(arch)
  local name = "dotnet-" .. kind .. "-" .. version .. "-" .. rid .. platform.archive_ext
  return base .. dir .. "/" .. version .. "/" .. name,
         base .. "legacy/" .. dir .. "/" .. version .. "/" .. string.upper(kind) .. "-" .. rid .. platform.archive_ext
end
`

func TestLuaResolver(t *testing.T) {
	info := &platform.Info{OS: "linux", Arch: "x64", Distro: "alpine", Libc: platform.LibcMusl}
	r := NewLuaResolver("resolver.lua", luaScript, info, platform.FlavorFor(info))

	got, err := r.Resolve(context.Background(), sdkRequest(t), "linux", transport.Config{})
	require.NoError(t, err)
	assert.Equal(t, "https://dotnetcli.example/dotnet/Sdk/1.0.4/dotnet-sdk-1.0.4-linux-musl-x64.tar.gz", got.Primary)
	assert.Equal(t, "https://dotnetcli.example/dotnet/legacy/Sdk/1.0.4/SDK-linux-musl-x64.tar.gz", got.Legacy)
}

func TestLoadLuaResolver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resolver.lua")
	require.NoError(t, os.WriteFile(path, []byte(luaScript), 0o644))

	info := &platform.Info{OS: "windows", Arch: "arm64"}
	r, err := LoadLuaResolver(path, info, platform.FlavorFor(info))
	require.NoError(t, err)

	got, err := r.Resolve(context.Background(), sdkRequest(t), "win", transport.Config{})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(got.Primary, "dotnet-sdk-1.0.4-win-x64.zip"), got.Primary)

	_, err = LoadLuaResolver(filepath.Join(t.TempDir(), "nope.lua"), info, platform.FlavorFor(info))
	assert.ErrorIs(t, err, ErrResolutionFailed)
}

func TestLuaResolverErrors(t *testing.T) {
	info := &platform.Info{OS: "linux", Arch: "x64"}
	flavor := platform.FlavorFor(info)

	tests := []struct {
		name   string
		source string
	}{
		{name: "syntax error", source: `function resolve(`},
		{name: "no resolve function", source: `x = 1`},
		{name: "runtime error", source: `function resolve() error("boom") end`},
		{name: "wrong return types", source: `function resolve() return 1, 2 end`},
		{name: "single return", source: `function resolve() return "https://p/a" end`},
		{name: "invalid url", source: `function resolve() return "nope", "https://l/a" end`},
		{name: "os is sandboxed", source: `function resolve() return os.getenv("HOME"), "x" end`},
		{name: "io is sandboxed", source: `io.open("/etc/passwd")`},
		{name: "require is sandboxed", source: `require("os")`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewLuaResolver("test.lua", tt.source, info, flavor)
			_, err := r.Resolve(context.Background(), sdkRequest(t), "linux", transport.Config{})
			assert.ErrorIs(t, err, ErrResolutionFailed)
		})
	}
}

func TestLuaResolverSeesResolverPlatform(t *testing.T) {
	source := `function resolve() return "https://p/" .. resolver_platform, "https://l/" end`
	r := NewLuaResolver("test.lua", source, nil, nil)

	got, err := r.Resolve(context.Background(), sdkRequest(t), "osx", transport.Config{})
	require.NoError(t, err)
	assert.Equal(t, "https://p/osx", got.Primary)
}

func TestLuaResolverTimeout(t *testing.T) {
	info := &platform.Info{OS: "linux", Arch: "x64"}

	tests := []struct {
		name   string
		source string
	}{
		{name: "loop in resolve", source: `function resolve() while true do end end`},
		{name: "loop at load", source: `while true do end`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewLuaResolver("slow.lua", tt.source, info, platform.FlavorFor(info),
				WithLuaTimeout(100*time.Millisecond))

			start := time.Now()
			_, err := r.Resolve(context.Background(), sdkRequest(t), "linux", transport.Config{})
			require.ErrorIs(t, err, ErrResolutionFailed)
			assert.Contains(t, err.Error(), "timed out")
			assert.Less(t, time.Since(start), 5*time.Second)
		})
	}
}

func TestLuaResolverCallerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewLuaResolver("slow.lua", `function resolve() while true do end end`, nil, nil)
	_, err := r.Resolve(ctx, sdkRequest(t), "linux", transport.Config{})
	require.ErrorIs(t, err, ErrResolutionFailed)
	assert.NotContains(t, err.Error(), "timed out")
}
