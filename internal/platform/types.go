// Package platform detects the build host and models the differences between
// host families that the provisioning pipeline cares about.
//
// Detection uses runtime.GOOS/GOARCH for OS and architecture and gopsutil for
// Linux distribution details, with graceful fallback when distro detection
// fails. The host family split (archive container, search-path separator,
// script invocation) lives behind the Flavor interface so the rest of the
// pipeline never branches on runtime.GOOS.
package platform

import "context"

// C libraries of Linux hosts. .NET ships separate musl builds.
const (
	LibcGlibc = "glibc"
	LibcMusl  = "musl"
)

// Info describes the build host.
type Info struct {
	OS            string // GOOS: "linux", "darwin", "windows"
	Arch          string // feed token: "x64", "arm64", "x86", "arm"
	Distro        string // Linux distribution ID, e.g. "ubuntu"; empty if unknown
	DistroVersion string
	Libc          string // Linux only
}

func (i *Info) IsWindows() bool { return i.OS == "windows" }
func (i *Info) IsMacOS() bool   { return i.OS == "darwin" }
func (i *Info) IsMusl() bool    { return i.OS == "linux" && i.Libc == LibcMusl }

// RuntimeIdentifier returns the .NET runtime identifier for arch on this
// host, e.g. "linux-x64", "linux-musl-arm64", "osx-arm64" or "win-x86".
func (i *Info) RuntimeIdentifier(arch string) string {
	switch {
	case i.IsWindows():
		return "win-" + arch
	case i.IsMacOS():
		return "osx-" + arch
	case i.IsMusl():
		return "linux-musl-" + arch
	default:
		return "linux-" + arch
	}
}

// Detector detects the host.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}

// StaticDetector returns a fixed Info.
type StaticDetector struct {
	Info *Info
}

func (d StaticDetector) Detect(ctx context.Context) (*Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.Info, nil
}
