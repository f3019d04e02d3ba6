package platform

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/host"
)

type hostDetector struct {
	goos, goarch string
	distroInfo   distroInfoFunc
}

// NewDetector returns a Detector for the running host.
func NewDetector() Detector {
	return hostDetector{
		goos:       runtime.GOOS,
		goarch:     runtime.GOARCH,
		distroInfo: host.PlatformInformationWithContext,
	}
}

type distroInfoFunc func(ctx context.Context) (platform, family, version string, err error)

// Detect reports the host. A failed distribution lookup on Linux is not an
// error: the host is then assumed to use glibc.
func (d hostDetector) Detect(ctx context.Context) (*Info, error) {
	arch, err := ToolArch(d.goarch)
	if err != nil {
		return nil, err
	}

	info := &Info{OS: d.goos, Arch: arch}
	if d.goos != "linux" {
		return info, nil
	}

	info.Libc = LibcGlibc

	distro, family, version, err := d.distroInfo(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("distribution lookup cancelled: %w", ctx.Err())
		}
		return info, nil
	}

	info.Distro = strings.ToLower(strings.TrimSpace(distro))
	info.DistroVersion = strings.TrimSpace(version)
	info.Libc = libcOf(info.Distro, strings.ToLower(strings.TrimSpace(family)))

	return info, nil
}
