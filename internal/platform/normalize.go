package platform

import (
	"fmt"
	"strings"
)

// muslDistros lists distribution IDs whose system C library is musl.
var muslDistros = map[string]bool{
	"alpine":       true,
	"postmarketos": true,
	"chimera":      true,
	"adelie":       true,
}

// ToolArch maps a GOARCH value or uname spelling to the architecture token
// used by the .NET download feeds.
func ToolArch(arch string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(arch)) {
	case "amd64", "x86_64", "x64":
		return "x64", nil
	case "arm64", "aarch64":
		return "arm64", nil
	case "386", "i386", "i686", "x86":
		return "x86", nil
	case "arm", "armv7", "armv7l", "armhf":
		return "arm", nil
	default:
		return "", fmt.Errorf("unsupported architecture: %s", arch)
	}
}

// libcOf guesses the C library from what gopsutil reports. It reports
// "alpine" as the distro with an empty family, so both are checked.
func libcOf(distro, family string) string {
	if muslDistros[distro] || muslDistros[family] {
		return LibcMusl
	}
	return LibcGlibc
}
