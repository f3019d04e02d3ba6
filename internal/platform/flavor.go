package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Archive container formats.
const (
	ArchiveZip = "zip"
	ArchiveTar = "tar"
)

// Flavor captures everything that differs between the Windows host family
// and the POSIX host family. One Flavor is selected at startup and passed to
// the components that need it.
type Flavor interface {
	// Name is "windows" or "posix".
	Name() string
	// ResolverOS is the OS token passed to URL resolvers ("win", "linux", "osx").
	ResolverOS() string
	// ArchiveFormat is ArchiveZip or ArchiveTar.
	ArchiveFormat() string
	// ArchiveExtension is the file extension of downloaded archives, including the dot.
	ArchiveExtension() string
	// ListSeparator separates entries of the PATH variable.
	ListSeparator() string
	// ScriptCommand returns the program and arguments that run script with args.
	ScriptCommand(script string, args []string) (string, []string)
	// PrepareScript makes script runnable. It reports whether the file was changed.
	PrepareScript(script string) (bool, error)
}

// FlavorFor selects the Flavor for info.
func FlavorFor(info *Info) Flavor {
	if info != nil && info.IsWindows() {
		return windowsFlavor{}
	}

	resolverOS := "linux"
	if info != nil && info.IsMacOS() {
		resolverOS = "osx"
	}
	return posixFlavor{resolverOS: resolverOS}
}

type windowsFlavor struct{}

func (windowsFlavor) Name() string             { return "windows" }
func (windowsFlavor) ResolverOS() string       { return "win" }
func (windowsFlavor) ArchiveFormat() string    { return ArchiveZip }
func (windowsFlavor) ArchiveExtension() string { return ".zip" }
func (windowsFlavor) ListSeparator() string    { return ";" }

// ScriptCommand runs .ps1 scripts through PowerShell and anything else directly.
func (windowsFlavor) ScriptCommand(script string, args []string) (string, []string) {
	if !strings.EqualFold(filepath.Ext(script), ".ps1") {
		return script, args
	}
	argv := []string{"-NoLogo", "-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass", "-File", script}
	return "powershell", append(argv, args...)
}

// PrepareScript is a no-op: Windows has no executable bit.
func (windowsFlavor) PrepareScript(string) (bool, error) {
	return false, nil
}

type posixFlavor struct {
	resolverOS string
}

func (posixFlavor) Name() string             { return "posix" }
func (f posixFlavor) ResolverOS() string     { return f.resolverOS }
func (posixFlavor) ArchiveFormat() string    { return ArchiveTar }
func (posixFlavor) ArchiveExtension() string { return ".tar.gz" }
func (posixFlavor) ListSeparator() string    { return ":" }

// ScriptCommand executes the script directly; it carries its own shebang.
func (posixFlavor) ScriptCommand(script string, args []string) (string, []string) {
	return script, args
}

// PrepareScript sets the script mode to 0777. Resolver scripts are delivered
// without the executable bit.
func (posixFlavor) PrepareScript(script string) (bool, error) {
	if err := os.Chmod(script, 0o777); err != nil {
		return false, fmt.Errorf("set executable: %w", err)
	}
	return true, nil
}
