package pathenv

import (
	"fmt"
	"strings"
)

// Shell names an interactive shell that export lines can be rendered for.
type Shell string

const (
	ShellBash       Shell = "bash"
	ShellZsh        Shell = "zsh"
	ShellFish       Shell = "fish"
	ShellPowerShell Shell = "powershell" // Windows PowerShell and pwsh
	ShellUnknown    Shell = "unknown"
)

// Shells lists the supported shells.
var Shells = []Shell{ShellBash, ShellZsh, ShellFish, ShellPowerShell}

func (s Shell) String() string {
	return string(s)
}

// IsValid reports whether s is one of Shells.
func (s Shell) IsValid() bool {
	for _, known := range Shells {
		if s == known {
			return true
		}
	}
	return false
}

// UnsupportedShellError is returned for a shell outside Shells.
type UnsupportedShellError struct {
	Shell string
}

func (e *UnsupportedShellError) Error() string {
	names := make([]string, len(Shells))
	for i, s := range Shells {
		names[i] = s.String()
	}
	return fmt.Sprintf("unsupported shell %q (supported: %s)", e.Shell, strings.Join(names, ", "))
}

// PublishError reports that dir could not be published to Target, which is
// "process PATH", "agent" or the path of the GitHub PATH file.
type PublishError struct {
	Target  string
	Dir     string
	Message string
	Cause   error
}

func (e *PublishError) Error() string {
	msg := fmt.Sprintf("publish %s to %s: %s", e.Dir, e.Target, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *PublishError) Unwrap() error {
	return e.Cause
}
