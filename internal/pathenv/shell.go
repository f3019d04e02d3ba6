package pathenv

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DetectShell determines the shell to render export lines for.
// $SHELL wins; PowerShell is recognised through $PSModulePath.
func DetectShell(getenv func(string) string) Shell {
	if shell := getenv("SHELL"); shell != "" {
		if s := ParseShell(shell); s.IsValid() {
			return s
		}
	}

	if getenv("PSModulePath") != "" {
		return ShellPowerShell
	}

	return ShellUnknown
}

// ParseShell maps a shell name or binary path to a Shell.
// Examples:
//   - /bin/bash -> bash
//   - /usr/bin/zsh -> zsh
//   - pwsh.exe -> powershell
func ParseShell(shellPath string) Shell {
	baseName := strings.ToLower(filepath.Base(strings.ReplaceAll(shellPath, `\`, "/")))
	baseName = strings.TrimSuffix(baseName, ".exe")

	switch baseName {
	case "bash":
		return ShellBash
	case "zsh":
		return ShellZsh
	case "fish":
		return ShellFish
	case "powershell", "pwsh":
		return ShellPowerShell
	default:
		return ShellUnknown
	}
}

// ValidateShell validates that a shell type is supported
func ValidateShell(shell Shell) error {
	if !shell.IsValid() {
		return &UnsupportedShellError{Shell: shell.String()}
	}
	return nil
}

// ExportCommand renders the line that prepends dir to PATH in shell.
func ExportCommand(shell Shell, dir string) (string, error) {
	if err := ValidateShell(shell); err != nil {
		return "", err
	}

	switch shell {
	case ShellBash, ShellZsh:
		return fmt.Sprintf(`export PATH=%s:"$PATH"`, quotePOSIX(dir)), nil
	case ShellFish:
		return fmt.Sprintf("set -gx PATH %s $PATH", quoteFish(dir)), nil
	case ShellPowerShell:
		return fmt.Sprintf("$env:PATH = %s + [IO.Path]::PathSeparator + $env:PATH", quotePowerShell(dir)), nil
	default:
		return "", &UnsupportedShellError{Shell: shell.String()}
	}
}

// quotePOSIX wraps s in single quotes; embedded quotes become '\''.
func quotePOSIX(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// quoteFish wraps s in single quotes; fish escapes \ and ' inside them.
func quoteFish(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

// quotePowerShell wraps s in single quotes; embedded quotes are doubled.
func quotePowerShell(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
