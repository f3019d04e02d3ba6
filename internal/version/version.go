// Package version validates that a requested tool version is fully pinned.
package version

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var (
	// ErrInputError is the parent of every validation failure in this package.
	ErrInputError = errors.New("invalid version input")

	// ErrImplicitVersionNotSupported is returned for wildcard, range or partial versions
	// such as "6.x", "6.0" or ">=6.0.100".
	ErrImplicitVersionNotSupported = fmt.Errorf("%w: implicit version not supported, use an explicit version such as 6.0.100", ErrInputError)

	// ErrInvalidVersion is returned when the version is fully pinned but is not semver.
	ErrInvalidVersion = fmt.Errorf("%w: not a semantic version", ErrInputError)
)

// rangeTokens mark constraint expressions rather than versions.
const rangeTokens = "^~<>=| "

// Exact is a validated, fully pinned version string.
type Exact struct {
	raw    string
	parsed *semver.Version
}

// String returns the version exactly as the user supplied it (trimmed).
func (e Exact) String() string {
	return e.raw
}

// Major returns the major component.
func (e Exact) Major() uint64 {
	if e.parsed == nil {
		return 0
	}
	return e.parsed.Major()
}

// Minor returns the minor component.
func (e Exact) Minor() uint64 {
	if e.parsed == nil {
		return 0
	}
	return e.parsed.Minor()
}

// Channel returns the "major.minor" release channel.
func (e Exact) Channel() string {
	return fmt.Sprintf("%d.%d", e.Major(), e.Minor())
}

// IsZero reports whether e was never validated.
func (e Exact) IsZero() bool {
	return e.parsed == nil
}

// Validate checks that v is an explicit major.minor.patch version. It performs no I/O.
func Validate(v string) (Exact, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return Exact{}, fmt.Errorf("%w: version is empty", ErrInputError)
	}

	if strings.ContainsAny(v, rangeTokens) {
		return Exact{}, fmt.Errorf("%w: %q", ErrImplicitVersionNotSupported, v)
	}

	core := v
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}

	segments := strings.Split(core, ".")
	for _, seg := range segments {
		if isWildcard(seg) {
			return Exact{}, fmt.Errorf("%w: %q", ErrImplicitVersionNotSupported, v)
		}
	}
	if len(segments) < 3 {
		return Exact{}, fmt.Errorf("%w: %q", ErrImplicitVersionNotSupported, v)
	}

	parsed, err := semver.StrictNewVersion(v)
	if err != nil {
		return Exact{}, fmt.Errorf("%w: %q: %v", ErrInvalidVersion, v, err)
	}

	return Exact{raw: v, parsed: parsed}, nil
}

// MustValidate is Validate for constants in tests and defaults; it panics on error.
func MustValidate(v string) Exact {
	e, err := Validate(v)
	if err != nil {
		panic(err)
	}
	return e
}

func isWildcard(seg string) bool {
	switch seg {
	case "x", "X", "*":
		return true
	}
	return false
}
