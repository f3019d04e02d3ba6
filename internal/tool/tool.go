// Package tool defines the identity of a provisioning request: which package
// kind, which exact version and which architecture.
package tool

import (
	"fmt"
	"strings"

	"github.com/ZebulonRouseFrantzich/usedotnet/internal/version"
)

// PackageKind selects between the SDK and the runtime-only package.
type PackageKind string

const (
	// KindSDK installs the full SDK.
	KindSDK PackageKind = "sdk"
	// KindRuntime installs the shared runtime only.
	KindRuntime PackageKind = "runtime"
)

// Cache namespace tokens. These are part of the on-disk cache key and must not change.
const (
	ToolIDSDK     = "dncs"
	ToolIDRuntime = "dncr"
)

// String returns the string representation of the package kind
func (k PackageKind) String() string {
	return string(k)
}

// IsValid returns true if the package kind is supported
func (k PackageKind) IsValid() bool {
	switch k {
	case KindSDK, KindRuntime:
		return true
	default:
		return false
	}
}

// ToolID maps the package kind to its cache namespace token.
func (k PackageKind) ToolID() string {
	if k == KindSDK {
		return ToolIDSDK
	}
	return ToolIDRuntime
}

// ParsePackageKind parses a user-supplied package kind. An empty string selects the runtime.
func ParsePackageKind(s string) (PackageKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sdk":
		return KindSDK, nil
	case "runtime", "":
		return KindRuntime, nil
	default:
		return "", fmt.Errorf("unsupported package type: %q (supported: sdk, runtime)", s)
	}
}

// Request is one immutable provisioning request.
type Request struct {
	Kind    PackageKind
	Version version.Exact
	Arch    string
}

// NewRequest validates the version and architecture and builds a Request.
func NewRequest(kind PackageKind, rawVersion, arch string) (Request, error) {
	if !kind.IsValid() {
		return Request{}, fmt.Errorf("unsupported package type: %q", kind)
	}

	v, err := version.Validate(rawVersion)
	if err != nil {
		return Request{}, err
	}

	arch = strings.ToLower(strings.TrimSpace(arch))
	if arch == "" {
		return Request{}, fmt.Errorf("architecture is required")
	}
	if strings.Trim(arch, "abcdefghijklmnopqrstuvwxyz0123456789-_") != "" {
		return Request{}, fmt.Errorf("invalid architecture: %q", arch)
	}

	return Request{Kind: kind, Version: v, Arch: arch}, nil
}

// ToolID returns the cache namespace for the request.
func (r Request) ToolID() string {
	return r.Kind.ToolID()
}

// String formats the request as "<kind> <version>".
func (r Request) String() string {
	return fmt.Sprintf("%s %s", r.Kind, r.Version)
}
