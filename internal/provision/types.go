package provision

import (
	"fmt"

	"github.com/ZebulonRouseFrantzich/usedotnet/internal/transport"
)

// State is a step of the provisioning pipeline.
type State int

const (
	Validating State = iota
	CacheCheck
	Resolving
	Downloading
	Verifying
	Extracting
	Committing
	Publishing
	Done
	Failed
)

var stateNames = [...]string{
	Validating:  "validating",
	CacheCheck:  "cache-check",
	Resolving:   "resolving",
	Downloading: "downloading",
	Verifying:   "verifying",
	Extracting:  "extracting",
	Committing:  "committing",
	Publishing:  "publishing",
	Done:        "done",
	Failed:      "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrorKind classifies a pipeline failure.
type ErrorKind int

const (
	InputError ErrorKind = iota
	ScriptError
	DownloadError
	ExtractionError
	CacheError
	PublishError
)

func (k ErrorKind) String() string {
	switch k {
	case InputError:
		return "input error"
	case ScriptError:
		return "script error"
	case DownloadError:
		return "download error"
	case ExtractionError:
		return "extraction error"
	case CacheError:
		return "cache error"
	case PublishError:
		return "publish error"
	default:
		return fmt.Sprintf("error-kind(%d)", int(k))
	}
}

// Error is the failure of a Run. State is the step that failed.
type Error struct {
	State   State
	Kind    ErrorKind
	Tool    string
	Version string
	URL     string
	Err     error
}

func (e *Error) Error() string {
	subject := "install"
	if e.Tool != "" {
		subject += " " + e.Tool
	}
	if e.Version != "" {
		subject += " " + e.Version
	}
	if e.URL != "" {
		subject += " from " + e.URL
	}
	return fmt.Sprintf("%s: %s: %v", subject, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Spec is one provisioning request as supplied by the user.
type Spec struct {
	// PackageType is "sdk" or "runtime"; empty means runtime.
	PackageType string
	// Version must be an exact version.
	Version string
	// Arch is the tool architecture token, e.g. "x64".
	Arch string
	// Transport holds proxy and feed authentication inputs.
	Transport transport.Inputs
}

// Result describes a successful Run.
type Result struct {
	State   State
	ToolID  string
	Version string
	// Dir is the cache entry that was published.
	Dir string
	// FromCache is true when nothing was downloaded.
	FromCache bool
	// URL is the location the archive was downloaded from.
	URL string
	// Legacy is true when the legacy URL was used.
	Legacy bool
}
