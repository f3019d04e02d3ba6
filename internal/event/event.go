// Package event defines the status events emitted while a tool is provisioned.
//
// Components decide which event occurred and with which parameters; a Reporter
// decides how it is rendered. The default Reporter writes through
// charmbracelet/log, tests use a Recorder.
package event

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

// Kind identifies an event.
type Kind int

const (
	ToolToInstall Kind = iota
	CacheCheck
	UsingCachedTool
	InstallingAfresh
	GettingDownloadURLs
	ScriptPermissionChanged
	DownloadingPrimary
	PrimaryURLFailed
	DownloadingLegacy
	VerifyingSignature
	Extracting
	Caching
	SuccessfullyInstalled
	PrependingPath
	ProxyURLSet
	ProxyUsernameSet
	ProxyPasswordSet
	InternalAuthSet
	InternalAPIKeySet
	ExternalAuthSet
	ExternalAPIKeySet
)

var kindNames = map[Kind]string{
	ToolToInstall:           "tool-to-install",
	CacheCheck:              "cache-check",
	UsingCachedTool:         "using-cached-tool",
	InstallingAfresh:        "installing-afresh",
	GettingDownloadURLs:     "getting-download-urls",
	ScriptPermissionChanged: "script-permission-changed",
	DownloadingPrimary:      "downloading-primary",
	PrimaryURLFailed:        "primary-url-failed",
	DownloadingLegacy:       "downloading-legacy",
	VerifyingSignature:      "verifying-signature",
	Extracting:              "extracting",
	Caching:                 "caching",
	SuccessfullyInstalled:   "successfully-installed",
	PrependingPath:          "prepending-path",
	ProxyURLSet:             "proxy-url-set",
	ProxyUsernameSet:        "proxy-username-set",
	ProxyPasswordSet:        "proxy-password-set",
	InternalAuthSet:         "internal-auth-set",
	InternalAPIKeySet:       "internal-api-key-set",
	ExternalAuthSet:         "external-auth-set",
	ExternalAPIKeySet:       "external-api-key-set",
}

// String returns the stable name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Event is a single status notification. Only the fields relevant to Kind are set.
// Secrets are never stored in an Event.
type Event struct {
	Kind    Kind
	Tool    string // package kind ("sdk") or tool id ("dncs") depending on Kind
	Version string
	URL     string
	Path    string
	Format  string
	Err     error
}

// Warning reports whether the event is a recoverable condition.
func (e Event) Warning() bool {
	return e.Kind == PrimaryURLFailed
}

// Message renders the event as a human-readable status line.
func (e Event) Message() string {
	switch e.Kind {
	case ToolToInstall:
		return fmt.Sprintf("Tool to install: %s %s", e.Tool, e.Version)
	case CacheCheck:
		return fmt.Sprintf("Checking local tool for %s and version %s", e.Tool, e.Version)
	case UsingCachedTool:
		return fmt.Sprintf("Using cached tool from %s", e.Path)
	case InstallingAfresh:
		return "Tool not found in cache, installing afresh"
	case GettingDownloadURLs:
		return fmt.Sprintf("Getting download URLs for %s %s", e.Tool, e.Version)
	case ScriptPermissionChanged:
		return fmt.Sprintf("Changing attribute for file %s to 777", e.Path)
	case DownloadingPrimary, DownloadingLegacy:
		return fmt.Sprintf("Downloading tool from %s", e.URL)
	case PrimaryURLFailed:
		return fmt.Sprintf("404 not found %s", e.URL)
	case VerifyingSignature:
		return fmt.Sprintf("Verifying signature of %s", e.Path)
	case Extracting:
		return fmt.Sprintf("Extracting %s archive from %s", e.Format, e.Path)
	case Caching:
		return fmt.Sprintf("Caching dir %s for tool %s version %s", e.Path, e.Tool, e.Version)
	case SuccessfullyInstalled:
		return fmt.Sprintf("Successfully installed %s %s", e.Tool, e.Version)
	case PrependingPath:
		return fmt.Sprintf("prepending path: %s", e.Path)
	case ProxyURLSet:
		return "Set proxy url"
	case ProxyUsernameSet:
		return "Set proxy username"
	case ProxyPasswordSet:
		return "Set proxy password"
	case InternalAuthSet:
		return "Set internal auth"
	case InternalAPIKeySet:
		return "Set internal api key"
	case ExternalAuthSet:
		return "Set external auth"
	case ExternalAPIKeySet:
		return "Set external api key"
	default:
		return e.Kind.String()
	}
}

// Reporter receives events in emission order.
type Reporter interface {
	Report(e Event)
}

// Discard is a Reporter that drops every event.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Report(Event) {}

// LogReporter renders events through a charmbracelet logger.
type LogReporter struct {
	logger *log.Logger
}

// NewLogReporter creates a reporter writing to logger.
func NewLogReporter(logger *log.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

// Report logs e at info level, or at warn level for recoverable conditions.
func (r *LogReporter) Report(e Event) {
	keyvals := []any{"event", e.Kind.String()}
	if e.Err != nil {
		keyvals = append(keyvals, "err", e.Err)
	}

	if e.Warning() {
		r.logger.Warn(e.Message(), keyvals...)
		return
	}
	r.logger.Info(e.Message(), keyvals...)
}

// Recorder keeps every reported event. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Report appends e.
func (r *Recorder) Report(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kinds of the recorded events in order.
func (r *Recorder) Kinds() []Kind {
	events := r.Events()
	kinds := make([]Kind, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

// Has reports whether an event of kind k was recorded.
func (r *Recorder) Has(k Kind) bool {
	for _, got := range r.Kinds() {
		if got == k {
			return true
		}
	}
	return false
}
