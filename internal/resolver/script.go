package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ZebulonRouseFrantzich/usedotnet/internal/event"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/platform"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/tool"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/transport"
)

// DefaultTimeout bounds a single resolver script run.
const DefaultTimeout = 5 * time.Minute

// maxStderr caps how much of the script's stderr ends up in an error.
const maxStderr = 4 << 10

// ScriptResolver runs an external program that prints the URLSet on stdout.
//
// The program is invoked as
//
//	<script> --package-type <sdk|runtime> --version <v> --platform <p> --architecture <a>
//
// with the parent environment plus the transport settings (see transport.Config.Env).
type ScriptResolver struct {
	script   string
	flavor   platform.Flavor
	timeout  time.Duration
	reporter event.Reporter
}

// ScriptOption configures a ScriptResolver.
type ScriptOption func(*ScriptResolver)

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) ScriptOption {
	return func(r *ScriptResolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithReporter sets the event reporter.
func WithReporter(rep event.Reporter) ScriptOption {
	return func(r *ScriptResolver) {
		if rep != nil {
			r.reporter = rep
		}
	}
}

// NewScriptResolver creates a resolver for script using the host flavor's
// command convention.
func NewScriptResolver(script string, flavor platform.Flavor, opts ...ScriptOption) *ScriptResolver {
	r := &ScriptResolver{
		script:   script,
		flavor:   flavor,
		timeout:  DefaultTimeout,
		reporter: event.Discard,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve runs the script and parses its output.
func (r *ScriptResolver) Resolve(ctx context.Context, req tool.Request, platformName string, tc transport.Config) (URLSet, error) {
	if r.script == "" {
		return URLSet{}, fmt.Errorf("%w: no resolver script configured", ErrResolutionFailed)
	}
	if _, err := os.Stat(r.script); err != nil {
		return URLSet{}, fmt.Errorf("%w: %w", ErrResolutionFailed, err)
	}

	changed, err := r.flavor.PrepareScript(r.script)
	if err != nil {
		return URLSet{}, fmt.Errorf("%w: prepare %s: %w", ErrResolutionFailed, r.script, err)
	}
	if changed {
		r.reporter.Report(event.Event{Kind: event.ScriptPermissionChanged, Path: r.script})
	}

	tcEnv, err := tc.Env()
	if err != nil {
		return URLSet{}, fmt.Errorf("%w: %w", ErrResolutionFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := []string{
		"--package-type", req.Kind.String(),
		"--version", req.Version.String(),
		"--platform", platformName,
		"--architecture", req.Arch,
	}
	name, argv := r.flavor.ScriptCommand(r.script, args)

	cmd := exec.CommandContext(ctx, name, argv...)
	cmd.Env = append(os.Environ(), tcEnv...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return URLSet{}, fmt.Errorf("%w: %s timed out after %s", ErrResolutionFailed, r.script, r.timeout)
		}
		return URLSet{}, &ScriptError{Script: r.script, Stderr: tail(stderr.String()), Err: err}
	}

	return ParseOutput(stdout.Bytes())
}

// ScriptError is returned when the resolver program exits unsuccessfully.
type ScriptError struct {
	Script string
	Stderr string
	Err    error
}

func (e *ScriptError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: %s: %v", ErrResolutionFailed, e.Script, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v: %s", ErrResolutionFailed, e.Script, e.Err, e.Stderr)
}

// Is reports ErrResolutionFailed so callers can match on the sentinel.
func (e *ScriptError) Is(target error) bool {
	return target == ErrResolutionFailed
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		s = s[len(s)-maxStderr:]
	}
	return s
}
