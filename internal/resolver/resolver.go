// Package resolver finds the download locations of a requested tool.
//
// A Resolver returns a URLSet: the primary URL for the current distribution
// channel and a legacy URL the downloader falls back to when the primary
// location does not exist. Two resolvers are provided: ScriptResolver runs an
// external program and LuaResolver evaluates a sandboxed Lua script.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ZebulonRouseFrantzich/usedotnet/internal/tool"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/transport"
)

// ErrResolutionFailed is returned when download URLs could not be determined.
var ErrResolutionFailed = errors.New("failed to get download urls")

// URLSet is the ordered pair of candidate download locations.
type URLSet struct {
	Primary string `json:"primary"`
	Legacy  string `json:"legacy"`
}

// Validate checks that both URLs are absolute http(s) URLs.
func (u URLSet) Validate() error {
	if err := checkURL("primary", u.Primary); err != nil {
		return err
	}
	return checkURL("legacy", u.Legacy)
}

func checkURL(name, raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s url %q: %w", name, raw, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s url %q: must be an absolute http or https url", name, raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s url %q: missing host", name, raw)
	}
	return nil
}

// Resolver determines the URLSet for a request on the given resolver platform
// ("win", "linux", "osx").
type Resolver interface {
	Resolve(ctx context.Context, req tool.Request, platform string, tc transport.Config) (URLSet, error)
}

// Func adapts a function to the Resolver interface.
type Func func(ctx context.Context, req tool.Request, platform string, tc transport.Config) (URLSet, error)

// Resolve calls f.
func (f Func) Resolve(ctx context.Context, req tool.Request, platform string, tc transport.Config) (URLSet, error) {
	return f(ctx, req, platform, tc)
}

// ParseOutput decodes resolver output. Accepted forms are a JSON array of
// URLs (primary first, legacy second) and a JSON object with "primary" and
// "legacy" keys.
func ParseOutput(out []byte) (URLSet, error) {
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		return URLSet{}, fmt.Errorf("%w: empty output", ErrResolutionFailed)
	}

	var set URLSet
	switch trimmed[0] {
	case '[':
		var urls []string
		if err := json.Unmarshal([]byte(trimmed), &urls); err != nil {
			return URLSet{}, fmt.Errorf("%w: malformed output: %w", ErrResolutionFailed, err)
		}
		if len(urls) < 2 {
			return URLSet{}, fmt.Errorf("%w: expected 2 urls, got %d", ErrResolutionFailed, len(urls))
		}
		set = URLSet{Primary: strings.TrimSpace(urls[0]), Legacy: strings.TrimSpace(urls[1])}
	case '{':
		if err := json.Unmarshal([]byte(trimmed), &set); err != nil {
			return URLSet{}, fmt.Errorf("%w: malformed output: %w", ErrResolutionFailed, err)
		}
		set.Primary = strings.TrimSpace(set.Primary)
		set.Legacy = strings.TrimSpace(set.Legacy)
	default:
		return URLSet{}, fmt.Errorf("%w: output is not a json array or object", ErrResolutionFailed)
	}

	if err := set.Validate(); err != nil {
		return URLSet{}, fmt.Errorf("%w: %w", ErrResolutionFailed, err)
	}
	return set, nil
}
