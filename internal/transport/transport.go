// Package transport turns proxy and feed-credential inputs into the
// configuration attached to every outbound request made while provisioning a
// tool: the HTTP client used by the downloader and the environment handed to
// the URL resolver script.
package transport

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/ZebulonRouseFrantzich/usedotnet/internal/event"
)

// Environment variables exported to resolver scripts.
const (
	EnvHTTPSProxy = "HTTPS_PROXY"
	EnvHTTPProxy  = "HTTP_PROXY"
	EnvFeedScope  = "USEDOTNET_FEED_SCOPE"
	EnvFeedAPIKey = "USEDOTNET_FEED_API_KEY"
)

// Scope is the kind of package feed credentials apply to.
type Scope string

const (
	Internal Scope = "internal"
	External Scope = "external"
)

// Inputs are the raw user-supplied proxy and authentication settings.
type Inputs struct {
	ProxyEnabled  bool
	ProxyURL      string
	ProxyUsername string
	ProxyPassword string

	AuthToken string
	FeedType  string
}

// Proxy is an outbound HTTP proxy.
type Proxy struct {
	URL      string
	Username string
	Password string
}

// Auth holds feed credentials. APIKey is the value placed in the
// Authorization header.
type Auth struct {
	Scope  Scope
	Token  string
	APIKey string
}

// Config is the effective transport configuration. The zero value means a
// direct connection without credentials.
type Config struct {
	Proxy *Proxy
	Auth  *Auth
}

// Build derives a Config from in and reports which settings were applied.
// Secret values never appear in reported events.
func Build(in Inputs, r event.Reporter) Config {
	if r == nil {
		r = event.Discard
	}

	var cfg Config

	if in.ProxyEnabled {
		cfg.Proxy = &Proxy{
			URL:      strings.TrimSpace(in.ProxyURL),
			Username: in.ProxyUsername,
			Password: in.ProxyPassword,
		}
		r.Report(event.Event{Kind: event.ProxyURLSet})
		r.Report(event.Event{Kind: event.ProxyUsernameSet})
		r.Report(event.Event{Kind: event.ProxyPasswordSet})
	}

	token := strings.TrimSpace(in.AuthToken)
	if token == "" {
		return cfg
	}

	if ParseScope(in.FeedType) == External {
		cfg.Auth = &Auth{
			Scope:  External,
			Token:  token,
			APIKey: base64.StdEncoding.EncodeToString([]byte("PAT:" + token)),
		}
		r.Report(event.Event{Kind: event.ExternalAuthSet})
		r.Report(event.Event{Kind: event.ExternalAPIKeySet})
		return cfg
	}

	cfg.Auth = &Auth{Scope: Internal, Token: token, APIKey: token}
	r.Report(event.Event{Kind: event.InternalAuthSet})
	r.Report(event.Event{Kind: event.InternalAPIKeySet})
	return cfg
}

// ParseScope maps a feed type to a Scope. Anything other than "external"
// is an internal feed.
func ParseScope(feedType string) Scope {
	if strings.EqualFold(strings.TrimSpace(feedType), string(External)) {
		return External
	}
	return Internal
}

// ProxyURL returns the proxy as a URL with credentials in its userinfo.
func (c Config) ProxyURL() (*url.URL, error) {
	if c.Proxy == nil || c.Proxy.URL == "" {
		return nil, nil
	}

	u, err := url.Parse(c.Proxy.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid proxy url %q: scheme and host are required", c.Proxy.URL)
	}

	switch {
	case c.Proxy.Username != "" && c.Proxy.Password != "":
		u.User = url.UserPassword(c.Proxy.Username, c.Proxy.Password)
	case c.Proxy.Username != "":
		u.User = url.User(c.Proxy.Username)
	}
	return u, nil
}

// HTTPClient returns a client on a pooled transport that honours the proxy
// configuration. A zero timeout means no client-level timeout.
func (c Config) HTTPClient(timeout time.Duration) (*http.Client, error) {
	tr := cleanhttp.DefaultPooledTransport()

	proxyURL, err := c.ProxyURL()
	if err != nil {
		return nil, err
	}
	if proxyURL != nil {
		tr.Proxy = http.ProxyURL(proxyURL)
	}

	return &http.Client{Transport: tr, Timeout: timeout}, nil
}

// Authorize attaches the feed credentials to req, if any.
func (c Config) Authorize(req *http.Request) {
	if c.Auth == nil || c.Auth.APIKey == "" {
		return
	}

	if c.Auth.Scope == External {
		req.Header.Set("Authorization", "Basic "+c.Auth.APIKey)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.Auth.APIKey)
}

// Validate checks the settings that can only fail once they are used.
func (c Config) Validate() error {
	_, err := c.ProxyURL()
	return err
}

// Env returns the KEY=VALUE pairs describing this configuration to a child process.
func (c Config) Env() ([]string, error) {
	var env []string

	u, err := c.ProxyURL()
	if err != nil {
		return nil, err
	}
	if u != nil {
		env = append(env, EnvHTTPSProxy+"="+u.String(), EnvHTTPProxy+"="+u.String())
	}

	if c.Auth != nil {
		env = append(env,
			EnvFeedScope+"="+string(c.Auth.Scope),
			EnvFeedAPIKey+"="+c.Auth.APIKey,
		)
	}

	return env, nil
}
