// Package download fetches tool archives over HTTP.
//
// Fetch tries the primary URL of a resolver.URLSet and falls back to the
// legacy URL only when the primary location does not exist (404 or 410).
// Every other failure is final. There are no retries.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ZebulonRouseFrantzich/usedotnet/internal/event"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/resolver"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/transport"
)

const (
	// DefaultTimeout is the default timeout of a single HTTP request
	DefaultTimeout = 10 * time.Minute
	// DefaultUserAgent is the User-Agent header sent with requests
	DefaultUserAgent = "usedotnet/1.0"

	maxRedirects = 10
)

var (
	// ErrDownloadFailed is returned when no archive could be downloaded.
	ErrDownloadFailed = errors.New("download failed")

	// ErrNotFound matches an Error of KindNotFound.
	ErrNotFound = errors.New("not found")
)

// Kind classifies a download failure.
type Kind int

const (
	// KindNotFound means the server answered 404 or 410.
	KindNotFound Kind = iota
	// KindStatus is any other unexpected HTTP status.
	KindStatus
	// KindTransport covers connection, TLS and timeout errors.
	KindTransport
	// KindIO is a local filesystem failure.
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindStatus:
		return "unexpected status"
	case KindTransport:
		return "transport error"
	case KindIO:
		return "io error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error describes a failed request for a single URL.
type Error struct {
	Kind       Kind
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (HTTP %d)", e.URL, e.Kind, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.URL, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrNotFound) true for not-found errors.
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Kind == KindNotFound
}

// Fetched describes a completed download.
type Fetched struct {
	// Path is the downloaded file.
	Path string
	// URL is the location it was downloaded from.
	URL string
	// Legacy is true when the primary URL was not found.
	Legacy bool
}

// Downloader performs HTTP downloads through a transport.Config.
type Downloader struct {
	timeout   time.Duration
	userAgent string
	reporter  event.Reporter
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithTimeout sets the per-request timeout. Zero disables the client timeout.
func WithTimeout(d time.Duration) Option {
	return func(dl *Downloader) {
		if d >= 0 {
			dl.timeout = d
		}
	}
}

// WithUserAgent overrides DefaultUserAgent.
func WithUserAgent(ua string) Option {
	return func(dl *Downloader) {
		if ua != "" {
			dl.userAgent = ua
		}
	}
}

// WithReporter sets the event reporter.
func WithReporter(r event.Reporter) Option {
	return func(dl *Downloader) {
		if r != nil {
			dl.reporter = r
		}
	}
}

// New creates a Downloader.
func New(opts ...Option) *Downloader {
	d := &Downloader{
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
		reporter:  event.Discard,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fetch downloads urls.Primary, or urls.Legacy if the primary location does
// not exist, into destDir/name.
func (d *Downloader) Fetch(ctx context.Context, urls resolver.URLSet, tc transport.Config, destDir, name string) (*Fetched, error) {
	client, err := d.client(tc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	destPath := filepath.Join(destDir, name)

	d.reporter.Report(event.Event{Kind: event.DownloadingPrimary, URL: urls.Primary})
	primaryErr := d.get(ctx, client, tc, urls.Primary, destPath)
	if primaryErr == nil {
		return &Fetched{Path: destPath, URL: urls.Primary}, nil
	}
	if !errors.Is(primaryErr, ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, primaryErr)
	}

	d.reporter.Report(event.Event{Kind: event.PrimaryURLFailed, URL: urls.Primary, Err: primaryErr})
	d.reporter.Report(event.Event{Kind: event.DownloadingLegacy, URL: urls.Legacy})

	if err := d.get(ctx, client, tc, urls.Legacy, destPath); err != nil {
		return nil, fmt.Errorf("%w: primary %s not found, legacy: %w", ErrDownloadFailed, urls.Primary, err)
	}
	return &Fetched{Path: destPath, URL: urls.Legacy, Legacy: true}, nil
}

// DownloadToFile downloads a single URL to destPath without any fallback.
func (d *Downloader) DownloadToFile(ctx context.Context, url string, tc transport.Config, destPath string) error {
	client, err := d.client(tc)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	if err := d.get(ctx, client, tc, url, destPath); err != nil {
		return fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	return nil
}

func (d *Downloader) client(tc transport.Config) (*http.Client, error) {
	client, err := tc.HTTPClient(d.timeout)
	if err != nil {
		return nil, err
	}
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("too many redirects")
		}
		return nil
	}
	return client, nil
}

// get performs one request and writes a 200 response body to destPath via a
// temporary file in the same directory.
func (d *Downloader) get(ctx context.Context, client *http.Client, tc transport.Config, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &Error{Kind: KindTransport, URL: url, Err: err}
	}
	req.Header.Set("User-Agent", d.userAgent)
	tc.Authorize(req)

	resp, err := client.Do(req)
	if err != nil {
		return &Error{Kind: KindTransport, URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusGone:
		return &Error{Kind: KindNotFound, URL: url, StatusCode: resp.StatusCode}
	default:
		return &Error{Kind: KindStatus, URL: url, StatusCode: resp.StatusCode}
	}

	destDir := filepath.Dir(destPath)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return &Error{Kind: KindIO, URL: url, Err: fmt.Errorf("create dest dir: %w", err)}
	}

	tmpFile, err := os.CreateTemp(destDir, "."+filepath.Base(destPath)+".*.tmp")
	if err != nil {
		return &Error{Kind: KindIO, URL: url, Err: fmt.Errorf("create temp file: %w", err)}
	}
	tmpPath := tmpFile.Name()

	// Track whether we need to clean up the temp file
	cleanupNeeded := true
	defer func() {
		_ = tmpFile.Close()
		if cleanupNeeded {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		return &Error{Kind: KindTransport, URL: url, Err: fmt.Errorf("copy response body: %w", err)}
	}

	if err := tmpFile.Close(); err != nil {
		return &Error{Kind: KindIO, URL: url, Err: fmt.Errorf("close temp file: %w", err)}
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return &Error{Kind: KindIO, URL: url, Err: fmt.Errorf("rename temp file: %w", err)}
	}

	cleanupNeeded = false
	return nil
}
