package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZebulonRouseFrantzich/usedotnet/internal/event"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/resolver"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/transport"
)

// feed serves fixed status codes per path and counts hits.
type feed struct {
	server *httptest.Server
	status map[string]int
	hits   map[string]*atomic.Int32
}

func newFeed(t *testing.T, status map[string]int) *feed {
	t.Helper()

	f := &feed{status: status, hits: map[string]*atomic.Int32{}}
	for path := range status {
		f.hits[path] = &atomic.Int32{}
	}

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code, ok := f.status[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		f.hits[r.URL.Path].Add(1)
		w.WriteHeader(code)
		if code == http.StatusOK {
			_, _ = w.Write([]byte("archive from " + r.URL.Path))
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *feed) url(path string) string { return f.server.URL + path }

func (f *feed) count(path string) int32 { return f.hits[path].Load() }

func TestFetchPrimary(t *testing.T) {
	f := newFeed(t, map[string]int{"/primary": http.StatusOK, "/legacy": http.StatusOK})
	rec := &event.Recorder{}
	dest := t.TempDir()

	got, err := New(WithReporter(rec)).Fetch(context.Background(),
		resolver.URLSet{Primary: f.url("/primary"), Legacy: f.url("/legacy")},
		transport.Config{}, dest, "dncs-1.0.4-x64.tar.gz")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dest, "dncs-1.0.4-x64.tar.gz"), got.Path)
	assert.Equal(t, f.url("/primary"), got.URL)
	assert.False(t, got.Legacy)

	content, err := os.ReadFile(got.Path)
	require.NoError(t, err)
	assert.Equal(t, "archive from /primary", string(content))

	assert.Equal(t, int32(0), f.count("/legacy"))
	assert.Equal(t, []event.Kind{event.DownloadingPrimary}, rec.Kinds())
}

func TestFetchFallsBackOnNotFound(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusGone} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			f := newFeed(t, map[string]int{"/primary": code, "/legacy": http.StatusOK})
			rec := &event.Recorder{}

			got, err := New(WithReporter(rec)).Fetch(context.Background(),
				resolver.URLSet{Primary: f.url("/primary"), Legacy: f.url("/legacy")},
				transport.Config{}, t.TempDir(), "a.zip")
			require.NoError(t, err)
			assert.True(t, got.Legacy)
			assert.Equal(t, f.url("/legacy"), got.URL)

			assert.Equal(t, int32(1), f.count("/primary"))
			assert.Equal(t, int32(1), f.count("/legacy"))

			assert.Equal(t, []event.Kind{event.DownloadingPrimary, event.PrimaryURLFailed, event.DownloadingLegacy}, rec.Kinds())
			failed := rec.Events()[1]
			assert.True(t, failed.Warning())
			assert.Equal(t, "404 not found "+f.url("/primary"), failed.Message())
			assert.Equal(t, "Downloading tool from "+f.url("/legacy"), rec.Events()[2].Message())
		})
	}
}

func TestFetchLegacyFailure(t *testing.T) {
	f := newFeed(t, map[string]int{"/primary": http.StatusNotFound, "/legacy": http.StatusNotFound})

	_, err := New().Fetch(context.Background(),
		resolver.URLSet{Primary: f.url("/primary"), Legacy: f.url("/legacy")},
		transport.Config{}, t.TempDir(), "a.zip")
	require.ErrorIs(t, err, ErrDownloadFailed)
	assert.Contains(t, err.Error(), f.url("/primary"))
	assert.Contains(t, err.Error(), f.url("/legacy"))
	assert.Equal(t, int32(1), f.count("/legacy"), "legacy is attempted exactly once")
}

func TestFetchNoFallbackOnOtherErrors(t *testing.T) {
	for _, code := range []int{http.StatusInternalServerError, http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			f := newFeed(t, map[string]int{"/primary": code, "/legacy": http.StatusOK})
			rec := &event.Recorder{}

			_, err := New(WithReporter(rec)).Fetch(context.Background(),
				resolver.URLSet{Primary: f.url("/primary"), Legacy: f.url("/legacy")},
				transport.Config{}, t.TempDir(), "a.zip")
			require.ErrorIs(t, err, ErrDownloadFailed)
			assert.NotErrorIs(t, err, ErrNotFound)

			var dlErr *Error
			require.ErrorAs(t, err, &dlErr)
			assert.Equal(t, KindStatus, dlErr.Kind)
			assert.Equal(t, code, dlErr.StatusCode)

			assert.Equal(t, int32(0), f.count("/legacy"))
			assert.False(t, rec.Has(event.PrimaryURLFailed))
		})
	}
}

func TestFetchTransportErrorNoFallback(t *testing.T) {
	f := newFeed(t, map[string]int{"/legacy": http.StatusOK})

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL + "/primary"
	dead.Close()

	_, err := New().Fetch(context.Background(),
		resolver.URLSet{Primary: deadURL, Legacy: f.url("/legacy")},
		transport.Config{}, t.TempDir(), "a.zip")
	require.ErrorIs(t, err, ErrDownloadFailed)

	var dlErr *Error
	require.ErrorAs(t, err, &dlErr)
	assert.Equal(t, KindTransport, dlErr.Kind)
	assert.Equal(t, int32(0), f.count("/legacy"))
}

func TestFetchTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()

	_, err := New(WithTimeout(100*time.Millisecond)).Fetch(context.Background(),
		resolver.URLSet{Primary: slow.URL + "/a", Legacy: slow.URL + "/b"},
		transport.Config{}, t.TempDir(), "a.zip")
	require.ErrorIs(t, err, ErrDownloadFailed)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestFetchSendsAuthorizationAndUserAgent(t *testing.T) {
	var gotAuth, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	tc := transport.Build(transport.Inputs{AuthToken: "tok"}, nil)
	_, err := New(WithUserAgent("agent/2.0")).Fetch(context.Background(),
		resolver.URLSet{Primary: server.URL + "/a", Legacy: server.URL + "/b"},
		tc, t.TempDir(), "a.zip")
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "agent/2.0", gotUA)
}

func TestFetchLeavesNoTempFiles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		_, _ = w.Write([]byte("truncated"))
	}))
	defer server.Close()

	dest := t.TempDir()
	_, err := New().Fetch(context.Background(),
		resolver.URLSet{Primary: server.URL + "/a", Legacy: server.URL + "/b"},
		transport.Config{}, dest, "a.zip")
	require.Error(t, err)

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetchContextCancelled(t *testing.T) {
	f := newFeed(t, map[string]int{"/primary": http.StatusOK})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Fetch(ctx, resolver.URLSet{Primary: f.url("/primary"), Legacy: f.url("/primary")},
		transport.Config{}, t.TempDir(), "a.zip")
	require.ErrorIs(t, err, ErrDownloadFailed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDownloadToFile(t *testing.T) {
	f := newFeed(t, map[string]int{"/a.sig": http.StatusOK, "/missing.sig": http.StatusNotFound})
	dest := filepath.Join(t.TempDir(), "nested", "a.sig")

	require.NoError(t, New().DownloadToFile(context.Background(), f.url("/a.sig"), transport.Config{}, dest))
	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "archive from /a.sig", string(content))

	err = New().DownloadToFile(context.Background(), f.url("/missing.sig"), transport.Config{}, dest+"2")
	assert.ErrorIs(t, err, ErrDownloadFailed)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "https://x/a: not found (HTTP 404)",
		(&Error{Kind: KindNotFound, URL: "https://x/a", StatusCode: 404}).Error())
	assert.Equal(t, "https://x/a: io error", (&Error{Kind: KindIO, URL: "https://x/a"}).Error())
	assert.Equal(t, "kind(9)", Kind(9).String())
}
