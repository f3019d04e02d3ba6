package transport

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZebulonRouseFrantzich/usedotnet/internal/event"
)

func TestBuildAuth(t *testing.T) {
	tests := []struct {
		name       string
		in         Inputs
		wantAuth   *Auth
		wantEvents []event.Kind
	}{
		{
			name:       "no token",
			in:         Inputs{FeedType: "external"},
			wantAuth:   nil,
			wantEvents: nil,
		},
		{
			name:       "internal default",
			in:         Inputs{AuthToken: "tok"},
			wantAuth:   &Auth{Scope: Internal, Token: "tok", APIKey: "tok"},
			wantEvents: []event.Kind{event.InternalAuthSet, event.InternalAPIKeySet},
		},
		{
			name:       "internal explicit",
			in:         Inputs{AuthToken: "tok", FeedType: "Internal"},
			wantAuth:   &Auth{Scope: Internal, Token: "tok", APIKey: "tok"},
			wantEvents: []event.Kind{event.InternalAuthSet, event.InternalAPIKeySet},
		},
		{
			name: "external",
			in:   Inputs{AuthToken: "tok", FeedType: "EXTERNAL"},
			wantAuth: &Auth{
				Scope:  External,
				Token:  "tok",
				APIKey: base64.StdEncoding.EncodeToString([]byte("PAT:tok")),
			},
			wantEvents: []event.Kind{event.ExternalAuthSet, event.ExternalAPIKeySet},
		},
		{
			name:       "unknown feed type is internal",
			in:         Inputs{AuthToken: "tok", FeedType: "mirror"},
			wantAuth:   &Auth{Scope: Internal, Token: "tok", APIKey: "tok"},
			wantEvents: []event.Kind{event.InternalAuthSet, event.InternalAPIKeySet},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &event.Recorder{}
			cfg := Build(tt.in, rec)

			assert.Nil(t, cfg.Proxy)
			assert.Equal(t, tt.wantAuth, cfg.Auth)
			if tt.wantEvents == nil {
				assert.Empty(t, rec.Kinds())
			} else {
				assert.Equal(t, tt.wantEvents, rec.Kinds())
			}
		})
	}
}

func TestBuildProxyNeverReportsPassword(t *testing.T) {
	rec := &event.Recorder{}
	cfg := Build(Inputs{
		ProxyEnabled:  true,
		ProxyURL:      " http://proxy.local:8080 ",
		ProxyUsername: "alice",
		ProxyPassword: "s3cret",
	}, rec)

	require.NotNil(t, cfg.Proxy)
	assert.Equal(t, "http://proxy.local:8080", cfg.Proxy.URL)
	assert.Equal(t, []event.Kind{event.ProxyURLSet, event.ProxyUsernameSet, event.ProxyPasswordSet}, rec.Kinds())

	for _, e := range rec.Events() {
		assert.NotContains(t, e.Message(), "s3cret")
		assert.NotContains(t, e.URL, "s3cret")
	}
}

func TestBuildProxyDisabledIgnoresFields(t *testing.T) {
	cfg := Build(Inputs{ProxyURL: "http://proxy.local:8080"}, nil)
	assert.Nil(t, cfg.Proxy)
}

func TestProxyURL(t *testing.T) {
	cfg := Config{Proxy: &Proxy{URL: "http://proxy.local:8080", Username: "alice", Password: "pw"}}

	u, err := cfg.ProxyURL()
	require.NoError(t, err)
	assert.Equal(t, "http://alice:pw@proxy.local:8080", u.String())

	cfg.Proxy.Password = ""
	u, err = cfg.ProxyURL()
	require.NoError(t, err)
	assert.Equal(t, "http://alice@proxy.local:8080", u.String())

	_, err = Config{Proxy: &Proxy{URL: "proxy.local"}}.ProxyURL()
	assert.Error(t, err)

	u, err = Config{}.ProxyURL()
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestAuthorize(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://feed.example/pkg", nil)
	Config{}.Authorize(req)
	assert.Empty(t, req.Header.Get("Authorization"))

	internal := Build(Inputs{AuthToken: "tok"}, nil)
	internal.Authorize(req)
	assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))

	external := Build(Inputs{AuthToken: "tok", FeedType: "external"}, nil)
	external.Authorize(req)
	assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("PAT:tok")), req.Header.Get("Authorization"))
}

func TestHTTPClientUsesProxy(t *testing.T) {
	var sawProxyRequest bool
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawProxyRequest = strings.HasPrefix(r.RequestURI, "http://origin.invalid/")
		w.WriteHeader(http.StatusTeapot)
	}))
	defer proxy.Close()

	cfg := Config{Proxy: &Proxy{URL: proxy.URL}}
	client, err := cfg.HTTPClient(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, client.Timeout)

	resp, err := client.Get("http://origin.invalid/archive.tar.gz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.True(t, sawProxyRequest, "request should be sent through the proxy")
}

func TestHTTPClientInvalidProxy(t *testing.T) {
	_, err := Config{Proxy: &Proxy{URL: "::bad"}}.HTTPClient(0)
	assert.Error(t, err)
}

func TestEnv(t *testing.T) {
	env, err := Config{}.Env()
	require.NoError(t, err)
	assert.Empty(t, env)

	cfg := Build(Inputs{
		ProxyEnabled:  true,
		ProxyURL:      "http://proxy.local:3128",
		ProxyUsername: "bob",
		ProxyPassword: "pw",
		AuthToken:     "tok",
		FeedType:      "external",
	}, nil)

	env, err = cfg.Env()
	require.NoError(t, err)
	assert.Contains(t, env, "HTTPS_PROXY=http://bob:pw@proxy.local:3128")
	assert.Contains(t, env, "HTTP_PROXY=http://bob:pw@proxy.local:3128")
	assert.Contains(t, env, "USEDOTNET_FEED_SCOPE=external")
	assert.Contains(t, env, "USEDOTNET_FEED_API_KEY="+base64.StdEncoding.EncodeToString([]byte("PAT:tok")))
}

func TestInvalidProxyIsReported(t *testing.T) {
	cfg := Build(Inputs{ProxyEnabled: true, ProxyURL: "proxy.local:3128"}, nil)

	assert.Error(t, cfg.Validate())

	env, err := cfg.Env()
	assert.Error(t, err)
	assert.Nil(t, env)

	assert.NoError(t, Config{}.Validate())
	assert.NoError(t, Build(Inputs{ProxyEnabled: true, ProxyURL: "http://proxy.local:3128"}, nil).Validate())
}
