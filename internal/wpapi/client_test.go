package wpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wpnas/wpnas/internal/errdefs"
	"github.com/wpnas/wpnas/internal/plugins"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts = append([]Option{
		WithHTTPClient(srv.Client()),
		WithBaseDelay(time.Millisecond),
	}, opts...)
	c, err := New(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func TestNew_InvalidURL(t *testing.T) {
	for _, u := range []string{"", "wp.test", "ftp://wp.test", "https://"} {
		_, err := New(u)
		assert.Error(t, err, u)
	}
}

func TestClient_Catalog(t *testing.T) {
	t.Run("decodes entries and skips broken ones", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/wp-json/wpnas-kit/v1/plugins", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Accept"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `[
				{"slug":"seo","plugin":"seo/seo.php","name":"SEO","tags":{"a":"seo"}},
				"oops",
				{"slug":"cache","plugin":"cache/cache.php","name":"Cache","tags":["speed"]}
			]`)
		}))

		got, err := c.Catalog(context.Background())
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "seo/seo.php", got[0].Plugin)
		assert.Equal(t, plugins.Tags{"seo"}, got[0].Tags)
		assert.Equal(t, "cache", got[1].Slug)
	})

	t.Run("non-array body is a fetch error", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"plugins":[]}`)
		}))

		_, err := c.Catalog(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, errdefs.ErrFetch)
		assert.Contains(t, err.Error(), "malformed catalog")
	})

	t.Run("html body is a fetch error", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `<html>maintenance</html>`)
		}))

		_, err := c.Catalog(context.Background())
		assert.ErrorIs(t, err, errdefs.ErrFetch)
	})
}

func TestClient_Retry(t *testing.T) {
	t.Run("retries 5xx then succeeds", func(t *testing.T) {
		var hits atomic.Int32
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = io.WriteString(w, `[]`)
		}))

		got, err := c.Catalog(context.Background())
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Equal(t, int32(3), hits.Load())
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		var hits atomic.Int32
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
		}), WithMaxRetries(2))

		_, err := c.Catalog(context.Background())
		require.Error(t, err)
		assert.Equal(t, int32(3), hits.Load())

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		var hits atomic.Int32
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"code":"rest_forbidden","message":"Sorry, you are not allowed to do that.","data":{"status":403}}`)
		}))

		_, err := c.LocalPlugins(context.Background())
		require.Error(t, err)
		assert.Equal(t, int32(1), hits.Load())
		assert.ErrorIs(t, err, errdefs.ErrLocalStatus)
		assert.Equal(t, "Sorry, you are not allowed to do that.", errdefs.UserMessage(err, "fallback"))
	})

	t.Run("writes are not retried", func(t *testing.T) {
		var hits atomic.Int32
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))

		err := c.Install(context.Background(), "seo")
		require.Error(t, err)
		assert.Equal(t, int32(1), hits.Load())
		assert.Equal(t, "Installation failed.", errdefs.UserMessage(err, "Installation failed."))
	})
}

func TestClient_Install(t *testing.T) {
	t.Run("posts slug with application password", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/wp-json/wpnas-kit/v1/install", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "admin", user)
			assert.Equal(t, "abcd efgh ijkl", pass)

			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, map[string]string{"slug": "seo-booster"}, body)
			_, _ = io.WriteString(w, `{"success":true}`)
		}), WithApplicationPassword("admin", "abcd efgh ijkl"))

		require.NoError(t, c.Install(context.Background(), "seo-booster"))
	})

	t.Run("server message surfaces", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"code":"folder_exists","message":"Destination folder already exists.","data":{"status":500}}`)
		}))

		err := c.Install(context.Background(), "seo")
		require.Error(t, err)
		assert.ErrorIs(t, err, errdefs.ErrInstall)
		assert.Equal(t, "Destination folder already exists.", errdefs.UserMessage(err, "Installation failed."))
	})
}

func TestClient_Activate(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/wp-json/wp/v2/plugins/foo/foo", r.URL.Path)
		assert.Equal(t, "n0nce", r.Header.Get("X-WP-Nonce"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "active", body["status"])
		_, _ = io.WriteString(w, `{"plugin":"foo/foo","status":"active"}`)
	}), WithNonce("n0nce"))

	require.NoError(t, c.Activate(context.Background(), "foo/foo.php"))
}

func TestClient_LocalPlugins(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"plugin":"foo/foo","status":"inactive","version":"1.0.0","name":"Foo"}]`)
	}))

	got, err := c.LocalPlugins(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, plugins.RawLocalPlugin{Plugin: "foo/foo", Status: plugins.StatusInactive, Version: "1.0.0", Name: "Foo"}, got[0])
}

func TestClient_CircuitBreaker(t *testing.T) {
	t.Run("opens after repeated server failures", func(t *testing.T) {
		var hits atomic.Int32
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}), WithMaxRetries(0), WithBreakerThreshold(2))

		for i := 0; i < 2; i++ {
			_, err := c.Catalog(context.Background())
			require.Error(t, err)
		}
		assert.Equal(t, "open", c.BreakerState())

		_, err := c.Catalog(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Equal(t, int32(2), hits.Load(), "open circuit short-circuits")
	})

	t.Run("client errors do not trip", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}), WithMaxRetries(0), WithBreakerThreshold(2))

		for i := 0; i < 4; i++ {
			_, err := c.LocalPlugins(context.Background())
			require.Error(t, err)
		}
		assert.Equal(t, "closed", c.BreakerState())
	})
}

func TestParseAPIError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		code    string
		message string
	}{
		{"rest error", 400, `{"code":"rest_invalid_param","message":"Invalid parameter(s): slug"}`, "rest_invalid_param", "Invalid parameter(s): slug"},
		{"entities decoded", 500, `{"code":"x","message":"Can&#8217;t install"}`, "x", "Can’t install"},
		{"plain text", 502, "bad gateway", "", "bad gateway"},
		{"html page", 503, "<html><body>down</body></html>", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := parseAPIError(tt.status, []byte(tt.body))
			assert.Equal(t, tt.status, e.StatusCode)
			assert.Equal(t, tt.code, e.Code)
			assert.Equal(t, tt.message, e.ServerMessage())
		})
	}
}
