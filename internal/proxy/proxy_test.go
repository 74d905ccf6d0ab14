package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wpnas/wpnas/internal/plugins"
)

func newTestProxy(t *testing.T, upstream string, cache *Cache) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(upstream, http.DefaultClient, cache).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestCache(t *testing.T) {
	t.Run("miss on empty fs", func(t *testing.T) {
		c := NewCache(afero.NewMemMapFs(), "/cache/catalog.json", time.Hour, "")
		_, ok, err := c.Get()
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("round trip until ttl", func(t *testing.T) {
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		c := NewCache(afero.NewMemMapFs(), "/cache/catalog.json", time.Hour, "")
		c.now = func() time.Time { return now }

		require.NoError(t, c.Set(json.RawMessage(`[{"slug":"a"}]`)))
		data, ok, err := c.Get()
		require.NoError(t, err)
		require.True(t, ok)
		assert.JSONEq(t, `[{"slug":"a"}]`, string(data))

		now = now.Add(time.Hour)
		_, ok, err = c.Get()
		require.NoError(t, err)
		assert.False(t, ok, "expired")
	})

	t.Run("corrupt file is a miss", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/c.json", []byte("{nope"), 0600))
		_, ok, err := NewCache(fs, "/c.json", time.Hour, "").Get()
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("clear", func(t *testing.T) {
		c := NewCache(afero.NewMemMapFs(), "/c.json", time.Hour, "")
		require.NoError(t, c.Clear())
		require.NoError(t, c.Set(json.RawMessage(`[]`)))
		require.NoError(t, c.Clear())
		_, ok, _ := c.Get()
		assert.False(t, ok)
	})

	t.Run("with file lock", func(t *testing.T) {
		dir := t.TempDir()
		c := NewCache(afero.NewOsFs(), filepath.Join(dir, "catalog.json"), time.Hour, filepath.Join(dir, "catalog.lock"))
		require.NoError(t, c.Set(json.RawMessage(`[1]`)))
		data, ok, err := c.Get()
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "[1]", string(data))
	})

	t.Run("concurrent writers and readers", func(t *testing.T) {
		dir := t.TempDir()
		c := NewCache(afero.NewOsFs(), filepath.Join(dir, "catalog.json"), time.Hour, filepath.Join(dir, "catalog.lock"))

		var wg sync.WaitGroup
		errs := make(chan error, 200)
		for i := 0; i < 8; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					errs <- c.Set(json.RawMessage(fmt.Sprintf(`[%d]`, i*10+j)))
				}
			}()
			go func() {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					data, ok, err := c.Get()
					if err == nil && ok && !json.Valid(data) {
						err = fmt.Errorf("torn read: %q", data)
					}
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			assert.NoError(t, err)
		}
		_, ok, err := c.Get()
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestProxy_Plugins(t *testing.T) {
	t.Run("fetches once then serves from cache", func(t *testing.T) {
		var hits atomic.Int32
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			_, _ = io.WriteString(w, `[{"slug":"seo","plugin":"seo/seo.php","name":"SEO"}]`)
		}))
		defer upstream.Close()

		cache := NewCache(afero.NewMemMapFs(), "/catalog.json", 24*time.Hour, "")
		srv := newTestProxy(t, upstream.URL, cache)

		for _, path := range []string{"/wpnas-kit/v1/plugins", "/wp-json/wpnas-kit/v1/plugins"} {
			status, body := get(t, srv.URL+path)
			assert.Equal(t, http.StatusOK, status)
			assert.JSONEq(t, `[{"slug":"seo","plugin":"seo/seo.php","name":"SEO"}]`, string(body))
		}
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("non-array body yields empty list and is not cached", func(t *testing.T) {
		var hits atomic.Int32
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			_, _ = io.WriteString(w, `{"error":"nope"}`)
		}))
		defer upstream.Close()

		srv := newTestProxy(t, upstream.URL, NewCache(afero.NewMemMapFs(), "/catalog.json", time.Hour, ""))
		for i := 0; i < 2; i++ {
			status, body := get(t, srv.URL+"/wpnas-kit/v1/plugins")
			assert.Equal(t, http.StatusOK, status)
			assert.JSONEq(t, `[]`, string(body))
		}
		assert.Equal(t, int32(2), hits.Load())
	})

	t.Run("unreachable upstream yields placeholder entry", func(t *testing.T) {
		upstream := httptest.NewServer(http.NotFoundHandler())
		url := upstream.URL
		upstream.Close()

		srv := newTestProxy(t, url, NewCache(afero.NewMemMapFs(), "/catalog.json", time.Hour, ""))
		status, body := get(t, srv.URL+"/wpnas-kit/v1/plugins")
		assert.Equal(t, http.StatusOK, status)

		var got []plugins.RawRemotePlugin
		require.NoError(t, json.Unmarshal(body, &got))
		require.Len(t, got, 1)
		assert.Equal(t, ConnectionFailedSlug, got[0].Slug)
		assert.Equal(t, "Connection Failed", got[0].Name)
		assert.Equal(t, "0.0.0", got[0].Version)
		assert.Equal(t, "System", got[0].Author)
		assert.Contains(t, got[0].Description, "Could not connect to update server. Error: ")
	})

	t.Run("flush drops the cache", func(t *testing.T) {
		var hits atomic.Int32
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			_, _ = io.WriteString(w, `[]`)
		}))
		defer upstream.Close()

		srv := newTestProxy(t, upstream.URL, NewCache(afero.NewMemMapFs(), "/catalog.json", time.Hour, ""))
		get(t, srv.URL+"/wpnas-kit/v1/plugins")

		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/wpnas-kit/v1/plugins/cache", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		get(t, srv.URL+"/wpnas-kit/v1/plugins")
		assert.Equal(t, int32(2), hits.Load())
	})
}

func TestProxy_Healthz(t *testing.T) {
	srv := newTestProxy(t, "http://127.0.0.1:1", NewCache(afero.NewMemMapFs(), "/c.json", time.Hour, ""))
	status, body := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}
