// Package proxy serves the catalog route of the WordPress site from a cached
// copy of the upstream catalog.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wpnas/wpnas/internal/config"
	"github.com/wpnas/wpnas/internal/log"
	"github.com/wpnas/wpnas/internal/plugins"
)

// ConnectionFailedSlug marks the placeholder entry served when the upstream
// cannot be reached.
const ConnectionFailedSlug = "connection-failed"

type Server struct {
	upstream string
	client   *http.Client
	cache    *Cache
}

func New(upstream string, client *http.Client, cache *Cache) *Server {
	return &Server{upstream: upstream, client: client, cache: cache}
}

// Routes mounts the catalog under its REST path, with and without the
// /wp-json prefix, so a wpapi client can use the proxy as its site URL.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get(config.DefaultCatalogPath, s.handlePlugins)
	r.Get("/wp-json"+config.DefaultCatalogPath, s.handlePlugins)
	r.Delete(config.DefaultCatalogPath+"/cache", s.handleFlush)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	if data, ok, err := s.cache.Get(); err != nil {
		log.Warn("catalog cache read failed", "err", err)
	} else if ok {
		writeRaw(w, http.StatusOK, data)
		return
	}

	body, err := s.fetch(r.Context())
	if err != nil {
		log.Warn("upstream catalog unreachable", "upstream", s.upstream, "err", err)
		writeJSON(w, http.StatusOK, []plugins.RawRemotePlugin{{
			Slug:        ConnectionFailedSlug,
			Name:        "Connection Failed",
			Description: "Could not connect to update server. Error: " + err.Error(),
			Version:     "0.0.0",
			Author:      "System",
		}})
		return
	}

	trimmed := bytes.TrimSpace(body)
	var probe []json.RawMessage
	if len(trimmed) == 0 || trimmed[0] != '[' || json.Unmarshal(trimmed, &probe) != nil {
		// not cached, so a recovered upstream is picked up on the next request
		writeJSON(w, http.StatusOK, []any{})
		return
	}

	if err := s.cache.Set(trimmed); err != nil {
		log.Warn("catalog cache write failed", "err", err)
	}
	writeRaw(w, http.StatusOK, trimmed)
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	if err := s.cache.Clear(); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"code": "cache_error", "message": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fetch returns the upstream body. Only transport failures are errors; any
// HTTP response, whatever its status, is returned for shape checking.
func (s *Server) fetch(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.upstream, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(io.LimitReader(resp.Body, 32<<20))
}

func writeRaw(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, data)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug("proxy request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
