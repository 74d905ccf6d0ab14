// Package wpapi is a client for the WordPress REST routes the browser needs:
// the remote catalog, the local plugin list, install and activate.
package wpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"

	"github.com/wpnas/wpnas/internal/config"
	"github.com/wpnas/wpnas/internal/errdefs"
	"github.com/wpnas/wpnas/internal/log"
	"github.com/wpnas/wpnas/internal/plugins"
)

const maxErrorBody = 64 << 10

type Client struct {
	http      *http.Client
	restBase  string
	userAgent string

	catalogPath string
	localPath   string
	installPath string

	username    string
	appPassword string
	nonce       string

	maxRetries       int
	baseDelay        time.Duration
	breakerThreshold int64
	breaker          *circuit.Breaker
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithUserAgent(ua string) Option {
	return func(cl *Client) { cl.userAgent = ua }
}

// WithMaxRetries bounds retries of idempotent requests.
func WithMaxRetries(n int) Option {
	return func(cl *Client) { cl.maxRetries = n }
}

// WithBaseDelay sets the first retry delay; later ones grow exponentially.
func WithBaseDelay(d time.Duration) Option {
	return func(cl *Client) { cl.baseDelay = d }
}

// WithApplicationPassword authenticates with HTTP basic auth.
func WithApplicationPassword(username, password string) Option {
	return func(cl *Client) {
		cl.username = username
		cl.appPassword = password
	}
}

// WithNonce authenticates with a cookie nonce sent as X-WP-Nonce.
func WithNonce(nonce string) Option {
	return func(cl *Client) { cl.nonce = nonce }
}

func WithPaths(catalog, local, install string) Option {
	return func(cl *Client) {
		if catalog != "" {
			cl.catalogPath = catalog
		}
		if local != "" {
			cl.localPath = local
		}
		if install != "" {
			cl.installPath = install
		}
	}
}

// WithBreakerThreshold sets how many failures open the circuit.
func WithBreakerThreshold(n int64) Option {
	return func(cl *Client) { cl.breakerThreshold = n }
}

// New creates a client for the site at siteURL (the WordPress home, without
// /wp-json).
func New(siteURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(siteURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid site url %q", siteURL)
	}

	c := &Client{
		restBase:         strings.TrimSuffix(u.String(), "/") + "/wp-json",
		userAgent:        "wpnas/1.0",
		catalogPath:      config.DefaultCatalogPath,
		localPath:        config.DefaultLocalPath,
		installPath:      config.DefaultInstallPath,
		maxRetries:       3,
		baseDelay:        500 * time.Millisecond,
		breakerThreshold: 5,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = NewHTTPClient(30*time.Second, false)
	}
	c.breaker = newBreaker(c.breakerThreshold)
	return c, nil
}

// NewFromConfig builds a client from the loaded configuration.
func NewFromConfig(cfg *config.Config) (*Client, error) {
	opts := []Option{
		WithHTTPClient(NewHTTPClient(cfg.HTTP.Timeout.Duration, cfg.Proxy.InsecureSkipVerify)),
		WithMaxRetries(cfg.HTTP.MaxRetries),
		WithPaths(cfg.CatalogPath, cfg.LocalPath, cfg.InstallPath),
	}
	if cfg.HTTP.UserAgent != "" {
		opts = append(opts, WithUserAgent(cfg.HTTP.UserAgent))
	}
	if cfg.Username != "" && cfg.AppPassword != "" {
		opts = append(opts, WithApplicationPassword(cfg.Username, cfg.AppPassword))
	}
	if cfg.Nonce != "" {
		opts = append(opts, WithNonce(cfg.Nonce))
	}
	return New(cfg.SiteURL, opts...)
}

func newBreaker(threshold int64) *circuit.Breaker {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	return circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(threshold),
	})
}

// BreakerState is "open" while the circuit is tripped, else "closed".
func (c *Client) BreakerState() string {
	if c.breaker.Tripped() {
		return "open"
	}
	return "closed"
}

// Catalog fetches the remote catalog. A body that is not a JSON array is a
// FetchError; entries that do not decode are skipped.
func (c *Client) Catalog(ctx context.Context) ([]plugins.RawRemotePlugin, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.catalogPath, nil, &raw); err != nil {
		return nil, errdefs.NewFetchError("failed to fetch catalog", err)
	}

	entries, err := decodeArray(raw)
	if err != nil {
		return nil, errdefs.NewFetchError("malformed catalog", err)
	}

	out := make([]plugins.RawRemotePlugin, 0, len(entries))
	for i, entry := range entries {
		var rp plugins.RawRemotePlugin
		if err := json.Unmarshal(entry, &rp); err != nil {
			log.Debug("skipping undecodable catalog entry", "index", i, "err", err)
			continue
		}
		out = append(out, rp)
	}
	return out, nil
}

// LocalPlugins lists the plugins installed on the site.
func (c *Client) LocalPlugins(ctx context.Context) ([]plugins.RawLocalPlugin, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.localPath, nil, &raw); err != nil {
		return nil, errdefs.NewLocalStatusError("failed to fetch local plugins", err)
	}

	entries, err := decodeArray(raw)
	if err != nil {
		return nil, errdefs.NewLocalStatusError("malformed local plugin list", err)
	}

	out := make([]plugins.RawLocalPlugin, 0, len(entries))
	for _, entry := range entries {
		var lp plugins.RawLocalPlugin
		if err := json.Unmarshal(entry, &lp); err != nil {
			continue
		}
		out = append(out, lp)
	}
	return out, nil
}

// Install asks the site to download and install the plugin with slug.
func (c *Client) Install(ctx context.Context, slug string) error {
	body := map[string]string{"slug": slug}
	if err := c.do(ctx, http.MethodPost, c.installPath, body, nil); err != nil {
		return errdefs.NewInstallError("failed to install "+slug, err)
	}
	return nil
}

// Activate sets the plugin's status to active.
func (c *Client) Activate(ctx context.Context, pluginFile string) error {
	path := c.localPath + "/" + escapePluginPath(pluginFile)
	body := map[string]string{"status": "active"}
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return errdefs.NewActivateError("failed to activate "+pluginFile, err)
	}
	return nil
}

// escapePluginPath yields the REST route form of a plugin id: no .php and
// each segment escaped.
func escapePluginPath(pluginFile string) string {
	id := strings.TrimSuffix(strings.TrimSpace(pluginFile), ".php")
	parts := strings.Split(id, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func decodeArray(raw json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.New("response is not a JSON array")
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// do runs one request through the circuit breaker. GETs are retried with
// exponential backoff on transient failures; writes are sent once.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if !c.breaker.Ready() {
		return fmt.Errorf("circuit open for %s: %w", c.restBase, ErrUnavailable)
	}

	var clientErr error
	err := c.breaker.Call(func() error {
		err := c.withRetry(ctx, method, func() error {
			return c.once(ctx, method, path, body, out)
		})
		if err != nil && !transient(err) {
			// the site answered; do not count it against the breaker
			clientErr = err
			return nil
		}
		return err
	}, 0)
	if errors.Is(err, circuit.ErrBreakerOpen) {
		return fmt.Errorf("circuit open for %s: %w", c.restBase, ErrUnavailable)
	}
	if err != nil {
		return err
	}
	return clientErr
}

func (c *Client) withRetry(ctx context.Context, method string, fn func() error) error {
	if method != http.MethodGet || c.maxRetries <= 0 {
		return fn()
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.baseDelay
	exp.RandomizationFactor = 0.1
	exp.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.maxRetries)), ctx)
	b.Reset()

	for {
		err := fn()
		if err == nil || !transient(err) || ctx.Err() != nil {
			return err
		}

		next := b.NextBackOff()
		if next == backoff.Stop {
			return err
		}
		log.Debug("retrying request", "err", err, "delay", next)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(next):
		}
	}
}

func (c *Client) once(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &decodeError{err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.restBase+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" && c.appPassword != "" {
		req.SetBasicAuth(c.username, c.appPassword)
	}
	if c.nonce != "" {
		req.Header.Set("X-WP-Nonce", c.nonce)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return parseAPIError(resp.StatusCode, data)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &decodeError{err}
	}
	return nil
}
