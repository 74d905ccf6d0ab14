package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultCatalogPath = "/wpnas-kit/v1/plugins"
	DefaultLocalPath   = "/wp/v2/plugins"
	DefaultInstallPath = "/wpnas-kit/v1/install"
	DefaultPerPage     = 20
)

// Duration is a time.Duration that reads and writes as "24h"-style text in TOML.
type Duration struct{ time.Duration }

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

type SearchConfig struct {
	BoostName        float64 `toml:"boost_name"`
	BoostIdentifier  float64 `toml:"boost_identifier"`
	BoostTags        float64 `toml:"boost_tags"`
	BoostDescription float64 `toml:"boost_description"`
	Fuzzy            float64 `toml:"fuzzy"`
	Prefix           bool    `toml:"prefix"`
}

type HTTPConfig struct {
	Timeout    Duration `toml:"timeout"`
	MaxRetries int      `toml:"max_retries"`
	UserAgent  string   `toml:"user_agent"`
}

type ProxyConfig struct {
	UpstreamURL        string   `toml:"upstream_url"`
	Listen             string   `toml:"listen"`
	CacheTTL           Duration `toml:"cache_ttl"`
	InsecureSkipVerify bool     `toml:"insecure_skip_verify"`
}

type Config struct {
	SiteURL     string `toml:"site_url"`
	CatalogPath string `toml:"catalog_path"`
	LocalPath   string `toml:"local_path"`
	InstallPath string `toml:"install_path"`
	CatalogBase string `toml:"catalog_base"`

	Username    string `toml:"username"`
	AppPassword string `toml:"app_password,omitempty"`
	Nonce       string `toml:"nonce,omitempty"`

	PerPage  int    `toml:"per_page"`
	LogLevel string `toml:"log_level"`
	DataDir  string `toml:"data_dir"`

	Search SearchConfig `toml:"search"`
	HTTP   HTTPConfig   `toml:"http"`
	Proxy  ProxyConfig  `toml:"proxy"`
}

func Default() *Config {
	return &Config{
		CatalogPath: DefaultCatalogPath,
		LocalPath:   DefaultLocalPath,
		InstallPath: DefaultInstallPath,
		CatalogBase: "https://wpnas-club.local/plugins/",
		PerPage:     DefaultPerPage,
		LogLevel:    "info",
		DataDir:     GetDefaultDataDir(),
		Search: SearchConfig{
			BoostName:        5,
			BoostIdentifier:  3,
			BoostTags:        2,
			BoostDescription: 1,
			Fuzzy:            0.2,
			Prefix:           true,
		},
		HTTP: HTTPConfig{
			Timeout:    Duration{30 * time.Second},
			MaxRetries: 3,
			UserAgent:  "wpnas/1.0",
		},
		Proxy: ProxyConfig{
			UpstreamURL: "https://wpnas.local/wp-json/wpnas/v2/plugins/",
			Listen:      "127.0.0.1:8787",
			CacheTTL:    Duration{24 * time.Hour},
		},
	}
}

// Load reads path (or the default config file when path is empty). A missing
// file yields the defaults; env overrides are applied either way.
func Load(path string) (*Config, error) {
	if path == "" {
		path = GetConfigFilePath()
	}

	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("WPNAS_SITE_URL"); v != "" {
		c.SiteURL = v
	}
	if v := os.Getenv("WPNAS_USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("WPNAS_APP_PASSWORD"); v != "" {
		c.AppPassword = v
	}
	if v := os.Getenv("WPNAS_NONCE"); v != "" {
		c.Nonce = v
	}
	if v := os.Getenv("WPNAS_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("WPNAS_DATA_DIR"); v != "" {
		c.DataDir = v
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.SiteURL) == "" {
		return errors.New("site_url is required")
	}
	if !strings.HasPrefix(c.SiteURL, "http://") && !strings.HasPrefix(c.SiteURL, "https://") {
		return fmt.Errorf("site_url must be an http(s) URL: %s", c.SiteURL)
	}
	if c.PerPage <= 0 {
		return fmt.Errorf("per_page must be positive, got %d", c.PerPage)
	}
	if c.Search.Fuzzy < 0 || c.Search.Fuzzy >= 1 {
		return fmt.Errorf("search.fuzzy must be in [0,1), got %v", c.Search.Fuzzy)
	}
	return nil
}

// Save writes the config with owner-only permissions since it may hold an
// application password.
func (c *Config) Save(path string) error {
	if path == "" {
		path = GetConfigFilePath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

func (c *Config) DataPath(name string) string {
	return filepath.Join(ExpandPath(c.DataDir), name)
}
