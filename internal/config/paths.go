package config

import (
	"os"
	"path/filepath"
	"strings"
)

func xdgDir(env, fallback string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), fallback)
	}
	return filepath.Join(home, fallback)
}

// GetConfigDir returns $XDG_CONFIG_HOME/wpnas (~/.config/wpnas).
func GetConfigDir() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "wpnas")
}

// GetDefaultDataDir returns $XDG_DATA_HOME/wpnas (~/.local/share/wpnas).
func GetDefaultDataDir() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share")), "wpnas")
}

// GetCacheDir returns $XDG_CACHE_HOME/wpnas (~/.cache/wpnas).
func GetCacheDir() string {
	return filepath.Join(xdgDir("XDG_CACHE_HOME", ".cache"), "wpnas")
}

func GetConfigFilePath() string {
	return filepath.Join(GetConfigDir(), "config.toml")
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

func EnsureDir(path string) error {
	return os.MkdirAll(path, 0700)
}
