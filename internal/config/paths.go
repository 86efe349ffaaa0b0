package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const appName = "uploadarr"

// Paths are the per-user directories the application works in. Config holds
// config.toml, Cache holds generated artifacts, Data holds cookie jars.
type Paths struct {
	Config string
	Cache  string
	Data   string
}

// DefaultPaths resolves the XDG-style application directories.
func DefaultPaths() (Paths, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolving user config dir: %w", err)
	}
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolving user cache dir: %w", err)
	}
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, fmt.Errorf("resolving user home dir: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}

	return Paths{
		Config: filepath.Join(cfgDir, appName),
		Cache:  filepath.Join(cacheDir, appName),
		Data:   filepath.Join(dataDir, appName),
	}, nil
}

// ConfigFile is the path of the TOML config document.
func (p Paths) ConfigFile() string {
	return filepath.Join(p.Config, "config.toml")
}

// CookieDir is where per-tracker cookie jars live.
func (p Paths) CookieDir() string {
	return filepath.Join(p.Data, "cookies")
}
