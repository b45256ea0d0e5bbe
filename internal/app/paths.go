package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths stores resolved runtime file locations for config, preferences,
// logs, and staged updates.
type Paths struct {
	RootDir    string
	ConfigFile string
	DBFile     string
	LogFile    string
	CacheDir   string
	UpdateDir  string
}

// ResolvePaths uses the user config and cache directories. A non-empty
// configFile overrides only the config location.
func ResolvePaths(configFile string) (Paths, error) {
	cfgRoot, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve config dir: %w", err)
	}
	cacheRoot, err := os.UserCacheDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve cache dir: %w", err)
	}

	root := filepath.Join(cfgRoot, Name)
	if err := os.MkdirAll(root, 0o750); err != nil {
		return Paths{}, fmt.Errorf("create app config dir: %w", err)
	}
	cache := filepath.Join(cacheRoot, Name)
	if err := os.MkdirAll(cache, 0o750); err != nil {
		return Paths{}, fmt.Errorf("create app cache dir: %w", err)
	}
	updates := filepath.Join(cache, UpdateDir)
	if err := os.MkdirAll(updates, 0o750); err != nil {
		return Paths{}, fmt.Errorf("create update dir: %w", err)
	}

	if configFile == "" {
		configFile = filepath.Join(root, ConfigFilename)
	}

	return Paths{
		RootDir:    root,
		ConfigFile: configFile,
		DBFile:     filepath.Join(root, DBFilename),
		LogFile:    filepath.Join(root, LogFilename),
		CacheDir:   cache,
		UpdateDir:  updates,
	}, nil
}
