package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolvePaths_ResolvesConfigAndCacheDirectories(t *testing.T) {
	configHome := filepath.Join(t.TempDir(), "cfg")
	cacheHome := filepath.Join(t.TempDir(), "cache")
	t.Setenv("XDG_CONFIG_HOME", configHome)
	t.Setenv("XDG_CACHE_HOME", cacheHome)

	paths, err := ResolvePaths("")
	if err != nil {
		t.Fatalf("resolve paths: %v", err)
	}

	if paths.RootDir != filepath.Join(configHome, Name) {
		t.Fatalf("unexpected root dir: %q", paths.RootDir)
	}
	if paths.ConfigFile != filepath.Join(configHome, Name, ConfigFilename) {
		t.Fatalf("unexpected config file: %q", paths.ConfigFile)
	}
	if paths.DBFile != filepath.Join(configHome, Name, DBFilename) {
		t.Fatalf("unexpected db file: %q", paths.DBFile)
	}
	if paths.UpdateDir != filepath.Join(cacheHome, Name, UpdateDir) {
		t.Fatalf("unexpected update dir: %q", paths.UpdateDir)
	}
	if _, err := os.Stat(paths.UpdateDir); err != nil {
		t.Fatalf("expected update directory to exist: %v", err)
	}
}

func TestResolvePaths_ConfigOverride(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(t.TempDir(), "cfg"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(t.TempDir(), "cache"))

	paths, err := ResolvePaths("/etc/bblink/config.json")
	if err != nil {
		t.Fatalf("resolve paths: %v", err)
	}
	if paths.ConfigFile != "/etc/bblink/config.json" {
		t.Fatalf("expected config override, got %q", paths.ConfigFile)
	}
}
