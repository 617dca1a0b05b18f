package config

import (
	"os"
	"path/filepath"
	"testing"
)

func configFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.yaml")
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(configFile(t))
	if err != nil {
		t.Fatalf("Load of missing file failed: %v", err)
	}
	if got := cfg.Get("any.key", "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %q", got)
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	path := configFile(t)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := cfg.Set("security.model.default", "cache"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got := cfg.Get("security.model.default", ""); got != "cache" {
		t.Errorf("expected 'cache', got %q", got)
	}

	// Persisted value survives a reload.
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if got := reloaded.Get("security.model.default", ""); got != "cache" {
		t.Errorf("expected 'cache' after reload, got %q", got)
	}
}

func TestSetSiblingKeys(t *testing.T) {
	cfg, err := Load(configFile(t))
	if err != nil {
		t.Fatal(err)
	}

	if err := cfg.Set("security.model.default", "cache"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Set("security.model.cache", "sqlite"); err != nil {
		t.Fatal(err)
	}

	if got := cfg.Get("security.model.default", ""); got != "cache" {
		t.Errorf("sibling write clobbered value: %q", got)
	}
	if got := cfg.Get("security.model.cache", ""); got != "sqlite" {
		t.Errorf("expected 'sqlite', got %q", got)
	}
}

func TestDelete(t *testing.T) {
	path := configFile(t)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := cfg.Set("security.model.cache", "sqlite"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Delete("security.model.cache"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got := cfg.Get("security.model.cache", "absent"); got != "absent" {
		t.Errorf("expected key gone, got %q", got)
	}

	// Deleting an absent key is a no-op.
	if err := cfg.Delete("no.such.key"); err != nil {
		t.Errorf("Delete of absent key failed: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := reloaded.Get("security.model.cache", "absent"); got != "absent" {
		t.Errorf("deletion not persisted, got %q", got)
	}
}

func TestGetNonScalar(t *testing.T) {
	path := configFile(t)
	if err := os.WriteFile(path, []byte("security:\n  model:\n    default: cache\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	// A key resolving to a map answers the fallback, not a stringified map.
	if got := cfg.Get("security.model", "fallback"); got != "fallback" {
		t.Errorf("expected fallback for non-scalar, got %q", got)
	}
	if got := cfg.Get("security.model.default.deeper", "fallback"); got != "fallback" {
		t.Errorf("expected fallback below a scalar, got %q", got)
	}
}
