package cachectl

import (
	"path/filepath"
	"testing"

	"github.com/palisadehq/palisade/pkg/secmodel"
)

// memConfig is an in-memory ConfigStore for testing.
type memConfig struct {
	values map[string]string
}

func newMemConfig() *memConfig {
	return &memConfig{values: make(map[string]string)}
}

func (m *memConfig) Get(key, fallback string) string {
	if v, ok := m.values[key]; ok {
		return v
	}
	return fallback
}

func (m *memConfig) Set(key, value string) error {
	m.values[key] = value
	return nil
}

func (m *memConfig) Delete(key string) error {
	delete(m.values, key)
	return nil
}

type stubModel struct {
	secmodel.SecurityModel
}

func TestEnableDisableRoundTrip(t *testing.T) {
	cfg := newMemConfig()
	cfg.values[KeyDefaultModel] = "sqlite"
	control := New(&stubModel{}, cfg)

	if err := control.Enable(); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if got := cfg.values[KeyDefaultModel]; got != SentinelCache {
		t.Errorf("expected selector %q, got %q", SentinelCache, got)
	}
	if got := cfg.values[KeyCacheBackup]; got != "sqlite" {
		t.Errorf("expected backup 'sqlite', got %q", got)
	}

	if err := control.Disable(); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	if got := cfg.values[KeyDefaultModel]; got != "sqlite" {
		t.Errorf("expected selector restored to 'sqlite', got %q", got)
	}
	if _, ok := cfg.values[KeyCacheBackup]; ok {
		t.Error("expected backup key removed after disable")
	}
}

func TestEnableIdempotent(t *testing.T) {
	cfg := newMemConfig()
	cfg.values[KeyDefaultModel] = "sqlite"
	control := New(&stubModel{}, cfg)

	if err := control.Enable(); err != nil {
		t.Fatal(err)
	}
	// A second enable must not overwrite the backup with the sentinel.
	if err := control.Enable(); err != nil {
		t.Fatal(err)
	}
	if got := cfg.values[KeyCacheBackup]; got != "sqlite" {
		t.Errorf("backup clobbered by repeated enable: %q", got)
	}

	if err := control.Disable(); err != nil {
		t.Fatal(err)
	}
	if got := cfg.values[KeyDefaultModel]; got != "sqlite" {
		t.Errorf("expected 'sqlite' after disable, got %q", got)
	}
}

func TestDisableWhenNotEnabled(t *testing.T) {
	cfg := newMemConfig()
	cfg.values[KeyDefaultModel] = "sqlite"
	control := New(&stubModel{}, cfg)

	if err := control.Disable(); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	if got := cfg.values[KeyDefaultModel]; got != "sqlite" {
		t.Errorf("selector changed by no-op disable: %q", got)
	}
}

func TestDisableWithBrokenBackup(t *testing.T) {
	tests := []struct {
		name   string
		backup string
		has    bool
	}{
		{"missing backup", "", false},
		{"empty backup", "", true},
		{"self-referential backup", SentinelCache, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newMemConfig()
			cfg.values[KeyDefaultModel] = SentinelCache
			if tt.has {
				cfg.values[KeyCacheBackup] = tt.backup
			}
			control := New(&stubModel{}, cfg)

			if err := control.Disable(); err != nil {
				t.Fatalf("Disable failed: %v", err)
			}
			if got := cfg.values[KeyDefaultModel]; got != FallbackModel {
				t.Errorf("expected fallback %q, got %q", FallbackModel, got)
			}
		})
	}
}

func TestIsEnabledChecksInstance(t *testing.T) {
	cfg := newMemConfig()

	plain := New(&stubModel{}, cfg)
	if plain.IsEnabled() {
		t.Error("plain model should not report enabled")
	}

	snapshot := filepath.Join(t.TempDir(), "snap.json")
	cached := New(secmodel.NewCache(&stubModel{}, snapshot), cfg)
	if !cached.IsEnabled() {
		t.Error("cache wrapper should report enabled")
	}

	// Configuration saying "cache" does not make a plain instance enabled.
	cfg.values[KeyDefaultModel] = SentinelCache
	if plain.IsEnabled() {
		t.Error("IsEnabled must reflect the instance, not the configuration")
	}
}

func TestWarmAndClearNoopWithoutCache(t *testing.T) {
	control := New(&stubModel{}, newMemConfig())

	if err := control.Warm(); err != nil {
		t.Errorf("Warm on plain model should be a no-op: %v", err)
	}
	if err := control.Clear(); err != nil {
		t.Errorf("Clear on plain model should be a no-op: %v", err)
	}
}
