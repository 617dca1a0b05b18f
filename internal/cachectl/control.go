// Package cachectl is the admin toggle for the security model cache. It flips
// which model implementation is active by rewriting two configuration keys
// and delegates warm/clear to the cache wrapper when one is active.
package cachectl

import (
	"github.com/palisadehq/palisade/pkg/secmodel"
)

const (
	// KeyDefaultModel selects the active security model implementation.
	KeyDefaultModel = "security.model.default"
	// KeyCacheBackup remembers the pre-enable selector while the cache is
	// active, so disable can restore it exactly.
	KeyCacheBackup = "security.model.cache"

	// SentinelCache is the selector value marking the cache decorator as the
	// active model.
	SentinelCache = "cache"
	// FallbackModel is the selector restored when no usable backup exists.
	FallbackModel = "direct"
)

// ConfigStore is the configuration surface the control needs.
type ConfigStore interface {
	Get(key, fallback string) string
	Set(key, value string) error
	Delete(key string) error
}

// Control toggles the security model cache. The configuration keys describe
// which implementation the next process start selects; IsEnabled reflects the
// instance that is actually active right now, and the two can transiently
// disagree until the model is reloaded.
type Control struct {
	model  secmodel.SecurityModel
	config ConfigStore
}

// New creates a control over the currently active model.
func New(model secmodel.SecurityModel, config ConfigStore) *Control {
	return &Control{
		model:  model,
		config: config,
	}
}

// Enable selects the cache decorator, remembering the current selector so
// Disable can restore it. Enabling when already enabled is a no-op, so the
// cache never wraps itself.
func (c *Control) Enable() error {
	current := c.config.Get(KeyDefaultModel, FallbackModel)
	if current == SentinelCache {
		return nil
	}

	if err := c.config.Set(KeyCacheBackup, current); err != nil {
		return err
	}
	return c.config.Set(KeyDefaultModel, SentinelCache)
}

// Disable restores the pre-enable selector. A missing or self-referential
// backup (the literal cache sentinel) would re-enable the cache, so it is
// replaced by the fallback selector instead of being written back.
func (c *Control) Disable() error {
	current := c.config.Get(KeyDefaultModel, FallbackModel)
	if current != SentinelCache {
		return nil
	}

	previous := c.config.Get(KeyCacheBackup, "")
	if previous == "" || previous == SentinelCache {
		previous = FallbackModel
	}

	if err := c.config.Set(KeyDefaultModel, previous); err != nil {
		return err
	}
	return c.config.Delete(KeyCacheBackup)
}

// IsEnabled reports whether the active model instance is the cache wrapper.
// This is a runtime check on the instance, not a configuration read.
func (c *Control) IsEnabled() bool {
	_, ok := c.model.(*secmodel.Cache)
	return ok
}

// Warm regenerates the snapshot when the cache is active; no-op otherwise.
func (c *Control) Warm() error {
	if cache, ok := c.model.(*secmodel.Cache); ok {
		return cache.Warm()
	}
	return nil
}

// Clear deletes the snapshot when the cache is active; no-op otherwise.
func (c *Control) Clear() error {
	if cache, ok := c.model.(*secmodel.Cache); ok {
		return cache.Clear()
	}
	return nil
}
