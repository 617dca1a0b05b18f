// Package config implements the YAML-backed configuration store. Keys are
// dotted paths into the document ("security.model.default"); writes are
// persisted immediately with a write-then-rename so a crash never leaves a
// half-written file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config is a file-backed key/value configuration store, safe for concurrent
// use.
type Config struct {
	mu   sync.RWMutex
	path string
	data map[string]any
}

// Load reads the configuration file at path. A missing file yields an empty
// configuration; the file is created on first Set.
func Load(path string) (*Config, error) {
	c := &Config{
		path: path,
		data: make(map[string]any),
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(raw, &c.data); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if c.data == nil {
		c.data = make(map[string]any)
	}
	return c, nil
}

// Get returns the string value at the dotted key, or fallback when the key is
// absent or not a scalar.
func (c *Config) Get(key, fallback string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	node := any(c.data)
	for _, part := range strings.Split(key, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return fallback
		}
		node, ok = m[part]
		if !ok {
			return fallback
		}
	}

	switch v := node.(type) {
	case string:
		return v
	case bool, int, int64, float64:
		return fmt.Sprintf("%v", v)
	default:
		return fallback
	}
}

// Set writes a string value at the dotted key and persists the file,
// creating intermediate maps as needed.
func (c *Config) Set(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	parts := strings.Split(key, ".")
	node := c.data
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[part] = child
		}
		node = child
	}
	node[parts[len(parts)-1]] = value

	return c.writeLocked()
}

// Delete removes the key, pruning nothing else, and persists the file.
// Deleting an absent key is a no-op.
func (c *Config) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	parts := strings.Split(key, ".")
	node := c.data
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]any)
		if !ok {
			return nil
		}
		node = child
	}
	if _, ok := node[parts[len(parts)-1]]; !ok {
		return nil
	}
	delete(node, parts[len(parts)-1])

	return c.writeLocked()
}

func (c *Config) writeLocked() error {
	data, err := yaml.Marshal(c.data)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}
