package secmodel

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Cache decorates a SecurityModel with memoization of its three expensive
// reads (Ping, SecuredPaths, Permissions) and persists them to a snapshot
// file. User and role operations pass through uncached.
//
// The snapshot is written lazily by Warm, read once at construction, and
// deleted by any mutating call. A corrupt or unreadable snapshot is treated as
// absent: the fields stay unset and are recomputed from the wrapped model on
// demand. A snapshot that is present is authoritative until invalidated.
type Cache struct {
	model  SecurityModel
	path   string
	logger *slog.Logger

	mu sync.Mutex
	// nil means unset. For permissions, a non-nil empty map means the model
	// answered "no permissions", which is distinct from "not asked yet".
	ping         *bool
	securedPaths *[]string
	permissions  map[string]struct{}
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCacheLogger sets a custom logger for snapshot diagnostics.
func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = l
	}
}

// NewCache wraps model with a caching layer persisted at path. An existing
// snapshot is loaded immediately; fields it does not contain stay unset and
// are fetched lazily from the wrapped model.
func NewCache(model SecurityModel, path string, opts ...CacheOption) *Cache {
	c := &Cache{
		model:  model,
		path:   path,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.readSnapshot()
	return c
}

// Model returns the wrapped security model.
func (c *Cache) Model() SecurityModel {
	return c.model
}

// SnapshotPath returns the snapshot file location.
func (c *Cache) SnapshotPath() string {
	return c.path
}

// snapshot is the persisted cache format. Pointer fields distinguish "absent,
// recompute from the model" (omitted/null) from "known empty" (present []).
type snapshot struct {
	Ping         *bool     `json:"ping,omitempty"`
	SecuredPaths *[]string `json:"secured_paths,omitempty"`
	Permissions  *[]string `json:"permissions,omitempty"`
}

// Ping reports model readiness, memoized after the first call.
func (c *Cache) Ping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pingLocked()
}

func (c *Cache) pingLocked() bool {
	if c.ping != nil {
		return *c.ping
	}
	ready := c.model.Ping()
	c.ping = &ready
	return ready
}

// SecuredPaths returns the secured path patterns, memoized after the first
// successful call.
func (c *Cache) SecuredPaths() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.securedPathsLocked()
}

func (c *Cache) securedPathsLocked() ([]string, error) {
	if c.securedPaths != nil {
		return *c.securedPaths, nil
	}
	paths, err := c.model.SecuredPaths()
	if err != nil {
		return nil, err
	}
	if paths == nil {
		paths = []string{}
	}
	c.securedPaths = &paths
	return paths, nil
}

// SetSecuredPaths delegates the mutation, keeps the memo current, and deletes
// the persisted snapshot.
func (c *Cache) SetSecuredPaths(paths []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.model.SetSecuredPaths(paths); err != nil {
		return err
	}
	copied := append([]string(nil), paths...)
	c.securedPaths = &copied
	return c.clearLocked()
}

// Permissions returns the registered permission codes, sorted, memoized after
// the first successful call.
func (c *Cache) Permissions() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.permissionsLocked()
}

func (c *Cache) permissionsLocked() ([]string, error) {
	if err := c.loadPermissionsLocked(); err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(c.permissions))
	for code := range c.permissions {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

func (c *Cache) loadPermissionsLocked() error {
	if c.permissions != nil {
		return nil
	}
	codes, err := c.model.Permissions()
	if err != nil {
		return err
	}
	perms := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		perms[code] = struct{}{}
	}
	c.permissions = perms
	return nil
}

// HasPermission checks a permission code against the memoized set.
func (c *Cache) HasPermission(code string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadPermissionsLocked(); err != nil {
		return false, err
	}
	_, ok := c.permissions[code]
	return ok, nil
}

// AddPermission delegates the mutation, drops the permission memo and deletes
// the snapshot so the next warm regenerates it.
func (c *Cache) AddPermission(code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.model.AddPermission(code); err != nil {
		return err
	}
	c.permissions = nil
	return c.clearLocked()
}

// DeletePermission delegates the mutation, drops the code from the memo where
// loaded, and deletes the snapshot.
func (c *Cache) DeletePermission(code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.model.DeletePermission(code); err != nil {
		return err
	}
	if c.permissions != nil {
		delete(c.permissions, code)
	}
	return c.clearLocked()
}

// UserByUsername passes through to the wrapped model.
func (c *Cache) UserByUsername(username string) (*User, error) {
	return c.model.UserByUsername(username)
}

// SaveUser passes through to the wrapped model.
func (c *Cache) SaveUser(user *User) error {
	return c.model.SaveUser(user)
}

// DeleteUser passes through to the wrapped model.
func (c *Cache) DeleteUser(user *User) error {
	return c.model.DeleteUser(user)
}

// RoleByName passes through to the wrapped model.
func (c *Cache) RoleByName(name string) (*Role, error) {
	return c.model.RoleByName(name)
}

// SaveRole passes through to the wrapped model.
func (c *Cache) SaveRole(role *Role) error {
	return c.model.SaveRole(role)
}

// DeleteRole passes through to the wrapped model.
func (c *Cache) DeleteRole(role *Role) error {
	return c.model.DeleteRole(role)
}

// SetUserRoles passes through to the wrapped model.
func (c *Cache) SetUserRoles(user *User, roleNames []string) error {
	return c.model.SetUserRoles(user, roleNames)
}

// SetRolePermissions passes through to the wrapped model.
func (c *Cache) SetRolePermissions(role *Role, codes []string) error {
	return c.model.SetRolePermissions(role, codes)
}

// SetRolePaths passes through to the wrapped model.
func (c *Cache) SetRolePaths(role *Role, paths []string) error {
	return c.model.SetRolePaths(role, paths)
}

// Warm ensures all cacheable fields are populated and writes the snapshot.
// A model that is not ready is never cached: an unready snapshot could mask a
// real backing-store outage, so Warm refuses to persist and returns nil.
// Write failures propagate; the snapshot is written to a temporary file and
// renamed into place so a failure never corrupts an existing valid snapshot.
func (c *Cache) Warm() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.pingLocked() {
		c.logger.Warn("security model not ready, skipping snapshot", "path", c.path)
		return nil
	}

	if _, err := c.securedPathsLocked(); err != nil {
		return fmt.Errorf("failed to load secured paths: %w", err)
	}
	if err := c.loadPermissionsLocked(); err != nil {
		return fmt.Errorf("failed to load permissions: %w", err)
	}

	perms, _ := c.permissionsLocked()
	snap := snapshot{
		Ping:         c.ping,
		SecuredPaths: c.securedPaths,
		Permissions:  &perms,
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return ErrCacheWriteFailure(err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return ErrCacheWriteFailure(err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return ErrCacheWriteFailure(err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return ErrCacheWriteFailure(err)
	}

	c.logger.Debug("security snapshot written", "path", c.path)
	return nil
}

// Clear deletes the persisted snapshot if present. The in-memory memo is left
// alone; it is already at least as fresh as the snapshot was.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clearLocked()
}

func (c *Cache) clearLocked() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ErrCacheWriteFailure(err)
	}
	return nil
}

// readSnapshot loads the snapshot into memory at construction. Fields the
// snapshot does not contain stay unset. Unreadable or unparsable snapshots
// are logged and treated as absent, never surfaced to the request path.
func (c *Cache) readSnapshot() {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("failed to read security snapshot", "path", c.path, "error", err)
		}
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.logger.Warn("corrupt security snapshot ignored", "path", c.path, "error", err)
		return
	}

	if snap.Ping != nil {
		c.ping = snap.Ping
	}
	if snap.SecuredPaths != nil {
		c.securedPaths = snap.SecuredPaths
	}
	if snap.Permissions != nil {
		perms := make(map[string]struct{}, len(*snap.Permissions))
		for _, code := range *snap.Permissions {
			perms[code] = struct{}{}
		}
		c.permissions = perms
	}
}
