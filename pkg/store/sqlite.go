// Package store provides the SQLite-backed security model: users, roles,
// permissions and secured paths. It is the concrete provider behind
// secmodel.SecurityModel and the password authenticator behind Basic login.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"

	"github.com/palisadehq/palisade/pkg/events"
	"github.com/palisadehq/palisade/pkg/secmodel"
)

// appName is used for state directory paths.
const appName = "palisade"

// Store implements secmodel.SecurityModel on SQLite.
type Store struct {
	db  *sql.DB
	bus *events.Bus
}

// DefaultPath returns the default database path following the XDG spec.
func DefaultPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, appName, appName+".db")
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// WAL mode lets the CLI mutate the model while a long-running server
	// reads it.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate creates the schema if it doesn't exist.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		email TEXT DEFAULT '',
		password_hash TEXT DEFAULT '',
		active INTEGER DEFAULT 1,
		superuser INTEGER DEFAULT 0,
		created_at INTEGER DEFAULT (strftime('%s', 'now'))
	);
	CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);

	CREATE TABLE IF NOT EXISTS user_preferences (
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (user_id, key)
	);

	CREATE TABLE IF NOT EXISTS roles (
		id TEXT PRIMARY KEY,
		name TEXT UNIQUE NOT NULL
	);

	CREATE TABLE IF NOT EXISTS user_roles (
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		role_id TEXT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		PRIMARY KEY (user_id, role_id)
	);

	CREATE TABLE IF NOT EXISTS role_permissions (
		role_id TEXT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		code TEXT NOT NULL,
		PRIMARY KEY (role_id, code)
	);

	CREATE TABLE IF NOT EXISTS role_paths (
		role_id TEXT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		pattern TEXT NOT NULL,
		PRIMARY KEY (role_id, position)
	);

	CREATE TABLE IF NOT EXISTS permissions (
		code TEXT PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS secured_paths (
		position INTEGER PRIMARY KEY,
		pattern TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying database for tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SetBus wires the event bus used to publish password changes.
func (s *Store) SetBus(bus *events.Bus) {
	s.bus = bus
}

// Ping reports whether the model is ready to answer queries.
func (s *Store) Ping() bool {
	var one int
	if err := s.db.QueryRow("SELECT 1").Scan(&one); err != nil {
		return false
	}
	return true
}

// SecuredPaths returns the secured path patterns in order.
func (s *Store) SecuredPaths() ([]string, error) {
	rows, err := s.db.Query("SELECT pattern FROM secured_paths ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("failed to query secured paths: %w", err)
	}
	defer rows.Close()

	paths := []string{}
	for rows.Next() {
		var pattern string
		if err := rows.Scan(&pattern); err != nil {
			return nil, err
		}
		paths = append(paths, pattern)
	}
	return paths, rows.Err()
}

// SetSecuredPaths replaces the secured path list wholesale.
func (s *Store) SetSecuredPaths(paths []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM secured_paths"); err != nil {
		return err
	}
	for i, pattern := range paths {
		if _, err := tx.Exec("INSERT INTO secured_paths (position, pattern) VALUES (?, ?)", i, pattern); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Permissions returns all registered permission codes.
func (s *Store) Permissions() ([]string, error) {
	rows, err := s.db.Query("SELECT code FROM permissions ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("failed to query permissions: %w", err)
	}
	defer rows.Close()

	codes := []string{}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// HasPermission reports whether the permission code is registered.
func (s *Store) HasPermission(code string) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM permissions WHERE code = ?", code).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AddPermission registers a permission code. Adding an existing code is a
// no-op.
func (s *Store) AddPermission(code string) error {
	_, err := s.db.Exec("INSERT OR IGNORE INTO permissions (code) VALUES (?)", code)
	return err
}

// DeletePermission unregisters a permission code and revokes it from all
// roles.
func (s *Store) DeletePermission(code string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM role_permissions WHERE code = ?", code); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM permissions WHERE code = ?", code); err != nil {
		return err
	}
	return tx.Commit()
}

// UserByUsername loads a user with preferences and roles. Returns (nil, nil)
// when the user does not exist.
func (s *Store) UserByUsername(username string) (*secmodel.User, error) {
	row := s.db.QueryRow(
		"SELECT id, username, email, active, superuser FROM users WHERE username = ?", username)

	var user secmodel.User
	var active, superuser int
	err := row.Scan(&user.ID, &user.Username, &user.Email, &active, &superuser)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user.Active = active != 0
	user.Superuser = superuser != 0

	if user.Preferences, err = s.userPreferences(user.ID); err != nil {
		return nil, err
	}
	if user.Roles, err = s.userRoles(user.ID); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) userPreferences(userID string) (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM user_preferences WHERE user_id = ?", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prefs := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		prefs[key] = value
	}
	return prefs, rows.Err()
}

func (s *Store) userRoles(userID string) ([]*secmodel.Role, error) {
	rows, err := s.db.Query(`
		SELECT r.id, r.name FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = ?
		ORDER BY r.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*secmodel.Role
	for rows.Next() {
		role := &secmodel.Role{}
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, role := range roles {
		if err := s.loadRoleGrants(role); err != nil {
			return nil, err
		}
	}
	return roles, nil
}

func (s *Store) loadRoleGrants(role *secmodel.Role) error {
	rows, err := s.db.Query("SELECT code FROM role_permissions WHERE role_id = ? ORDER BY code", role.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return err
		}
		role.Permissions = append(role.Permissions, code)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	pathRows, err := s.db.Query("SELECT pattern FROM role_paths WHERE role_id = ? ORDER BY position", role.ID)
	if err != nil {
		return err
	}
	defer pathRows.Close()
	for pathRows.Next() {
		var pattern string
		if err := pathRows.Scan(&pattern); err != nil {
			return err
		}
		role.AllowedPaths = append(role.AllowedPaths, pattern)
	}
	return pathRows.Err()
}

// SaveUser inserts or updates a user and replaces its preferences. A missing
// ID is assigned.
func (s *Store) SaveUser(user *secmodel.User) error {
	if user.ID == "" {
		user.ID = "usr_" + uuid.New().String()[:8]
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	active, superuser := 0, 0
	if user.Active {
		active = 1
	}
	if user.Superuser {
		superuser = 1
	}

	_, err = tx.Exec(`
		INSERT INTO users (id, username, email, active, superuser) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			email = excluded.email,
			active = excluded.active,
			superuser = excluded.superuser`,
		user.ID, user.Username, user.Email, active, superuser)
	if err != nil {
		return err
	}

	if _, err := tx.Exec("DELETE FROM user_preferences WHERE user_id = ?", user.ID); err != nil {
		return err
	}
	for key, value := range user.Preferences {
		if _, err := tx.Exec(
			"INSERT INTO user_preferences (user_id, key, value) VALUES (?, ?, ?)",
			user.ID, key, value); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteUser removes a user; memberships and preferences cascade.
func (s *Store) DeleteUser(user *secmodel.User) error {
	_, err := s.db.Exec("DELETE FROM users WHERE id = ?", user.ID)
	return err
}

// RoleByName loads a role with its grants. Returns (nil, nil) when the role
// does not exist.
func (s *Store) RoleByName(name string) (*secmodel.Role, error) {
	role := &secmodel.Role{}
	err := s.db.QueryRow("SELECT id, name FROM roles WHERE name = ?", name).Scan(&role.ID, &role.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadRoleGrants(role); err != nil {
		return nil, err
	}
	return role, nil
}

// SaveRole inserts or updates a role. A missing ID is assigned.
func (s *Store) SaveRole(role *secmodel.Role) error {
	if role.ID == "" {
		role.ID = "role_" + uuid.New().String()[:8]
	}
	_, err := s.db.Exec(`
		INSERT INTO roles (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		role.ID, role.Name)
	return err
}

// DeleteRole removes a role; grants and memberships cascade.
func (s *Store) DeleteRole(role *secmodel.Role) error {
	_, err := s.db.Exec("DELETE FROM roles WHERE id = ?", role.ID)
	return err
}

// SetUserRoles replaces the user's role memberships by role name. Unknown
// role names are an error.
func (s *Store) SetUserRoles(user *secmodel.User, roleNames []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM user_roles WHERE user_id = ?", user.ID); err != nil {
		return err
	}
	for _, name := range roleNames {
		var roleID string
		err := tx.QueryRow("SELECT id FROM roles WHERE name = ?", name).Scan(&roleID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("unknown role %q", name)
		}
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			"INSERT INTO user_roles (user_id, role_id) VALUES (?, ?)", user.ID, roleID); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	user.Roles, err = s.userRoles(user.ID)
	return err
}

// SetRolePermissions replaces the permission grants of a role.
func (s *Store) SetRolePermissions(role *secmodel.Role, codes []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM role_permissions WHERE role_id = ?", role.ID); err != nil {
		return err
	}
	for _, code := range codes {
		if _, err := tx.Exec(
			"INSERT INTO role_permissions (role_id, code) VALUES (?, ?)", role.ID, code); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	role.Permissions = append([]string(nil), codes...)
	return nil
}

// SetRolePaths replaces the allowed path patterns of a role.
func (s *Store) SetRolePaths(role *secmodel.Role, paths []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM role_paths WHERE role_id = ?", role.ID); err != nil {
		return err
	}
	for i, pattern := range paths {
		if _, err := tx.Exec(
			"INSERT INTO role_paths (role_id, position, pattern) VALUES (?, ?, ?)",
			role.ID, i, pattern); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	role.AllowedPaths = append([]string(nil), paths...)
	return nil
}
