// Package secmodel defines the security model capability set: users, roles,
// permissions and secured paths. The model answers two expensive questions for
// the request pipeline (which paths are secured, which permissions exist) and
// owns the user/role records behind them. Cache wraps any SecurityModel with
// memoization and a persisted snapshot.
package secmodel

// PreferenceDigestA1 is the user preference key holding the precomputed
// RFC 2617 A1 hash (hash of username:realm:password). It is written by the
// HTTP authenticator on password change and read during digest verification,
// so plaintext passwords never need to be stored.
const PreferenceDigestA1 = "security.digest.a1"

// User is an identity record owned by the security model. The authenticator
// only reads the active flag and the A1 preference; everything else is
// model-internal.
type User struct {
	ID          string
	Username    string
	Email       string
	Active      bool
	Superuser   bool
	Preferences map[string]string
	Roles       []*Role
}

// Preference returns the named preference value, or "" when unset.
func (u *User) Preference(key string) string {
	return u.Preferences[key]
}

// SetPreference stores a preference value on the user. The change is not
// persisted until the user is saved through the model.
func (u *User) SetPreference(key, value string) {
	if u.Preferences == nil {
		u.Preferences = make(map[string]string)
	}
	u.Preferences[key] = value
}

// HasPermission reports whether any of the user's roles grants the permission
// code. Superusers hold every permission.
func (u *User) HasPermission(code string) bool {
	if u.Superuser {
		return true
	}
	for _, role := range u.Roles {
		for _, granted := range role.Permissions {
			if granted == code {
				return true
			}
		}
	}
	return false
}

// IsPathAllowed reports whether the user may access a secured path. Superusers
// pass everything; other users need a role whose allowed paths match.
func (u *User) IsPathAllowed(path, method string) bool {
	if u.Superuser {
		return true
	}
	for _, role := range u.Roles {
		for _, pattern := range role.AllowedPaths {
			if MatchPath(pattern, path, method) {
				return true
			}
		}
	}
	return false
}

// Role groups permission grants and allowed path patterns.
type Role struct {
	ID           string
	Name         string
	Permissions  []string
	AllowedPaths []string
}

// SecurityModel is the authorization-model capability set consumed by the
// request gate and wrapped by the Cache decorator. Ping, SecuredPaths and
// Permissions are the expensive reads the cache memoizes; the user/role
// operations pass through uncached.
//
// Lookups return (nil, nil) when the record does not exist; an error means the
// backing store failed.
type SecurityModel interface {
	// Ping reports whether the model is ready to answer. A model that is not
	// ready must never have its answers cached.
	Ping() bool

	SecuredPaths() ([]string, error)
	SetSecuredPaths(paths []string) error

	Permissions() ([]string, error)
	HasPermission(code string) (bool, error)
	AddPermission(code string) error
	DeletePermission(code string) error

	UserByUsername(username string) (*User, error)
	SaveUser(user *User) error
	DeleteUser(user *User) error

	RoleByName(name string) (*Role, error)
	SaveRole(role *Role) error
	DeleteRole(role *Role) error

	SetUserRoles(user *User, roleNames []string) error
	SetRolePermissions(role *Role, codes []string) error
	SetRolePaths(role *Role, paths []string) error
}
