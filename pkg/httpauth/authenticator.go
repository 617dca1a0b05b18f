package httpauth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/palisadehq/palisade/pkg/events"
	"github.com/palisadehq/palisade/pkg/secmodel"
)

// Mode selects which HTTP authentication scheme the challenge advertises.
type Mode string

const (
	// ModeBasic challenges with Basic authentication.
	ModeBasic Mode = "basic"
	// ModeDigest challenges with Digest authentication. This is the default.
	ModeDigest Mode = "digest"
)

// nonceStoreKey is where the nonce lives in the nonce store.
const nonceStoreKey = "security.nonce"

// PasswordAuthenticator verifies a username/password pair. It backs the Basic
// scheme; Digest never sees a plaintext password.
// Returns (nil, nil) when the credentials do not match any active user.
type PasswordAuthenticator interface {
	Login(username, password string) (*secmodel.User, error)
}

// UserSource looks up users for digest verification. secmodel.SecurityModel
// satisfies it.
type UserSource interface {
	UserByUsername(username string) (*secmodel.User, error)
}

// Authenticator establishes the caller's identity from HTTP Basic or Digest
// credentials. Authentication failure is not an error: absent, malformed and
// invalid credentials all yield "no user", and only the request gate turns
// that into an HTTP-visible outcome. The distinction is collapsed on purpose
// so nothing leaks about why authentication failed.
//
// The nonce is session-scoped and long-lived: it is created at construction
// (or recovered from the nonce store) and replaced only on logout. This is
// weaker against replay than per-request rotation and is kept as documented
// behavior of the protocol this implements.
//
// An Authenticator is safe for concurrent use; nonce refresh and user state
// changes are single-writer under an internal mutex.
type Authenticator struct {
	realm  string
	store  NonceStore
	inner  PasswordAuthenticator
	users  UserSource
	logger *slog.Logger

	mu    sync.Mutex
	nonce string
	mode  Mode
	user  *secmodel.User

	unsubscribe func()
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authenticator) {
		a.logger = l
	}
}

// WithBus subscribes the authenticator to password-change events so the
// stored A1 digest material tracks credential updates. Call Close to
// unsubscribe.
func WithBus(bus *events.Bus) Option {
	return func(a *Authenticator) {
		a.unsubscribe = bus.SubscribePasswordChange(a.HandlePasswordChange)
	}
}

// NewAuthenticator creates a challenge authenticator for the given realm.
// The nonce is read from the store, or generated and persisted when absent.
func NewAuthenticator(realm string, store NonceStore, inner PasswordAuthenticator, users UserSource, opts ...Option) *Authenticator {
	a := &Authenticator{
		realm:  realm,
		store:  store,
		inner:  inner,
		users:  users,
		logger: slog.Default(),
		mode:   ModeDigest,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.nonce = store.Get(nonceStoreKey)
	if a.nonce == "" {
		a.refreshNonceLocked()
	}

	return a
}

// Close unsubscribes from the event bus. Safe to call when no bus was wired.
func (a *Authenticator) Close() {
	if a.unsubscribe != nil {
		a.unsubscribe()
		a.unsubscribe = nil
	}
}

// Realm returns the protocol-visible realm.
func (a *Authenticator) Realm() string {
	return a.realm
}

// Mode returns the active challenge scheme.
func (a *Authenticator) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// SetMode selects the challenge scheme. Fails with a configuration error for
// anything other than ModeBasic or ModeDigest.
func (a *Authenticator) SetMode(mode Mode) error {
	if mode != ModeBasic && mode != ModeDigest {
		return secmodel.ErrInvalidMode(string(mode))
	}
	a.mu.Lock()
	a.mode = mode
	a.mu.Unlock()
	return nil
}

// Nonce returns the current nonce value.
func (a *Authenticator) Nonce() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nonce
}

// CurrentUser returns the authenticated user, or nil.
func (a *Authenticator) CurrentUser() *secmodel.User {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user
}

// SetUser overrides the current identity. Used when a non-HTTP path has
// already established who the caller is.
func (a *Authenticator) SetUser(user *secmodel.User) *secmodel.User {
	a.mu.Lock()
	a.user = user
	a.mu.Unlock()
	return user
}

// Logout clears the current user and unconditionally refreshes the nonce,
// ending the digest session.
func (a *Authenticator) Logout() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user = nil
	a.refreshNonceLocked()
}

// Authenticate establishes identity from the request's Authorization header.
// Digest credentials are tried when present, Basic otherwise. Returns nil
// when no credentials are present or the credentials are invalid; this is a
// normal outcome, not an error.
func (a *Authenticator) Authenticate(r *http.Request) *secmodel.User {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Digest ") {
		return a.authenticateDigest(r, header)
	}
	return a.authenticateBasic(r)
}

// authenticateBasic verifies transport-extracted username/password through
// the wrapped password authenticator.
func (a *Authenticator) authenticateBasic(r *http.Request) *secmodel.User {
	username, password, ok := r.BasicAuth()
	if !ok || a.inner == nil {
		return a.SetUser(nil)
	}

	user, err := a.inner.Login(username, password)
	if err != nil {
		a.logger.Warn("basic login failed", "username", username, "error", err)
		user = nil
	}

	a.mu.Lock()
	a.user = user
	a.mu.Unlock()
	return user
}

// authenticateDigest verifies a digest response against the expected value
// computed from the user's stored A1 hash and the session nonce. Every
// failure branch fails closed to "no user".
func (a *Authenticator) authenticateDigest(r *http.Request, header string) *secmodel.User {
	fields, err := ParseDigest(header)
	if err != nil {
		return a.SetUser(nil)
	}

	user, err := a.users.UserByUsername(fields.Username)
	if err != nil {
		a.logger.Warn("digest user lookup failed", "username", fields.Username, "error", err)
		return a.SetUser(nil)
	}
	if user == nil {
		return a.SetUser(nil)
	}

	expected := a.expectedResponse(user, fields, r.Method)
	if expected == "" ||
		subtle.ConstantTimeCompare([]byte(expected), []byte(fields.Response)) != 1 {
		return a.SetUser(nil)
	}

	if !user.Active {
		return a.SetUser(nil)
	}

	return a.SetUser(user)
}

// expectedResponse computes the valid digest response for a user, or ""
// when the user has no A1 material for this realm.
func (a *Authenticator) expectedResponse(user *secmodel.User, fields *DigestFields, method string) string {
	a1 := user.Preference(secmodel.PreferenceDigestA1)
	if a1 == "" {
		return ""
	}

	a.mu.Lock()
	nonce := a.nonce
	a.mu.Unlock()

	return ComputeResponse(a1, nonce, fields.NC, fields.CNonce, fields.Qop, method, fields.URI)
}

// HandlePasswordChange recomputes the A1 digest material when a password
// changes. The publisher persists the user after the event fires, so the
// preference written here reaches storage before the plaintext is discarded.
func (a *Authenticator) HandlePasswordChange(ev events.PasswordChange) {
	a1 := HashA1(ev.User.Username, a.realm, ev.Password)
	ev.User.SetPreference(secmodel.PreferenceDigestA1, a1)
}

// AuthenticateHeaderValue builds the WWW-Authenticate challenge value for the
// active mode.
func (a *Authenticator) AuthenticateHeaderValue() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mode == ModeDigest {
		return `Digest realm="` + a.realm +
			`",qop="auth",nonce="` + a.nonce +
			`",opaque="` + md5Hex(a.realm) + `"`
	}
	return `Basic realm="` + a.realm + `"`
}

// refreshNonceLocked replaces the nonce with a fresh opaque value and
// persists it. Callers hold a.mu, except during construction.
func (a *Authenticator) refreshNonceLocked() {
	a.nonce = uuid.NewString()
	a.store.Set(nonceStoreKey, a.nonce)
}
