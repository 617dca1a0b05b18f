package httpauth

import (
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/palisadehq/palisade/pkg/events"
	"github.com/palisadehq/palisade/pkg/secmodel"
)

// mockUserSource implements UserSource for testing.
type mockUserSource struct {
	users map[string]*secmodel.User
	err   error
}

func (m *mockUserSource) UserByUsername(username string) (*secmodel.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.users[username], nil
}

// mockPasswordAuthenticator implements PasswordAuthenticator for testing.
type mockPasswordAuthenticator struct {
	username string
	password string
	user     *secmodel.User
}

func (m *mockPasswordAuthenticator) Login(username, password string) (*secmodel.User, error) {
	if username == m.username && password == m.password {
		return m.user, nil
	}
	return nil, nil
}

func newTestUser(username, realm, password string) *secmodel.User {
	user := &secmodel.User{
		Username: username,
		Active:   true,
	}
	user.SetPreference(secmodel.PreferenceDigestA1, HashA1(username, realm, password))
	return user
}

func digestHeader(a *Authenticator, user, password, method, uri string) string {
	a1 := HashA1(user, a.Realm(), password)
	response := ComputeResponse(a1, a.Nonce(), "00000001", "c1", "auth", method, uri)
	return fmt.Sprintf(
		`Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s", qop="auth", nc="00000001", cnonce="c1", opaque="x"`,
		user, a.Realm(), a.Nonce(), uri, response)
}

func TestAuthenticateNoCredentials(t *testing.T) {
	a := NewAuthenticator("R", NewMemoryNonceStore(), &mockPasswordAuthenticator{}, &mockUserSource{})

	req := httptest.NewRequest("GET", "/x", nil)
	if user := a.Authenticate(req); user != nil {
		t.Errorf("expected no user for missing credentials, got %v", user)
	}
}

func TestAuthenticateDigestValid(t *testing.T) {
	bob := newTestUser("bob", "R", "secret")
	users := &mockUserSource{users: map[string]*secmodel.User{"bob": bob}}
	a := NewAuthenticator("R", NewMemoryNonceStore(), nil, users)

	req := httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("Authorization", digestHeader(a, "bob", "secret", "GET", "/x"))

	user := a.Authenticate(req)
	if user == nil {
		t.Fatal("expected successful digest authentication")
	}
	if user.Username != "bob" {
		t.Errorf("expected user bob, got %s", user.Username)
	}
	if a.CurrentUser() != user {
		t.Error("current user not recorded")
	}
}

func TestAuthenticateDigestFailsClosed(t *testing.T) {
	bob := newTestUser("bob", "R", "secret")
	inactive := newTestUser("carol", "R", "secret")
	inactive.Active = false
	users := &mockUserSource{users: map[string]*secmodel.User{"bob": bob, "carol": inactive}}
	a := NewAuthenticator("R", NewMemoryNonceStore(), nil, users)

	tests := []struct {
		name   string
		header string
	}{
		{"malformed digest", `Digest username="bob", realm="R"`},
		{"unknown username", digestHeader(a, "mallory", "secret", "GET", "/x")},
		{"wrong password", digestHeader(a, "bob", "wrong", "GET", "/x")},
		{"inactive account", digestHeader(a, "carol", "secret", "GET", "/x")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/x", nil)
			req.Header.Set("Authorization", tt.header)
			if user := a.Authenticate(req); user != nil {
				t.Errorf("expected no user, got %v", user.Username)
			}
			if a.CurrentUser() != nil {
				t.Error("current user should be cleared")
			}
		})
	}
}

func TestAuthenticateDigestWrongMethod(t *testing.T) {
	bob := newTestUser("bob", "R", "secret")
	users := &mockUserSource{users: map[string]*secmodel.User{"bob": bob}}
	a := NewAuthenticator("R", NewMemoryNonceStore(), nil, users)

	// Response computed for GET must not validate a POST.
	req := httptest.NewRequest("POST", "/x", nil)
	req.Header.Set("Authorization", digestHeader(a, "bob", "secret", "GET", "/x"))
	if user := a.Authenticate(req); user != nil {
		t.Error("expected method mismatch to fail authentication")
	}
}

func TestAuthenticateBasic(t *testing.T) {
	bob := newTestUser("bob", "R", "secret")
	inner := &mockPasswordAuthenticator{username: "bob", password: "secret", user: bob}
	a := NewAuthenticator("R", NewMemoryNonceStore(), inner, &mockUserSource{})

	req := httptest.NewRequest("GET", "/x", nil)
	req.SetBasicAuth("bob", "secret")
	if user := a.Authenticate(req); user == nil || user.Username != "bob" {
		t.Fatal("expected successful basic authentication")
	}

	req = httptest.NewRequest("GET", "/x", nil)
	req.SetBasicAuth("bob", "wrong")
	if user := a.Authenticate(req); user != nil {
		t.Error("expected wrong password to fail")
	}
}

func TestNonceLifecycle(t *testing.T) {
	store := NewMemoryNonceStore()
	a := NewAuthenticator("R", store, nil, &mockUserSource{})

	nonce := a.Nonce()
	if nonce == "" {
		t.Fatal("expected a nonce at construction")
	}
	if store.Get("security.nonce") != nonce {
		t.Error("nonce not persisted to store")
	}

	// The nonce is stable across attempts within one session.
	if a.Nonce() != nonce {
		t.Error("nonce changed without logout")
	}

	a.Logout()
	if a.Nonce() == nonce {
		t.Error("expected logout to refresh the nonce")
	}
	if store.Get("security.nonce") != a.Nonce() {
		t.Error("refreshed nonce not persisted")
	}
	if a.CurrentUser() != nil {
		t.Error("expected logout to clear the user")
	}
}

func TestNonceRecoveredFromStore(t *testing.T) {
	store := NewMemoryNonceStore()
	store.Set("security.nonce", "persisted-nonce")

	a := NewAuthenticator("R", store, nil, &mockUserSource{})
	if a.Nonce() != "persisted-nonce" {
		t.Errorf("expected nonce from store, got %s", a.Nonce())
	}
}

func TestAuthenticateHeaderValue(t *testing.T) {
	store := NewMemoryNonceStore()
	store.Set("security.nonce", "N")
	a := NewAuthenticator("myrealm", store, nil, &mockUserSource{})

	want := `Digest realm="myrealm",qop="auth",nonce="N",opaque="` + md5Hex("myrealm") + `"`
	if got := a.AuthenticateHeaderValue(); got != want {
		t.Errorf("digest challenge mismatch:\n got %s\nwant %s", got, want)
	}

	if err := a.SetMode(ModeBasic); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}
	if got := a.AuthenticateHeaderValue(); got != `Basic realm="myrealm"` {
		t.Errorf("basic challenge mismatch: %s", got)
	}
}

func TestSetModeInvalid(t *testing.T) {
	a := NewAuthenticator("R", NewMemoryNonceStore(), nil, &mockUserSource{})

	err := a.SetMode(Mode("negotiate"))
	if err == nil {
		t.Fatal("expected error for invalid mode")
	}
	if secmodel.ErrorCode(err) != secmodel.ErrCodeInvalidMode {
		t.Errorf("expected invalid mode code, got %v", err)
	}
	if a.Mode() != ModeDigest {
		t.Error("mode should be unchanged after invalid set")
	}
}

func TestPasswordChangeUpdatesDigest(t *testing.T) {
	bus := events.NewBus()
	a := NewAuthenticator("R", NewMemoryNonceStore(), nil, &mockUserSource{}, WithBus(bus))
	defer a.Close()

	user := &secmodel.User{Username: "bob", Active: true}
	bus.PublishPasswordChange(events.PasswordChange{User: user, Password: "newpass"})

	want := HashA1("bob", "R", "newpass")
	if got := user.Preference(secmodel.PreferenceDigestA1); got != want {
		t.Errorf("expected A1 %s, got %s", want, got)
	}

	// After Close the subscription is gone.
	a.Close()
	user2 := &secmodel.User{Username: "eve", Active: true}
	bus.PublishPasswordChange(events.PasswordChange{User: user2, Password: "x"})
	if user2.Preference(secmodel.PreferenceDigestA1) != "" {
		t.Error("expected no A1 update after Close")
	}
}

func TestAuthenticateClearsStaleUser(t *testing.T) {
	a := NewAuthenticator("R", NewMemoryNonceStore(), nil, &mockUserSource{})
	a.SetUser(&secmodel.User{Username: "bob"})

	// A request with no credentials must not inherit the previous identity.
	req := httptest.NewRequest("GET", "/x", nil)
	if user := a.Authenticate(req); user != nil {
		t.Errorf("expected no user, got %v", user.Username)
	}
	if a.CurrentUser() != nil {
		t.Error("stale identity retained across requests")
	}
}

func TestSetUserOverride(t *testing.T) {
	a := NewAuthenticator("R", NewMemoryNonceStore(), nil, &mockUserSource{})

	user := &secmodel.User{Username: "bob"}
	a.SetUser(user)
	if a.CurrentUser() != user {
		t.Error("expected explicit identity override to stick")
	}
}
