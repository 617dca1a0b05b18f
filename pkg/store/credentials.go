package store

import (
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/palisadehq/palisade/pkg/events"
	"github.com/palisadehq/palisade/pkg/secmodel"
)

// Login verifies a username/password pair against the stored bcrypt hash.
// Returns (nil, nil) for unknown users, wrong passwords and inactive
// accounts; an error only means the store itself failed. This is the
// PasswordAuthenticator behind HTTP Basic authentication.
func (s *Store) Login(username, password string) (*secmodel.User, error) {
	var hash string
	err := s.db.QueryRow("SELECT password_hash FROM users WHERE username = ?", username).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, nil
	}

	user, err := s.UserByUsername(username)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active {
		return nil, nil
	}
	return user, nil
}

// SetPassword hashes and stores a new password for the user. The password
// change event fires while the plaintext is still in hand, so subscribers
// (the digest authenticator) can refresh derived material; the user record is
// saved afterwards, persisting any preferences the subscribers wrote.
func (s *Store) SetPassword(user *secmodel.User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if s.bus != nil {
		s.bus.PublishPasswordChange(events.PasswordChange{User: user, Password: password})
	}

	if err := s.SaveUser(user); err != nil {
		return err
	}

	_, err = s.db.Exec("UPDATE users SET password_hash = ? WHERE id = ?", string(hash), user.ID)
	return err
}

// AddUser creates an active user with the given password.
func (s *Store) AddUser(username, email, password string) (*secmodel.User, error) {
	user := &secmodel.User{
		Username: username,
		Email:    email,
		Active:   true,
	}
	if err := s.SaveUser(user); err != nil {
		return nil, err
	}
	if err := s.SetPassword(user, password); err != nil {
		return nil, err
	}
	return user, nil
}

// SetActive flips the user's active flag.
func (s *Store) SetActive(user *secmodel.User, active bool) error {
	user.Active = active
	return s.SaveUser(user)
}
