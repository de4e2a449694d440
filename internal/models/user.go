// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"errors"
	"time"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/services/password"
)

// ErrPasswordWriteOnly is returned when code tries to read a user's password.
var ErrPasswordWriteOnly = errors.New("password is a write-only attribute")

type User struct { //nolint:govet // fieldalignment: readability over optimization
	ID           int64     `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Confirmed    bool      `db:"confirmed" json:"confirmed"`
	RoleID       int64     `db:"role_id" json:"role_id"`
	Role         Role      `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Password always fails; only the salted hash is kept.
func (u *User) Password() (string, error) {
	return "", ErrPasswordWriteOnly
}

// SetPassword replaces the stored hash with a fresh salted hash of plaintext.
func (u *User) SetPassword(plaintext string) error {
	hash, err := password.Hash(plaintext)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

// VerifyPassword reports whether plaintext matches the stored hash.
func (u *User) VerifyPassword(plaintext string) bool {
	return password.Verify(u.PasswordHash, plaintext)
}

// Can reports whether the user's role grants every bit of perm.
// A nil user is anonymous and can do nothing.
func (u *User) Can(perm Permission) bool {
	if u == nil {
		return false
	}
	return u.Role.Has(perm)
}

// IsAdministrator reports whether the user holds the administer permission.
func (u *User) IsAdministrator() bool {
	return u.Can(PermAdminister)
}

// State is the position of a request's user in the account life cycle.
type State int

const (
	StateAnonymous State = iota
	StateAuthenticatedUnconfirmed
	StateAuthenticatedConfirmed
)

func (s State) String() string {
	switch s {
	case StateAuthenticatedUnconfirmed:
		return "authenticated_unconfirmed"
	case StateAuthenticatedConfirmed:
		return "authenticated_confirmed"
	default:
		return "anonymous"
	}
}

// StateOf returns the life cycle state for the (possibly nil) current user.
func StateOf(u *User) State {
	switch {
	case u == nil:
		return StateAnonymous
	case u.Confirmed:
		return StateAuthenticatedConfirmed
	default:
		return StateAuthenticatedUnconfirmed
	}
}
