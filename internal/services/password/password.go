// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package password hashes and verifies passwords and checks them against the
// password policy.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrTooLong is returned for passwords longer than bcrypt can hash.
var ErrTooLong = errors.New("password exceeds 72 bytes")

// MaxBytes is the longest password bcrypt accepts.
const MaxBytes = 72

// Cost is the bcrypt work factor. Tests lower it to bcrypt.MinCost.
var Cost = bcrypt.DefaultCost

// Hash returns a salted bcrypt hash of plaintext.
func Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxBytes {
		return "", ErrTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), Cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Verify compares plaintext against hash in constant time.
func Verify(hash, plaintext string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)

// VerifyDummy spends the same time as Verify against a real hash. Login calls
// it for unknown accounts so response timing does not reveal which emails exist.
func VerifyDummy(plaintext string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(plaintext))
}
