// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package token issues and verifies signed, time-limited tokens that bind a
// subject to a single action. Tokens are self-contained; nothing is stored
// server side, so a token stays usable until it expires.
package token

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed        = errors.New("token is malformed")
	ErrExpired          = errors.New("token has expired")
	ErrActionMismatch   = errors.New("token was issued for a different action")
	ErrSignatureInvalid = errors.New("token signature is invalid")
)

// Action scopes a token to one flow.
type Action string

const (
	ActionConfirm Action = "confirm"
	ActionReset   Action = "reset"
)

const issuer = "go-webapp-auth"

// Claims are the registered claims plus the action the token was issued for.
type Claims struct {
	jwt.RegisteredClaims
	Action Action `json:"act"`
}

type Service struct {
	secret []byte
	now    func() time.Time
}

// NewService returns a token service signing with secret (HS256).
func NewService(secret []byte) *Service {
	return &Service{secret: secret, now: time.Now}
}

// WithClock returns a copy of the service that reads the time from now.
func (s *Service) WithClock(now func() time.Time) *Service {
	return &Service{secret: s.secret, now: now}
}

// Generate issues a token for a user id.
func (s *Service) Generate(userID int64, action Action, ttl time.Duration) (string, error) {
	return s.GenerateForSubject(strconv.FormatInt(userID, 10), action, ttl)
}

// GenerateForSubject issues a token for an arbitrary subject such as an email.
func (s *Service) GenerateForSubject(subject string, action Action, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Action: action,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks signature, expiry and action and returns the subject.
// It never panics on attacker supplied input; every failure is one of the
// package's sentinel errors.
func (s *Service) Verify(tokenString string, expected Action) (string, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return "", classify(err)
	}

	if claims.Action != expected {
		return "", ErrActionMismatch
	}
	if claims.Subject == "" {
		return "", ErrMalformed
	}
	return claims.Subject, nil
}

// VerifyUserID is Verify for tokens issued by Generate.
func (s *Service) VerifyUserID(tokenString string, expected Action) (int64, error) {
	subject, err := s.Verify(tokenString, expected)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(subject, 10, 64)
	if err != nil {
		return 0, ErrMalformed
	}
	return id, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrSignatureInvalid
	default:
		return ErrMalformed
	}
}
