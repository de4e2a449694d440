// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session keeps the logged in user in a signed (and optionally
// encrypted) cookie. Nothing is stored server side.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/config"
	"github.com/gorilla/securecookie"
)

// Data is the payload of the session cookie.
type Data struct {
	UserID      int64     `json:"uid"`
	Fingerprint string    `json:"fp"`
	Remember    bool      `json:"rm,omitempty"`
	ExpiresAt   time.Time `json:"exp"`
}

type Manager struct {
	cfg    *config.SessionConfig
	codec  *securecookie.SecureCookie
	secure bool
	now    func() time.Time
}

// NewManager creates a session manager. An empty hash key is replaced by a
// random one, which logs everybody out on restart.
func NewManager(cfg *config.SessionConfig, secure bool) (*Manager, error) {
	hashKey, err := decodeKey(cfg.HashKey, "hash")
	if err != nil {
		return nil, err
	}
	if hashKey == nil {
		hashKey = securecookie.GenerateRandomKey(32)
		if hashKey == nil {
			return nil, errors.New("failed to generate session hash key")
		}
		slog.Warn("session hash key not configured, using a random key; sessions will not survive restarts")
	}

	blockKey, err := decodeKey(cfg.BlockKey, "block")
	if err != nil {
		return nil, err
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(max(cfg.MaxAge, cfg.RememberMaxAge))

	return &Manager{
		cfg:    cfg,
		codec:  codec,
		secure: secure,
		now:    time.Now,
	}, nil
}

func decodeKey(value, name string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid session %s key: %w", name, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid session %s key: must be 32 bytes, got %d", name, len(key))
	}
	return key, nil
}

// SetClock replaces the clock used for session expiry.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Create returns the cookie for a new session. A remembered session persists
// for RememberMaxAge; otherwise the browser drops the cookie when it closes
// and the server stops accepting it after MaxAge.
func (m *Manager) Create(userID int64, fingerprint string, remember bool) (*http.Cookie, error) {
	lifetime := m.cfg.MaxAge
	if remember {
		lifetime = m.cfg.RememberMaxAge
	}

	data := Data{
		UserID:      userID,
		Fingerprint: fingerprint,
		Remember:    remember,
		ExpiresAt:   m.now().Add(time.Duration(lifetime) * time.Second),
	}

	encoded, err := m.codec.Encode(m.cfg.CookieName, data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}

	cookie := m.cookie(m.cfg.CookieName, encoded)
	if remember {
		cookie.MaxAge = lifetime
		cookie.Expires = data.ExpiresAt
	}
	return cookie, nil
}

// Parse returns the session of the request, or nil when there is none or it
// is invalid or expired.
func (m *Manager) Parse(r *http.Request) (*Data, error) {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil {
		return nil, nil //nolint:nilerr // no cookie means no session
	}

	var data Data
	if err := m.codec.Decode(m.cfg.CookieName, cookie.Value, &data); err != nil {
		return nil, nil //nolint:nilerr // tampered or foreign cookies are ignored
	}

	if data.UserID == 0 || !m.now().Before(data.ExpiresAt) {
		return nil, nil
	}
	return &data, nil
}

// Clear returns a cookie that removes the session.
func (m *Manager) Clear() *http.Cookie {
	return m.expired(m.cfg.CookieName)
}

func (m *Manager) cookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (m *Manager) expired(name string) *http.Cookie {
	c := m.cookie(name, "")
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	return c
}

// Fingerprint identifies the client a session was created for. A session
// presented by a client with a different fingerprint is discarded.
func Fingerprint(ip, userAgent string) string {
	sum := sha256.Sum256([]byte(ip + "|" + userAgent))
	return hex.EncodeToString(sum[:])
}
