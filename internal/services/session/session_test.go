// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package session_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/config"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/services/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validHashKey is a valid 32-byte hex-encoded key for testing
const validHashKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// validBlockKey is a valid 32-byte hex-encoded key for encryption testing
const validBlockKey = "fedcba9876543210fedcba9876543210fedcba9876543210fedcba9876543210"

func newTestConfig() *config.SessionConfig {
	return &config.SessionConfig{
		CookieName:     "_test_session",
		MaxAge:         3600, // 1 hour
		RememberMaxAge: 86400,
		HashKey:        validHashKey,
	}
}

func TestNewManager(t *testing.T) {
	cfg := newTestConfig()

	mgr, err := session.NewManager(cfg, false)

	require.NoError(t, err)
	assert.NotNil(t, mgr)
}

func TestNewManager_WithBlockKey(t *testing.T) {
	cfg := newTestConfig()
	cfg.BlockKey = validBlockKey

	mgr, err := session.NewManager(cfg, true)

	require.NoError(t, err)
	assert.NotNil(t, mgr)
}

func TestNewManager_InvalidHashKey_NotHex(t *testing.T) {
	cfg := newTestConfig()
	cfg.HashKey = "not-hex-encoded"

	_, err := session.NewManager(cfg, false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid session hash key")
}

func TestNewManager_InvalidHashKey_WrongLength(t *testing.T) {
	cfg := newTestConfig()
	cfg.HashKey = "0123456789abcdef" // only 8 bytes

	_, err := session.NewManager(cfg, false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be 32 bytes")
}

func TestNewManager_InvalidBlockKey_NotHex(t *testing.T) {
	cfg := newTestConfig()
	cfg.BlockKey = "not-hex-encoded"

	_, err := session.NewManager(cfg, false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid session block key")
}

func TestNewManager_InvalidBlockKey_WrongLength(t *testing.T) {
	cfg := newTestConfig()
	cfg.BlockKey = "0123456789abcdef" // only 8 bytes

	_, err := session.NewManager(cfg, false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be 32 bytes")
}

func TestNewManager_DevMode_GeneratesKey(t *testing.T) {
	cfg := &config.SessionConfig{
		CookieName: "_session",
		MaxAge:     3600,
		HashKey:    "", // empty - should auto-generate
	}

	mgr, err := session.NewManager(cfg, false)

	require.NoError(t, err)
	assert.NotNil(t, mgr)
}

func TestCreate(t *testing.T) {
	cfg := newTestConfig()
	mgr, err := session.NewManager(cfg, false)
	require.NoError(t, err)

	cookie, err := mgr.Create(123, "fp", false)

	require.NoError(t, err)
	assert.Equal(t, "_test_session", cookie.Name)
	assert.NotEmpty(t, cookie.Value)
	assert.Equal(t, "/", cookie.Path)
	assert.Zero(t, cookie.MaxAge, "browser session cookie")
	assert.True(t, cookie.HttpOnly)
	assert.False(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
}

func TestCreate_SecureMode(t *testing.T) {
	cfg := newTestConfig()
	mgr, err := session.NewManager(cfg, true)
	require.NoError(t, err)

	cookie, err := mgr.Create(123, "fp", false)

	require.NoError(t, err)
	assert.True(t, cookie.Secure)
}

func TestParse(t *testing.T) {
	cfg := newTestConfig()
	mgr, err := session.NewManager(cfg, false)
	require.NoError(t, err)

	// Create a session
	cookie, err := mgr.Create(123, "fp", false)
	require.NoError(t, err)

	// Create a request with the cookie
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)

	// Parse the session
	data, err := mgr.Parse(req)

	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, int64(123), data.UserID)
	assert.Equal(t, "fp", data.Fingerprint)
	assert.False(t, data.Remember)
	assert.False(t, data.ExpiresAt.IsZero())
}

func TestParse_NoCookie(t *testing.T) {
	cfg := newTestConfig()
	mgr, err := session.NewManager(cfg, false)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)

	data, err := mgr.Parse(req)

	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestParse_InvalidCookie(t *testing.T) {
	cfg := newTestConfig()
	mgr, err := session.NewManager(cfg, false)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{
		Name:  "_test_session",
		Value: "invalid-cookie-value",
	})

	data, err := mgr.Parse(req)

	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestParse_TamperedCookie(t *testing.T) {
	cfg := newTestConfig()
	mgr, err := session.NewManager(cfg, false)
	require.NoError(t, err)

	// Create a valid session
	cookie, err := mgr.Create(123, "fp", false)
	require.NoError(t, err)

	// Tamper with the cookie value
	cookie.Value = cookie.Value[:len(cookie.Value)-5] + "XXXXX"

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)

	data, err := mgr.Parse(req)

	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestParse_ExpiredSession(t *testing.T) {
	mgr, err := session.NewManager(newTestConfig(), false)
	require.NoError(t, err)
	start := time.Now()
	mgr.SetClock(func() time.Time { return start })

	cookie, err := mgr.Create(123, "fp", false)
	require.NoError(t, err)

	mgr.SetClock(func() time.Time { return start.Add(time.Hour + time.Second) })
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)

	data, err := mgr.Parse(req)

	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestCreate_Remember(t *testing.T) {
	mgr, err := session.NewManager(newTestConfig(), false)
	require.NoError(t, err)
	start := time.Now()
	mgr.SetClock(func() time.Time { return start })

	cookie, err := mgr.Create(123, "fp", true)
	require.NoError(t, err)
	assert.Equal(t, 86400, cookie.MaxAge)

	// Still valid past the normal lifetime.
	mgr.SetClock(func() time.Time { return start.Add(2 * time.Hour) })
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)

	data, err := mgr.Parse(req)
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.True(t, data.Remember)
}

func TestParse_DifferentManager(t *testing.T) {
	cfg1 := newTestConfig()
	mgr1, err := session.NewManager(cfg1, false)
	require.NoError(t, err)

	// Create a session with manager 1
	cookie, err := mgr1.Create(123, "fp", false)
	require.NoError(t, err)

	// Create a different manager with different key
	cfg2 := &config.SessionConfig{
		CookieName: "_test_session",
		MaxAge:     3600,
		HashKey:    validBlockKey, // different key
	}
	mgr2, err := session.NewManager(cfg2, false)
	require.NoError(t, err)

	// Try to parse with manager 2
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)

	data, err := mgr2.Parse(req)

	require.NoError(t, err)
	assert.Nil(t, data) // Should not be able to decode
}

func TestClear(t *testing.T) {
	cfg := newTestConfig()
	mgr, err := session.NewManager(cfg, false)
	require.NoError(t, err)

	cookie := mgr.Clear()

	assert.Equal(t, "_test_session", cookie.Name)
	assert.Empty(t, cookie.Value)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, -1, cookie.MaxAge)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
}

func TestClear_SecureMode(t *testing.T) {
	cfg := newTestConfig()
	mgr, err := session.NewManager(cfg, true)
	require.NoError(t, err)

	cookie := mgr.Clear()

	assert.True(t, cookie.Secure)
}

func TestFingerprint(t *testing.T) {
	fp := session.Fingerprint("10.0.0.1", "Firefox")

	assert.Len(t, fp, 64)
	assert.Equal(t, fp, session.Fingerprint("10.0.0.1", "Firefox"))
	assert.NotEqual(t, fp, session.Fingerprint("10.0.0.2", "Firefox"))
	assert.NotEqual(t, fp, session.Fingerprint("10.0.0.1", "Chrome"))
}

func TestFlash_RoundTrip(t *testing.T) {
	mgr, err := session.NewManager(newTestConfig(), false)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	cookie, err := mgr.AddFlash(req, session.Flash{Category: session.FlashInfo, Message: "flash_logged_out"})
	require.NoError(t, err)
	assert.Equal(t, "_test_session_flash", cookie.Name)

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	next.AddCookie(cookie)
	flashes, clearCookie := mgr.PopFlashes(next)

	require.Len(t, flashes, 1)
	assert.Equal(t, "flash_logged_out", flashes[0].Message)
	require.NotNil(t, clearCookie)
	assert.Equal(t, -1, clearCookie.MaxAge)
}

func TestFlash_Appends(t *testing.T) {
	mgr, err := session.NewManager(newTestConfig(), false)
	require.NoError(t, err)

	first, err := mgr.AddFlash(httptest.NewRequest(http.MethodGet, "/", nil), session.Flash{Message: "one"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(first)
	second, err := mgr.AddFlash(req, session.Flash{Message: "two"})
	require.NoError(t, err)

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	next.AddCookie(second)
	flashes, _ := mgr.PopFlashes(next)

	require.Len(t, flashes, 2)
	assert.Equal(t, "two", flashes[1].Message)
}

func TestFlash_None(t *testing.T) {
	mgr, err := session.NewManager(newTestConfig(), false)
	require.NoError(t, err)

	flashes, clearCookie := mgr.PopFlashes(httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Nil(t, flashes)
	assert.Nil(t, clearCookie)
}

func TestFlash_Tampered(t *testing.T) {
	mgr, err := session.NewManager(newTestConfig(), false)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "_test_session_flash", Value: "forged"})
	flashes, clearCookie := mgr.PopFlashes(req)

	assert.Empty(t, flashes)
	assert.NotNil(t, clearCookie)
}
