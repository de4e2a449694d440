// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/auth"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/config"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/ctxkeys"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/handlers"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/i18n"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/models"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/repository"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/services/session"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHashKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func newSessions(t *testing.T) *session.Manager {
	t.Helper()
	sessMgr, err := session.NewManager(&config.SessionConfig{
		CookieName:     "_session",
		MaxAge:         3600,
		RememberMaxAge: 7200,
		HashKey:        testHashKey,
	}, false)
	require.NoError(t, err)
	return sessMgr
}

type repoLoader struct {
	repo *repository.Repository
}

func (l repoLoader) UserByID(ctx context.Context, id int64) (*models.User, error) {
	return l.repo.GetUserByID(ctx, id)
}

type failingLoader struct{}

func (failingLoader) UserByID(context.Context, int64) (*models.User, error) {
	return nil, errors.New("database is locked")
}

// clientFingerprint matches what httptest requests present.
func clientFingerprint(ua string) string {
	return session.Fingerprint("192.0.2.1", ua)
}

func captureUser(target **models.User) echo.HandlerFunc {
	return func(c echo.Context) error {
		*target = auth.GetUser(c.Request().Context())
		return c.NoContent(http.StatusOK)
	}
}

func TestSessionMiddleware_NoSession(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	e := echo.New()
	e.Use(SessionMiddleware(newSessions(t), repoLoader{repo}))

	var contextUser *models.User
	e.GET("/", captureUser(&contextUser))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, contextUser)
}

func TestSessionMiddleware_WithSession(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	user := testutil.NewConfirmedUser(t, repo, "a@x.com", "alice", "secret-pw", models.RoleUser)
	sessMgr := newSessions(t)

	cookie, err := sessMgr.Create(user.ID, clientFingerprint("test-agent"), false)
	require.NoError(t, err)

	e := echo.New()
	e.Use(SessionMiddleware(sessMgr, repoLoader{repo}))

	var contextUser *models.User
	e.GET("/", captureUser(&contextUser))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", "test-agent")
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, contextUser)
	assert.Equal(t, user.ID, contextUser.ID)
	assert.Equal(t, models.RoleUser, contextUser.Role.Name)
}

func TestSessionMiddleware_FingerprintMismatch(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	user := testutil.NewConfirmedUser(t, repo, "a@x.com", "alice", "secret-pw", models.RoleUser)
	sessMgr := newSessions(t)

	cookie, err := sessMgr.Create(user.ID, clientFingerprint("browser-one"), false)
	require.NoError(t, err)

	e := echo.New()
	e.Use(SessionMiddleware(sessMgr, repoLoader{repo}))

	var contextUser *models.User
	e.GET("/", captureUser(&contextUser))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", "browser-two")
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Nil(t, contextUser)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, "_session", cleared[0].Name)
	assert.Negative(t, cleared[0].MaxAge)
}

func TestSessionMiddleware_InvalidSession(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	e := echo.New()
	e.Use(SessionMiddleware(newSessions(t), repoLoader{repo}))

	var contextUser *models.User
	e.GET("/", captureUser(&contextUser))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "_session", Value: "tampered"})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, contextUser)
}

func TestSessionMiddleware_UserNotFound(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	sessMgr := newSessions(t)

	cookie, err := sessMgr.Create(99999, clientFingerprint(""), false)
	require.NoError(t, err)

	e := echo.New()
	e.Use(SessionMiddleware(sessMgr, repoLoader{repo}))

	var contextUser *models.User
	e.GET("/", captureUser(&contextUser))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, contextUser)
}

func TestSessionMiddleware_LoaderErrorPropagates(t *testing.T) {
	sessMgr := newSessions(t)
	cookie, err := sessMgr.Create(1, clientFingerprint(""), false)
	require.NoError(t, err)

	e := echo.New()
	e.Use(SessionMiddleware(sessMgr, failingLoader{}))
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func withUserMiddleware(user *models.User) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if user != nil {
				c.SetRequest(c.Request().WithContext(auth.WithUser(c.Request().Context(), user)))
			}
			return next(c)
		}
	}
}

func TestConfirmationGate(t *testing.T) {
	unconfirmed := &models.User{ID: 1, Username: "alice"}
	confirmed := &models.User{ID: 2, Username: "bob", Confirmed: true}

	tests := []struct {
		name       string
		user       *models.User
		path       string
		redirected bool
	}{
		{"anonymous home", nil, "/", false},
		{"confirmed home", confirmed, "/", false},
		{"unconfirmed home", unconfirmed, "/", true},
		{"unconfirmed admin", unconfirmed, "/admin", true},
		{"unconfirmed auth endpoint", unconfirmed, "/auth/logout", false},
		{"unconfirmed unconfirmed page", unconfirmed, "/auth/unconfirmed", false},
		{"unconfirmed static", unconfirmed, "/static/css/styles.css", false},
		{"unconfirmed health", unconfirmed, "/health", false},
		{"unconfirmed auth lookalike", unconfirmed, "/authors", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.Use(withUserMiddleware(tt.user))
			e.Use(ConfirmationGate())
			e.Any("/*", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if tt.redirected {
				assert.Equal(t, http.StatusSeeOther, rec.Code)
				assert.Equal(t, "/auth/unconfirmed", rec.Header().Get("Location"))
			} else {
				assert.Equal(t, http.StatusOK, rec.Code)
			}
		})
	}
}

func TestRequireAuth_NotAuthenticated(t *testing.T) {
	sessMgr := newSessions(t)

	e := echo.New()
	e.GET("/protected", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, RequireAuth(sessMgr))

	req := httptest.NewRequest(http.MethodGet, "/protected?tab=1", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login?next=%2Fprotected%3Ftab%3D1", rec.Header().Get("Location"))

	flashReq := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		flashReq.AddCookie(c)
	}
	flashes, _ := sessMgr.PopFlashes(flashReq)
	assert.Equal(t, []session.Flash{{Category: session.FlashInfo, Message: "flash_login_required"}}, flashes)
}

func TestRequireAuth_Authenticated(t *testing.T) {
	e := echo.New()
	e.Use(withUserMiddleware(&models.User{ID: 1, Username: "test"}))
	e.GET("/protected", func(c echo.Context) error {
		return c.String(http.StatusOK, "protected content")
	}, RequireAuth(newSessions(t)))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "protected content", rec.Body.String())
}

func TestRequirePermission(t *testing.T) {
	require.NoError(t, i18n.Init())

	tests := []struct {
		name string
		user *models.User
		code int
	}{
		{"anonymous", nil, http.StatusForbidden},
		{"user", &models.User{ID: 1, Confirmed: true, Role: models.Role{Permissions: 0x07}}, http.StatusForbidden},
		{"moderator", &models.User{ID: 2, Confirmed: true, Role: models.Role{Permissions: 0x0f}}, http.StatusForbidden},
		{"administrator", &models.User{ID: 3, Confirmed: true, Role: models.Role{Permissions: 0xff}}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.HTTPErrorHandler = handlers.HTTPErrorHandler
			e.Use(withUserMiddleware(tt.user))
			e.GET("/admin", func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			}, RequirePermission(models.PermAdminister))

			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestFlashesToContext(t *testing.T) {
	sessMgr := newSessions(t)
	pending, err := sessMgr.AddFlash(httptest.NewRequest(http.MethodGet, "/", nil), session.Flash{
		Category: session.FlashSuccess,
		Message:  "flash_confirmed",
	})
	require.NoError(t, err)

	e := echo.New()
	e.Use(flashesToContext(sessMgr))

	var flashes []session.Flash
	e.GET("/", func(c echo.Context) error {
		flashes, _ = c.Request().Context().Value(ctxkeys.Flashes{}).([]session.Flash)
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(pending)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Len(t, flashes, 1)
	assert.Equal(t, "flash_confirmed", flashes[0].Message)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Negative(t, cleared[0].MaxAge)
}

func TestI18nMiddleware(t *testing.T) {
	require.NoError(t, i18n.Init())

	e := echo.New()
	e.Use(i18nMiddleware())

	var locale string
	e.GET("/", func(c echo.Context) error {
		locale = i18n.GetLocale(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9,en;q=0.8")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, "de", locale)
}

func TestStaticCacheHeaders(t *testing.T) {
	e := echo.New()
	e.Use(staticCacheHeaders())
	e.GET("/static/*", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	tests := []struct {
		path     string
		expected string
	}{
		{"/static/css/styles.css?v=d073ff63", "public, max-age=31536000, immutable"},
		{"/static/css/styles.css", "no-cache"},
		{"/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.expected, rec.Header().Get("Cache-Control"))
		})
	}
}

func TestCsrfToContext_WithToken(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{BaseURL: "http://localhost:8080"}}

	e := echo.New()
	e.Use(csrfMiddleware(cfg))
	e.Use(csrfToContext())

	var token string
	e.GET("/", func(c echo.Context) error {
		token, _ = c.Request().Context().Value(ctxkeys.CSRFToken{}).(string)
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.NotEmpty(t, token)
}

func TestAuthRateLimiter(t *testing.T) {
	e := echo.New()
	e.Use(authRateLimiter())
	e.POST("/auth/login", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/auth/login", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	var limited int
	for range 15 {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Positive(t, limited)

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "page views are not limited")
}

func TestRequestLogger_RedactsTokens(t *testing.T) {
	logs := testutil.CaptureLogs(t)
	const secret = "eyJhbGciOiJIUzI1NiJ9.c2VjcmV0LXJlc2V0.c2ln"

	e := echo.New()
	e.Use(requestLogger())
	e.GET("/auth/reset_pwd/:token", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/auth/confirm/:token", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	for _, path := range []string{"/auth/reset_pwd/" + secret, "/auth/confirm/" + secret + "?x=1"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	out := logs.String()
	assert.NotContains(t, out, secret)
	assert.NotContains(t, out, "c2VjcmV0LXJlc2V0")
	assert.Contains(t, out, "uri=/auth/reset_pwd/[redacted]")
	assert.Contains(t, out, "/auth/confirm/[redacted]?x=1")
}

func TestRequestLogger_KeepsPlainURIs(t *testing.T) {
	logs := testutil.CaptureLogs(t)

	e := echo.New()
	e.Use(requestLogger())
	e.GET("/admin", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/admin?page=2", nil)
	e.ServeHTTP(httptest.NewRecorder(), req)

	assert.Contains(t, logs.String(), "/admin?page=2")
}

func TestAuthRateLimiter_IgnoresSpoofedForwardedFor(t *testing.T) {
	extractor, err := ipExtractor(nil)
	require.NoError(t, err)

	e := echo.New()
	e.IPExtractor = extractor
	e.Use(authRateLimiter())
	e.POST("/auth/login", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	var limited int
	for i := range 50 {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "203.0.113.7:40000"
		req.Header.Set(echo.HeaderXForwardedFor, fmt.Sprintf("198.51.100.%d", i))
		req.Header.Set(echo.HeaderXRealIP, fmt.Sprintf("198.51.100.%d", i))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.GreaterOrEqual(t, limited, 35, "rotating X-Forwarded-For must not reset the limit")
}

func TestIPExtractor(t *testing.T) {
	tests := []struct {
		name     string
		proxies  []string
		remote   string
		xff      string
		expected string
	}{
		{"direct ignores header", nil, "198.51.100.9:1234", "192.0.2.1", "198.51.100.9"},
		{"trusted proxy", []string{"10.0.0.0/8"}, "10.1.2.3:1234", "192.0.2.1", "192.0.2.1"},
		{"trusted single proxy", []string{"10.1.2.3"}, "10.1.2.3:1234", "192.0.2.1", "192.0.2.1"},
		{"untrusted proxy", []string{"10.0.0.0/8"}, "198.51.100.9:1234", "192.0.2.1", "198.51.100.9"},
		{"loopback not trusted implicitly", []string{"10.0.0.0/8"}, "127.0.0.1:1234", "192.0.2.1", "127.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extractor, err := ipExtractor(tt.proxies)
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			req.Header.Set(echo.HeaderXForwardedFor, tt.xff)

			assert.Equal(t, tt.expected, extractor(req))
		})
	}
}

func TestIPExtractor_InvalidProxy(t *testing.T) {
	_, err := ipExtractor([]string{"not-an-ip"})
	assert.Error(t, err)
}
