// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/auth"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/config"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/ctxkeys"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/handlers"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/i18n"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/models"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/repository"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/services/session"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// UserLoader resolves the user id stored in a session.
type UserLoader interface {
	UserByID(ctx context.Context, id int64) (*models.User, error)
}

func setupMiddleware(e *echo.Echo, cfg *config.Config, sessions *session.Manager, users UserLoader, cssPath string) {
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(requestLogger())
	e.Use(middleware.Secure())
	e.Use(middleware.Gzip())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", cfg.Server.MaxBodySize)))
	e.Use(staticCacheHeaders())
	e.Use(csrfMiddleware(cfg))
	e.Use(csrfToContext())
	e.Use(assetsToContext(cssPath))
	e.Use(i18nMiddleware())
	e.Use(flashesToContext(sessions))
	e.Use(SessionMiddleware(sessions, users))
	e.Use(ConfirmationGate())
}

// csrfMiddleware configures CSRF protection.
func csrfMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	secure := strings.HasPrefix(cfg.Server.BaseURL, "https://")

	return middleware.CSRFWithConfig(middleware.CSRFConfig{
		Skipper:        isStaticPath,
		TokenLookup:    "form:_csrf,header:X-CSRF-Token",
		CookieName:     "_csrf",
		CookiePath:     "/",
		CookieSecure:   secure,
		CookieHTTPOnly: true,
		CookieSameSite: http.SameSiteLaxMode,
	})
}

// csrfToContext copies the CSRF token to the request context.
func csrfToContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token, ok := c.Get(middleware.DefaultCSRFConfig.ContextKey).(string); ok {
				setContextValue(c, ctxkeys.CSRFToken{}, token)
			}
			return next(c)
		}
	}
}

func assetsToContext(cssPath string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			setContextValue(c, ctxkeys.CSSPath{}, cssPath)
			return next(c)
		}
	}
}

func setContextValue(c echo.Context, key, value any) {
	ctx := context.WithValue(c.Request().Context(), key, value)
	c.SetRequest(c.Request().WithContext(ctx))
}

// requestLogger returns middleware that logs requests using slog.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", handlers.LogURI(c)),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}

			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				slog.LogAttrs(c.Request().Context(), slog.LevelError, "request", attrs...)
			} else {
				slog.LogAttrs(c.Request().Context(), slog.LevelInfo, "request", attrs...)
			}

			return nil
		},
	})
}

// i18nMiddleware sets the locale based on Accept-Language header.
func i18nMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			acceptLang := c.Request().Header.Get("Accept-Language")
			lang := i18n.MatchLanguage(acceptLang)
			ctx := i18n.WithLocale(c.Request().Context(), lang)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// flashesToContext moves pending flash messages into the request context and
// deletes the flash cookie.
func flashesToContext(sessions *session.Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isStaticPath(c) {
				return next(c)
			}
			flashes, expired := sessions.PopFlashes(c.Request())
			if expired != nil {
				c.SetCookie(expired)
				setContextValue(c, ctxkeys.Flashes{}, flashes)
			}
			return next(c)
		}
	}
}

// SessionMiddleware loads the user of a valid session into the request
// context. A session presented by a different client than the one it was
// issued to is dropped.
func SessionMiddleware(sessions *session.Manager, users UserLoader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isStaticPath(c) {
				return next(c)
			}

			data, err := sessions.Parse(c.Request())
			if err != nil {
				return err
			}
			if data == nil {
				return next(c)
			}

			ctx := c.Request().Context()
			if data.Fingerprint != session.Fingerprint(c.RealIP(), c.Request().UserAgent()) {
				slog.WarnContext(ctx, "session_fingerprint_mismatch", "user_id", data.UserID, "ip", c.RealIP())
				c.SetCookie(sessions.Clear())
				return next(c)
			}

			user, err := users.UserByID(ctx, data.UserID)
			if errors.Is(err, repository.ErrNotFound) {
				c.SetCookie(sessions.Clear())
				return next(c)
			}
			if err != nil {
				return fmt.Errorf("failed to load session user: %w", err)
			}

			c.SetRequest(c.Request().WithContext(auth.WithUser(ctx, user)))
			return next(c)
		}
	}
}

// ConfirmationGate sends logged in but unconfirmed users to the unconfirmed
// page for everything except auth endpoints, static files and the health check.
func ConfirmationGate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if auth.State(c.Request().Context()) != models.StateAuthenticatedUnconfirmed {
				return next(c)
			}
			path := c.Request().URL.Path
			if strings.HasPrefix(path, "/auth/") || path == "/health" || isStaticPath(c) {
				return next(c)
			}
			return handlers.Redirect(c, "/auth/unconfirmed")
		}
	}
}

// RequireAuth redirects anonymous users to the login page. GET requests
// carry the requested URL along as next parameter.
func RequireAuth(sessions *session.Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if auth.IsAuthenticated(c.Request().Context()) {
				return next(c)
			}

			target := "/auth/login"
			if c.Request().Method == http.MethodGet {
				target += "?next=" + url.QueryEscape(c.Request().URL.RequestURI())
			}
			cookie, err := sessions.AddFlash(c.Request(), session.Flash{
				Category: session.FlashInfo,
				Message:  "flash_login_required",
			})
			if err != nil {
				return err
			}
			c.SetCookie(cookie)
			return handlers.Redirect(c, target)
		}
	}
}

// RequirePermission answers 403 unless the user holds perm.
func RequirePermission(perm models.Permission) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if err := auth.Require(ctx, perm); err != nil {
				var userID int64
				if user := auth.GetUser(ctx); user != nil {
					userID = user.ID
				}
				slog.WarnContext(ctx, "forbidden", "user_id", userID, "permission", int64(perm), "path", c.Request().URL.Path)
				return err
			}
			return next(c)
		}
	}
}

// authRateLimiter throttles form submissions to the auth endpoints per client IP.
func authRateLimiter() echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().Method != http.MethodPost
		},
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Every(6 * time.Second),
			Burst:     10,
			ExpiresIn: 10 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, _ error) error {
			slog.WarnContext(c.Request().Context(), "rate_limited", "ip", identifier, "path", c.Request().URL.Path)
			return echo.ErrTooManyRequests
		},
	})
}

func isStaticPath(c echo.Context) bool {
	return strings.HasPrefix(c.Request().URL.Path, "/static/")
}

// staticCacheHeaders adds cache headers for static assets. Versioned URLs
// never change content and are cached for a year.
func staticCacheHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isStaticPath(c) {
				if c.QueryParam("v") != "" {
					c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
				} else {
					c.Response().Header().Set("Cache-Control", "no-cache")
				}
			}
			return next(c)
		}
	}
}
