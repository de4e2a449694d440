// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/auth"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/templates/pages"
	"github.com/labstack/echo/v4"
)

// HTTPErrorHandler renders error pages. Only generic text reaches the
// client; the underlying error is logged.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	var he *echo.HTTPError
	switch {
	case errors.Is(err, auth.ErrForbidden):
		code = http.StatusForbidden
	case errors.As(err, &he):
		code = he.Code
	}

	if code >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request().Context(), "request_failed",
			"error", err,
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			"uri", LogURI(c),
		)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	if renderErr := Render(c, code, pages.Error(code, errorMessageID(code))); renderErr != nil {
		slog.ErrorContext(c.Request().Context(), "failed to render error page", "error", renderErr)
	}
}

func errorMessageID(code int) string {
	switch code {
	case http.StatusForbidden:
		return "error_forbidden"
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return "error_not_found"
	case http.StatusTooManyRequests:
		return "error_too_many_requests"
	}
	if code >= http.StatusInternalServerError {
		return "error_internal"
	}
	return "error_bad_request"
}
