// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"context"
	"net/url"
	"slices"
	"strings"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/ctxkeys"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/htmx"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/services/session"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/templates"
	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// Render renders a templ component with the given status code.
func Render(c echo.Context, statusCode int, component templ.Component) error {
	buf := templ.GetBuffer()
	defer templ.ReleaseBuffer(buf)

	if err := component.Render(c.Request().Context(), buf); err != nil {
		return err
	}

	return c.HTML(statusCode, buf.String())
}

// RenderWithFlash renders component with f shown in addition to the flashes
// already popped for this request.
func RenderWithFlash(c echo.Context, statusCode int, f session.Flash, component templ.Component) error {
	ctx := c.Request().Context()
	flashes := append(slices.Clone(templates.Flashes(ctx)), f)
	ctx = context.WithValue(ctx, ctxkeys.Flashes{}, flashes)
	c.SetRequest(c.Request().WithContext(ctx))
	return Render(c, statusCode, component)
}

// Redirect sends the client to target, htmx aware.
func Redirect(c echo.Context, target string) error {
	htmx.Redirect(c.Response(), c.Request(), target)
	return nil
}

// flashRedirect stores a flash for the next page and redirects to target.
func flashRedirect(c echo.Context, sessions *session.Manager, category, messageID, target string) error {
	cookie, err := sessions.AddFlash(c.Request(), session.Flash{Category: category, Message: messageID})
	if err != nil {
		return err
	}
	c.SetCookie(cookie)
	return Redirect(c, target)
}

// SafeNext returns next if it is a path on this site, otherwise "".
func SafeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	return next
}

// LogURI returns the request URI for log lines. Token path parameters are
// replaced by the route pattern so confirmation and reset links never reach
// the log.
func LogURI(c echo.Context) string {
	if c.Param("token") == "" {
		return c.Request().RequestURI
	}
	uri := strings.ReplaceAll(c.Path(), ":token", "[redacted]")
	if q := c.Request().URL.RawQuery; q != "" {
		uri += "?" + q
	}
	return uri
}
