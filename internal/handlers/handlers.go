// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/repository"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/templates/pages"
	"github.com/labstack/echo/v4"
)

// Handlers contains the non-auth HTTP handlers.
type Handlers struct {
	repo *repository.Repository
}

// New creates a new Handlers instance.
func New(repo *repository.Repository) *Handlers {
	return &Handlers{repo: repo}
}

// Health returns the health status.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Home renders the home page.
func (h *Handlers) Home(c echo.Context) error {
	return Render(c, http.StatusOK, pages.Home())
}

// Admin renders the administration page. Routed behind the Administer gate.
func (h *Handlers) Admin(c echo.Context) error {
	ctx := c.Request().Context()

	count, err := h.repo.CountUsers(ctx)
	if err != nil {
		return err
	}
	roles, err := h.repo.ListRoles(ctx)
	if err != nil {
		return err
	}

	return Render(c, http.StatusOK, pages.Admin(int(count), roles))
}

// Moderate renders the moderation page. Routed behind the ModerateComments gate.
func (h *Handlers) Moderate(c echo.Context) error {
	return Render(c, http.StatusOK, pages.Moderate())
}
