// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package htmx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/htmx"
	"github.com/stretchr/testify/assert"
)

func TestParseRequest_HtmxRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("HX-Request", "true")
	req.Header.Set("HX-Boosted", "true")
	req.Header.Set("HX-Current-URL", "http://example.com/page")
	req.Header.Set("HX-Target", "main")

	parsed := htmx.ParseRequest(req)

	assert.True(t, parsed.IsHtmx)
	assert.True(t, parsed.IsBoosted)
	assert.Equal(t, "http://example.com/page", parsed.CurrentURL)
	assert.Equal(t, "main", parsed.Target)
}

func TestParseRequest_NonHtmxRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	parsed := htmx.ParseRequest(req)

	assert.False(t, parsed.IsHtmx)
	assert.False(t, parsed.IsBoosted)
}

func TestRedirect_Plain(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	rec := httptest.NewRecorder()

	htmx.Redirect(rec, req, "/")

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestRedirect_Boosted(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.Header.Set("HX-Request", "true")
	req.Header.Set("HX-Boosted", "true")
	rec := httptest.NewRecorder()

	htmx.Redirect(rec, req, "/")

	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestRedirect_Htmx(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()

	htmx.Redirect(rec, req, "/auth/login")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/auth/login", rec.Header().Get("HX-Redirect"))
	assert.Empty(t, rec.Header().Get("Location"))
}
