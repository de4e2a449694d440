// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package htmx provides types and helpers for htmx integration.
package htmx

import (
	"net/http"
)

// Request headers.
const (
	HeaderRequest    = "HX-Request"
	HeaderBoosted    = "HX-Boosted"
	HeaderCurrentURL = "HX-Current-URL"
	HeaderTarget     = "HX-Target"
)

// Response headers.
const (
	HeaderRedirect = "HX-Redirect"
	HeaderRefresh  = "HX-Refresh"
)

// Request contains information about an htmx request.
type Request struct { //nolint:govet // fieldalignment not critical
	IsHtmx     bool
	IsBoosted  bool
	CurrentURL string
	Target     string
}

// ParseRequest extracts htmx information from request headers.
func ParseRequest(r *http.Request) *Request {
	return &Request{
		IsHtmx:     r.Header.Get(HeaderRequest) == "true",
		IsBoosted:  r.Header.Get(HeaderBoosted) == "true",
		CurrentURL: r.Header.Get(HeaderCurrentURL),
		Target:     r.Header.Get(HeaderTarget),
	}
}

// Redirect sends the client to url. Non-boosted htmx requests would swap the
// redirect target into the page, so they get an HX-Redirect header and a full
// page load instead of a 303.
func Redirect(w http.ResponseWriter, r *http.Request, url string) {
	if req := ParseRequest(r); req.IsHtmx && !req.IsBoosted {
		w.Header().Set(HeaderRedirect, url)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}
