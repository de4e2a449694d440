// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package session

import (
	"fmt"
	"net/http"
)

// Flash categories.
const (
	FlashInfo    = "info"
	FlashSuccess = "success"
	FlashError   = "error"
)

// Flash is a one-time message shown on the next rendered page.
// Message is an i18n message id.
type Flash struct {
	Category string `json:"c"`
	Message  string `json:"m"`
}

func (m *Manager) flashName() string {
	return m.cfg.CookieName + "_flash"
}

// AddFlash appends f to the flashes already pending on r and returns the
// updated cookie.
func (m *Manager) AddFlash(r *http.Request, f Flash) (*http.Cookie, error) {
	flashes := m.readFlashes(r)
	flashes = append(flashes, f)

	encoded, err := m.codec.Encode(m.flashName(), flashes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode flash: %w", err)
	}
	return m.cookie(m.flashName(), encoded), nil
}

// PopFlashes returns the pending flashes and, if there were any, a cookie
// that deletes them.
func (m *Manager) PopFlashes(r *http.Request) ([]Flash, *http.Cookie) {
	if _, err := r.Cookie(m.flashName()); err != nil {
		return nil, nil
	}
	return m.readFlashes(r), m.expired(m.flashName())
}

func (m *Manager) readFlashes(r *http.Request) []Flash {
	cookie, err := r.Cookie(m.flashName())
	if err != nil {
		return nil
	}
	var flashes []Flash
	if err := m.codec.Decode(m.flashName(), cookie.Value, &flashes); err != nil {
		return nil
	}
	return flashes
}
