// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"testing"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTLSMode(t *testing.T) {
	tests := []struct {
		name     string
		tls      config.TLSConfig
		host     string
		expected TLSMode
	}{
		{"explicit off", config.TLSConfig{Mode: "off"}, "example.com", TLSModeOff},
		{"explicit manual", config.TLSConfig{Mode: "manual"}, "localhost", TLSModeManual},
		{"explicit acme", config.TLSConfig{Mode: "acme", Email: "ops@example.com"}, "example.com", TLSModeACME},
		{"auto on localhost", config.TLSConfig{Mode: "auto"}, "localhost", TLSModeOff},
		{"auto with cert files", config.TLSConfig{Mode: "auto", CertFile: "c.pem", KeyFile: "k.pem"}, "example.com", TLSModeManual},
		{"auto with acme email", config.TLSConfig{Email: "ops@example.com"}, "example.com", TLSModeACME},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Server: config.ServerConfig{Host: tt.host}, TLS: tt.tls}
			mode, err := resolveTLSMode(cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, mode)
		})
	}
}

func TestResolveTLSMode_Errors(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{Host: "example.com"}, TLS: config.TLSConfig{Mode: "acme"}}
	_, err := resolveTLSMode(cfg)
	assert.Error(t, err, "acme needs an email")

	cfg = &config.Config{Server: config.ServerConfig{Host: "203.0.113.7"}, TLS: config.TLSConfig{Email: "ops@example.com"}}
	_, err = resolveTLSMode(cfg)
	assert.ErrorIs(t, err, ErrNoCertificate)
}

func TestSetupManual_MissingFiles(t *testing.T) {
	cfg := &config.Config{TLS: config.TLSConfig{Mode: "manual", CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"}}

	_, err := SetupTLS(cfg)

	assert.Error(t, err)
}
