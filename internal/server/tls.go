// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/config"
	"golang.org/x/crypto/acme/autocert"
)

// TLSMode represents the resolved TLS mode.
type TLSMode string

const (
	TLSModeOff    TLSMode = "off"
	TLSModeACME   TLSMode = "acme"
	TLSModeManual TLSMode = "manual"
)

// ErrNoCertificate is returned when TLS is required but neither ACME nor a
// certificate file is configured.
var ErrNoCertificate = errors.New("TLS required for a public host: set tls-email for ACME, or tls-cert-file and tls-key-file, or tls-mode off behind a proxy")

// TLSResult contains the resolved TLS configuration.
type TLSResult struct {
	TLSConfig   *tls.Config
	HTTPHandler http.Handler // HTTP-01 challenges and redirect to HTTPS, ACME only
	Mode        TLSMode
}

// SetupTLS configures TLS based on the configuration.
func SetupTLS(cfg *config.Config) (*TLSResult, error) {
	mode, err := resolveTLSMode(cfg)
	if err != nil {
		return nil, err
	}

	switch mode {
	case TLSModeACME:
		slog.Info("TLS mode: acme", "host", cfg.Server.Host, "email", cfg.TLS.Email)
		return setupACME(cfg)
	case TLSModeManual:
		slog.Info("TLS mode: manual", "cert", cfg.TLS.CertFile, "key", cfg.TLS.KeyFile)
		return setupManual(cfg)
	default:
		slog.Info("TLS mode: off")
		return &TLSResult{Mode: TLSModeOff}, nil
	}
}

// resolveTLSMode picks the mode. Explicit modes win; auto serves plain HTTP
// on localhost and otherwise prefers certificate files over ACME.
func resolveTLSMode(cfg *config.Config) (TLSMode, error) {
	switch strings.ToLower(cfg.TLS.Mode) {
	case "off":
		return TLSModeOff, nil
	case "acme":
		if cfg.TLS.Email == "" {
			return "", fmt.Errorf("ACME mode requires TLS_EMAIL to be set")
		}
		return TLSModeACME, nil
	case "manual":
		return TLSModeManual, nil
	case "auto", "":
	default:
		slog.Warn("unknown TLS mode, using auto", "mode", cfg.TLS.Mode)
	}

	switch {
	case config.IsLocalhost(cfg.Server.Host):
		return TLSModeOff, nil
	case cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "":
		return TLSModeManual, nil
	case cfg.TLS.Email != "" && net.ParseIP(cfg.Server.Host) == nil:
		// Let's Encrypt does not issue certificates for IP addresses.
		return TLSModeACME, nil
	default:
		return "", ErrNoCertificate
	}
}

func setupACME(cfg *config.Config) (*TLSResult, error) {
	if cfg.Server.Port != 443 {
		slog.Warn("ACME mode uses port 443, configured port will be ignored", "configured_port", cfg.Server.Port)
	}
	for _, port := range []int{80, 443} {
		if !isPortAvailable(port) {
			return nil, fmt.Errorf("ACME mode requires port %d (port in use)", port)
		}
	}

	certDir := filepath.Join(cfg.TLS.CertDir, "acme")
	if err := os.MkdirAll(certDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create ACME cert directory: %w", err)
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Email:      cfg.TLS.Email,
		Cache:      autocert.DirCache(certDir),
		HostPolicy: autocert.HostWhitelist(cfg.Server.Host),
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	return &TLSResult{
		Mode:        TLSModeACME,
		TLSConfig:   tlsConfig,
		HTTPHandler: manager.HTTPHandler(nil),
	}, nil
}

func setupManual(cfg *config.Config) (*TLSResult, error) {
	if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
		return nil, fmt.Errorf("manual TLS mode requires both cert-file and key-file")
	}

	cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	if len(cert.Certificate) > 0 {
		sum := sha256.Sum256(cert.Certificate[0])
		slog.Info("certificate loaded", "sha256", fmt.Sprintf("%X", sum))
	}

	return &TLSResult{
		Mode: TLSModeManual,
		TLSConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		},
	}, nil
}

func isPortAvailable(port int) bool {
	lc := &net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
