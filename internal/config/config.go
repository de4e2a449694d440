// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	TLS      TLSConfig
	Session  SessionConfig
	Auth     AuthConfig
	SMTP     SMTPConfig
}

type TLSConfig struct {
	Mode     string // auto, acme, manual, off
	CertDir  string // Directory for the ACME certificate cache
	Email    string // ACME email for Let's Encrypt
	CertFile string // Path to certificate file (manual mode)
	KeyFile  string // Path to private key file (manual mode)
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host           string
	Port           int
	BaseURL        string
	MaxBodySize    int      // in MB
	TrustedProxies []string // IPs or CIDRs allowed to set X-Forwarded-For
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

type SessionConfig struct { //nolint:govet // fieldalignment not critical
	CookieName     string // Session cookie name
	MaxAge         int    // Lifetime of a normal session in seconds
	RememberMaxAge int    // Lifetime of a "remember me" session in seconds
	HashKey        string // 32-byte hex string for HMAC signing
	BlockKey       string // 32-byte hex string for AES encryption (optional)
}

// AuthConfig holds the settings of the account flows.
type AuthConfig struct { //nolint:govet // fieldalignment not critical
	SecretKey         string        // Token signing secret, random per process if empty
	ConfirmTokenTTL   time.Duration // Validity of account confirmation links
	ResetTokenTTL     time.Duration // Validity of password reset links
	AdminEmail        string        // Registrations with this address get the Administrator role
	PasswordMinLength int
}

// SMTPConfig holds the outgoing mail settings. An empty Host logs mails instead of sending them.
type SMTPConfig struct { //nolint:govet // fieldalignment not critical
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	FromName  string
	TLS       bool
	QueueSize int
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:           cmd.String("host"),
			Port:           int(cmd.Int("port")),
			BaseURL:        cmd.String("base-url"),
			MaxBodySize:    int(cmd.Int("max-body-size")),
			TrustedProxies: cmd.StringSlice("trusted-proxies"),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		TLS: TLSConfig{
			Mode:     cmd.String("tls-mode"),
			CertDir:  cmd.String("tls-cert-dir"),
			Email:    cmd.String("tls-email"),
			CertFile: cmd.String("tls-cert-file"),
			KeyFile:  cmd.String("tls-key-file"),
		},
		Session: SessionConfig{
			CookieName:     cmd.String("session-cookie-name"),
			MaxAge:         int(cmd.Int("session-max-age")),
			RememberMaxAge: int(cmd.Int("session-remember-max-age")),
			HashKey:        cmd.String("session-hash-key"),
			BlockKey:       cmd.String("session-block-key"),
		},
		Auth: AuthConfig{
			SecretKey:         cmd.String("secret-key"),
			ConfirmTokenTTL:   cmd.Duration("confirm-token-ttl"),
			ResetTokenTTL:     cmd.Duration("reset-token-ttl"),
			AdminEmail:        strings.ToLower(strings.TrimSpace(cmd.String("admin-email"))),
			PasswordMinLength: int(cmd.Int("password-min-length")),
		},
		SMTP: SMTPConfig{
			Host:      cmd.String("smtp-host"),
			Port:      int(cmd.Int("smtp-port")),
			Username:  cmd.String("smtp-username"),
			Password:  cmd.String("smtp-password"),
			From:      cmd.String("smtp-from"),
			FromName:  cmd.String("smtp-from-name"),
			TLS:       cmd.Bool("smtp-tls"),
			QueueSize: int(cmd.Int("smtp-queue-size")),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}

	return cfg
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port
	mode := strings.ToLower(cfg.TLS.Mode)

	scheme := "http"
	if shouldUseTLS(mode, host) {
		scheme = "https"
	}

	// ACME mode always uses port 443
	if mode == "acme" {
		return fmt.Sprintf("https://%s", host)
	}

	// Hide default ports in URL
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

func shouldUseTLS(mode, host string) bool {
	switch mode {
	case "off":
		return false
	case "acme", "manual":
		return true
	default: // "auto" or empty
		return !IsLocalhost(host)
	}
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	// Check for *.localhost subdomains (e.g., app.localhost)
	return strings.HasSuffix(host, ".localhost")
}

func source(env, key string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(cli.EnvVar(env), toml.TOML(key, configFile))
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: source("HOST", "server.host"),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: source("PORT", "server.port"),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Base URL for the application (used in email links)",
			Sources: source("BASE_URL", "server.base_url"),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: source("MAX_BODY_SIZE", "server.max_body_size"),
		},
		&cli.StringSliceFlag{
			Name:    "trusted-proxies",
			Usage:   "Reverse proxies (IP or CIDR) whose X-Forwarded-For header is trusted",
			Sources: source("TRUSTED_PROXIES", "server.trusted_proxies"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: source("LOG_LEVEL", "log.level"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: source("LOG_FORMAT", "log.format"),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/app.db",
			Usage:   "Database DSN",
			Sources: source("DATABASE_DSN", "database.dsn"),
		},
		&cli.StringFlag{
			Name:    "tls-mode",
			Value:   "auto",
			Usage:   "TLS mode (auto, acme, manual, off)",
			Sources: source("TLS_MODE", "tls.mode"),
		},
		&cli.StringFlag{
			Name:    "tls-cert-dir",
			Value:   "./data/certs",
			Usage:   "Directory for the ACME certificate cache",
			Sources: source("TLS_CERT_DIR", "tls.cert_dir"),
		},
		&cli.StringFlag{
			Name:    "tls-email",
			Usage:   "Email for ACME/Let's Encrypt registration",
			Sources: source("TLS_EMAIL", "tls.email"),
		},
		&cli.StringFlag{
			Name:    "tls-cert-file",
			Usage:   "Path to TLS certificate file (manual mode)",
			Sources: source("TLS_CERT_FILE", "tls.cert_file"),
		},
		&cli.StringFlag{
			Name:    "tls-key-file",
			Usage:   "Path to TLS private key file (manual mode)",
			Sources: source("TLS_KEY_FILE", "tls.key_file"),
		},
		// Session flags
		&cli.StringFlag{
			Name:    "session-cookie-name",
			Value:   "_session",
			Usage:   "Session cookie name",
			Sources: source("SESSION_COOKIE_NAME", "session.cookie_name"),
		},
		&cli.IntFlag{
			Name:    "session-max-age",
			Value:   86400, // 1 day in seconds
			Usage:   "Session max age in seconds",
			Sources: source("SESSION_MAX_AGE", "session.max_age"),
		},
		&cli.IntFlag{
			Name:    "session-remember-max-age",
			Value:   2592000, // 30 days in seconds
			Usage:   "Max age in seconds of sessions created with 'remember me'",
			Sources: source("SESSION_REMEMBER_MAX_AGE", "session.remember_max_age"),
		},
		&cli.StringFlag{
			Name:    "session-hash-key",
			Usage:   "Session hash key (32-byte hex, auto-generated if empty in dev)",
			Sources: source("SESSION_HASH_KEY", "session.hash_key"),
		},
		&cli.StringFlag{
			Name:    "session-block-key",
			Usage:   "Session block key for encryption (32-byte hex, optional)",
			Sources: source("SESSION_BLOCK_KEY", "session.block_key"),
		},
		// Auth flags
		&cli.StringFlag{
			Name:    "secret-key",
			Usage:   "Secret for signing confirmation and reset tokens (auto-generated if empty in dev)",
			Sources: source("SECRET_KEY", "auth.secret_key"),
		},
		&cli.DurationFlag{
			Name:    "confirm-token-ttl",
			Value:   time.Hour,
			Usage:   "Validity of account confirmation links",
			Sources: source("CONFIRM_TOKEN_TTL", "auth.confirm_token_ttl"),
		},
		&cli.DurationFlag{
			Name:    "reset-token-ttl",
			Value:   time.Hour,
			Usage:   "Validity of password reset links",
			Sources: source("RESET_TOKEN_TTL", "auth.reset_token_ttl"),
		},
		&cli.StringFlag{
			Name:    "admin-email",
			Usage:   "Email address that is granted the Administrator role on registration",
			Sources: source("ADMIN_EMAIL", "auth.admin_email"),
		},
		&cli.IntFlag{
			Name:    "password-min-length",
			Value:   8,
			Usage:   "Minimum password length",
			Sources: source("PASSWORD_MIN_LENGTH", "auth.password_min_length"),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP host (mails are logged instead of sent if empty)",
			Sources: source("SMTP_HOST", "smtp.host"),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP port",
			Sources: source("SMTP_PORT", "smtp.port"),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: source("SMTP_USERNAME", "smtp.username"),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: source("SMTP_PASSWORD", "smtp.password"),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Value:   "noreply@localhost",
			Usage:   "Sender address",
			Sources: source("SMTP_FROM", "smtp.from"),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Usage:   "Sender display name",
			Sources: source("SMTP_FROM_NAME", "smtp.from_name"),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP",
			Sources: source("SMTP_TLS", "smtp.tls"),
		},
		&cli.IntFlag{
			Name:    "smtp-queue-size",
			Value:   100,
			Usage:   "Number of outgoing mails buffered before sends are rejected",
			Sources: source("SMTP_QUEUE_SIZE", "smtp.queue_size"),
		},
	}
}
