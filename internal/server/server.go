// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/assets"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/config"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/database"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/handlers"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/i18n"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/models"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/repository"
	authsvc "codeberg.org/oliverandrich/go-webapp-auth/internal/services/auth"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/services/email"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/services/session"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/services/token"
	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"
)

// Deps are the services the HTTP layer is built from.
type Deps struct {
	Config   *config.Config
	Repo     *repository.Repository
	Auth     *authsvc.Service
	Sessions *session.Manager
}

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	// Database, migrated on open
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	if initErr := i18n.Init(); initErr != nil {
		return fmt.Errorf("failed to init i18n: %w", initErr)
	}

	repo := repository.New(db)

	secret, err := tokenSecret(cfg.Auth.SecretKey)
	if err != nil {
		return err
	}

	sender, err := mailSender(cfg)
	if err != nil {
		return err
	}
	queue := email.NewQueue(sender, cfg.SMTP.QueueSize)
	queue.Start(ctx)
	defer queue.Close()

	mailer := email.NewService(queue, cfg.Server.BaseURL)
	svc := authsvc.NewService(repo, token.NewService(secret), mailer, &cfg.Auth)

	sessions, err := session.NewManager(&cfg.Session, strings.HasPrefix(cfg.Server.BaseURL, "https://"))
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}

	e, err := New(Deps{Config: cfg, Repo: repo, Auth: svc, Sessions: sessions})
	if err != nil {
		return err
	}

	return startWithGracefulShutdown(e, cfg)
}

// New builds the echo instance with middleware, error handler and routes.
func New(d Deps) (*echo.Echo, error) {
	extractor, err := ipExtractor(d.Config.Server.TrustedProxies)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handlers.HTTPErrorHandler
	e.IPExtractor = extractor

	setupMiddleware(e, d.Config, d.Sessions, d.Auth, assets.CSSPath())
	setupRoutes(e, d)

	return e, nil
}

// ipExtractor decides where c.RealIP comes from. Without trusted proxies it
// is the socket address; forwarding headers are only honoured when the
// connection comes from one of the listed proxies.
func ipExtractor(proxies []string) (echo.IPExtractor, error) {
	if len(proxies) == 0 {
		return echo.ExtractIPDirect(), nil
	}

	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if !strings.Contains(p, "/") {
			if strings.Contains(p, ":") {
				p += "/128"
			} else {
				p += "/32"
			}
		}
		_, ipNet, err := net.ParseCIDR(p)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", p, err)
		}
		opts = append(opts, echo.TrustIPRange(ipNet))
	}
	return echo.ExtractIPFromXFFHeader(opts...), nil
}

func setupRoutes(e *echo.Echo, d Deps) {
	h := handlers.New(d.Repo)
	ah := handlers.NewAuth(d.Auth, d.Sessions)
	login := RequireAuth(d.Sessions)

	e.GET("/static/*", echo.WrapHandler(http.StripPrefix("/static", assets.FileServer())))

	e.GET("/health", h.Health)
	e.GET("/", h.Home)
	e.GET("/admin", h.Admin, login, RequirePermission(models.PermAdminister))
	e.GET("/moderate", h.Moderate, login, RequirePermission(models.PermModerateComments))

	g := e.Group("/auth", authRateLimiter())
	g.GET("/login", ah.LoginPage)
	g.POST("/login", ah.Login)
	g.GET("/logout", ah.Logout, login)
	g.GET("/register", ah.RegisterPage)
	g.POST("/register", ah.Register)
	g.GET("/confirm/:token", ah.Confirm, login)
	g.GET("/confirm", ah.ResendConfirmation, login)
	g.GET("/unconfirmed", ah.Unconfirmed)
	g.GET("/change_pwd", ah.ChangePasswordPage, login)
	g.POST("/change_pwd", ah.ChangePassword, login)
	g.GET("/forget_pwd", ah.ForgotPasswordPage)
	g.POST("/forget_pwd", ah.ForgotPassword)
	g.GET("/reset_pwd/:token", ah.ResetPasswordPage)
	g.POST("/reset_pwd/:token", ah.ResetPassword)
}

// tokenSecret decodes the configured secret. Without one a random secret is
// generated, so links mailed before a restart stop working.
func tokenSecret(configured string) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate secret key: %w", err)
	}
	slog.Warn("no secret key configured, using a random one; mailed links will not survive a restart")
	return secret, nil
}

// mailSender delivers through SMTP when a host is configured and logs mails otherwise.
func mailSender(cfg *config.Config) (email.Sender, error) {
	if cfg.SMTP.Host == "" {
		slog.Warn("no SMTP host configured, mails are logged instead of sent")
		return email.NewLogSender(slog.Default()), nil
	}
	sender, err := email.NewSMTPSender(&cfg.SMTP)
	if err != nil {
		return nil, fmt.Errorf("failed to configure SMTP: %w", err)
	}
	return sender, nil
}

func startWithGracefulShutdown(e *echo.Echo, cfg *config.Config) error {
	tlsResult, err := SetupTLS(cfg)
	if err != nil {
		return fmt.Errorf("TLS setup failed: %w", err)
	}

	errChan := make(chan error, 2)
	serve := func(start func() error) {
		if err := start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}

	// HTTP redirect server for ACME mode
	var httpServer *http.Server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	switch tlsResult.Mode {
	case TLSModeOff:
		go serve(func() error { return e.Start(addr) })

	case TLSModeACME:
		go serve(func() error { return startTLSServer(e, ":443", tlsResult.TLSConfig) })

		httpServer = &http.Server{
			Addr:              ":80",
			Handler:           tlsResult.HTTPHandler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go serve(httpServer.ListenAndServe)

	case TLSModeManual:
		go serve(func() error { return startTLSServer(e, addr, tlsResult.TLSConfig) })
	}
	slog.Info("server running", "url", cfg.Server.BaseURL)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown main server", "error", err)
	}
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shutdown HTTP redirect server", "error", err)
		}
	}

	slog.Info("server stopped")
	return nil
}

// startTLSServer starts the Echo server with a custom TLS configuration.
func startTLSServer(e *echo.Echo, addr string, tlsConfig *tls.Config) error {
	lc := &net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return err
	}
	e.TLSListener = tls.NewListener(ln, tlsConfig)
	e.TLSServer.TLSConfig = tlsConfig
	return e.Server.Serve(e.TLSListener)
}
