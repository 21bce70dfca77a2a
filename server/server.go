// Package server serves the Telegram webhook and status endpoints.
package server

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hrygo/estatebot/plugin/ai/timeout"
	"github.com/hrygo/estatebot/server/telegram"
	"github.com/hrygo/estatebot/store/cache"
)

const (
	// SecretHeader carries the secret registered with setWebhook.
	SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

	shutdownTimeout = 10 * time.Second
	maxBodySize     = "1M"
)

// Webhook registers the webhook URL. *telegram.Client implements it.
type Webhook interface {
	SetWebhook(ctx context.Context, url, secret string) error
}

// Handler handles one update.
type Handler interface {
	HandleUpdate(ctx context.Context, u telegram.Update) error
}

// Status reports service health. *valuation.Service implements it.
type Status interface {
	Health(ctx context.Context) bool
	CacheInfo(ctx context.Context) (*cache.Info, error)
}

// Config configures the HTTP server.
type Config struct {
	Addr        string // listen address, e.g. ":8443"
	WebhookURL  string // public URL registered with Telegram
	WebhookPath string
	Secret      string
}

// Server receives updates over HTTP.
type Server struct {
	cfg     Config
	echo    *echo.Echo
	webhook Webhook
	handler Handler
	status  Status
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// New creates the server and registers its routes.
func New(cfg Config, webhook Webhook, handler Handler, status Status, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = "/webhook"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(maxBodySize))

	s := &Server{
		cfg:     cfg,
		echo:    e,
		webhook: webhook,
		handler: handler,
		status:  status,
		logger:  logger,
	}
	e.POST(cfg.WebhookPath, s.handleWebhook)
	e.GET("/health", s.handleHealth)
	e.GET("/stats", s.handleStats)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start registers the webhook and serves until ctx is canceled, then shuts
// down gracefully and waits for dispatched updates.
func (s *Server) Start(ctx context.Context) error {
	if err := s.webhook.SetWebhook(ctx, s.cfg.WebhookURL, s.cfg.Secret); err != nil {
		return errors.Wrap(err, "failed to set webhook")
	}
	s.logger.Info("webhook registered", "url", s.cfg.WebhookURL, "addr", s.cfg.Addr)

	errc := make(chan error, 1)
	go func() {
		if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return errors.Wrap(err, "failed to serve")
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("server shutdown failed", "error", err)
	}
	s.Wait()
	s.logger.Info("server stopped")
	return nil
}

// Wait blocks until every dispatched update has been handled.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) handleWebhook(c echo.Context) error {
	if s.cfg.Secret != "" {
		got := c.Request().Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Secret)) != 1 {
			return c.NoContent(http.StatusNotFound)
		}
	}

	var u telegram.Update
	if err := c.Bind(&u); err != nil {
		s.logger.Warn("failed to decode update", "error", err)
		return c.NoContent(http.StatusOK)
	}

	// Telegram retries updates that are not acknowledged quickly, so the
	// update is handled after the response, outside the request context.
	ctx := context.WithoutCancel(c.Request().Context())
	s.wg.Go(func() {
		ctx, cancel := context.WithTimeout(ctx, timeout.AgentTimeout+time.Minute)
		defer cancel()
		if err := s.handler.HandleUpdate(ctx, u); err != nil {
			s.logger.Error("failed to handle update", "update_id", u.UpdateID, "error", err)
		}
	})
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleHealth(c echo.Context) error {
	status := "ok"
	if !s.status.Health(c.Request().Context()) {
		status = "degraded"
	}
	return c.JSON(http.StatusOK, map[string]string{"status": status})
}

func (s *Server) handleStats(c echo.Context) error {
	info, err := s.status.CacheInfo(c.Request().Context())
	if err != nil {
		s.logger.Warn("failed to read cache info", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "cache info unavailable"})
	}
	if info == nil {
		info = &cache.Info{}
	}
	return c.JSON(http.StatusOK, info)
}
