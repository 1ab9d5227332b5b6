package adminapi

import (
	"context"
	"net/http"
	"time"

	"codeberg.org/mutker/syncinterval/internal/errors"
	"codeberg.org/mutker/syncinterval/internal/logger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultListen          = "127.0.0.1:8089"
	defaultShutdownTimeout = 5 * time.Second
)

type Config struct {
	Enabled         bool          `mapstructure:"enabled"`
	Listen          string        `mapstructure:"listen"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		Listen:          defaultListen,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

func (c Config) Validate() error {
	if c.Enabled && c.Listen == "" {
		return errors.New().WithMessage(errors.ErrInvalidConfig, "admin listen address is required")
	}
	return nil
}

// Server wraps the Echo instance serving the admin API.
type Server struct {
	echo   *echo.Echo
	cfg    Config
	logger logger.Logger
}

// NewServer wires h under /api/v1, a health probe and, when gatherer is
// non-nil, the Prometheus /metrics endpoint.
func NewServer(cfg Config, h *Handler, gatherer prometheus.Gatherer, log logger.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(recovery(log))
	e.Use(echomw.RequestID())
	e.Use(requestLogger(log))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	h.RegisterRoutes(e.Group("/api/v1"))

	return &Server{echo: e, cfg: cfg, logger: log}
}

// Echo exposes the router, mainly for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("listen", s.cfg.Listen).Msg("Admin API listening")
		if err := s.echo.Start(s.cfg.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return errors.New().Wrap(errors.ErrInitFailed, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}
	s.logger.Info().Msg("Admin API stopped")
	return nil
}
