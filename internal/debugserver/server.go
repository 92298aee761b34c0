// Package debugserver exposes viewer state and metrics over HTTP.
package debugserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/taigrr/avatarview/pkg/viewer"
)

// StateFunc returns the latest viewer snapshot, or nil before the first one.
type StateFunc func() *viewer.Snapshot

// Option adds optional routes.
type Option func(*echo.Echo)

// WithLogLevel serves GET and PUT /log/level through h, usually a
// zap.AtomicLevel.
func WithLogLevel(h http.Handler) Option {
	return func(e *echo.Echo) {
		e.GET("/log/level", echo.WrapHandler(h))
		e.PUT("/log/level", echo.WrapHandler(h))
	}
}

// BuildServer wires GET /state and GET /metrics.
func BuildServer(state StateFunc, reg *prometheus.Registry, logger *zap.Logger, opts ...Option) *echo.Echo {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(log.OFF)

	e.HTTPErrorHandler = func(err error, c echo.Context) {
		e.DefaultHTTPErrorHandler(err, c)
		logger.Warn("debug request failed", zap.String("path", c.Request().URL.Path), zap.Error(err))
	}

	e.Use(middleware.Recover())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			begin := time.Now()
			err := next(c)
			logger.Debug("debug request",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Int("status", c.Response().Status),
				zap.Duration("elapsed", time.Since(begin)))
			return err
		}
	})

	e.GET("/state", StateHandler(state))
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StateHandler serves the snapshot as JSON, or 503 before one exists.
func StateHandler(state StateFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		s := state()
		if s == nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "viewer not started")
		}
		return c.JSON(http.StatusOK, s)
	}
}

// Serve runs e on addr until ctx is done.
func Serve(ctx context.Context, e *echo.Echo, addr string) error {
	errc := make(chan error, 1)
	go func() {
		errc <- e.Start(addr)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
