package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/streamrecorder/internal/logger"
	"github.com/tphakala/streamrecorder/internal/observability/metrics"
)

const (
	readTimeout  = 10 * time.Second
	writeTimeout = 30 * time.Second
)

// GetLogger returns the telemetry module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}

// Health is the /health response body
type Health struct {
	Status    string `json:"status"`
	State     string `json:"state,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Format    string `json:"format,omitempty"`
	Uptime    string `json:"uptime"`
}

// HealthFunc reports the current session state. Healthy is false once the
// session has failed.
type HealthFunc func() (h Health, healthy bool)

// Endpoint serves /metrics and /health.
type Endpoint struct {
	echo          *echo.Echo
	listenAddress string
	metrics       *Metrics
	health        HealthFunc
	started       time.Time
}

// NewEndpoint creates a telemetry endpoint listening on listenAddress.
// health may be nil.
func NewEndpoint(listenAddress string, m *Metrics, health HealthFunc) *Endpoint {
	e := &Endpoint{
		echo:          echo.New(),
		listenAddress: listenAddress,
		metrics:       m,
		health:        health,
		started:       time.Now(),
	}
	e.echo.HideBanner = true
	e.echo.HidePort = true
	e.echo.Server.ReadTimeout = readTimeout
	e.echo.Server.WriteTimeout = writeTimeout

	e.echo.Use(middleware.Recover())
	e.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	})))
	e.echo.GET("/health", e.healthHandler)

	return e
}

// Handler returns the HTTP handler serving the endpoint routes.
func (e *Endpoint) Handler() http.Handler {
	return e.echo
}

func (e *Endpoint) healthHandler(c echo.Context) error {
	h, healthy := Health{Status: "ok"}, true
	if e.health != nil {
		h, healthy = e.health()
	}
	h.Uptime = time.Since(e.started).Round(time.Second).String()

	if !healthy {
		if h.Status == "" {
			h.Status = "failed"
		}
		return c.JSON(http.StatusServiceUnavailable, h)
	}
	if h.Status == "" {
		h.Status = "ok"
	}
	return c.JSON(http.StatusOK, h)
}

// Run serves until ctx is cancelled, then shuts the server down gracefully.
func (e *Endpoint) Run(ctx context.Context) error {
	log := GetLogger()
	errCh := make(chan error, 1)

	go func() {
		log.Info("telemetry endpoint starting", logger.String("address", e.listenAddress))
		if err := e.echo.Start(e.listenAddress); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("telemetry server error", logger.Error(err))
		}
		return err
	case <-ctx.Done():
	}

	log.Info("stopping telemetry server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), metrics.ShutdownTimeout)
	defer cancel()
	if err := e.echo.Shutdown(shutdownCtx); err != nil {
		log.Error("telemetry server shutdown error", logger.Error(err))
		return err
	}
	<-errCh
	return nil
}
