// Package daemon runs long-lived vsbridge processes: it owns tracing, the
// metrics endpoint and signal handling around one or more services.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/vsbridge/internal/config"
	"github.com/harun/vsbridge/internal/metrics"
	"github.com/harun/vsbridge/internal/tracing"
)

// Service is a unit of work run by the daemon. Run blocks until ctx is
// cancelled or the service ends on its own; either way the daemon stops.
type Service interface {
	Name() string
	Run(ctx context.Context) error
}

// Status reports daemon state
type Status struct {
	Running     bool          `json:"running"`
	StartTime   time.Time     `json:"start_time,omitempty"`
	Uptime      time.Duration `json:"uptime,omitempty"`
	MetricsAddr string        `json:"metrics_addr,omitempty"`
}

// Daemon represents one long-running vsbridge process
type Daemon struct {
	config  *config.Config
	logger  zerolog.Logger
	metrics *metrics.Metrics

	services      []Service
	metricsServer *http.Server
	metricsAddr   string

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// New creates a new daemon instance
func New(cfg *config.Config, logger zerolog.Logger) *Daemon {
	return &Daemon{
		config:  cfg,
		logger:  logger.With().Str("component", "daemon").Logger(),
		metrics: metrics.NewMetrics(),
	}
}

// Metrics returns the process metrics shared by all services.
func (d *Daemon) Metrics() *metrics.Metrics {
	return d.metrics
}

// Add registers a service. Services must be added before Run.
func (d *Daemon) Add(svc Service) {
	d.services = append(d.services, svc)
}

// Run starts every service and blocks until ctx is cancelled, a SIGINT or
// SIGTERM arrives, or any service returns. It then cancels the rest and
// waits for them. The first service error is returned.
func (d *Daemon) Run(ctx context.Context) error {
	if len(d.services) == 0 {
		return fmt.Errorf("no services registered")
	}

	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	traceID := tracing.NewTraceID()
	logger := d.logger.With().Str("trace_id", traceID).Logger()

	if d.config.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry("vsbridge"); err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.tracingEnabled = true
		}
	}

	if err := d.startMetricsServer(logger); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(tracing.WithTraceID(ctx, traceID))
	defer cancel()

	errs := make(chan error, len(d.services))
	var wg sync.WaitGroup

	for _, svc := range d.services {
		wg.Add(1)
		go func(svc Service) {
			defer wg.Done()
			defer cancel()

			logger.Info().Str("service", svc.Name()).Msg("Service started")
			err := svc.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Str("service", svc.Name()).Msg("Service failed")
				errs <- fmt.Errorf("%s: %w", svc.Name(), err)
				return
			}
			logger.Info().Str("service", svc.Name()).Msg("Service stopped")
		}(svc)
	}

	<-ctx.Done()
	wg.Wait()
	close(errs)

	d.shutdown(logger)

	return <-errs
}

func (d *Daemon) startMetricsServer(logger zerolog.Logger) error {
	addr := d.config.Metrics.Addr
	if addr == "" {
		return nil
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on metrics address: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", d.metrics.Handler())

	d.metricsServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	d.mu.Lock()
	d.metricsAddr = listener.Addr().String()
	d.mu.Unlock()

	go func() {
		if err := d.metricsServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	logger.Info().Str("addr", d.metricsAddr).Msg("Metrics endpoint listening")
	return nil
}

func (d *Daemon) shutdown(logger zerolog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if d.metricsServer != nil {
		if err := d.metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to shutdown metrics server")
		}
		d.metricsServer = nil
	}

	if d.tracingEnabled {
		if err := tracing.ShutdownOpenTelemetry(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		d.tracingEnabled = false
	}

	logger.Info().Dur("uptime", time.Since(d.startTime)).Msg("Daemon stopped")
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running:     d.running,
		MetricsAddr: d.metricsAddr,
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

// ServiceFunc adapts a function to the Service interface.
type ServiceFunc struct {
	ServiceName string
	Fn          func(ctx context.Context) error
}

// Name returns the service name.
func (s ServiceFunc) Name() string { return s.ServiceName }

// Run calls Fn.
func (s ServiceFunc) Run(ctx context.Context) error { return s.Fn(ctx) }
