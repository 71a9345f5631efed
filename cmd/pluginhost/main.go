package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/srediag/plugin-lifecycle/adapter"
	"github.com/srediag/plugin-lifecycle/internal/cli"
	"github.com/srediag/plugin-lifecycle/internal/config"
	"github.com/srediag/plugin-lifecycle/internal/logging"
	"github.com/srediag/plugin-lifecycle/pkg/audit"
	"github.com/srediag/plugin-lifecycle/pkg/health"
	"github.com/srediag/plugin-lifecycle/pkg/lifecycle"
	"github.com/srediag/plugin-lifecycle/pkg/loader"
)

const (
	instrumentationName = "github.com/srediag/plugin-lifecycle"
	shutdownTimeout     = 15 * time.Second
)

func main() {
	// Use a minimal logger until the configured one exists.
	slog.SetDefault(slog.New(logging.NewHandler(os.Stderr, &logging.Options{
		Level: logging.LevelFromEnv(slog.LevelWarn),
		Color: true,
	})))

	if err := run(os.Stdout, os.Args[1:]); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(outW io.Writer, args []string) error {
	cfg, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	logger, err := logging.New(os.Stderr, cfg.LogFormat, logging.LevelFromEnv(level))
	if err != nil {
		return &cli.ExitError{Code: 2, Message: err.Error()}
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	otelSink, err := adapter.NewOTelSink(otel.GetMeterProvider().Meter(instrumentationName))
	if err != nil {
		return err
	}
	sink := audit.NewAsync(audit.Multi(adapter.NewSlogSink(logger.With("component", "audit")), otelSink), 256, logger)
	defer sink.Close()

	policy := loader.DefaultRetryPolicy()
	policy.MaxRetries = cfg.RetryAttempts
	policy.Logger = logger
	l := loader.WithRetry(loader.NewLua(logger.With("component", "lua")), policy)

	lc := cfg.Lifecycle()
	lc.Sink = sink
	lc.Logger = logger
	lc.Registerer = reg
	lc.Tracer = otel.Tracer(instrumentationName)
	lc.OnInitialComplete = func(marker string) {
		logger.Info("Initial modules processed.", "marker", marker, "requested", len(cfg.Modules))
	}
	m, err := lifecycle.New(lc, l)
	if err != nil {
		return err
	}

	var srv *http.Server
	if cfg.HealthPort > 0 {
		srv = newServer(cfg, m, reg)
		go func() {
			logger.Info("Serving health and metrics.", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Health server stopped.", "error", err)
			}
		}()
	}

	var hr *adapter.HotReload
	if cfg.HotReload {
		hr, err = adapter.NewHotReload(cfg.ModulesDir, m, adapter.HotReloadOptions{Logger: logger.With("component", "hotreload")})
		if err != nil {
			return err
		}
		if err := hr.Start(ctx); err != nil {
			return err
		}
	}

	<-ctx.Done()
	logger.Info("Shutting down.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if hr != nil {
		errs = append(errs, hr.Close())
	}
	errs = append(errs, m.Shutdown(shutdownCtx))
	if srv != nil {
		errs = append(errs, srv.Shutdown(shutdownCtx))
	}
	return errors.Join(errs...)
}

func newServer(cfg *config.Config, m *lifecycle.Manager, reg *prometheus.Registry) *http.Server {
	opts := health.Options{Registerer: reg, Readiness: map[string]healthcheck.Check{}}
	if cfg.MaxMemoryPercent > 0 {
		opts.Readiness["host-memory"] = adapter.MemoryCheck(cfg.MaxMemoryPercent)
	}
	hh := health.NewHandler(m, opts)

	mux := http.NewServeMux()
	mux.HandleFunc("/live", hh.LiveEndpoint)
	mux.HandleFunc("/ready", hh.ReadyEndpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.HealthPort)),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
