package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/elvis/internal/config"
	"github.com/dantte-lp/elvis/internal/scenario"
	"github.com/dantte-lp/elvis/internal/simmetrics"
)

// shutdownTimeout bounds how long the metrics HTTP server is given to
// drain in-flight scrapes once the simulation has ended or a shutdown
// signal has arrived.
const shutdownTimeout = 5 * time.Second

func runCmd() *cobra.Command {
	var scenarioPath string
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario to completion",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runScenario(context.Background(), scenarioPath, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&scenarioPath, "scenario", "", "path to scenario configuration file (YAML)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9100), overriding metrics.addr in the scenario file")
	_ = cmd.MarkFlagRequired("scenario")

	return cmd
}

// runScenario loads cfg from scenarioPath, builds the described Internet,
// and drives it to completion. If metricsAddrFlag or the loaded config
// name a metrics address, a Prometheus HTTP listener runs alongside the
// simulation until it ends or a shutdown signal arrives.
func runScenario(ctx context.Context, scenarioPath, metricsAddrFlag string) error {
	cfg, err := config.Load(scenarioPath)
	if err != nil {
		return fmt.Errorf("load scenario: %w", err)
	}
	if metricsAddrFlag != "" {
		cfg.Metrics.Addr = metricsAddrFlag
	}

	logger := newLogger(cfg.Log)
	logger.Info("elvis-sim starting",
		slog.Int("machines", len(cfg.Scenario.Machines)),
		slog.Int("networks", len(cfg.Scenario.Networks)),
		slog.Int("max_ticks", cfg.Run.MaxTicks),
	)

	reg := prometheus.NewRegistry()
	collector := simmetrics.NewCollector(reg)

	built, err := scenario.Build(cfg.Scenario, scenario.Options{
		MaxTicks: cfg.Run.MaxTicks,
		OnTick:   collector.IncTicks,
		Metrics:  collector,
	}, logger)
	if err != nil {
		return fmt.Errorf("build scenario: %w", err)
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runWithMetrics(runCtx, cfg.Metrics, reg, built, logger); err != nil {
		return fmt.Errorf("run scenario: %w", err)
	}

	logger.Info("elvis-sim finished")
	return nil
}

// runWithMetrics runs the simulation to completion and, if cfg.Addr is
// set, an adjacent metrics HTTP server that is shut down once the
// simulation ends or ctx is cancelled -- whichever comes first.
func runWithMetrics(ctx context.Context, cfg config.MetricsConfig, reg *prometheus.Registry, built *scenario.Built, logger *slog.Logger) error {
	g, gCtx := errgroup.WithContext(ctx)

	simDone := make(chan struct{})
	g.Go(func() error {
		defer close(simDone)
		return built.Internet.Run(gCtx)
	})

	if cfg.Addr != "" {
		metricsSrv := newMetricsServer(cfg, reg)

		g.Go(func() error {
			logger.Info("metrics server listening", slog.String("addr", cfg.Addr), slog.String("path", cfg.Path))
			return listenAndServe(gCtx, metricsSrv, cfg.Addr)
		})

		g.Go(func() error {
			select {
			case <-gCtx.Done():
			case <-simDone:
			}
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), shutdownTimeout)
			defer cancel()
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown metrics server: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.Level)}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func listenAndServe(ctx context.Context, srv *http.Server, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}
