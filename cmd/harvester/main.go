package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-market-harvest/api"
	"github.com/aluiziolira/go-market-harvest/catalog"
	"github.com/aluiziolira/go-market-harvest/config"
	"github.com/aluiziolira/go-market-harvest/harvest"
	"github.com/aluiziolira/go-market-harvest/storage"
)

const launcherDrainTimeout = 30 * time.Second

func main() {
	defaultCfg := config.DefaultConfig()
	listenDefault := defaultCfg.ListenAddr
	if value, ok := config.EnvString("HARVESTER_LISTEN_ADDR"); ok {
		listenDefault = value
	}
	databaseDefault := defaultCfg.DatabaseURL
	if value, ok := config.EnvString("HARVESTER_DATABASE_URL"); ok {
		databaseDefault = value
	}
	catalogDefault := defaultCfg.CatalogBaseURL
	if value, ok := config.EnvString("HARVESTER_CATALOG_URL"); ok {
		catalogDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("HARVESTER_METRICS_ADDR"); ok {
		metricsDefault = value
	}
	timeoutDefault := int(defaultCfg.Timeout / time.Second)
	if value, ok, err := config.EnvInt("HARVESTER_TIMEOUT"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid HARVESTER_TIMEOUT: %v\n", err)
		os.Exit(1)
	} else if ok {
		timeoutDefault = value
	}

	listenAddr := flag.String("listen", listenDefault, "API listen address")
	databaseURL := flag.String("db", databaseDefault, "Postgres connection string")
	catalogURL := flag.String("catalog-url", catalogDefault, "Marketplace search API base URL")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	timeoutSec := flag.Int("timeout", timeoutDefault, "Catalog request timeout (seconds)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, _ := newLogger(*verbose)
	slog.SetDefault(logger)

	cfg := config.DefaultConfig()
	cfg.ListenAddr = *listenAddr
	cfg.DatabaseURL = *databaseURL
	cfg.CatalogBaseURL = *catalogURL
	cfg.MetricsAddr = *metricsAddr
	cfg.Timeout = time.Duration(*timeoutSec) * time.Second
	cfg.Verbose = *verbose
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("connecting to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("closing database", slog.Any("error", err))
		}
	}()
	if err := store.Migrate(ctx); err != nil {
		slog.Error("applying schema", slog.Any("error", err))
		os.Exit(1)
	}

	client, err := catalog.NewClient(cfg)
	if err != nil {
		slog.Error("initialising catalog client", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := harvest.NewMetrics()
	launcher := harvest.NewLauncher(store, client, metrics)

	server, err := api.NewServer(cfg, store, client, launcher)
	if err != nil {
		slog.Error("initialising api server", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	apiServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Router(),
	}
	go func() {
		slog.Info("api server listening", slog.String("addr", cfg.ListenAddr))
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received, waiting for in-flight work to finish")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), launcherDrainTimeout)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("api server shutdown failed", slog.Any("error", err))
	}
	if err := launcher.Close(shutdownCtx); err != nil {
		slog.Error("harvests did not drain before the deadline", slog.Any("error", err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
