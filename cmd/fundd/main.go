package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fundcore/config"
	"fundcore/core"
	"fundcore/observability/audit"
	"fundcore/observability/logging"
	telemetry "fundcore/observability/otel"
	"fundcore/services/backoffice"
	"fundcore/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "fundd: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(os.Getenv("FUNDCORE_ENV"))
	if env == "" {
		env = cfg.Environment
	}
	logger, logCloser := logging.SetupWithOptions(logging.Options{
		Service:    "fundd",
		Env:        env,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Level:      logging.ParseLevel(cfg.Log.Level),
	})
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "fundd",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	store, err := audit.Open(cfg.Audit.DSN)
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	defer store.Close()
	if err := store.Verify(ctx); err != nil {
		return fmt.Errorf("audit chain: %w", err)
	}

	ledger, err := core.New(db, cfg,
		core.WithEmitter(audit.NewSink(store, logger)),
		core.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("create core: %w", err)
	}
	if err := ledger.ApplyBootstrap(); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	head, _ := store.Head()
	logger.Info("ledger ready",
		slog.String("data_dir", cfg.DataDir),
		slog.Int("funds", len(cfg.Bootstrap.Funds)),
		slog.Uint64("audit_head", head))

	serviceCfg, err := backoffice.FromLedgerConfig(cfg.Backoffice)
	if err != nil {
		return fmt.Errorf("backoffice config: %w", err)
	}
	server, err := backoffice.New(serviceCfg, ledger, store, logger)
	if err != nil {
		return fmt.Errorf("backoffice: %w", err)
	}
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("fundd stopped")
	return nil
}
