// cmd/reconciler/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"cotisations/internal/database"
	"cotisations/internal/donation"
	"cotisations/internal/membership"
	"cotisations/internal/platform/config"
	"cotisations/internal/platform/logger"
	"cotisations/internal/platform/telemetry"
	"cotisations/internal/reconcile"
)

func main() {
	once := flag.Bool("once", false, "run the checks once, print the report and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "cotisations-reconciler", cfg.OTelEndpoint)
	if err != nil {
		log.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	db, err := database.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	engine := reconcile.NewEngine(
		membership.NewPostgresStore(db, log),
		donation.NewPostgresStore(db),
		log,
	)

	if *once {
		report, err := engine.RunOnce(ctx)
		if err != nil {
			log.Error("reconciliation failed", "error", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(report)
		if !report.Healthy() {
			os.Exit(2)
		}
		return
	}

	log.Info("starting reconciler", "interval", cfg.ReconcileInterval)
	if err := engine.Run(ctx, cfg.ReconcileInterval); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("reconciler stopped", "error", err)
		os.Exit(1)
	}
}
