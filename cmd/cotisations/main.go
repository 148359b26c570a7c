// cmd/cotisations/main.go
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"cotisations/internal/clients"
	"cotisations/internal/database"
	"cotisations/internal/donation"
	"cotisations/internal/export"
	"cotisations/internal/membership"
	"cotisations/internal/platform/config"
	"cotisations/internal/platform/logger"
	"cotisations/internal/platform/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, log); err != nil {
		log.Error("cotisations service stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "cotisations", cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	members, donations, closeStore, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := []membership.Option{membership.WithPaymentResultLimit(cfg.WebhookRatePerMinute)}
	if cfg.MessagingURL != "" {
		opts = append(opts, membership.WithNotifier(clients.NewMessagingClient(cfg.MessagingURL, log)))
	}
	svc := membership.NewService(members, log, opts...)
	tracker := membership.NewTracker(svc)
	defer tracker.Close()

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	export.NewHandler(svc, log).Register(router)
	membership.NewHandler(svc, donations, tracker, log).Register(router)
	donation.NewHandler(donations).Register(router)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting cotisations service", "addr", cfg.Addr, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (membership.Store, donation.Store, func(), error) {
	if cfg.Store == config.StoreMemory {
		donations := donation.NewMemoryStore()
		log.Warn("using in-memory store, data is lost on restart")
		return membership.NewMemoryStore(donations), donations, func() {}, nil
	}

	if err := database.Migrate(cfg.DatabaseURL, log); err != nil {
		return nil, nil, nil, err
	}
	db, err := database.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return nil, nil, nil, err
	}

	members := membership.NewPostgresStore(db, log)
	go func() {
		if err := members.Listen(ctx, cfg.DatabaseURL); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("member change listener stopped", "error", err)
		}
	}()
	return members, donation.NewPostgresStore(db), closeDB(db, log), nil
}

func closeDB(db *sql.DB, log *slog.Logger) func() {
	return func() {
		if err := db.Close(); err != nil {
			log.Warn("failed to close database", "error", err)
		}
	}
}
