// The reclaim worker returns stale notified waiting list entries to
// pending. A notified entry holds an outstanding offer; when the patient
// never answers, the entry would otherwise stay locked out of new offers
// forever. Offer fields are kept for audit.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/agendasaude/clinic-scheduling/internal/config"
	"github.com/agendasaude/clinic-scheduling/internal/db"
	"github.com/agendasaude/clinic-scheduling/internal/logger"
	"github.com/agendasaude/clinic-scheduling/internal/waitlist"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("reclaim-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Duration("notify_ttl", cfg.NotifyTTL),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	repo := waitlist.NewPgRepository(pgPool)

	// Run once at startup
	runOnce(rootCtx, repo, cfg.NotifyTTL, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping reclaim worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, repo, cfg.NotifyTTL, log)
		}
	}
}

func runOnce(ctx context.Context, repo waitlist.Repository, ttl time.Duration, log *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	cutoff := start.Add(-ttl)

	reclaimed, err := repo.ReclaimStaleNotified(runCtx, cutoff)
	if err != nil {
		log.Error("reclaim run error", zap.Error(err))
		return
	}

	log.Info("reclaim run complete",
		zap.Int64("reclaimed", reclaimed),
		zap.Duration("took", time.Since(start)),
	)
}
