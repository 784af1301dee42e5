// Command syncd runs the full reconciliation pipeline: per-tenant event
// polling, the durable job queue, lead reconciliation, the compliance
// worker, and the ops HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/compliance"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/cursor"
	formsrepo "github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/forms/repository"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/kvstore"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/leadsync"
	leadsrepo "github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/leadsync/repository"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/ops"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/poller"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/queue"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/tenants"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/platform/config"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/platform/db"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/platform/logger"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

const leadQueueName = "leads"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting syncd", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	var store *kvstore.Redis
	if err := withRetry(ctx, log, "redis connection", 5, 2*time.Second, func() error {
		s, err := kvstore.NewRedis(cfg)
		if err != nil {
			return err
		}
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return err
		}
		store = s
		return nil
	}); err != nil {
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}
	defer store.Close()
	log.Info("redis connection established")

	cursors, err := cursor.NewStore(cfg.CursorDir, cfg.CursorStaleness)
	if err != nil {
		log.Error("failed to open cursor store", "error", err)
		panic("failed to open cursor store: " + err.Error())
	}

	val := validator.New()
	tenantProvider := tenants.NewFileProvider(cfg.TenantsFile, val)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	var notifier leadsync.ComplianceNotifier
	var complianceWorker *compliance.Worker
	if cfg.IsComplianceEnabled() {
		client, err := compliance.NewClient(cfg, log)
		if err != nil {
			log.Error("failed to initialize compliance client", "error", err)
			panic("failed to initialize compliance client: " + err.Error())
		}
		defer client.Close()
		notifier = client

		worker, err := compliance.NewWorker(cfg, compliance.NewProvider(cfg), log)
		if err != nil {
			log.Error("failed to initialize compliance worker", "error", err)
			panic("failed to initialize compliance worker: " + err.Error())
		}
		complianceWorker = worker
		log.Info("compliance checks enabled", "queue", cfg.ComplianceQueueName)
	} else {
		notifier = noopNotifier{}
		log.Info("compliance checks disabled")
	}

	leadRepo := leadsrepo.New(pool)
	syncService := leadsync.NewService(leadRepo, leadRepo, notifier, log)

	leadQueue := queue.New(leadQueueName, store, cfg, log)
	leadQueue.RegisterHandler(leadsync.TaskLeadSync, syncService.HandleSyncJob)
	leadQueue.Process()
	defer leadQueue.Stop()

	eventSource := formsrepo.New(pool)
	p := poller.New(tenantProvider, eventSource, leadQueue, cursors, cfg, log)

	server := ops.NewServer(cfg, cfg.Env, []ops.QueueInspector{leadQueue}, cursors, store, log)

	// ========================================================================
	// Run
	// ========================================================================

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Run(ctx)
	}()

	if complianceWorker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			complianceWorker.Run(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("ops server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	wg.Wait()
	log.Info("shutdown complete")
}

// noopNotifier drops compliance dispatches when no provider is configured.
type noopNotifier struct{}

func (noopNotifier) DispatchCheck(context.Context, leadsync.ComplianceRequest) {}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
