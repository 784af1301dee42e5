package compliance

import (
	"context"
	"fmt"

	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/platform/apperr"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/platform/config"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/platform/logger"

	"github.com/hibiken/asynq"
)

// Worker consumes compliance check tasks and executes them against the
// provider.
type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	provider *Provider
	log      *logger.Logger
}

func NewWorker(cfg config.ComplianceConfig, provider *Provider, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetComplianceQueueName()
	if queue == "" {
		queue = "default"
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:   server,
		mux:      mux,
		provider: provider,
		log:      log,
	}

	mux.HandleFunc(TaskComplianceCheck, w.handleCheck)

	return w, nil
}

func (w *Worker) handleCheck(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseCheckPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	result, err := w.provider.Check(ctx, payload.CPF, payload.ForceNew)
	if err != nil {
		if apperr.Is(err, apperr.KindValidation) {
			// Provider rejected the input; retrying will not change that.
			w.log.Warn("compliance check rejected",
				"lead_id", payload.LeadID, "tenant_id", payload.TenantID, "error", err.Error())
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	w.log.Info("compliance check completed",
		"lead_id", payload.LeadID,
		"tenant_id", payload.TenantID,
		"status", result.Status,
		"cached", result.Cached,
	)
	return nil
}

// Run serves tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("compliance worker stopped", "error", err)
	}
}
