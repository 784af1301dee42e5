// Package compliance dispatches and executes checks against the external
// compliance provider. Dispatch is decoupled from the reconciliation path:
// the service hands the request to asynq and moves on, the worker does the
// actual provider call.
package compliance

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/leadsync"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/platform/config"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/platform/logger"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Client enqueues compliance check tasks. It implements
// leadsync.ComplianceNotifier.
type Client struct {
	client *asynq.Client
	queue  string
	log    *logger.Logger
}

// NewClient builds the asynq-backed dispatcher. A nil *Client is valid and
// drops every dispatch, which is how deployments without a compliance
// provider run.
func NewClient(cfg config.ComplianceConfig, log *logger.Logger) (*Client, error) {
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

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
		log:    log,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// DispatchCheck enqueues one check. Failures are logged, never returned:
// the caller's reconciliation already committed and must not be rolled back
// over a lost side effect.
func (c *Client) DispatchCheck(ctx context.Context, req leadsync.ComplianceRequest) {
	if c == nil || c.client == nil {
		return
	}

	task, err := NewCheckTask(CheckPayload{
		CPF:      req.CPF,
		TenantID: req.TenantID,
		LeadID:   req.LeadID,
		EventID:  req.EventID,
		ForceNew: req.ForceNew,
	})
	if err != nil {
		c.log.Error("compliance task build failed", "lead_id", req.LeadID, "error", err.Error())
		return
	}

	if _, err := c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue)); err != nil {
		c.log.Error("compliance dispatch failed", "lead_id", req.LeadID, "error", err.Error())
		return
	}

	c.log.Info("compliance check dispatched", "lead_id", req.LeadID, "tenant_id", req.TenantID)
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
