// Package poller drives ingestion: on each cycle it walks the active
// tenants, reads one page of form events past the tenant's cursor, enqueues
// a reconciliation job per event, and advances the cursor only after the
// whole page was handed to the queue. Crash recovery therefore re-enqueues
// at most one page, which the idempotent handler absorbs.
package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/cursor"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/forms"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/leadsync"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/queue"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/tenants"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/platform/config"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/platform/logger"

	"golang.org/x/time/rate"
)

// EventSource reads form events ordered by (updatedAt, id) strictly after
// the given position.
type EventSource interface {
	FetchSince(ctx context.Context, tenantID string, updatedAt time.Time, id int64, limit int) ([]forms.Event, error)
}

// Enqueuer is the queue surface the poller needs. *queue.Queue satisfies it.
type Enqueuer interface {
	Add(ctx context.Context, jobType string, payload any, opts queue.AddOptions) (string, error)
}

// Result summarizes one poll cycle.
type Result struct {
	Enqueued  int
	PerTenant map[string]int
	Errors    map[string]error
}

// Poller polls every active tenant once per cycle.
type Poller struct {
	tenants tenants.Provider
	source  EventSource
	queue   Enqueuer
	cursors *cursor.Store
	cfg     config.PollerConfig
	log     *logger.Logger
	limiter *rate.Limiter
	now     func() time.Time
}

// New constructs a poller. The per-tenant rate limit spreads source load
// when many tenants are configured.
func New(provider tenants.Provider, source EventSource, q Enqueuer, cursors *cursor.Store, cfg config.PollerConfig, log *logger.Logger) *Poller {
	limit := rate.Inf
	if r := cfg.GetPollTenantRate(); r > 0 {
		limit = rate.Limit(r)
	}

	return &Poller{
		tenants: provider,
		source:  source,
		queue:   q,
		cursors: cursors,
		cfg:     cfg,
		log:     log,
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
	}
}

// Run polls on the configured interval until ctx is cancelled. The first
// cycle starts immediately.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.GetPollInterval())
	defer ticker.Stop()

	for {
		res := p.PollOnce(ctx)
		if res.Enqueued > 0 || len(res.Errors) > 0 {
			p.log.Info("poll cycle finished",
				"enqueued", res.Enqueued, "tenants_failed", len(res.Errors))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PollOnce runs a single cycle over all active tenants. A failing tenant
// never blocks the others; its error is recorded and its cursor untouched.
func (p *Poller) PollOnce(ctx context.Context) Result {
	res := Result{
		PerTenant: make(map[string]int),
		Errors:    make(map[string]error),
	}

	active, err := p.tenants.List(ctx)
	if err != nil {
		p.log.Error("tenant listing failed", "error", err.Error())
		res.Errors[""] = err
		return res
	}

	for _, tenant := range active {
		if err := p.limiter.Wait(ctx); err != nil {
			return res
		}

		count, err := p.pollTenant(ctx, tenant.ID)
		if err != nil {
			p.log.PollError(tenant.ID, err)
			res.Errors[tenant.ID] = err
			continue
		}
		if count > 0 {
			res.PerTenant[tenant.ID] = count
			res.Enqueued += count
		}
	}

	return res
}

// pollTenant reads and enqueues at most one page for the tenant. The cursor
// is advanced once, to the last event of the page, and only after every
// event of the page was enqueued.
func (p *Poller) pollTenant(ctx context.Context, tenantID string) (int, error) {
	pos := p.startPosition(tenantID)

	events, err := p.source.FetchSince(ctx, tenantID, pos.UpdatedAt, pos.ID, p.cfg.GetPollPageSize())
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	for _, ev := range events {
		payload := leadsync.NewSyncEventPayload(ev)
		if _, err := p.queue.Add(ctx, leadsync.TaskLeadSync, payload, queue.AddOptions{}); err != nil {
			// Leave the cursor where it was: the whole page is re-read next
			// cycle and duplicates are absorbed downstream.
			return 0, err
		}
	}

	last := events[len(events)-1]
	next := cursor.Position{UpdatedAt: last.UpdatedAt, ID: last.ID}
	// A page that does not move the cursor strictly forward means the source
	// violated its ordering contract; saving it would replay the same page
	// forever or rewind past work.
	if !pos.Before(next) {
		return 0, fmt.Errorf("source returned non-advancing page for tenant %s: cursor (%s, %d), page end (%s, %d)",
			tenantID, pos.UpdatedAt.Format(time.RFC3339Nano), pos.ID, next.UpdatedAt.Format(time.RFC3339Nano), next.ID)
	}
	if err := p.cursors.Save(tenantID, next); err != nil {
		return 0, err
	}

	return len(events), nil
}

// startPosition resolves where the tenant's next page begins: the saved
// cursor, or the lookback lower bound when no usable cursor exists.
func (p *Poller) startPosition(tenantID string) cursor.Position {
	cur, ok, err := p.cursors.Load(tenantID)
	if err != nil {
		p.log.Warn("cursor load failed, falling back to lookback",
			"tenant_id", tenantID, "error", err.Error())
		ok = false
	}
	if ok {
		return cur.Position
	}
	return cursor.Position{UpdatedAt: p.now().Add(-p.cfg.GetPollLookback()).UTC()}
}
