// Package queue implements a durable, retrying background job queue over a
// generic key-value store. Jobs are typed; one handler is registered per
// type. Delivery is at-least-once: a dispatched id moves from the pending
// index to a processing list and stays durably referenced until the job
// completes, so a crash mid-handler or mid-backoff is redelivered on the
// next start. Handlers must therefore be idempotent.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/kvstore"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/platform/config"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// ErrSkipRetry marks a handler failure as non-retryable. The job is logged
// and dropped instead of being retried or dead-lettered.
var ErrSkipRetry = errors.New("queue: skip retry")

// Job is the unit of work stored in the backing store. It is owned by the
// queue for its lifetime: deleted on success, moved to a dead-letter record
// when its retry budget is exhausted.
type Job struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	CreatedAt   time.Time       `json:"createdAt"`
	ProcessedAt *time.Time      `json:"processedAt,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// DeadLetter is the retained record of a job that exhausted its retries.
type DeadLetter struct {
	Job    Job       `json:"job"`
	DiedAt time.Time `json:"diedAt"`
	Reason string    `json:"reason"`
}

// Handler processes one job. Returning nil completes the job; returning an
// error schedules a retry unless the error wraps ErrSkipRetry.
type Handler func(ctx context.Context, job Job) error

// AddOptions tunes a single enqueue. Zero values fall back to queue config.
type AddOptions struct {
	MaxAttempts int
	TTL         time.Duration
}

// Stats is a point-in-time observability snapshot.
type Stats struct {
	Pending int64        `json:"pending"`
	Active  int64        `json:"active"`
	Failed  int64        `json:"failed"`
	Breaker BreakerState `json:"breaker"`
	Halted  bool         `json:"halted"`
}

// Queue dispatches typed jobs to registered handlers with bounded
// concurrency, exponential-backoff retries, dead-lettering, and a circuit
// breaker guarding the backing store.
type Queue struct {
	name    string
	store   kvstore.Store
	cfg     config.QueueConfig
	log     *logger.Logger
	breaker *breaker

	mu       sync.RWMutex
	handlers map[string]Handler

	sem     *semaphore.Weighted
	running atomic.Bool
	halted  atomic.Bool
	active  atomic.Int64

	stop chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// New constructs a queue. Call Process to start dispatching.
func New(name string, store kvstore.Store, cfg config.QueueConfig, log *logger.Logger) *Queue {
	concurrency := cfg.GetQueueConcurrency()
	if concurrency < 1 {
		concurrency = 1
	}

	return &Queue{
		name:     name,
		store:    store,
		cfg:      cfg,
		log:      log,
		breaker:  newBreaker(cfg.GetQueueBreakerCooldown(), nil),
		handlers: make(map[string]Handler),
		sem:      semaphore.NewWeighted(int64(concurrency)),
	}
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// RegisterHandler binds a handler to a job type. Last registration wins.
// Jobs of an unregistered type are logged and dropped without retry.
func (q *Queue) RegisterHandler(jobType string, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = handler
}

// Add appends a job to the durable index and stores its body with a TTL.
// It returns the job id immediately; processing happens asynchronously.
func (q *Queue) Add(ctx context.Context, jobType string, payload any, opts AddOptions) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = q.cfg.GetQueueMaxAttempts()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = q.cfg.GetQueueJobTTL()
	}

	job := Job{
		ID:          uuid.NewString(),
		Type:        jobType,
		Payload:     data,
		MaxAttempts: maxAttempts,
		CreatedAt:   time.Now().UTC(),
	}

	body, err := json.Marshal(job)
	if err != nil {
		return "", err
	}

	// Body first, then index: the dispatch loop drops index entries whose
	// body is missing, never the other way around.
	if err := q.store.Set(ctx, q.jobKey(job.ID), body, ttl); err != nil {
		return "", err
	}
	if err := q.store.PushIndex(ctx, q.indexKey(), job.ID); err != nil {
		return "", err
	}

	return job.ID, nil
}

// Cancel removes a pending job before it is dispatched: the id leaves the
// index and the body is deleted. A job already picked up by a worker is not
// interrupted.
func (q *Queue) Cancel(ctx context.Context, jobID string) error {
	if err := q.store.RemoveFromIndex(ctx, q.indexKey(), jobID); err != nil {
		return err
	}
	if err := q.store.Delete(ctx, q.jobKey(jobID)); err != nil {
		return err
	}
	q.log.QueueEvent(q.name, "", jobID, "cancelled", 0)
	return nil
}

// Process starts the dispatch loop. Calling it while already running is a
// no-op.
func (q *Queue) Process() {
	if !q.running.CompareAndSwap(false, true) {
		return
	}
	q.stop = make(chan struct{})
	q.done = make(chan struct{})
	q.requeueStale(context.Background())
	go q.loop()
}

// requeueStale returns in-flight ids a previous run left on the processing
// list (crash between dispatch and completion) to the pending index for
// redelivery.
func (q *Queue) requeueStale(ctx context.Context) {
	ids, err := q.store.ListIndex(ctx, q.processingKey())
	if err != nil {
		q.storeFailure("list in-flight jobs", err)
		return
	}

	for _, id := range ids {
		if err := q.store.PushIndex(ctx, q.indexKey(), id); err != nil {
			q.storeFailure("requeue stale job", err)
			continue
		}
		if err := q.store.RemoveFromIndex(ctx, q.processingKey(), id); err != nil {
			q.storeFailure("trim processing list", err)
		}
		q.log.QueueEvent(q.name, "", id, "requeued_after_restart", 0)
	}
}

// Stop signals the dispatch loop to exit and waits for in-flight jobs and
// pending retry timers to finish.
func (q *Queue) Stop() {
	if !q.running.Load() {
		return
	}
	close(q.stop)
	<-q.done
	q.wg.Wait()
	q.running.Store(false)
}

// Halted reports whether the queue stopped itself after a hard-limit store
// error. Operator intervention is required before restarting.
func (q *Queue) Halted() bool { return q.halted.Load() }

func (q *Queue) loop() {
	defer close(q.done)
	ctx := context.Background()

	for {
		select {
		case <-q.stop:
			return
		default:
		}

		if q.halted.Load() {
			return
		}

		if !q.breaker.Allow() {
			if !q.sleep(q.cfg.GetQueueBreakerSlowPoll()) {
				return
			}
			continue
		}

		// The claim moves the id to the processing list instead of popping
		// it, so a crash from here on still leaves a durable reference.
		id, err := q.store.MoveIndex(ctx, q.indexKey(), q.processingKey())
		if errors.Is(err, kvstore.ErrNotFound) {
			q.breaker.Success()
			if !q.sleep(q.cfg.GetQueueIdleDelay()) {
				return
			}
			continue
		}
		if err != nil {
			q.storeFailure("claim job", err)
			if q.halted.Load() {
				return
			}
			if !q.sleep(q.cfg.GetQueueBreakerSlowPoll()) {
				return
			}
			continue
		}
		q.breaker.Success()

		body, err := q.store.Get(ctx, q.jobKey(id))
		if errors.Is(err, kvstore.ErrNotFound) {
			// Body expired or already cleaned up.
			q.log.Warn("job body missing, dropping", "queue", q.name, "job_id", id)
			q.release(ctx, id)
			continue
		}
		if err != nil {
			q.storeFailure("get job", err)
			// Return the id to the pending index so the job isn't stranded.
			q.unclaim(ctx, id)
			if q.halted.Load() {
				return
			}
			if !q.sleep(q.cfg.GetQueueBreakerSlowPoll()) {
				return
			}
			continue
		}

		var job Job
		if err := json.Unmarshal(body, &job); err != nil {
			q.log.Error("malformed job body, dropping", "queue", q.name, "job_id", id, "error", err.Error())
			_ = q.store.Delete(ctx, q.jobKey(id))
			q.release(ctx, id)
			continue
		}

		if err := q.acquireSlot(); err != nil {
			// Shutdown while waiting for a slot; requeue and bail.
			q.unclaim(ctx, job.ID)
			return
		}
		q.wg.Add(1)
		go q.runJob(ctx, job)
	}
}

// release drops a finished id from the processing list.
func (q *Queue) release(ctx context.Context, id string) {
	if err := q.store.RemoveFromIndex(ctx, q.processingKey(), id); err != nil {
		q.storeFailure("trim processing list", err)
	}
}

// unclaim moves an unprocessed id back to the pending index. Push before
// remove: a crash in between duplicates the reference instead of losing it.
func (q *Queue) unclaim(ctx context.Context, id string) {
	if err := q.store.PushIndex(ctx, q.indexKey(), id); err != nil {
		q.storeFailure("requeue job", err)
		return
	}
	q.release(ctx, id)
}

// acquireSlot blocks until a worker slot frees up or Stop is called.
func (q *Queue) acquireSlot() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-q.stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	return q.sem.Acquire(ctx, 1)
}

func (q *Queue) runJob(ctx context.Context, job Job) {
	defer q.wg.Done()
	defer q.sem.Release(1)
	q.active.Add(1)
	defer q.active.Add(-1)

	q.mu.RLock()
	handler, ok := q.handlers[job.Type]
	q.mu.RUnlock()

	if !ok {
		q.log.Warn("no handler registered, dropping job",
			"queue", q.name, "job_type", job.Type, "job_id", job.ID)
		_ = q.store.Delete(ctx, q.jobKey(job.ID))
		q.release(ctx, job.ID)
		return
	}

	err := handler(ctx, job)
	if err == nil {
		// Success path: delete the body, then drop the processing-list
		// reference. In that order a crash in between redelivers a job
		// whose body is gone, which the loop drops.
		if err := q.store.Delete(ctx, q.jobKey(job.ID)); err != nil {
			q.storeFailure("delete job", err)
		}
		q.release(ctx, job.ID)
		q.log.QueueEvent(q.name, job.Type, job.ID, "completed", job.Attempts+1)
		return
	}

	job.Attempts++
	job.Error = err.Error()

	if errors.Is(err, ErrSkipRetry) {
		q.log.Warn("non-retryable job failure, dropping",
			"queue", q.name, "job_type", job.Type, "job_id", job.ID, "error", err.Error())
		_ = q.store.Delete(ctx, q.jobKey(job.ID))
		q.release(ctx, job.ID)
		return
	}

	if job.Attempts >= job.MaxAttempts {
		q.deadLetter(ctx, job)
		return
	}

	q.scheduleRetry(ctx, job)
}

// scheduleRetry re-stores the job under its unchanged id and pushes the id
// back onto the pending index once the backoff elapses. The id stays on the
// processing list for the whole backoff window, so a crash during the wait
// is redelivered by the next start's stale sweep.
func (q *Queue) scheduleRetry(ctx context.Context, job Job) {
	body, err := json.Marshal(job)
	if err != nil {
		q.log.Error("marshal retry job", "queue", q.name, "job_id", job.ID, "error", err.Error())
		return
	}
	if err := q.store.Set(ctx, q.jobKey(job.ID), body, q.cfg.GetQueueJobTTL()); err != nil {
		q.storeFailure("restore job", err)
		return
	}

	delay := q.backoff(job.Attempts)
	q.log.QueueEvent(q.name, job.Type, job.ID, "retry_scheduled", job.Attempts)

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.stop:
			// Requeue immediately on shutdown so the id is not stranded;
			// the next Process run picks it up.
		case <-timer.C:
		}
		// On push failure the id stays on the processing list and the
		// stale sweep recovers it.
		q.unclaim(context.Background(), job.ID)
	}()
}

func (q *Queue) deadLetter(ctx context.Context, job Job) {
	now := time.Now().UTC()
	job.ProcessedAt = &now

	rec := DeadLetter{Job: job, DiedAt: now, Reason: job.Error}
	body, err := json.Marshal(rec)
	if err != nil {
		q.log.Error("marshal dead letter", "queue", q.name, "job_id", job.ID, "error", err.Error())
		return
	}

	if err := q.store.Set(ctx, q.deadKey(job.ID), body, q.cfg.GetQueueDeadLetterRetention()); err != nil {
		q.storeFailure("write dead letter", err)
	}
	if err := q.store.Delete(ctx, q.jobKey(job.ID)); err != nil {
		q.storeFailure("delete job", err)
	}
	// The id is not re-pushed: a dead-lettered job leaves the active
	// indexes for good.
	q.release(ctx, job.ID)
	q.log.QueueEvent(q.name, job.Type, job.ID, "dead_lettered", job.Attempts)
}

// backoff computes min(base * 2^attempts, cap).
func (q *Queue) backoff(attempts int) time.Duration {
	base := q.cfg.GetQueueBackoffBase()
	ceiling := q.cfg.GetQueueBackoffCap()
	delay := base
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	return delay
}

func (q *Queue) storeFailure(op string, err error) {
	q.log.StoreError(op, err)
	q.breaker.Fail()
	if errors.Is(err, kvstore.ErrHardLimit) {
		q.halted.Store(true)
		q.log.Error("backing store hard limit reached, halting queue", "queue", q.name)
	}
}

// sleep waits for d or until Stop, returning false on stop.
func (q *Queue) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-q.stop:
		return false
	case <-timer.C:
		return true
	}
}

// Stats returns pending/active/failed counts for observability.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	pending, err := q.store.IndexLen(ctx, q.indexKey())
	if err != nil {
		return Stats{}, err
	}

	deadKeys, err := q.store.Keys(ctx, q.deadKey("*"))
	if err != nil {
		return Stats{}, err
	}

	return Stats{
		Pending: pending,
		Active:  q.active.Load(),
		Failed:  int64(len(deadKeys)),
		Breaker: q.breaker.State(),
		Halted:  q.halted.Load(),
	}, nil
}

// DeadLetters returns the retained dead-letter records.
func (q *Queue) DeadLetters(ctx context.Context) ([]DeadLetter, error) {
	keys, err := q.store.Keys(ctx, q.deadKey("*"))
	if err != nil {
		return nil, err
	}

	records := make([]DeadLetter, 0, len(keys))
	for _, key := range keys {
		body, err := q.store.Get(ctx, key)
		if errors.Is(err, kvstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var rec DeadLetter
		if err := json.Unmarshal(body, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (q *Queue) indexKey() string { return "queue:" + q.name + ":index" }

func (q *Queue) processingKey() string { return "queue:" + q.name + ":processing" }

func (q *Queue) jobKey(id string) string { return "queue:" + q.name + ":job:" + id }

func (q *Queue) deadKey(id string) string { return "queue:" + q.name + ":dead:" + id }
