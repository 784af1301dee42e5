package leadsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/forms"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/queue"
)

// TaskLeadSync is the job type carrying one form event to reconcile.
const TaskLeadSync = "leads.sync"

// SyncEventPayload is the typed payload for TaskLeadSync jobs. It carries
// the full event plus the tenant id, so the handler never has to look the
// event up again.
type SyncEventPayload struct {
	TenantID string      `json:"tenantId"`
	Event    forms.Event `json:"event"`
}

// NewSyncEventPayload builds the payload for one event.
func NewSyncEventPayload(ev forms.Event) SyncEventPayload {
	return SyncEventPayload{TenantID: ev.TenantID, Event: ev}
}

// ParseSyncEventPayload decodes a TaskLeadSync job payload.
func ParseSyncEventPayload(job queue.Job) (SyncEventPayload, error) {
	var payload SyncEventPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return SyncEventPayload{}, err
	}
	return payload, nil
}

// HandleSyncJob is the queue handler for TaskLeadSync. Input rejections
// are wrapped in queue.ErrSkipRetry so the queue drops them instead of
// retrying; everything else maps a failed result to a retryable error.
func (s *Service) HandleSyncJob(ctx context.Context, job queue.Job) error {
	payload, err := ParseSyncEventPayload(job)
	if err != nil {
		return fmt.Errorf("%w: malformed sync payload: %v", queue.ErrSkipRetry, err)
	}

	ev := payload.Event
	if ev.TenantID == "" {
		ev.TenantID = payload.TenantID
	}

	result := s.SyncEvent(ctx, ev)
	if result.Success {
		return nil
	}
	if !result.Retryable {
		return fmt.Errorf("%w: %s", queue.ErrSkipRetry, result.Message)
	}
	return errors.New(result.Message)
}
