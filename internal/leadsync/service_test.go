package leadsync

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/forms"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/queue"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/platform/logger"

	"github.com/google/uuid"
)

type fakeLeadStore struct {
	leads     map[string]Lead
	getErr    error
	upsertErr error
	markErr   error
}

func newFakeLeadStore() *fakeLeadStore {
	return &fakeLeadStore{leads: make(map[string]Lead)}
}

func storeKey(tenantID, canonicalKey string) string {
	return tenantID + "|" + canonicalKey
}

func (f *fakeLeadStore) GetByKey(_ context.Context, tenantID, canonicalKey string) (Lead, error) {
	if f.getErr != nil {
		return Lead{}, f.getErr
	}
	lead, ok := f.leads[storeKey(tenantID, canonicalKey)]
	if !ok {
		return Lead{}, ErrLeadNotFound
	}
	return lead, nil
}

func (f *fakeLeadStore) Upsert(_ context.Context, lead Lead) (Lead, error) {
	if f.upsertErr != nil {
		return Lead{}, f.upsertErr
	}
	key := storeKey(lead.TenantID, lead.CanonicalKey)
	if existing, ok := f.leads[key]; ok {
		lead.ID = existing.ID
		lead.ComplianceStatus = existing.ComplianceStatus
		lead.ComplianceRequestedAt = existing.ComplianceRequestedAt
	}
	f.leads[key] = lead
	return lead, nil
}

func (f *fakeLeadStore) MarkComplianceRequested(_ context.Context, leadID uuid.UUID, at time.Time) (bool, error) {
	if f.markErr != nil {
		return false, f.markErr
	}
	for key, lead := range f.leads {
		if lead.ID != leadID {
			continue
		}
		if lead.ComplianceRequestedAt != nil {
			return false, nil
		}
		status := "requested"
		lead.ComplianceStatus = &status
		lead.ComplianceRequestedAt = &at
		f.leads[key] = lead
		return true, nil
	}
	return false, nil
}

type fakeLabelReader struct {
	labels []Label
	err    error
}

func (f *fakeLabelReader) ListActive(context.Context, string) ([]Label, error) {
	return f.labels, f.err
}

type fakeNotifier struct {
	requests []ComplianceRequest
}

func (f *fakeNotifier) DispatchCheck(_ context.Context, req ComplianceRequest) {
	f.requests = append(f.requests, req)
}

func newTestService(store LeadStore, labels LabelReader, notifier ComplianceNotifier) *Service {
	if labels == nil {
		labels = &fakeLabelReader{}
	}
	if notifier == nil {
		notifier = &fakeNotifier{}
	}
	return NewService(store, labels, notifier, logger.New("test"))
}

func boolPtr(v bool) *bool { return &v }

func floatPtr(v float64) *float64 { return &v }

func baseEvent() forms.Event {
	return forms.Event{
		ID:           101,
		TenantID:     "tenant-a",
		FormID:       "form-1",
		RawPhone:     "31 99226-7220",
		ContactName:  "Maria Silva",
		ContactEmail: "maria@example.com",
		FormStatus:   forms.StatusSent,
		CreatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSyncEventCreatesLead(t *testing.T) {
	store := newFakeLeadStore()
	svc := newTestService(store, nil, nil)

	result := svc.SyncEvent(context.Background(), baseEvent())
	if !result.Success {
		t.Fatalf("expected success, got message %q", result.Message)
	}
	if result.PipelineStatus != PipelineSent {
		t.Errorf("pipeline status = %q, want %q", result.PipelineStatus, PipelineSent)
	}

	lead, err := store.GetByKey(context.Background(), "tenant-a", "+5531992267220")
	if err != nil {
		t.Fatalf("lead not stored under canonical key: %v", err)
	}
	if lead.Name == nil || *lead.Name != "Maria Silva" {
		t.Errorf("lead name not captured: %+v", lead.Name)
	}
	if lead.TenantID != "tenant-a" {
		t.Errorf("tenant id = %q", lead.TenantID)
	}
}

func TestSyncEventIsIdempotent(t *testing.T) {
	store := newFakeLeadStore()
	svc := newTestService(store, nil, nil)
	ev := baseEvent()

	first := svc.SyncEvent(context.Background(), ev)
	second := svc.SyncEvent(context.Background(), ev)

	if !first.Success || !second.Success {
		t.Fatalf("expected both deliveries to succeed: %+v / %+v", first, second)
	}
	if first.LeadID != second.LeadID {
		t.Errorf("duplicate delivery produced a different lead: %s vs %s", first.LeadID, second.LeadID)
	}
	if len(store.leads) != 1 {
		t.Errorf("expected 1 lead, got %d", len(store.leads))
	}
}

func TestSyncEventEquivalentPhonesConverge(t *testing.T) {
	store := newFakeLeadStore()
	svc := newTestService(store, nil, nil)

	ev1 := baseEvent()
	ev1.RawPhone = "553192267220@s.whatsapp.net"
	ev2 := baseEvent()
	ev2.ID = 102
	ev2.RawPhone = "3192267220"

	first := svc.SyncEvent(context.Background(), ev1)
	second := svc.SyncEvent(context.Background(), ev2)

	if first.LeadID != second.LeadID {
		t.Errorf("equivalent phones produced different leads: %s vs %s", first.LeadID, second.LeadID)
	}
	if len(store.leads) != 1 {
		t.Errorf("expected 1 lead, got %d", len(store.leads))
	}
}

func TestSyncEventRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*forms.Event)
	}{
		{"missing tenant", func(ev *forms.Event) { ev.TenantID = "  " }},
		{"missing phone", func(ev *forms.Event) { ev.RawPhone = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeLeadStore()
			svc := newTestService(store, nil, nil)
			ev := baseEvent()
			tt.mutate(&ev)

			result := svc.SyncEvent(context.Background(), ev)
			if result.Success {
				t.Fatal("expected rejection")
			}
			if result.Retryable {
				t.Error("input rejection must not be retryable")
			}
			if len(store.leads) != 0 {
				t.Error("rejected event must not create a lead")
			}
		})
	}
}

func TestSyncEventMergeSemantics(t *testing.T) {
	store := newFakeLeadStore()
	svc := newTestService(store, nil, nil)

	ev1 := baseEvent()
	ev1.ContactName = "Maria Silva"
	ev1.ContactEmail = ""
	ev1.Answers = map[string]any{"source": "landing", "interest": "solar"}

	ev2 := baseEvent()
	ev2.ID = 102
	ev2.ContactName = "M. S. de Souza"
	ev2.ContactEmail = "maria@example.com"
	ev2.FormStatus = forms.StatusStarted
	ev2.TotalScore = floatPtr(42)
	ev2.Answers = map[string]any{"interest": "battery"}
	ev2.UpdatedAt = ev1.UpdatedAt.Add(time.Hour)

	svc.SyncEvent(context.Background(), ev1)
	svc.SyncEvent(context.Background(), ev2)

	lead, err := store.GetByKey(context.Background(), "tenant-a", "+5531992267220")
	if err != nil {
		t.Fatal(err)
	}

	if lead.Name == nil || *lead.Name != "Maria Silva" {
		t.Errorf("identity field must keep the first write, got %v", lead.Name)
	}
	if lead.Email == nil || *lead.Email != "maria@example.com" {
		t.Errorf("nil identity field must accept a later value, got %v", lead.Email)
	}
	if lead.FormStatus != forms.StatusStarted {
		t.Errorf("status must take the latest write, got %q", lead.FormStatus)
	}
	if lead.Score == nil || *lead.Score != 42 {
		t.Errorf("score must take the latest write, got %v", lead.Score)
	}
	if got := lead.ExtraData["source"]; got != "landing" {
		t.Errorf("earlier extra data must survive, got %v", got)
	}
	if got := lead.ExtraData["interest"]; got != "battery" {
		t.Errorf("later extra data must overwrite per key, got %v", got)
	}
}

func TestSyncEventApprovedCompletion(t *testing.T) {
	store := newFakeLeadStore()
	svc := newTestService(store, nil, nil)

	ev := baseEvent()
	ev.FormStatus = forms.StatusCompleted
	ev.Passed = boolPtr(true)
	ev.TotalScore = floatPtr(87.5)

	result := svc.SyncEvent(context.Background(), ev)
	if !result.Success {
		t.Fatalf("expected success: %s", result.Message)
	}
	if result.PipelineStatus != PipelineApproved {
		t.Errorf("pipeline status = %q, want %q", result.PipelineStatus, PipelineApproved)
	}

	lead, _ := store.GetByKey(context.Background(), "tenant-a", "+5531992267220")
	if lead.QualificationStatus == nil || *lead.QualificationStatus != QualificationApproved {
		t.Errorf("qualification = %v, want approved", lead.QualificationStatus)
	}
}

func TestComplianceDispatchedOncePerLead(t *testing.T) {
	store := newFakeLeadStore()
	notifier := &fakeNotifier{}
	svc := newTestService(store, nil, notifier)

	ev := baseEvent()
	ev.ContactCPF = "12345678901"
	ev.FormStatus = forms.StatusCompleted
	ev.Passed = boolPtr(true)

	svc.SyncEvent(context.Background(), ev)
	ev.ID = 102
	svc.SyncEvent(context.Background(), ev)

	if len(notifier.requests) != 1 {
		t.Fatalf("expected exactly one compliance dispatch, got %d", len(notifier.requests))
	}
	if notifier.requests[0].CPF != "12345678901" {
		t.Errorf("dispatch carries wrong cpf: %q", notifier.requests[0].CPF)
	}
}

func TestComplianceSkippedWithoutCPFOrApproval(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*forms.Event)
	}{
		{"no cpf", func(ev *forms.Event) { ev.ContactCPF = " " }},
		{"not approved", func(ev *forms.Event) { ev.Passed = boolPtr(false) }},
		{"no outcome", func(ev *forms.Event) { ev.Passed = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeLeadStore()
			notifier := &fakeNotifier{}
			svc := newTestService(store, nil, notifier)

			ev := baseEvent()
			ev.ContactCPF = "12345678901"
			ev.FormStatus = forms.StatusCompleted
			ev.Passed = boolPtr(true)
			tt.mutate(&ev)

			if result := svc.SyncEvent(context.Background(), ev); !result.Success {
				t.Fatalf("expected success: %s", result.Message)
			}
			if len(notifier.requests) != 0 {
				t.Errorf("expected no dispatch, got %d", len(notifier.requests))
			}
		})
	}
}

func TestComplianceMarkerFailureDoesNotFailSync(t *testing.T) {
	store := newFakeLeadStore()
	store.markErr = errors.New("db down")
	notifier := &fakeNotifier{}
	svc := newTestService(store, nil, notifier)

	ev := baseEvent()
	ev.ContactCPF = "12345678901"
	ev.FormStatus = forms.StatusCompleted
	ev.Passed = boolPtr(true)

	if result := svc.SyncEvent(context.Background(), ev); !result.Success {
		t.Fatalf("marker failure must not fail reconciliation: %s", result.Message)
	}
	if len(notifier.requests) != 0 {
		t.Error("dispatch must not happen when the claim fails")
	}
}

func TestLabelLookupFailureProceedsWithoutLabel(t *testing.T) {
	store := newFakeLeadStore()
	labels := &fakeLabelReader{err: errors.New("labels unavailable")}
	svc := newTestService(store, labels, nil)

	result := svc.SyncEvent(context.Background(), baseEvent())
	if !result.Success {
		t.Fatalf("expected success despite label failure: %s", result.Message)
	}

	lead, _ := store.GetByKey(context.Background(), "tenant-a", "+5531992267220")
	if lead.LabelID != nil {
		t.Errorf("expected no label, got %v", *lead.LabelID)
	}
}

func TestStoreFailuresAreRetryable(t *testing.T) {
	t.Run("lookup", func(t *testing.T) {
		store := newFakeLeadStore()
		store.getErr = errors.New("connection reset")
		result := newTestService(store, nil, nil).SyncEvent(context.Background(), baseEvent())
		if result.Success || !result.Retryable {
			t.Errorf("want retryable failure, got %+v", result)
		}
	})

	t.Run("upsert", func(t *testing.T) {
		store := newFakeLeadStore()
		store.upsertErr = errors.New("connection reset")
		result := newTestService(store, nil, nil).SyncEvent(context.Background(), baseEvent())
		if result.Success || !result.Retryable {
			t.Errorf("want retryable failure, got %+v", result)
		}
	})
}

func TestHandleSyncJob(t *testing.T) {
	makeJob := func(t *testing.T, ev forms.Event) queue.Job {
		t.Helper()
		body, err := json.Marshal(NewSyncEventPayload(ev))
		if err != nil {
			t.Fatal(err)
		}
		return queue.Job{ID: "job-1", Type: TaskLeadSync, Payload: body}
	}

	t.Run("success", func(t *testing.T) {
		svc := newTestService(newFakeLeadStore(), nil, nil)
		if err := svc.HandleSyncJob(context.Background(), makeJob(t, baseEvent())); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("malformed payload is dropped", func(t *testing.T) {
		svc := newTestService(newFakeLeadStore(), nil, nil)
		err := svc.HandleSyncJob(context.Background(), queue.Job{ID: "job-1", Payload: []byte("{")})
		if !errors.Is(err, queue.ErrSkipRetry) {
			t.Fatalf("want ErrSkipRetry, got %v", err)
		}
	})

	t.Run("input rejection is dropped", func(t *testing.T) {
		svc := newTestService(newFakeLeadStore(), nil, nil)
		ev := baseEvent()
		ev.RawPhone = ""
		err := svc.HandleSyncJob(context.Background(), makeJob(t, ev))
		if !errors.Is(err, queue.ErrSkipRetry) {
			t.Fatalf("want ErrSkipRetry, got %v", err)
		}
	})

	t.Run("store failure is retryable", func(t *testing.T) {
		store := newFakeLeadStore()
		store.upsertErr = errors.New("connection reset")
		svc := newTestService(store, nil, nil)
		err := svc.HandleSyncJob(context.Background(), makeJob(t, baseEvent()))
		if err == nil || errors.Is(err, queue.ErrSkipRetry) {
			t.Fatalf("want plain retryable error, got %v", err)
		}
	})
}
