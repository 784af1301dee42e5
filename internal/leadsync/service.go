package leadsync

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/forms"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/platform/logger"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/platform/phone"

	"github.com/google/uuid"
)

// Service converts one event payload into a durable, idempotent mutation of
// the lead aggregate.
type Service struct {
	leads    LeadStore
	labels   LabelReader
	notifier ComplianceNotifier
	log      *logger.Logger
	now      func() time.Time
}

// NewService wires a reconciliation service from its collaborators.
func NewService(leads LeadStore, labels LabelReader, notifier ComplianceNotifier, log *logger.Logger) *Service {
	return &Service{
		leads:    leads,
		labels:   labels,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// SyncEvent reconciles one form event into its lead. A result with
// Success=false and Retryable=false is a terminal input rejection; with
// Retryable=true the caller should retry (queue semantics).
func (s *Service) SyncEvent(ctx context.Context, ev forms.Event) SyncResult {
	eventID := strconv.FormatInt(ev.ID, 10)

	// Tenant attribution is a hard security invariant: every lead belongs
	// to exactly one tenant.
	if strings.TrimSpace(ev.TenantID) == "" {
		s.log.SyncRejected(eventID, ev.TenantID, "missing tenant id")
		return SyncResult{Message: "event missing tenant id"}
	}
	if strings.TrimSpace(ev.RawPhone) == "" {
		s.log.SyncRejected(eventID, ev.TenantID, "missing phone")
		return SyncResult{Message: "event missing phone"}
	}

	key, flag := phone.CanonicalWithFlag(ev.RawPhone)
	if flag != phone.FlagOK {
		s.log.Warn("imprecise phone canonicalization",
			"event_id", eventID, "tenant_id", ev.TenantID, "flag", string(flag))
	}

	qualification := QualificationFromEvent(ev.Passed)
	pipeline := DerivePipelineStatus(ev.FormStatus, qualification)

	var labelID *string
	labels, err := s.labels.ListActive(ctx, ev.TenantID)
	if err != nil {
		// Labels are lookup-only sugar; reconciliation proceeds without one.
		s.log.Warn("label lookup failed, proceeding without label",
			"event_id", eventID, "tenant_id", ev.TenantID, "error", err.Error())
	} else {
		labelID = ResolveLabel(labels, ev.FormStatus, qualification)
	}

	candidate := leadFromEvent(ev, key, qualification, pipeline, labelID)

	existing, err := s.leads.GetByKey(ctx, ev.TenantID, key)
	switch {
	case errors.Is(err, ErrLeadNotFound):
		// First event for this key in this tenant: create.
	case err != nil:
		s.log.Error("lead lookup failed",
			"event_id", eventID, "tenant_id", ev.TenantID, "error", err.Error())
		return SyncResult{Retryable: true, Message: "lead lookup failed"}
	default:
		candidate = merge(existing, candidate)
	}

	saved, err := s.leads.Upsert(ctx, candidate)
	if err != nil {
		s.log.Error("lead upsert failed",
			"event_id", eventID, "tenant_id", ev.TenantID, "error", err.Error())
		return SyncResult{Retryable: true, Message: "lead upsert failed"}
	}

	s.maybeDispatchCompliance(ctx, saved, ev, qualification, eventID)

	return SyncResult{
		Success:        true,
		LeadID:         saved.ID.String(),
		Message:        "lead reconciled",
		PipelineStatus: pipeline,
	}
}

// merge folds the latest event's candidate into an existing lead. Identity
// fields are first-write-wins (an incoming value never overwrites an
// existing non-null one), status fields are last-write-wins, and extra
// data is shallow-merged so earlier-captured fields survive later partial
// submissions.
func merge(existing, incoming Lead) Lead {
	merged := existing

	if merged.Name == nil {
		merged.Name = incoming.Name
	}
	if merged.Email == nil {
		merged.Email = incoming.Email
	}
	if merged.CPF == nil {
		merged.CPF = incoming.CPF
	}

	merged.FormStatus = incoming.FormStatus
	merged.QualificationStatus = incoming.QualificationStatus
	merged.PipelineStatus = incoming.PipelineStatus
	merged.Score = incoming.Score
	merged.LabelID = incoming.LabelID

	if len(incoming.ExtraData) > 0 {
		data := make(map[string]any, len(existing.ExtraData)+len(incoming.ExtraData))
		for k, v := range existing.ExtraData {
			data[k] = v
		}
		for k, v := range incoming.ExtraData {
			data[k] = v
		}
		merged.ExtraData = data
	}

	return merged
}

// maybeDispatchCompliance issues at most one downstream compliance check
// per lead. The marker lives on the lead, not in queue state, so repeated
// at-least-once deliveries of the same underlying event stay deduplicated.
// Dispatch is best-effort: its failure never fails the reconciliation.
func (s *Service) maybeDispatchCompliance(ctx context.Context, saved Lead, ev forms.Event, qualification, eventID string) {
	if qualification != QualificationApproved {
		return
	}
	cpf := strings.TrimSpace(ev.ContactCPF)
	if cpf == "" {
		return
	}
	if saved.ComplianceRequestedAt != nil {
		return
	}

	marked, err := s.leads.MarkComplianceRequested(ctx, saved.ID, s.now().UTC())
	if err != nil {
		s.log.Error("compliance marker write failed",
			"event_id", eventID, "lead_id", saved.ID.String(), "error", err.Error())
		return
	}
	if !marked {
		// A concurrent delivery claimed the check first.
		return
	}

	s.notifier.DispatchCheck(ctx, ComplianceRequest{
		CPF:      cpf,
		TenantID: saved.TenantID,
		LeadID:   saved.ID.String(),
		EventID:  eventID,
	})
}

// leadFromEvent builds the candidate aggregate for a first event.
func leadFromEvent(ev forms.Event, key, qualification, pipeline string, labelID *string) Lead {
	lead := Lead{
		ID:             uuid.New(),
		TenantID:       ev.TenantID,
		CanonicalKey:   key,
		Name:           optional(ev.ContactName),
		Email:          optional(ev.ContactEmail),
		CPF:            optional(ev.ContactCPF),
		FormStatus:     ev.FormStatus,
		PipelineStatus: pipeline,
		Score:          ev.TotalScore,
		LabelID:        labelID,
		ExtraData:      extraData(ev),
	}
	if qualification != "" {
		lead.QualificationStatus = &qualification
	}
	return lead
}

// extraData flattens answers plus address and scheduling fields into the
// shallow-merged bag.
func extraData(ev forms.Event) map[string]any {
	data := make(map[string]any, len(ev.Answers)+6)
	for k, v := range ev.Answers {
		data[k] = v
	}
	if ev.AddressStreet != "" {
		data["addressStreet"] = ev.AddressStreet
	}
	if ev.AddressCity != "" {
		data["addressCity"] = ev.AddressCity
	}
	if ev.AddressState != "" {
		data["addressState"] = ev.AddressState
	}
	if ev.AddressZip != "" {
		data["addressZip"] = ev.AddressZip
	}
	if ev.ScheduledAt != nil {
		data["scheduledAt"] = ev.ScheduledAt.UTC().Format(time.RFC3339)
	}
	if ev.SchedulingNotes != "" {
		data["schedulingNotes"] = ev.SchedulingNotes
	}
	return data
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
