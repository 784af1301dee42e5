// Package leadsync reconciles form-submission events into the per-tenant
// lead aggregate. Application is idempotent: the same event delivered twice
// yields the same lead, which is what makes at-least-once delivery safe.
package leadsync

import (
	"time"

	"github.com/google/uuid"
)

// Lead is the internal aggregate reconciled from events. Exactly one lead
// exists per (tenantID, canonicalKey).
type Lead struct {
	ID                    uuid.UUID
	TenantID              string
	CanonicalKey          string
	Name                  *string
	Email                 *string
	CPF                   *string
	FormStatus            string
	QualificationStatus   *string
	PipelineStatus        string
	Score                 *float64
	LabelID               *string
	ExtraData             map[string]any
	ComplianceStatus      *string
	ComplianceRequestedAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Label is a tenant-scoped or global status label. Read-only here.
type Label struct {
	ID                  string
	TenantID            *string // nil means global
	FormStatus          string
	QualificationStatus *string
	Active              bool
}

// SyncResult reports the outcome of reconciling one event.
type SyncResult struct {
	Success        bool
	Retryable      bool
	LeadID         string
	Message        string
	PipelineStatus string
}
