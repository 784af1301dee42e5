package leadsync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrLeadNotFound is returned by LeadStore lookups for unknown keys.
var ErrLeadNotFound = errors.New("lead not found")

// LeadStore persists the lead aggregate. Upsert must be safe under
// concurrent execution for the same (tenantID, canonicalKey): identity
// fields are first-write-wins, status fields last-write-wins, extra data is
// shallow-merged.
type LeadStore interface {
	GetByKey(ctx context.Context, tenantID, canonicalKey string) (Lead, error)
	Upsert(ctx context.Context, lead Lead) (Lead, error)
	// MarkComplianceRequested records the compliance marker iff it was not
	// already set, reporting whether this call won the claim.
	MarkComplianceRequested(ctx context.Context, leadID uuid.UUID, at time.Time) (bool, error)
}

// LabelReader lists the active labels visible to a tenant.
type LabelReader interface {
	ListActive(ctx context.Context, tenantID string) ([]Label, error)
}

// ComplianceRequest identifies one downstream compliance check.
type ComplianceRequest struct {
	CPF      string
	TenantID string
	LeadID   string
	EventID  string
	ForceNew bool
}

// ComplianceNotifier issues a best-effort asynchronous compliance check.
// Implementations log failures and never propagate them: the dispatch
// participates in no transaction with the reconciliation that triggered it.
type ComplianceNotifier interface {
	DispatchCheck(ctx context.Context, req ComplianceRequest)
}
