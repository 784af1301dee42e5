// Package forms models form-submission events originating from the
// external, per-tenant data source. Events are read-only to this pipeline:
// the external system may keep updating a row after creation, which is why
// polling keys off updatedAt rather than createdAt.
package forms

import "time"

// Form progress states as reported by the external source.
const (
	StatusNotSent   = "not_sent"
	StatusSent      = "sent"
	StatusOpened    = "opened"
	StatusStarted   = "started"
	StatusCompleted = "completed"
)

// Event is one form-submission row from the external source.
type Event struct {
	ID              int64          `json:"id"`
	TenantID        string         `json:"tenantId"`
	FormID          string         `json:"formId"`
	RawPhone        string         `json:"rawPhone"`
	ContactName     string         `json:"contactName,omitempty"`
	ContactEmail    string         `json:"contactEmail,omitempty"`
	ContactCPF      string         `json:"contactCpf,omitempty"`
	FormStatus      string         `json:"formStatus"`
	Passed          *bool          `json:"passed,omitempty"`
	TotalScore      *float64       `json:"totalScore,omitempty"`
	Answers         map[string]any `json:"answers,omitempty"`
	AddressStreet   string         `json:"addressStreet,omitempty"`
	AddressCity     string         `json:"addressCity,omitempty"`
	AddressState    string         `json:"addressState,omitempty"`
	AddressZip      string         `json:"addressZip,omitempty"`
	ScheduledAt     *time.Time     `json:"scheduledAt,omitempty"`
	SchedulingNotes string         `json:"schedulingNotes,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}
