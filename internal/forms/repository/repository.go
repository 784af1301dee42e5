// Package repository provides read access to the external form-event store.
package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/forms"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads form events from the backing relational store.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a form-event repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FetchSince returns up to limit events for one tenant strictly after the
// compound cursor (updatedAt, id), ordered by (updatedAt ASC, id ASC).
func (r *Repository) FetchSince(ctx context.Context, tenantID string, updatedAt time.Time, id int64, limit int) ([]forms.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, form_id, raw_phone, contact_name, contact_email, contact_cpf,
			form_status, passed, total_score, answers,
			address_street, address_city, address_state, address_zip,
			scheduled_at, scheduling_notes, created_at, updated_at
		FROM form_events
		WHERE tenant_id = $1
		  AND (updated_at > $2 OR (updated_at = $2 AND id > $3))
		ORDER BY updated_at ASC, id ASC
		LIMIT $4
	`, tenantID, updatedAt, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]forms.Event, 0, limit)
	for rows.Next() {
		var (
			ev         forms.Event
			rawPhone   *string
			name       *string
			email      *string
			cpf        *string
			street     *string
			city       *string
			state      *string
			zip        *string
			schedNotes *string
			answers    []byte
		)
		if err := rows.Scan(
			&ev.ID, &ev.TenantID, &ev.FormID, &rawPhone, &name, &email, &cpf,
			&ev.FormStatus, &ev.Passed, &ev.TotalScore, &answers,
			&street, &city, &state, &zip,
			&ev.ScheduledAt, &schedNotes, &ev.CreatedAt, &ev.UpdatedAt,
		); err != nil {
			return nil, err
		}

		ev.RawPhone = deref(rawPhone)
		ev.ContactName = deref(name)
		ev.ContactEmail = deref(email)
		ev.ContactCPF = deref(cpf)
		ev.AddressStreet = deref(street)
		ev.AddressCity = deref(city)
		ev.AddressState = deref(state)
		ev.AddressZip = deref(zip)
		ev.SchedulingNotes = deref(schedNotes)

		if len(answers) > 0 {
			if err := json.Unmarshal(answers, &ev.Answers); err != nil {
				return nil, err
			}
		}

		events = append(events, ev)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return events, nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
