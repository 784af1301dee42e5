// Package repository persists the lead aggregate and reads labels.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/leadsync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements leadsync.LeadStore and leadsync.LabelReader over
// postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a lead repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `id, tenant_id, canonical_key, name, email, cpf,
	form_status, qualification_status, pipeline_status, score, label_id,
	extra_data, compliance_status, compliance_requested_at, created_at, updated_at`

// GetByKey returns the lead for (tenantID, canonicalKey), or
// leadsync.ErrLeadNotFound.
func (r *Repository) GetByKey(ctx context.Context, tenantID, canonicalKey string) (leadsync.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE tenant_id = $1 AND canonical_key = $2
	`, tenantID, canonicalKey)

	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return leadsync.Lead{}, leadsync.ErrLeadNotFound
	}
	return lead, err
}

// Upsert inserts or updates the lead. The conflict clause repeats the
// service's merge rules so concurrent workers racing on the same canonical
// key stay consistent: identity fields keep the first non-null value,
// status fields take the latest write, extra data is shallow-merged.
func (r *Repository) Upsert(ctx context.Context, lead leadsync.Lead) (leadsync.Lead, error) {
	extra, err := json.Marshal(lead.ExtraData)
	if err != nil {
		return leadsync.Lead{}, err
	}
	if lead.ExtraData == nil {
		extra = []byte("{}")
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO leads (
			id, tenant_id, canonical_key, name, email, cpf,
			form_status, qualification_status, pipeline_status, score, label_id, extra_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (tenant_id, canonical_key) DO UPDATE SET
			name = COALESCE(leads.name, EXCLUDED.name),
			email = COALESCE(leads.email, EXCLUDED.email),
			cpf = COALESCE(leads.cpf, EXCLUDED.cpf),
			form_status = EXCLUDED.form_status,
			qualification_status = EXCLUDED.qualification_status,
			pipeline_status = EXCLUDED.pipeline_status,
			score = EXCLUDED.score,
			label_id = EXCLUDED.label_id,
			extra_data = leads.extra_data || EXCLUDED.extra_data,
			updated_at = now()
		RETURNING `+leadColumns+`
	`,
		lead.ID, lead.TenantID, lead.CanonicalKey, lead.Name, lead.Email, lead.CPF,
		lead.FormStatus, lead.QualificationStatus, lead.PipelineStatus, lead.Score,
		lead.LabelID, extra,
	)

	return scanLead(row)
}

// MarkComplianceRequested claims the compliance marker. The conditional
// update makes the claim race-safe across concurrent workers: only the
// caller that flips the NULL marker wins.
func (r *Repository) MarkComplianceRequested(ctx context.Context, leadID uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET compliance_status = 'requested', compliance_requested_at = $2, updated_at = now()
		WHERE id = $1 AND compliance_requested_at IS NULL
	`, leadID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListActive returns the active labels visible to a tenant: its own plus
// global ones.
func (r *Repository) ListActive(ctx context.Context, tenantID string) ([]leadsync.Label, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, form_status, qualification_status, active
		FROM labels
		WHERE active = true AND (tenant_id = $1 OR tenant_id IS NULL)
		ORDER BY tenant_id NULLS LAST, id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	labels := make([]leadsync.Label, 0)
	for rows.Next() {
		var label leadsync.Label
		if err := rows.Scan(&label.ID, &label.TenantID, &label.FormStatus, &label.QualificationStatus, &label.Active); err != nil {
			return nil, err
		}
		labels = append(labels, label)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return labels, nil
}

func scanLead(row pgx.Row) (leadsync.Lead, error) {
	var (
		lead  leadsync.Lead
		extra []byte
	)
	err := row.Scan(
		&lead.ID, &lead.TenantID, &lead.CanonicalKey, &lead.Name, &lead.Email, &lead.CPF,
		&lead.FormStatus, &lead.QualificationStatus, &lead.PipelineStatus, &lead.Score,
		&lead.LabelID, &extra, &lead.ComplianceStatus, &lead.ComplianceRequestedAt,
		&lead.CreatedAt, &lead.UpdatedAt,
	)
	if err != nil {
		return leadsync.Lead{}, err
	}

	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &lead.ExtraData); err != nil {
			return leadsync.Lead{}, err
		}
	}

	return lead, nil
}
