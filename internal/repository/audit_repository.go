package repository

import (
	"context"
	"encoding/json"

	"github.com/dealdesk/be-deal-approvals/internal/apperrors"
	"github.com/dealdesk/be-deal-approvals/internal/database"
)

// AuditRepository appends and reads immutable deal audit log entries.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit entry. Append is the only mutation exposed.
func (r *AuditRepository) Append(ctx context.Context, entry *DealAuditEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO deal_audit_log
		    (deal_id, approval_id, action, performed_by,
		     actor_role, actor_department,
		     status_before, status_after, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, performed_at
	`

	err := r.db.QueryRow(ctx, query,
		entry.DealID,
		entry.ApprovalID,
		entry.Action,
		entry.PerformedBy,
		entry.ActorRole,
		entry.ActorDepartment,
		entry.StatusBefore,
		entry.StatusAfter,
		metadataJSON,
	).Scan(&entry.ID, &entry.PerformedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to append audit entry")
	}
	return nil
}

// GetByDeal returns the full audit trail for a deal, oldest first.
func (r *AuditRepository) GetByDeal(ctx context.Context, dealID string) ([]*DealAuditEntry, error) {
	query := `
		SELECT id, deal_id, approval_id, action, performed_by,
		       actor_role, actor_department,
		       status_before, status_after, metadata, performed_at
		FROM deal_audit_log
		WHERE deal_id = $1
		ORDER BY performed_at ASC
	`

	rows, err := r.db.Query(ctx, query, dealID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to get audit log")
	}
	defer rows.Close()

	var entries []*DealAuditEntry
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

type auditScanner interface {
	Scan(dest ...any) error
}

func scanAuditEntry(sc auditScanner) (*DealAuditEntry, error) {
	entry := &DealAuditEntry{}
	var metadataJSON []byte

	err := sc.Scan(
		&entry.ID,
		&entry.DealID,
		&entry.ApprovalID,
		&entry.Action,
		&entry.PerformedBy,
		&entry.ActorRole,
		&entry.ActorDepartment,
		&entry.StatusBefore,
		&entry.StatusAfter,
		&metadataJSON,
		&entry.PerformedAt,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan audit entry")
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to unmarshal audit metadata")
		}
	}
	return entry, nil
}
