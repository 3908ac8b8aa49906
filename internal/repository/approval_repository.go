package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dealdesk/be-deal-approvals/internal/apperrors"
	"github.com/dealdesk/be-deal-approvals/internal/database"
	"github.com/dealdesk/be-deal-approvals/internal/workflow"
)

const approvalColumns = `
	id, deal_id, department, stage, round, required_role,
	status, priority, due_date, reviewer_notes, completed_at, reviewed_by,
	created_at, updated_at`

// ApprovalRepository handles reads and decision writes on approval records.
// Approval creation lives on DealRepository (StartReview for the stage-1
// round, UpdateStatusWithApproval for the stage-2 record), transactionally
// with the deal status write.
type ApprovalRepository struct {
	db *database.DB
}

// NewApprovalRepository creates a new ApprovalRepository.
func NewApprovalRepository(db *database.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// GetByID retrieves an approval by id.
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM deal_approvals WHERE id = $1`

	a, err := scanApproval(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("approval", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to get approval")
	}
	return a, nil
}

// GetByDeal returns every approval record for a deal across all rounds,
// oldest round first then by stage. Prior rounds stay queryable for audit.
func (r *ApprovalRepository) GetByDeal(ctx context.Context, dealID string) ([]*Approval, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM deal_approvals
		WHERE deal_id = $1
		ORDER BY round ASC, stage ASC, created_at ASC
	`
	return r.queryApprovals(ctx, query, dealID)
}

// GetByDealRound returns the approvals of a single round.
func (r *ApprovalRepository) GetByDealRound(ctx context.Context, dealID string, round int) ([]*Approval, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM deal_approvals
		WHERE deal_id = $1 AND round = $2
		ORDER BY stage ASC, created_at ASC
	`
	return r.queryApprovals(ctx, query, dealID, round)
}

// ListPending returns all pending approvals joined with their deal's queue
// fields, soonest due first.
func (r *ApprovalRepository) ListPending(ctx context.Context) ([]*PendingApproval, error) {
	query := `
		SELECT a.id, a.deal_id, a.department, a.stage, a.round, a.required_role,
		       a.status, a.priority, a.due_date, a.reviewer_notes, a.completed_at, a.reviewed_by,
		       a.created_at, a.updated_at,
		       d.name, d.status, d.deal_value, d.priority
		FROM deal_approvals a
		JOIN deals d ON d.id = a.deal_id
		WHERE a.status = 'pending'
		  AND a.round = d.revision_count
		ORDER BY a.due_date ASC, a.created_at ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list pending approvals")
	}
	defer rows.Close()

	var items []*PendingApproval
	for rows.Next() {
		item := &PendingApproval{}
		err := rows.Scan(
			&item.ID, &item.DealID, &item.Department, &item.Stage, &item.Round,
			&item.RequiredRole, &item.Status, &item.Priority, &item.DueDate,
			&item.ReviewerNotes, &item.CompletedAt, &item.ReviewedBy,
			&item.CreatedAt, &item.UpdatedAt,
			&item.DealName, &item.DealStatus, &item.DealValue, &item.DealPriority,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan pending approval")
		}
		items = append(items, item)
	}
	return items, nil
}

// ListCompletedSince returns approvals decided after the given time, used
// for trailing-window processing metrics.
func (r *ApprovalRepository) ListCompletedSince(ctx context.Context, since time.Time) ([]*Approval, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM deal_approvals
		WHERE completed_at IS NOT NULL AND completed_at >= $1
		ORDER BY completed_at DESC
	`
	return r.queryApprovals(ctx, query, since)
}

// Decide records a reviewer decision with a compare-and-set on the pending
// status. Returns false when the approval was already decided, leaving the
// row untouched; of two concurrent decisions exactly one sees true.
func (r *ApprovalRepository) Decide(
	ctx context.Context,
	id string,
	decision workflow.DecisionStatus,
	reviewedBy string,
	notes *string,
) (*Approval, bool, error) {
	query := `
		UPDATE deal_approvals
		SET status         = $2::approval_status,
		    reviewed_by    = $3,
		    reviewer_notes = $4,
		    completed_at   = NOW(),
		    updated_at     = NOW()
		WHERE id = $1
		  AND status = 'pending'
		RETURNING ` + approvalColumns

	a, err := scanApproval(r.db.QueryRow(ctx, query, id, decision, reviewedBy, notes))
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to record decision")
	}
	return a, true, nil
}

// scan helpers

func (r *ApprovalRepository) queryApprovals(ctx context.Context, query string, args ...any) ([]*Approval, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to query approvals")
	}
	defer rows.Close()

	var approvals []*Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan approval")
		}
		approvals = append(approvals, a)
	}
	return approvals, nil
}

type approvalScanner interface {
	Scan(dest ...any) error
}

func scanApproval(sc approvalScanner) (*Approval, error) {
	a := &Approval{}
	err := sc.Scan(
		&a.ID,
		&a.DealID,
		&a.Department,
		&a.Stage,
		&a.Round,
		&a.RequiredRole,
		&a.Status,
		&a.Priority,
		&a.DueDate,
		&a.ReviewerNotes,
		&a.CompletedAt,
		&a.ReviewedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}
