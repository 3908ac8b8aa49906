package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dealdesk/be-deal-approvals/internal/apperrors"
	"github.com/dealdesk/be-deal-approvals/internal/database"
	"github.com/dealdesk/be-deal-approvals/internal/workflow"
)

const dealColumns = `
	id, name, status, draft_type, created_by, assigned_to, advertiser_id,
	deal_value, priority, revision_count, last_status_change,
	incentives, required_department_reviews, completed_department_reviews,
	notes, created_at, updated_at`

// DealRepository handles deal data operations. Status writes are
// conditional on the caller's last-read status, so two concurrent
// transitions on the same deal serialize: the loser sees no row updated.
type DealRepository struct {
	db *database.DB
}

// NewDealRepository creates a new DealRepository.
func NewDealRepository(db *database.DB) *DealRepository {
	return &DealRepository{db: db}
}

// Create inserts a new deal in draft.
func (r *DealRepository) Create(ctx context.Context, deal *Deal) error {
	incentivesJSON, err := json.Marshal(deal.Incentives)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to marshal incentives")
	}

	query := `
		INSERT INTO deals (name, status, draft_type, created_by, assigned_to,
		                   advertiser_id, deal_value, priority, incentives, notes)
		VALUES ($1, $2::deal_status, $3, $4, $5, $6, $7, $8::deal_priority, $9, $10)
		RETURNING id, revision_count, last_status_change, created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		deal.Name,
		deal.Status,
		deal.DraftType,
		deal.CreatedBy,
		deal.AssignedTo,
		deal.AdvertiserID,
		deal.DealValue,
		deal.Priority,
		incentivesJSON,
		deal.Notes,
	).Scan(&deal.ID, &deal.RevisionCount, &deal.LastStatusChange, &deal.CreatedAt, &deal.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to create deal")
	}
	return nil
}

// GetByID retrieves a deal by id.
func (r *DealRepository) GetByID(ctx context.Context, id string) (*Deal, error) {
	query := `SELECT ` + dealColumns + ` FROM deals WHERE id = $1`

	deal, err := scanDeal(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("deal", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to get deal")
	}
	return deal, nil
}

// List returns deals matching the filter, newest first, plus the total count.
func (r *DealRepository) List(ctx context.Context, filter DealFilter) ([]*Deal, int64, error) {
	query := `SELECT ` + dealColumns + ` FROM deals WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM deals WHERE 1=1`
	args := []any{}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		cond := fmt.Sprintf(" AND status = $%d::deal_status", len(args))
		query += cond
		countQuery += cond
	}
	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		cond := fmt.Sprintf(" AND created_by = $%d", len(args))
		query += cond
		countQuery += cond
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		cond := fmt.Sprintf(" AND assigned_to = $%d", len(args))
		query += cond
		countQuery += cond
	}

	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to count deals")
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list deals")
	}
	defer rows.Close()

	var deals []*Deal
	for rows.Next() {
		deal, err := scanDeal(rows)
		if err != nil {
			return nil, 0, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan deal")
		}
		deals = append(deals, deal)
	}
	return deals, total, nil
}

// CountByStatus returns the number of deals in each status. Statuses
// with no deals are absent from the result.
func (r *DealRepository) CountByStatus(ctx context.Context) (map[workflow.Status]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM deals GROUP BY status`)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to count deals by status")
	}
	defer rows.Close()

	counts := make(map[workflow.Status]int64)
	for rows.Next() {
		var status workflow.Status
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan status count")
		}
		counts[status] = n
	}
	return counts, nil
}

// UpdateDraft edits an editable deal's mutable fields. Returns false when
// the deal is no longer in an editable status.
func (r *DealRepository) UpdateDraft(ctx context.Context, deal *Deal) (bool, error) {
	incentivesJSON, err := json.Marshal(deal.Incentives)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to marshal incentives")
	}

	query := `
		UPDATE deals
		SET name       = $2,
		    draft_type = $3,
		    deal_value = $4,
		    priority   = $5::deal_priority,
		    incentives = $6,
		    notes      = $7,
		    updated_at = NOW()
		WHERE id = $1
		  AND status IN ('draft', 'scoping', 'revision_requested')
		RETURNING updated_at
	`

	err = r.db.QueryRow(ctx, query,
		deal.ID, deal.Name, deal.DraftType, deal.DealValue,
		deal.Priority, incentivesJSON, deal.Notes,
	).Scan(&deal.UpdatedAt)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to update deal")
	}
	return true, nil
}

// UpdateStatus moves a deal from one status to another with an optimistic
// check on the current value. Returns false when the deal was not in the
// expected status anymore, leaving the row untouched.
func (r *DealRepository) UpdateStatus(ctx context.Context, id string, from, to workflow.Status, assignedTo *string) (*Deal, bool, error) {
	query := `
		UPDATE deals
		SET status             = $3::deal_status,
		    assigned_to        = COALESCE($4, assigned_to),
		    last_status_change = NOW(),
		    updated_at         = NOW()
		WHERE id = $1 AND status = $2::deal_status
		RETURNING ` + dealColumns

	deal, err := scanDeal(r.db.QueryRow(ctx, query, id, from, to, assignedTo))
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to update deal status")
	}
	return deal, true, nil
}

// UpdateStatusWithApproval performs the conditional status write and creates
// the round's stage-2 business approval in the same transaction, so the deal
// never lands in the new status without its approval record. The insert is
// skipped when the round already has a stage-2 record.
func (r *DealRepository) UpdateStatusWithApproval(ctx context.Context, id string, from, to workflow.Status, assignedTo *string, approval *Approval) (*Deal, bool, error) {
	var deal *Deal
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE deals
			SET status             = $3::deal_status,
			    assigned_to        = COALESCE($4, assigned_to),
			    last_status_change = NOW(),
			    updated_at         = NOW()
			WHERE id = $1 AND status = $2::deal_status
			RETURNING ` + dealColumns

		var scanErr error
		deal, scanErr = scanDeal(tx.QueryRow(ctx, query, id, from, to, assignedTo))
		if scanErr == pgx.ErrNoRows {
			deal = nil
			return nil
		}
		if scanErr != nil {
			return apperrors.Wrap(scanErr, apperrors.ErrCodeInternal, "failed to update deal status")
		}

		var exists bool
		check := `
			SELECT EXISTS (
				SELECT 1 FROM deal_approvals
				WHERE deal_id = $1 AND round = $2 AND stage = $3 AND department IS NULL
			)`
		if err := tx.QueryRow(ctx, check, deal.ID, deal.RevisionCount, approval.Stage).Scan(&exists); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to check business approval")
		}
		if exists {
			return nil
		}

		approval.DealID = deal.ID
		approval.Round = deal.RevisionCount
		insert := `
			INSERT INTO deal_approvals
			    (deal_id, department, stage, round, required_role,
			     status, priority, due_date, reviewed_by, reviewer_notes, completed_at)
			VALUES ($1, NULL, $2, $3, $4, $5::approval_status, $6::deal_priority, $7, $8, $9, $10)
			RETURNING id, created_at, updated_at
		`
		err := tx.QueryRow(ctx, insert,
			approval.DealID, approval.Stage, approval.Round, approval.RequiredRole,
			approval.Status, approval.Priority, approval.DueDate,
			approval.ReviewedBy, approval.ReviewerNotes, approval.CompletedAt,
		).Scan(&approval.ID, &approval.CreatedAt, &approval.UpdatedAt)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to create business approval")
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if deal == nil {
		return nil, false, nil
	}
	return deal, true, nil
}

// StartReview atomically moves a deal into under_review and creates its
// stage-1 approval round: status CAS, revision bump on resubmission, the
// required/completed review bookkeeping and the pending approval inserts all
// commit or roll back together. The passed approvals carry department,
// stage, role, priority and due date; the round number is stamped from the
// deal's post-update revision count.
func (r *DealRepository) StartReview(
	ctx context.Context,
	id string,
	from workflow.Status,
	required map[string][]string,
	bumpRevision bool,
	approvals []*Approval,
) (*Deal, bool, error) {
	requiredJSON, err := json.Marshal(required)
	if err != nil {
		return nil, false, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to marshal required reviews")
	}

	bump := 0
	if bumpRevision {
		bump = 1
	}

	var deal *Deal
	err = r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE deals
			SET status                       = 'under_review',
			    revision_count               = revision_count + $3,
			    required_department_reviews  = $4,
			    completed_department_reviews = '{}',
			    last_status_change           = NOW(),
			    updated_at                   = NOW()
			WHERE id = $1 AND status = $2::deal_status
			RETURNING ` + dealColumns

		var scanErr error
		deal, scanErr = scanDeal(tx.QueryRow(ctx, query, id, from, bump, requiredJSON))
		if scanErr == pgx.ErrNoRows {
			deal = nil
			return nil
		}
		if scanErr != nil {
			return apperrors.Wrap(scanErr, apperrors.ErrCodeInternal, "failed to start review")
		}

		insert := `
			INSERT INTO deal_approvals
			    (deal_id, department, stage, round, required_role,
			     status, priority, due_date)
			VALUES ($1, $2, $3, $4, $5, 'pending'::approval_status, $6::deal_priority, $7)
			RETURNING id, status, created_at, updated_at
		`
		for _, a := range approvals {
			a.DealID = deal.ID
			a.Round = deal.RevisionCount
			err := tx.QueryRow(ctx, insert,
				a.DealID, a.Department, a.Stage, a.Round,
				a.RequiredRole, a.Priority, a.DueDate,
			).Scan(&a.ID, &a.Status, &a.CreatedAt, &a.UpdatedAt)
			if err != nil {
				return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to create approval")
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if deal == nil {
		return nil, false, nil
	}
	return deal, true, nil
}

// MarkDepartmentCompleted records a department's stage-1 approval on the
// deal's completed set. Idempotent.
func (r *DealRepository) MarkDepartmentCompleted(ctx context.Context, id, department string) error {
	query := `
		UPDATE deals
		SET completed_department_reviews =
		        CASE WHEN $2 = ANY(completed_department_reviews)
		             THEN completed_department_reviews
		             ELSE array_append(completed_department_reviews, $2)
		        END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, department).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperrors.NotFound("deal", id)
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to mark department completed")
	}
	return nil
}

// scan helpers

type dealScanner interface {
	Scan(dest ...any) error
}

func scanDeal(sc dealScanner) (*Deal, error) {
	deal := &Deal{}
	var incentivesJSON, requiredJSON []byte

	err := sc.Scan(
		&deal.ID,
		&deal.Name,
		&deal.Status,
		&deal.DraftType,
		&deal.CreatedBy,
		&deal.AssignedTo,
		&deal.AdvertiserID,
		&deal.DealValue,
		&deal.Priority,
		&deal.RevisionCount,
		&deal.LastStatusChange,
		&incentivesJSON,
		&requiredJSON,
		&deal.CompletedDepartmentReviews,
		&deal.Notes,
		&deal.CreatedAt,
		&deal.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if incentivesJSON != nil {
		if err := json.Unmarshal(incentivesJSON, &deal.Incentives); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to unmarshal incentives")
		}
	}
	if requiredJSON != nil {
		if err := json.Unmarshal(requiredJSON, &deal.RequiredDepartmentReviews); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to unmarshal required reviews")
		}
	}
	return deal, nil
}
