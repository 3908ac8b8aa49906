package service

import (
	"context"
	"time"

	"github.com/dealdesk/be-deal-approvals/internal/repository"
	"github.com/dealdesk/be-deal-approvals/internal/workflow"
)

// DealStore is the deal persistence surface the services depend on.
// Implemented by repository.DealRepository; tests use in-memory fakes.
type DealStore interface {
	Create(ctx context.Context, deal *repository.Deal) error
	GetByID(ctx context.Context, id string) (*repository.Deal, error)
	List(ctx context.Context, filter repository.DealFilter) ([]*repository.Deal, int64, error)
	UpdateDraft(ctx context.Context, deal *repository.Deal) (bool, error)
	// UpdateStatus performs an optimistic status write; false means the deal
	// was not in the expected status anymore and nothing was written.
	UpdateStatus(ctx context.Context, id string, from, to workflow.Status, assignedTo *string) (*repository.Deal, bool, error)
	// UpdateStatusWithApproval additionally creates the round's stage-2
	// approval record; the status write and the insert commit together.
	UpdateStatusWithApproval(ctx context.Context, id string, from, to workflow.Status, assignedTo *string, approval *repository.Approval) (*repository.Deal, bool, error)
	// StartReview atomically enters under_review and creates the stage-1
	// approval round.
	StartReview(ctx context.Context, id string, from workflow.Status, required map[string][]string, bumpRevision bool, approvals []*repository.Approval) (*repository.Deal, bool, error)
	MarkDepartmentCompleted(ctx context.Context, id, department string) error
	CountByStatus(ctx context.Context) (map[workflow.Status]int64, error)
}

// ApprovalStore is the approval persistence surface.
type ApprovalStore interface {
	GetByID(ctx context.Context, id string) (*repository.Approval, error)
	GetByDeal(ctx context.Context, dealID string) ([]*repository.Approval, error)
	GetByDealRound(ctx context.Context, dealID string, round int) ([]*repository.Approval, error)
	ListPending(ctx context.Context) ([]*repository.PendingApproval, error)
	ListCompletedSince(ctx context.Context, since time.Time) ([]*repository.Approval, error)
	// Decide performs a compare-and-set on status = pending; false means the
	// approval was already decided and nothing was written.
	Decide(ctx context.Context, id string, decision workflow.DecisionStatus, reviewedBy string, notes *string) (*repository.Approval, bool, error)
}

// AuditStore is the append-only audit trail surface.
type AuditStore interface {
	Append(ctx context.Context, entry *repository.DealAuditEntry) error
	GetByDeal(ctx context.Context, dealID string) ([]*repository.DealAuditEntry, error)
}

// EventPublisher pushes workflow events to the notification bus. Publishing
// is fire-and-forget; implementations must never fail the calling operation.
type EventPublisher interface {
	PublishDealEvent(ctx context.Context, eventType, dealID, actorID, actorRole string, payload map[string]interface{})
}
