package repository

import (
	"time"

	"github.com/dealdesk/be-deal-approvals/internal/workflow"
)

// Domain types for the deal approval workflow

// Incentive is one component of a deal's benefit structure. Its category
// drives the stage-1 department assignment.
type Incentive struct {
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	Value       int64  `json:"value,omitempty"` // cents
}

// Deal is the central entity. It becomes immutable at signed or lost.
type Deal struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Status       workflow.Status     `json:"status"`
	DraftType    *workflow.DraftType `json:"draft_type,omitempty"` // meaningful only while status == draft
	CreatedBy    string              `json:"created_by"`
	AssignedTo   *string             `json:"assigned_to,omitempty"`
	AdvertiserID *string             `json:"advertiser_id,omitempty"`
	DealValue    int64               `json:"deal_value"` // cents
	Priority     workflow.Priority   `json:"priority"`
	// RevisionCount increments by exactly 1 per revision cycle and doubles
	// as the approval round number.
	RevisionCount              int                 `json:"revision_count"`
	LastStatusChange           time.Time           `json:"last_status_change"`
	Incentives                 []Incentive         `json:"incentives,omitempty"`
	RequiredDepartmentReviews  map[string][]string `json:"required_department_reviews,omitempty"` // department -> reason tags
	CompletedDepartmentReviews []string            `json:"completed_department_reviews,omitempty"`
	Notes                      *string             `json:"notes,omitempty"`
	CreatedAt                  time.Time           `json:"created_at"`
	UpdatedAt                  time.Time           `json:"updated_at"`
}

// Approval is one department's (or the business approver's) review record
// against a deal. Records are append-only across rounds: a revision cycle
// creates a fresh pending set and never mutates prior rounds.
type Approval struct {
	ID     string `json:"id"`
	DealID string `json:"deal_id"`
	// Department is nil for the stage-2 business approval.
	Department    *string                 `json:"department,omitempty"`
	Stage         int                     `json:"stage"`
	Round         int                     `json:"round"`
	RequiredRole  workflow.Role           `json:"required_role"`
	Status        workflow.DecisionStatus `json:"status"`
	Priority      workflow.Priority       `json:"priority"`
	DueDate       time.Time               `json:"due_date"`
	ReviewerNotes *string                 `json:"reviewer_notes,omitempty"`
	CompletedAt   *time.Time              `json:"completed_at,omitempty"`
	ReviewedBy    *string                 `json:"reviewed_by,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

// PendingApproval is an approval joined with the deal fields the queue
// projection sorts and classifies on.
type PendingApproval struct {
	Approval
	DealName     string            `json:"deal_name"`
	DealStatus   workflow.Status   `json:"deal_status"`
	DealValue    int64             `json:"deal_value"`
	DealPriority workflow.Priority `json:"deal_priority"`
}

// DealAuditEntry is one immutable record in the deal audit log.
type DealAuditEntry struct {
	ID              string                 `json:"id"`
	DealID          string                 `json:"deal_id"`
	ApprovalID      *string                `json:"approval_id,omitempty"`
	Action          string                 `json:"action"` // created | status_changed | decision_recorded | review_round_started
	PerformedBy     string                 `json:"performed_by"`
	ActorRole       workflow.Role          `json:"actor_role"`
	ActorDepartment *string                `json:"actor_department,omitempty"`
	StatusBefore    *string                `json:"status_before,omitempty"`
	StatusAfter     *string                `json:"status_after,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	PerformedAt     time.Time              `json:"performed_at"`
}

// DealFilter narrows List queries.
type DealFilter struct {
	Status     *workflow.Status
	CreatedBy  *string
	AssignedTo *string
	Limit      int
	Offset     int
}
