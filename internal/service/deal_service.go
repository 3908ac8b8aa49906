package service

import (
	"context"
	"time"

	"github.com/dealdesk/be-deal-approvals/internal/apperrors"
	"github.com/dealdesk/be-deal-approvals/internal/config"
	"github.com/dealdesk/be-deal-approvals/internal/logger"
	"github.com/dealdesk/be-deal-approvals/internal/repository"
	"github.com/dealdesk/be-deal-approvals/internal/workflow"
)

// DealService orchestrates deal lifecycle operations: creation, draft
// edits, and status transitions with their triggered side effects.
type DealService struct {
	deals     DealStore
	approvals ApprovalStore
	audit     AuditStore
	publisher EventPublisher
	cfg       config.WorkflowConfig
	log       *logger.Logger
	now       func() time.Time
}

// NewDealService creates a new DealService.
func NewDealService(
	deals DealStore,
	approvals ApprovalStore,
	audit AuditStore,
	publisher EventPublisher,
	cfg config.WorkflowConfig,
	log *logger.Logger,
) *DealService {
	return &DealService{
		deals:     deals,
		approvals: approvals,
		audit:     audit,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// CreateDealRequest carries the fields of a new draft deal.
type CreateDealRequest struct {
	Name         string
	DraftType    *workflow.DraftType
	AdvertiserID *string
	DealValue    int64
	Priority     workflow.Priority
	Incentives   []repository.Incentive
	Notes        *string
}

// CreateDeal creates a new deal in draft, owned by the acting user.
func (s *DealService) CreateDeal(ctx context.Context, actor workflow.Actor, actorID string, req *CreateDealRequest) (*repository.Deal, error) {
	caps, err := workflow.CapabilitiesFor(actor)
	if err != nil {
		return nil, err
	}
	if !caps.CanCreateDeals {
		return nil, apperrors.Forbidden("role may not create deals")
	}

	if req.Name == "" {
		return nil, apperrors.InvalidInput("name", "deal name is required")
	}
	if req.DealValue < 0 {
		return nil, apperrors.InvalidInput("deal_value", "deal value cannot be negative")
	}
	priority := req.Priority
	if priority == "" {
		priority = workflow.PriorityNormal
	}
	if !workflow.ValidPriority(priority) {
		return nil, apperrors.InvalidInput("priority", "unknown priority")
	}
	if req.DraftType != nil &&
		*req.DraftType != workflow.DraftTypeScoping && *req.DraftType != workflow.DraftTypeSubmission {
		return nil, apperrors.InvalidInput("draft_type", "unknown draft type")
	}
	for _, inc := range req.Incentives {
		if inc.Category == "" {
			return nil, apperrors.InvalidInput("incentives", "incentive category is required")
		}
	}

	deal := &repository.Deal{
		Name:         req.Name,
		Status:       workflow.StatusDraft,
		DraftType:    req.DraftType,
		CreatedBy:    actorID,
		AdvertiserID: req.AdvertiserID,
		DealValue:    req.DealValue,
		Priority:     priority,
		Incentives:   req.Incentives,
		Notes:        req.Notes,
	}
	if err := s.deals.Create(ctx, deal); err != nil {
		return nil, err
	}

	statusAfter := string(deal.Status)
	s.appendAudit(ctx, &repository.DealAuditEntry{
		DealID:      deal.ID,
		Action:      "created",
		PerformedBy: actorID,
		ActorRole:   actor.Role,
		StatusAfter: &statusAfter,
	})

	s.log.Info().
		Str("deal_id", deal.ID).
		Str("created_by", actorID).
		Int64("deal_value", deal.DealValue).
		Msg("Deal created")

	return deal, nil
}

// UpdateDraftRequest carries the editable fields of a deal.
type UpdateDraftRequest struct {
	Name       *string
	DraftType  *workflow.DraftType
	DealValue  *int64
	Priority   *workflow.Priority
	Incentives []repository.Incentive
	Notes      *string
}

// UpdateDraft edits a deal while it is still editable. Ownership is
// exclusive: only the creator or an admin may edit.
func (s *DealService) UpdateDraft(ctx context.Context, dealID string, actor workflow.Actor, actorID string, req *UpdateDraftRequest) (*repository.Deal, error) {
	deal, err := s.deals.GetByID(ctx, dealID)
	if err != nil {
		return nil, err
	}

	if actor.Role != workflow.RoleAdmin && deal.CreatedBy != actorID {
		return nil, apperrors.Forbidden("only the deal creator or an admin may edit a deal")
	}

	if req.Name != nil {
		if *req.Name == "" {
			return nil, apperrors.InvalidInput("name", "deal name is required")
		}
		deal.Name = *req.Name
	}
	if req.DraftType != nil {
		deal.DraftType = req.DraftType
	}
	if req.DealValue != nil {
		if *req.DealValue < 0 {
			return nil, apperrors.InvalidInput("deal_value", "deal value cannot be negative")
		}
		deal.DealValue = *req.DealValue
	}
	if req.Priority != nil {
		if !workflow.ValidPriority(*req.Priority) {
			return nil, apperrors.InvalidInput("priority", "unknown priority")
		}
		deal.Priority = *req.Priority
	}
	if req.Incentives != nil {
		for _, inc := range req.Incentives {
			if inc.Category == "" {
				return nil, apperrors.InvalidInput("incentives", "incentive category is required")
			}
		}
		deal.Incentives = req.Incentives
	}
	if req.Notes != nil {
		deal.Notes = req.Notes
	}

	ok, err := s.deals.UpdateDraft(ctx, deal)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrCodeConflict, "deal in status %q is not editable", deal.Status)
	}
	return deal, nil
}

// GetDeal returns a deal. Sellers only see their own deals.
func (s *DealService) GetDeal(ctx context.Context, dealID string, actor workflow.Actor, actorID string) (*repository.Deal, error) {
	deal, err := s.deals.GetByID(ctx, dealID)
	if err != nil {
		return nil, err
	}

	caps, err := workflow.CapabilitiesFor(actor)
	if err != nil {
		return nil, err
	}
	if !caps.CanViewAllDeals && deal.CreatedBy != actorID {
		return nil, apperrors.Forbidden("deal belongs to another seller")
	}
	return deal, nil
}

// ListDeals returns deals visible to the actor.
func (s *DealService) ListDeals(ctx context.Context, actor workflow.Actor, actorID string, filter repository.DealFilter) ([]*repository.Deal, int64, error) {
	caps, err := workflow.CapabilitiesFor(actor)
	if err != nil {
		return nil, 0, err
	}
	if !caps.CanViewAllDeals {
		filter.CreatedBy = &actorID
	}
	return s.deals.List(ctx, filter)
}

// GetStatusCounts returns the number of deals in each status. Only roles
// with pipeline-wide visibility may see it.
func (s *DealService) GetStatusCounts(ctx context.Context, actor workflow.Actor) (map[workflow.Status]int64, error) {
	caps, err := workflow.CapabilitiesFor(actor)
	if err != nil {
		return nil, err
	}
	if !caps.CanViewAllDeals {
		return nil, apperrors.Forbidden("role cannot view pipeline statistics")
	}
	return s.deals.CountByStatus(ctx)
}

// GetHistory returns the audit trail of a deal. Visibility follows the
// deal itself: sellers only see the history of their own deals.
func (s *DealService) GetHistory(ctx context.Context, dealID string, actor workflow.Actor, actorID string) ([]*repository.DealAuditEntry, error) {
	if _, err := s.GetDeal(ctx, dealID, actor, actorID); err != nil {
		return nil, err
	}
	return s.audit.GetByDeal(ctx, dealID)
}

// Transitions

// AttemptTransition moves a deal into the target status. The edge must be
// legal in the status graph AND the actor must be authorized for the target;
// the checks are independent and both necessary. Entry to under_review
// atomically creates the stage-1 approval round; a rejected attempt leaves
// all stored state untouched.
func (s *DealService) AttemptTransition(
	ctx context.Context,
	dealID string,
	actor workflow.Actor,
	actorID string,
	target workflow.Status,
	notes *string,
) (*repository.Deal, error) {
	if !workflow.ValidStatus(target) {
		return nil, apperrors.InvalidInput("target_status", "unknown status")
	}

	deal, err := s.deals.GetByID(ctx, dealID)
	if err != nil {
		return nil, err
	}

	if !workflow.IsLegalTransition(deal.Status, target) {
		return nil, apperrors.InvalidTransition(string(deal.Status), string(target))
	}
	if !actor.CanTransitionTo(target) {
		return nil, apperrors.Newf(apperrors.ErrCodeForbidden,
			"role %q may not move a deal to %q", actor.Role, target)
	}
	if actor.Role == workflow.RoleSeller && deal.CreatedBy != actorID {
		return nil, apperrors.Forbidden("sellers may only move their own deals")
	}

	if err := s.checkApprovalGate(ctx, deal, actor, target); err != nil {
		return nil, err
	}

	from := deal.Status
	var updated *repository.Deal

	if target == workflow.StatusUnderReview {
		updated, err = s.startReviewRound(ctx, deal, from)
	} else {
		var ok bool
		if approval := s.businessApprovalFor(deal, from, target, actorID); approval != nil {
			updated, ok, err = s.deals.UpdateStatusWithApproval(ctx, dealID, from, target, nil, approval)
		} else {
			updated, ok, err = s.deals.UpdateStatus(ctx, dealID, from, target, nil)
		}
		if err == nil && !ok {
			err = apperrors.New(apperrors.ErrCodeConflict,
				"deal status changed concurrently, refetch and retry")
		}
	}
	if err != nil {
		return nil, err
	}

	action := "status_changed"
	if updated.Status == workflow.StatusUnderReview {
		action = "review_round_started"
	}
	statusBefore, statusAfter := string(from), string(updated.Status)
	s.appendAudit(ctx, &repository.DealAuditEntry{
		DealID:       updated.ID,
		Action:       action,
		PerformedBy:  actorID,
		ActorRole:    actor.Role,
		StatusBefore: &statusBefore,
		StatusAfter:  &statusAfter,
		Metadata:     transitionMetadata(updated, notes),
	})

	s.publisher.PublishDealEvent(ctx, eventTypeFor(updated.Status), updated.ID, actorID, string(actor.Role),
		map[string]interface{}{
			"status_before": statusBefore,
			"status_after":  statusAfter,
			"deal_name":     updated.Name,
		})

	s.log.Info().
		Str("deal_id", updated.ID).
		Str("from", statusBefore).
		Str("to", statusAfter).
		Str("actor_role", string(actor.Role)).
		Msg("Deal status changed")

	return updated, nil
}

// checkApprovalGate enforces the aggregation gates on approval-gated edges.
// Admin bypasses gates the same way it bypasses role authorization.
func (s *DealService) checkApprovalGate(ctx context.Context, deal *repository.Deal, actor workflow.Actor, target workflow.Status) error {
	if actor.Role == workflow.RoleAdmin {
		return nil
	}

	gated := (deal.Status == workflow.StatusUnderReview &&
		(target == workflow.StatusNegotiating || target == workflow.StatusApproved)) ||
		(deal.Status == workflow.StatusNegotiating && target == workflow.StatusApproved)
	if !gated {
		return nil
	}

	approvals, err := s.approvals.GetByDealRound(ctx, deal.ID, deal.RevisionCount)
	if err != nil {
		return err
	}
	stage1, stage2 := stageStatuses(approvals)
	if !workflow.CanAdvance(deal.Status, stage1, stage2) {
		return apperrors.Newf(apperrors.ErrCodeConflict,
			"deal cannot advance: department review is %s, business approval is %s", stage1, stage2)
	}
	return nil
}

// startReviewRound enters under_review, creating the stage-1 approval set
// from the deal's incentive structure. Re-entry from revision_requested
// starts a new round: revision_count increments by exactly 1 and a fresh
// pending set is created while prior rounds remain queryable.
func (s *DealService) startReviewRound(ctx context.Context, deal *repository.Deal, from workflow.Status) (*repository.Deal, error) {
	categories := make([]string, 0, len(deal.Incentives))
	for _, inc := range deal.Incentives {
		categories = append(categories, inc.Category)
	}
	required := workflow.RequiredDepartments(categories, s.cfg.CategoryDepartments)

	now := s.now()
	approvals := make([]*repository.Approval, 0, len(required))
	for _, dept := range workflow.SortedDepartments(required) {
		d := dept
		approvals = append(approvals, &repository.Approval{
			Department:   &d,
			Stage:        workflow.StageDepartmentReview,
			RequiredRole: workflow.RoleDepartmentReviewer,
			Priority:     deal.Priority,
			DueDate:      now.Add(s.cfg.SLAFor(dept)),
		})
	}

	bump := from == workflow.StatusRevisionRequested
	updated, ok, err := s.deals.StartReview(ctx, deal.ID, from, required, bump, approvals)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeConflict,
			"deal status changed concurrently, refetch and retry")
	}

	s.log.Info().
		Str("deal_id", updated.ID).
		Int("round", updated.RevisionCount).
		Int("departments", len(approvals)).
		Msg("Department review round started")

	return updated, nil
}

// businessApprovalFor returns the stage-2 record a transition must open, or
// nil when the edge carries none. Leaving under_review for negotiating opens
// a pending business approval; a direct approval embodies the business
// decision, so the record is written already decided for the audit trail.
// The record is persisted in the same transaction as the status write.
func (s *DealService) businessApprovalFor(deal *repository.Deal, from, target workflow.Status, actorID string) *repository.Approval {
	if from != workflow.StatusUnderReview {
		return nil
	}
	now := s.now()

	switch target {
	case workflow.StatusNegotiating:
		return &repository.Approval{
			DealID:       deal.ID,
			Stage:        workflow.StageBusinessApproval,
			Round:        deal.RevisionCount,
			RequiredRole: workflow.RoleApprover,
			Status:       workflow.DecisionPending,
			Priority:     deal.Priority,
			DueDate:      now.Add(time.Duration(s.cfg.DefaultSLAHours) * time.Hour),
		}
	case workflow.StatusApproved:
		completedAt := now
		reviewedBy := actorID
		return &repository.Approval{
			DealID:       deal.ID,
			Stage:        workflow.StageBusinessApproval,
			Round:        deal.RevisionCount,
			RequiredRole: workflow.RoleApprover,
			Status:       workflow.DecisionApproved,
			Priority:     deal.Priority,
			DueDate:      now,
			ReviewedBy:   &reviewedBy,
			CompletedAt:  &completedAt,
		}
	}
	return nil
}

// helpers

func eventTypeFor(status workflow.Status) string {
	switch status {
	case workflow.StatusSubmitted:
		return "deal_submitted"
	case workflow.StatusUnderReview:
		return "approval_required"
	case workflow.StatusRevisionRequested:
		return "deal_revision_requested"
	case workflow.StatusSigned:
		return "deal_signed"
	case workflow.StatusLost:
		return "deal_lost"
	default:
		return "deal_status_changed"
	}
}

func transitionMetadata(deal *repository.Deal, notes *string) map[string]interface{} {
	md := map[string]interface{}{
		"revision_count": deal.RevisionCount,
	}
	if notes != nil {
		md["notes"] = *notes
	}
	return md
}

// appendAudit writes an audit entry and logs a warning on failure; audit
// problems never fail the triggering operation.
func (s *DealService) appendAudit(ctx context.Context, entry *repository.DealAuditEntry) {
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("deal_id", entry.DealID).
			Str("action", entry.Action).
			Msg("Failed to write audit log entry")
	}
}

// stageStatuses aggregates one round's approvals into its two stage
// statuses.
func stageStatuses(approvals []*repository.Approval) (stage1, stage2 workflow.StageStatus) {
	var s1, s2 []workflow.DecisionStatus
	for _, a := range approvals {
		switch a.Stage {
		case workflow.StageDepartmentReview:
			s1 = append(s1, a.Status)
		case workflow.StageBusinessApproval:
			s2 = append(s2, a.Status)
		}
	}
	return workflow.ComputeStageStatus(s1), workflow.ComputeStageStatus(s2)
}
