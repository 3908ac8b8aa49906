package service

import (
	"context"

	"github.com/dealdesk/be-deal-approvals/internal/apperrors"
	"github.com/dealdesk/be-deal-approvals/internal/logger"
	"github.com/dealdesk/be-deal-approvals/internal/repository"
	"github.com/dealdesk/be-deal-approvals/internal/workflow"
)

// ApprovalService records reviewer decisions and computes aggregate
// approval state. Recording a decision never transitions the deal itself;
// advancing the deal is a separate call with its own authorization.
type ApprovalService struct {
	deals     DealStore
	approvals ApprovalStore
	audit     AuditStore
	publisher EventPublisher
	log       *logger.Logger
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(
	deals DealStore,
	approvals ApprovalStore,
	audit AuditStore,
	publisher EventPublisher,
	log *logger.Logger,
) *ApprovalService {
	return &ApprovalService{
		deals:     deals,
		approvals: approvals,
		audit:     audit,
		publisher: publisher,
		log:       log,
	}
}

// RecordDecision applies an approve / reject / revision-request decision to
// a pending approval. Concurrent decisions on the same approval serialize
// on the pending status: exactly one wins, the loser sees AlreadyDecided.
func (s *ApprovalService) RecordDecision(
	ctx context.Context,
	approvalID string,
	actor workflow.Actor,
	actorID string,
	decision workflow.DecisionStatus,
	notes *string,
) (*repository.Approval, error) {
	if !workflow.ValidDecision(decision) {
		return nil, apperrors.InvalidInput("decision", "must be approved, rejected or revision_requested")
	}

	approval, err := s.approvals.GetByID(ctx, approvalID)
	if err != nil {
		return nil, err
	}

	if err := s.authorizeReviewer(actor, approval); err != nil {
		return nil, err
	}

	deal, err := s.deals.GetByID(ctx, approval.DealID)
	if err != nil {
		return nil, err
	}
	// A new review round supersedes the old one's records; they stay
	// readable for audit but no longer accept decisions.
	if approval.Round != deal.RevisionCount {
		return nil, apperrors.New(apperrors.ErrCodeConflict,
			"approval belongs to a superseded review round")
	}

	if approval.Status != workflow.DecisionPending {
		return nil, apperrors.AlreadyDecided(approvalID)
	}

	updated, won, err := s.approvals.Decide(ctx, approvalID, decision, actorID, notes)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, apperrors.AlreadyDecided(approvalID)
	}

	if decision == workflow.DecisionApproved &&
		updated.Stage == workflow.StageDepartmentReview && updated.Department != nil {
		if err := s.deals.MarkDepartmentCompleted(ctx, updated.DealID, *updated.Department); err != nil {
			s.log.Warn().Err(err).
				Str("deal_id", updated.DealID).
				Str("department", *updated.Department).
				Msg("Failed to mark department review completed")
		}
	}

	s.appendAudit(ctx, updated, actor, actorID, decision, notes)

	s.publisher.PublishDealEvent(ctx, "approval_decided", updated.DealID, actorID, string(actor.Role),
		map[string]interface{}{
			"approval_id": updated.ID,
			"decision":    string(decision),
			"stage":       updated.Stage,
			"round":       updated.Round,
		})

	s.log.Info().
		Str("approval_id", updated.ID).
		Str("deal_id", updated.DealID).
		Str("decision", string(decision)).
		Int("stage", updated.Stage).
		Msg("Approval decision recorded")

	return updated, nil
}

// authorizeReviewer checks that the actor may decide this approval: admin,
// a reviewer in the approval's department, or the approval's required role
// for role-addressed (stage-2) records. A department mismatch is Forbidden
// even when the actor could otherwise approve.
func (s *ApprovalService) authorizeReviewer(actor workflow.Actor, approval *repository.Approval) error {
	caps, err := workflow.CapabilitiesFor(actor)
	if err != nil {
		return err
	}
	if actor.Role == workflow.RoleAdmin {
		return nil
	}
	if !caps.CanApproveDeals {
		return apperrors.Forbidden("role may not decide approvals")
	}

	if approval.Department != nil {
		if actor.Department != *approval.Department {
			return apperrors.Newf(apperrors.ErrCodeForbidden,
				"approval belongs to department %q", *approval.Department)
		}
		return nil
	}
	if actor.Role != approval.RequiredRole {
		return apperrors.Newf(apperrors.ErrCodeForbidden,
			"approval requires role %q", approval.RequiredRole)
	}
	return nil
}

// Aggregate state

// StageState is one stage's aggregate status plus its current-round records.
type StageState struct {
	Stage     int                    `json:"stage"`
	Status    workflow.StageStatus   `json:"status"`
	Approvals []*repository.Approval `json:"approvals"`
}

// ApprovalState is the deal-level view returned to callers.
type ApprovalState struct {
	Stages     []StageState          `json:"stages"`
	Overall    workflow.OverallState `json:"overall"`
	CanAdvance bool                  `json:"can_advance"`
}

// GetApprovalState computes the per-stage and overall approval state of the
// deal's current round, and whether the deal may advance past its gate.
// Visibility follows the deal itself: sellers only see their own.
func (s *ApprovalService) GetApprovalState(ctx context.Context, dealID string, actor workflow.Actor, actorID string) (*ApprovalState, error) {
	deal, err := s.visibleDeal(ctx, dealID, actor, actorID)
	if err != nil {
		return nil, err
	}

	approvals, err := s.approvals.GetByDealRound(ctx, dealID, deal.RevisionCount)
	if err != nil {
		return nil, err
	}

	byStage := map[int][]*repository.Approval{}
	for _, a := range approvals {
		byStage[a.Stage] = append(byStage[a.Stage], a)
	}

	stage1, stage2 := stageStatuses(approvals)
	return &ApprovalState{
		Stages: []StageState{
			{Stage: workflow.StageDepartmentReview, Status: stage1, Approvals: byStage[workflow.StageDepartmentReview]},
			{Stage: workflow.StageBusinessApproval, Status: stage2, Approvals: byStage[workflow.StageBusinessApproval]},
		},
		Overall:    workflow.ComputeOverallState(stage1, stage2),
		CanAdvance: workflow.CanAdvance(deal.Status, stage1, stage2),
	}, nil
}

// GetDealApprovals returns every approval record for a deal across all
// rounds, for the audit view. Visibility follows the deal itself.
func (s *ApprovalService) GetDealApprovals(ctx context.Context, dealID string, actor workflow.Actor, actorID string) ([]*repository.Approval, error) {
	if _, err := s.visibleDeal(ctx, dealID, actor, actorID); err != nil {
		return nil, err
	}
	return s.approvals.GetByDeal(ctx, dealID)
}

// visibleDeal loads a deal and enforces the same visibility rule as
// DealService.GetDeal.
func (s *ApprovalService) visibleDeal(ctx context.Context, dealID string, actor workflow.Actor, actorID string) (*repository.Deal, error) {
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

func (s *ApprovalService) appendAudit(ctx context.Context, approval *repository.Approval, actor workflow.Actor, actorID string, decision workflow.DecisionStatus, notes *string) {
	md := map[string]interface{}{
		"decision": string(decision),
		"stage":    approval.Stage,
		"round":    approval.Round,
	}
	if approval.Department != nil {
		md["department"] = *approval.Department
	}
	if notes != nil {
		md["notes"] = *notes
	}

	var dept *string
	if actor.Department != "" {
		d := actor.Department
		dept = &d
	}

	entry := &repository.DealAuditEntry{
		DealID:          approval.DealID,
		ApprovalID:      &approval.ID,
		Action:          "decision_recorded",
		PerformedBy:     actorID,
		ActorRole:       actor.Role,
		ActorDepartment: dept,
		Metadata:        md,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("deal_id", approval.DealID).
			Str("approval_id", approval.ID).
			Msg("Failed to write audit log entry")
	}
}
