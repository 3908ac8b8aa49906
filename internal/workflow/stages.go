package workflow

// DecisionStatus is the state of an individual approval record.
type DecisionStatus string

const (
	DecisionPending           DecisionStatus = "pending"
	DecisionApproved          DecisionStatus = "approved"
	DecisionRejected          DecisionStatus = "rejected"
	DecisionRevisionRequested DecisionStatus = "revision_requested"
)

// ValidDecision reports whether d is a recordable reviewer decision.
// "pending" is the initial state, not a decision.
func ValidDecision(d DecisionStatus) bool {
	return d == DecisionApproved || d == DecisionRejected || d == DecisionRevisionRequested
}

// StageStatus is the aggregate state of one approval stage.
type StageStatus string

const (
	StageNotStarted        StageStatus = "not_started"
	StageInProgress        StageStatus = "in_progress"
	StageCompleted         StageStatus = "completed"
	StageBlocked           StageStatus = "blocked"
	StageRevisionRequested StageStatus = "revision_requested"
)

// Approval stages. Stage 1 is the parallel department review, stage 2 the
// business approval; later gates would take higher numbers.
const (
	StageDepartmentReview = 1
	StageBusinessApproval = 2
)

// OverallState is the deal-level approval state derived from its stages.
type OverallState string

const (
	OverallPendingDepartmentReview OverallState = "pending_department_review"
	OverallPendingBusinessApproval OverallState = "pending_business_approval"
	OverallFullyApproved           OverallState = "fully_approved"
	OverallRevisionRequested       OverallState = "revision_requested"
)

// ComputeStageStatus aggregates the decisions of one stage. Tie-break when
// several conditions hold: rejected > revision_requested > completed >
// in_progress.
func ComputeStageStatus(decisions []DecisionStatus) StageStatus {
	if len(decisions) == 0 {
		return StageNotStarted
	}

	approved := 0
	for _, d := range decisions {
		switch d {
		case DecisionRejected:
			return StageBlocked
		case DecisionApproved:
			approved++
		}
	}
	for _, d := range decisions {
		if d == DecisionRevisionRequested {
			return StageRevisionRequested
		}
	}
	if approved == len(decisions) {
		return StageCompleted
	}
	return StageInProgress
}

// ComputeOverallState derives the deal-level approval state. The ladder
// mirrors the lowest incomplete stage; a revision request on any stage
// overrides everything.
func ComputeOverallState(stage1, stage2 StageStatus) OverallState {
	if stage1 == StageRevisionRequested || stage2 == StageRevisionRequested {
		return OverallRevisionRequested
	}
	if stage1 != StageCompleted {
		return OverallPendingDepartmentReview
	}
	if stage2 != StageCompleted {
		return OverallPendingBusinessApproval
	}
	return OverallFullyApproved
}

// CanAdvance reports whether a deal in the given status may advance past
// its approval gate. under_review is gated by stage 1, negotiating by
// stage 2 (with stage 1 already complete); other statuses carry no approval
// gate. Any rejection or revision request pins the result false.
func CanAdvance(status Status, stage1, stage2 StageStatus) bool {
	if stage1 == StageBlocked || stage2 == StageBlocked ||
		stage1 == StageRevisionRequested || stage2 == StageRevisionRequested {
		return false
	}

	switch status {
	case StatusUnderReview:
		return stage1 == StageCompleted
	case StatusNegotiating:
		return stage1 == StageCompleted && stage2 == StageCompleted
	default:
		return true
	}
}
