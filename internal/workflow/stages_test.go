package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeStageStatus(t *testing.T) {
	tests := []struct {
		name      string
		decisions []DecisionStatus
		want      StageStatus
	}{
		{"no approvals yet", nil, StageNotStarted},
		{"all pending", []DecisionStatus{DecisionPending, DecisionPending}, StageInProgress},
		{"partially approved", []DecisionStatus{DecisionApproved, DecisionPending}, StageInProgress},
		{"all approved", []DecisionStatus{DecisionApproved, DecisionApproved, DecisionApproved}, StageCompleted},
		{"single approved", []DecisionStatus{DecisionApproved}, StageCompleted},
		{"rejection dominates approvals", []DecisionStatus{DecisionApproved, DecisionRejected, DecisionApproved}, StageBlocked},
		{"rejection dominates revision", []DecisionStatus{DecisionRevisionRequested, DecisionRejected}, StageBlocked},
		{"revision over in-progress", []DecisionStatus{DecisionPending, DecisionRevisionRequested}, StageRevisionRequested},
		{"revision over approvals", []DecisionStatus{DecisionApproved, DecisionRevisionRequested, DecisionApproved}, StageRevisionRequested},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeStageStatus(tt.decisions))
		})
	}
}

func TestComputeOverallState(t *testing.T) {
	tests := []struct {
		name           string
		stage1, stage2 StageStatus
		want           OverallState
	}{
		{"nothing started", StageNotStarted, StageNotStarted, OverallPendingDepartmentReview},
		{"stage1 in progress", StageInProgress, StageNotStarted, OverallPendingDepartmentReview},
		{"stage1 blocked", StageBlocked, StageNotStarted, OverallPendingDepartmentReview},
		{"stage1 done, stage2 absent", StageCompleted, StageNotStarted, OverallPendingBusinessApproval},
		{"stage1 done, stage2 pending", StageCompleted, StageInProgress, OverallPendingBusinessApproval},
		{"both done", StageCompleted, StageCompleted, OverallFullyApproved},
		{"revision on stage1 overrides", StageRevisionRequested, StageNotStarted, OverallRevisionRequested},
		{"revision on stage2 overrides", StageCompleted, StageRevisionRequested, OverallRevisionRequested},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeOverallState(tt.stage1, tt.stage2))
		})
	}
}

func TestCanAdvance(t *testing.T) {
	tests := []struct {
		name           string
		status         Status
		stage1, stage2 StageStatus
		want           bool
	}{
		{"under review waits for stage1", StatusUnderReview, StageInProgress, StageNotStarted, false},
		{"under review advances on stage1 complete", StatusUnderReview, StageCompleted, StageNotStarted, true},
		{"under review blocked by rejection", StatusUnderReview, StageBlocked, StageNotStarted, false},
		{"under review blocked by revision", StatusUnderReview, StageRevisionRequested, StageNotStarted, false},
		{"negotiating waits for stage2", StatusNegotiating, StageCompleted, StageInProgress, false},
		{"negotiating advances on both complete", StatusNegotiating, StageCompleted, StageCompleted, true},
		{"negotiating blocked by stage2 rejection", StatusNegotiating, StageCompleted, StageBlocked, false},
		{"approved carries no gate", StatusApproved, StageCompleted, StageCompleted, true},
		{"draft carries no gate", StatusDraft, StageNotStarted, StageNotStarted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanAdvance(tt.status, tt.stage1, tt.stage2))
		})
	}
}
