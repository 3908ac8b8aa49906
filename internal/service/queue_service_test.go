package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealdesk/be-deal-approvals/internal/repository"
	"github.com/dealdesk/be-deal-approvals/internal/workflow"
)

func pendingApproval(id, dealID string, dept *string, role workflow.Role, due time.Time, value int64) *repository.PendingApproval {
	stage := workflow.StageDepartmentReview
	if dept == nil {
		stage = workflow.StageBusinessApproval
	}
	return &repository.PendingApproval{
		Approval: repository.Approval{
			ID:           id,
			DealID:       dealID,
			Department:   dept,
			Stage:        stage,
			RequiredRole: role,
			Status:       workflow.DecisionPending,
			Priority:     workflow.PriorityNormal,
			DueDate:      due,
		},
		DealName:   "Deal " + dealID,
		DealValue:  value,
		DealStatus: workflow.StatusUnderReview,
	}
}

func strptr(s string) *string { return &s }

func TestBuildQueueSelection(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	due := now.Add(12 * time.Hour)
	snapshot := QueueSnapshot{
		Pending: []*repository.PendingApproval{
			pendingApproval("a-fin", "d1", strptr("finance"), workflow.RoleDepartmentReviewer, due, 100),
			pendingApproval("a-tr", "d1", strptr("trading"), workflow.RoleDepartmentReviewer, due, 100),
			pendingApproval("a-biz", "d2", nil, workflow.RoleApprover, due, 100),
		},
		Now: now,
	}
	cfg := testWorkflowConfig()

	t.Run("reviewer sees only own department", func(t *testing.T) {
		q := BuildQueue(snapshot, reviewer("finance"), cfg)
		require.Len(t, q.Items, 1)
		assert.Equal(t, "a-fin", q.Items[0].ApprovalID)
	})

	t.Run("reviewer with matching role never sees other departments", func(t *testing.T) {
		q := BuildQueue(snapshot, reviewer("creative"), cfg)
		assert.Empty(t, q.Items)
	})

	t.Run("approver sees role addressed approvals", func(t *testing.T) {
		q := BuildQueue(snapshot, approver, cfg)
		require.Len(t, q.Items, 1)
		assert.Equal(t, "a-biz", q.Items[0].ApprovalID)
	})

	t.Run("admin sees everything", func(t *testing.T) {
		q := BuildQueue(snapshot, admin, cfg)
		assert.Len(t, q.Items, 3)
	})
}

func TestBuildQueueRiskClassification(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cfg := testWorkflowConfig()
	// finance SLA is 24h: warning opens at 6h remaining, critical at 72m
	tests := []struct {
		name      string
		remaining time.Duration
		want      RiskLevel
	}{
		{"well within the window", 20 * time.Hour, RiskSafe},
		{"just above warning", 6*time.Hour + time.Minute, RiskSafe},
		{"inside warning tail", 5 * time.Hour, RiskWarning},
		{"inside critical tail", time.Hour, RiskCritical},
		{"past due", -time.Hour, RiskOverdue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshot := QueueSnapshot{
				Pending: []*repository.PendingApproval{
					pendingApproval("a-1", "d1", strptr("finance"), workflow.RoleDepartmentReviewer, now.Add(tt.remaining), 100),
				},
				Now: now,
			}
			q := BuildQueue(snapshot, reviewer("finance"), cfg)
			require.Len(t, q.Items, 1)
			assert.Equal(t, tt.want, q.Items[0].Risk)
		})
	}
}

func TestBuildQueueOrdering(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cfg := testWorkflowConfig()
	snapshot := QueueSnapshot{
		Pending: []*repository.PendingApproval{
			pendingApproval("soon", "d1", strptr("finance"), workflow.RoleDepartmentReviewer, now.Add(2*time.Hour), 100),
			pendingApproval("later", "d2", strptr("finance"), workflow.RoleDepartmentReviewer, now.Add(20*time.Hour), 100),
			pendingApproval("overdue-new", "d3", strptr("finance"), workflow.RoleDepartmentReviewer, now.Add(-time.Hour), 100),
			pendingApproval("overdue-old", "d4", strptr("finance"), workflow.RoleDepartmentReviewer, now.Add(-26*time.Hour), 100),
			pendingApproval("later-big", "d5", strptr("finance"), workflow.RoleDepartmentReviewer, now.Add(20*time.Hour), 900),
		},
		Now: now,
	}

	q := BuildQueue(snapshot, reviewer("finance"), cfg)
	require.Len(t, q.Items, 5)

	got := make([]string, 0, len(q.Items))
	for _, item := range q.Items {
		got = append(got, item.ApprovalID)
	}
	// most overdue first, then ascending time remaining, value breaks ties
	assert.Equal(t, []string{"overdue-old", "overdue-new", "soon", "later-big", "later"}, got)
}

func TestBuildQueueMetrics(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cfg := testWorkflowConfig()
	cfg.DepartmentCapacity = map[string]int{"finance": 4}

	urgentItem := pendingApproval("u-1", "d1", strptr("finance"), workflow.RoleDepartmentReviewer, now.Add(time.Hour), 100)
	urgentItem.Priority = workflow.PriorityUrgent

	completedAt := now.Add(-time.Hour)
	decided := workflow.DecisionApproved
	completed := []*repository.Approval{
		{
			ID: "c-1", DealID: "d9",
			Department:   strptr("finance"),
			Stage:        workflow.StageDepartmentReview,
			RequiredRole: workflow.RoleDepartmentReviewer,
			Status:       decided,
			CreatedAt:    completedAt.Add(-10 * time.Hour),
			CompletedAt:  &completedAt,
		},
		{
			ID: "c-2", DealID: "d9",
			Department:   strptr("trading"), // other department, excluded from the average
			Stage:        workflow.StageDepartmentReview,
			RequiredRole: workflow.RoleDepartmentReviewer,
			Status:       decided,
			CreatedAt:    completedAt.Add(-40 * time.Hour),
			CompletedAt:  &completedAt,
		},
	}

	snapshot := QueueSnapshot{
		Pending: []*repository.PendingApproval{
			urgentItem,
			pendingApproval("o-1", "d2", strptr("finance"), workflow.RoleDepartmentReviewer, now.Add(-2*time.Hour), 100),
		},
		Completed: completed,
		Now:       now,
	}

	q := BuildQueue(snapshot, reviewer("finance"), cfg)
	m := q.Metrics
	assert.Equal(t, 2, m.TotalPending)
	assert.Equal(t, 1, m.OverdueCount)
	assert.Equal(t, 1, m.UrgentCount)
	assert.Equal(t, 10*time.Hour, m.AvgProcessingTime)
	assert.InDelta(t, 50.0, m.CurrentLoadPercent, 0.001)
}

func TestBuildQueueLoadCanExceedCapacity(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cfg := testWorkflowConfig()
	cfg.DepartmentCapacity = map[string]int{"finance": 2}

	pending := make([]*repository.PendingApproval, 0, 3)
	for i, id := range []string{"a", "b", "c"} {
		pending = append(pending, pendingApproval(id, "d", strptr("finance"), workflow.RoleDepartmentReviewer, now.Add(time.Duration(i)*time.Hour), 100))
	}
	q := BuildQueue(QueueSnapshot{Pending: pending, Now: now}, reviewer("finance"), cfg)
	assert.InDelta(t, 150.0, q.Metrics.CurrentLoadPercent, 0.001)
}
