package service

import (
	"context"
	"sort"
	"time"

	"github.com/dealdesk/be-deal-approvals/internal/config"
	"github.com/dealdesk/be-deal-approvals/internal/logger"
	"github.com/dealdesk/be-deal-approvals/internal/repository"
	"github.com/dealdesk/be-deal-approvals/internal/workflow"
)

// RiskLevel classifies a queue item against its SLA deadline.
type RiskLevel string

const (
	RiskSafe     RiskLevel = "safe"
	RiskWarning  RiskLevel = "warning"
	RiskCritical RiskLevel = "critical"
	RiskOverdue  RiskLevel = "overdue"
)

// QueueItem is one outstanding approval in an actor's work queue.
type QueueItem struct {
	ApprovalID    string            `json:"approval_id"`
	DealID        string            `json:"deal_id"`
	DealName      string            `json:"deal_name"`
	DealValue     int64             `json:"deal_value"`
	Department    *string           `json:"department,omitempty"`
	Stage         int               `json:"stage"`
	Round         int               `json:"round"`
	Priority      workflow.Priority `json:"priority"`
	DueDate       time.Time         `json:"due_date"`
	TimeRemaining time.Duration     `json:"time_remaining"`
	Risk          RiskLevel         `json:"risk"`
}

// QueueMetrics summarizes an actor's workload.
type QueueMetrics struct {
	TotalPending      int           `json:"total_pending"`
	OverdueCount      int           `json:"overdue_count"`
	UrgentCount       int           `json:"urgent_count"`
	AvgProcessingTime time.Duration `json:"avg_processing_time"`
	// CurrentLoadPercent is pending work relative to department capacity.
	// Not capped: callers decide how to render values over 100.
	CurrentLoadPercent float64 `json:"current_load_percent"`
}

// Queue is the ordered work list plus metrics for one actor.
type Queue struct {
	Items   []QueueItem  `json:"items"`
	Metrics QueueMetrics `json:"metrics"`
}

// QueueSnapshot is the consistent read the projection runs over. It is an
// explicit input so the projection is a pure function, unit-testable
// without a live store.
type QueueSnapshot struct {
	Pending   []*repository.PendingApproval
	Completed []*repository.Approval
	Now       time.Time
}

// QueueService derives prioritized work queues and SLA metrics. Read-only:
// it recomputes from a fresh snapshot on every call and caches nothing.
type QueueService struct {
	approvals ApprovalStore
	cfg       config.WorkflowConfig
	log       *logger.Logger
	now       func() time.Time
}

// NewQueueService creates a new QueueService.
func NewQueueService(approvals ApprovalStore, cfg config.WorkflowConfig, log *logger.Logger) *QueueService {
	return &QueueService{approvals: approvals, cfg: cfg, log: log, now: time.Now}
}

// GetQueue returns the actor's outstanding work, overdue first.
func (s *QueueService) GetQueue(ctx context.Context, actor workflow.Actor) (*Queue, error) {
	if _, err := workflow.CapabilitiesFor(actor); err != nil {
		return nil, err
	}

	now := s.now()
	pending, err := s.approvals.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	completed, err := s.approvals.ListCompletedSince(ctx, now.Add(-s.cfg.ProcessingTimeWindow))
	if err != nil {
		return nil, err
	}

	snapshot := QueueSnapshot{Pending: pending, Completed: completed, Now: now}
	queue := BuildQueue(snapshot, actor, s.cfg)
	return &queue, nil
}

// BuildQueue computes an actor's queue from a snapshot. Selection: an
// approval is in the queue iff it is pending and the actor is admin, or the
// actor's department matches a department-addressed approval, or the
// actor's role matches a role-addressed one. Ordering: overdue first (most
// overdue first), then ascending time remaining, ties broken by descending
// deal value.
func BuildQueue(snapshot QueueSnapshot, actor workflow.Actor, cfg config.WorkflowConfig) Queue {
	items := make([]QueueItem, 0)
	urgent := 0
	overdue := 0

	for _, p := range snapshot.Pending {
		if !approvalInScope(actor, p.Department, p.RequiredRole) {
			continue
		}

		remaining := p.DueDate.Sub(snapshot.Now)
		risk := classifyRisk(remaining, slaTarget(cfg, p.Department), cfg)
		if risk == RiskOverdue {
			overdue++
		}
		if p.Priority == workflow.PriorityUrgent {
			urgent++
		}

		items = append(items, QueueItem{
			ApprovalID:    p.ID,
			DealID:        p.DealID,
			DealName:      p.DealName,
			DealValue:     p.DealValue,
			Department:    p.Department,
			Stage:         p.Stage,
			Round:         p.Round,
			Priority:      p.Priority,
			DueDate:       p.DueDate,
			TimeRemaining: remaining,
			Risk:          risk,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].TimeRemaining != items[j].TimeRemaining {
			return items[i].TimeRemaining < items[j].TimeRemaining
		}
		return items[i].DealValue > items[j].DealValue
	})

	capacity := cfg.CapacityFor(actor.Department)
	load := 0.0
	if capacity > 0 {
		load = float64(len(items)) / float64(capacity) * 100
	}

	return Queue{
		Items: items,
		Metrics: QueueMetrics{
			TotalPending:       len(items),
			OverdueCount:       overdue,
			UrgentCount:        urgent,
			AvgProcessingTime:  avgProcessingTime(snapshot.Completed, actor),
			CurrentLoadPercent: load,
		},
	}
}

// approvalInScope applies the queue selection rule. Department-addressed
// approvals require a department match so reviewers never see another
// department's work; role-addressed (stage-2) approvals match on role.
func approvalInScope(actor workflow.Actor, department *string, requiredRole workflow.Role) bool {
	if actor.Role == workflow.RoleAdmin {
		return true
	}
	if department != nil {
		return actor.Department == *department
	}
	return actor.Role == requiredRole
}

// classifyRisk buckets time remaining against the department's SLA target.
// The warning and critical windows are tail fractions of the target, taken
// from configuration because SLA expectations vary by department.
func classifyRisk(remaining, target time.Duration, cfg config.WorkflowConfig) RiskLevel {
	warning := time.Duration(float64(target) * cfg.WarningFraction)
	critical := time.Duration(float64(target) * cfg.CriticalFraction)

	switch {
	case remaining < 0:
		return RiskOverdue
	case remaining <= critical:
		return RiskCritical
	case remaining <= warning:
		return RiskWarning
	default:
		return RiskSafe
	}
}

func slaTarget(cfg config.WorkflowConfig, department *string) time.Duration {
	if department != nil {
		return cfg.SLAFor(*department)
	}
	return time.Duration(cfg.DefaultSLAHours) * time.Hour
}

func avgProcessingTime(completed []*repository.Approval, actor workflow.Actor) time.Duration {
	var total time.Duration
	n := 0
	for _, a := range completed {
		if a.CompletedAt == nil {
			continue
		}
		if !approvalInScope(actor, a.Department, a.RequiredRole) {
			continue
		}
		total += a.CompletedAt.Sub(a.CreatedAt)
		n++
	}
	if n == 0 {
		return 0
	}
	return total / time.Duration(n)
}
