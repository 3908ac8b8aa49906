package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dealdesk/be-deal-approvals/internal/apperrors"
	"github.com/dealdesk/be-deal-approvals/internal/repository"
	"github.com/dealdesk/be-deal-approvals/internal/workflow"
)

// In-memory stores implementing the service interfaces. The mutex-guarded
// compare-and-set in decide/updateStatus mirrors the conditional SQL writes
// of the real repositories, so race behavior is observable in tests.

type fakeDealStore struct {
	mu        sync.Mutex
	seq       int
	deals     map[string]*repository.Deal
	approvals *fakeApprovalStore

	// approvalInsertErr makes UpdateStatusWithApproval fail before any
	// state changes, standing in for an insert failure that rolls the
	// transaction back.
	approvalInsertErr error
}

func newFakeDealStore(approvals *fakeApprovalStore) *fakeDealStore {
	return &fakeDealStore{deals: map[string]*repository.Deal{}, approvals: approvals}
}

func (f *fakeDealStore) Create(_ context.Context, deal *repository.Deal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	deal.ID = fmt.Sprintf("deal-%d", f.seq)
	deal.LastStatusChange = time.Now()
	deal.CreatedAt = time.Now()
	deal.UpdatedAt = deal.CreatedAt
	f.deals[deal.ID] = cloneDeal(deal)
	return nil
}

func (f *fakeDealStore) GetByID(_ context.Context, id string) (*repository.Deal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deal, ok := f.deals[id]
	if !ok {
		return nil, apperrors.NotFound("deal", id)
	}
	return cloneDeal(deal), nil
}

func (f *fakeDealStore) List(_ context.Context, filter repository.DealFilter) ([]*repository.Deal, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repository.Deal
	for _, d := range f.deals {
		if filter.Status != nil && d.Status != *filter.Status {
			continue
		}
		if filter.CreatedBy != nil && d.CreatedBy != *filter.CreatedBy {
			continue
		}
		out = append(out, cloneDeal(d))
	}
	return out, int64(len(out)), nil
}

func (f *fakeDealStore) UpdateDraft(_ context.Context, deal *repository.Deal) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.deals[deal.ID]
	if !ok {
		return false, apperrors.NotFound("deal", deal.ID)
	}
	switch stored.Status {
	case workflow.StatusDraft, workflow.StatusScoping, workflow.StatusRevisionRequested:
	default:
		return false, nil
	}
	deal.Status = stored.Status
	deal.UpdatedAt = time.Now()
	f.deals[deal.ID] = cloneDeal(deal)
	return true, nil
}

func (f *fakeDealStore) UpdateStatus(_ context.Context, id string, from, to workflow.Status, assignedTo *string) (*repository.Deal, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deal, ok := f.deals[id]
	if !ok {
		return nil, false, apperrors.NotFound("deal", id)
	}
	if deal.Status != from {
		return nil, false, nil
	}
	deal.Status = to
	if assignedTo != nil {
		deal.AssignedTo = assignedTo
	}
	deal.LastStatusChange = time.Now()
	deal.UpdatedAt = deal.LastStatusChange
	return cloneDeal(deal), true, nil
}

// UpdateStatusWithApproval mirrors the transactional repository method:
// when the approval insert fails, the status write never happens either.
func (f *fakeDealStore) UpdateStatusWithApproval(_ context.Context, id string, from, to workflow.Status, assignedTo *string, approval *repository.Approval) (*repository.Deal, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deal, ok := f.deals[id]
	if !ok {
		return nil, false, apperrors.NotFound("deal", id)
	}
	if deal.Status != from {
		return nil, false, nil
	}
	if f.approvalInsertErr != nil {
		return nil, false, f.approvalInsertErr
	}
	deal.Status = to
	if assignedTo != nil {
		deal.AssignedTo = assignedTo
	}
	deal.LastStatusChange = time.Now()
	deal.UpdatedAt = deal.LastStatusChange

	approval.DealID = id
	approval.Round = deal.RevisionCount
	if !f.approvals.hasBusinessApproval(id, deal.RevisionCount, approval.Stage) {
		f.approvals.add(approval)
	}
	return cloneDeal(deal), true, nil
}

func (f *fakeDealStore) StartReview(_ context.Context, id string, from workflow.Status, required map[string][]string, bumpRevision bool, approvals []*repository.Approval) (*repository.Deal, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deal, ok := f.deals[id]
	if !ok {
		return nil, false, apperrors.NotFound("deal", id)
	}
	if deal.Status != from {
		return nil, false, nil
	}
	deal.Status = workflow.StatusUnderReview
	if bumpRevision {
		deal.RevisionCount++
	}
	deal.RequiredDepartmentReviews = required
	deal.CompletedDepartmentReviews = nil
	deal.LastStatusChange = time.Now()
	deal.UpdatedAt = deal.LastStatusChange

	for _, a := range approvals {
		a.DealID = id
		a.Round = deal.RevisionCount
		a.Status = workflow.DecisionPending
		f.approvals.add(a)
	}
	return cloneDeal(deal), true, nil
}

func (f *fakeDealStore) MarkDepartmentCompleted(_ context.Context, id, department string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	deal, ok := f.deals[id]
	if !ok {
		return apperrors.NotFound("deal", id)
	}
	for _, d := range deal.CompletedDepartmentReviews {
		if d == department {
			return nil
		}
	}
	deal.CompletedDepartmentReviews = append(deal.CompletedDepartmentReviews, department)
	return nil
}

func (f *fakeDealStore) CountByStatus(_ context.Context) (map[workflow.Status]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[workflow.Status]int64)
	for _, d := range f.deals {
		counts[d.Status]++
	}
	return counts, nil
}

type fakeApprovalStore struct {
	mu        sync.Mutex
	seq       int
	approvals map[string]*repository.Approval
}

func newFakeApprovalStore() *fakeApprovalStore {
	return &fakeApprovalStore{approvals: map[string]*repository.Approval{}}
}

func (f *fakeApprovalStore) add(a *repository.Approval) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insert(a)
}

func (f *fakeApprovalStore) insert(a *repository.Approval) {
	f.seq++
	a.ID = fmt.Sprintf("approval-%d", f.seq)
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	f.approvals[a.ID] = cloneApproval(a)
}

func (f *fakeApprovalStore) GetByID(_ context.Context, id string) (*repository.Approval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.approvals[id]
	if !ok {
		return nil, apperrors.NotFound("approval", id)
	}
	return cloneApproval(a), nil
}

func (f *fakeApprovalStore) GetByDeal(_ context.Context, dealID string) ([]*repository.Approval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repository.Approval
	for _, a := range f.approvals {
		if a.DealID == dealID {
			out = append(out, cloneApproval(a))
		}
	}
	return out, nil
}

func (f *fakeApprovalStore) GetByDealRound(_ context.Context, dealID string, round int) ([]*repository.Approval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repository.Approval
	for _, a := range f.approvals {
		if a.DealID == dealID && a.Round == round {
			out = append(out, cloneApproval(a))
		}
	}
	return out, nil
}

func (f *fakeApprovalStore) ListPending(_ context.Context) ([]*repository.PendingApproval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repository.PendingApproval
	for _, a := range f.approvals {
		if a.Status != workflow.DecisionPending {
			continue
		}
		out = append(out, &repository.PendingApproval{Approval: *cloneApproval(a)})
	}
	return out, nil
}

func (f *fakeApprovalStore) ListCompletedSince(_ context.Context, since time.Time) ([]*repository.Approval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repository.Approval
	for _, a := range f.approvals {
		if a.CompletedAt != nil && !a.CompletedAt.Before(since) {
			out = append(out, cloneApproval(a))
		}
	}
	return out, nil
}

func (f *fakeApprovalStore) Decide(_ context.Context, id string, decision workflow.DecisionStatus, reviewedBy string, notes *string) (*repository.Approval, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.approvals[id]
	if !ok {
		return nil, false, apperrors.NotFound("approval", id)
	}
	if a.Status != workflow.DecisionPending {
		return nil, false, nil
	}
	now := time.Now()
	a.Status = decision
	a.ReviewedBy = &reviewedBy
	a.ReviewerNotes = notes
	a.CompletedAt = &now
	a.UpdatedAt = now
	return cloneApproval(a), true, nil
}

func (f *fakeApprovalStore) hasBusinessApproval(dealID string, round, stage int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.approvals {
		if a.DealID == dealID && a.Round == round && a.Stage == stage && a.Department == nil {
			return true
		}
	}
	return false
}

type fakeAuditStore struct {
	mu      sync.Mutex
	entries []*repository.DealAuditEntry
}

func (f *fakeAuditStore) Append(_ context.Context, entry *repository.DealAuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.PerformedAt = time.Now()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditStore) GetByDeal(_ context.Context, dealID string) ([]*repository.DealAuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repository.DealAuditEntry
	for _, e := range f.entries {
		if e.DealID == dealID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (f *fakePublisher) PublishDealEvent(_ context.Context, eventType, dealID, actorID, actorRole string, payload map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
}

func cloneDeal(d *repository.Deal) *repository.Deal {
	c := *d
	c.CompletedDepartmentReviews = append([]string(nil), d.CompletedDepartmentReviews...)
	return &c
}

func cloneApproval(a *repository.Approval) *repository.Approval {
	c := *a
	return &c
}
