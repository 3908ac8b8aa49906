package workflow

// Status is a deal's position in the approval lifecycle.
type Status string

const (
	StatusDraft             Status = "draft"
	StatusScoping           Status = "scoping"
	StatusSubmitted         Status = "submitted"
	StatusUnderReview       Status = "under_review"
	StatusRevisionRequested Status = "revision_requested"
	StatusNegotiating       Status = "negotiating"
	StatusApproved          Status = "approved"
	StatusContractDrafting  Status = "contract_drafting"
	StatusClientReview      Status = "client_review"
	StatusSigned            Status = "signed"
	StatusLost              Status = "lost"
)

// statusTransitions is the full deal status graph. Any pair not listed is
// illegal, including self-transitions and stage skips.
var statusTransitions = map[Status][]Status{
	StatusDraft:             {StatusScoping, StatusSubmitted},
	StatusScoping:           {StatusSubmitted},
	StatusSubmitted:         {StatusUnderReview, StatusLost},
	StatusUnderReview:       {StatusRevisionRequested, StatusNegotiating, StatusApproved, StatusLost},
	StatusRevisionRequested: {StatusUnderReview, StatusLost},
	StatusNegotiating:       {StatusRevisionRequested, StatusApproved, StatusLost},
	StatusApproved:          {StatusContractDrafting, StatusLost},
	StatusContractDrafting:  {StatusClientReview, StatusLost},
	StatusClientReview:      {StatusSigned, StatusNegotiating, StatusLost},
	StatusSigned:            {},
	StatusLost:              {},
}

// ValidStatus reports whether s is a known deal status.
func ValidStatus(s Status) bool {
	_, ok := statusTransitions[s]
	return ok
}

// IsTerminal reports whether no further transitions are possible.
func IsTerminal(s Status) bool {
	return s == StatusSigned || s == StatusLost
}

// IsLegalTransition reports whether the edge from -> to exists in the graph.
// Legality of the edge and authorization of the actor are independent checks;
// both must pass for a transition to proceed.
func IsLegalTransition(from, to Status) bool {
	for _, target := range statusTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// AllowedTargets returns the legal next statuses from a given status.
func AllowedTargets(from Status) []Status {
	targets := statusTransitions[from]
	out := make([]Status, len(targets))
	copy(out, targets)
	return out
}

// DraftType subdivides draft deals for dashboard visibility. It has no
// bearing on transition legality.
type DraftType string

const (
	DraftTypeScoping    DraftType = "scoping_draft"
	DraftTypeSubmission DraftType = "submission_draft"
)

// Priority is the urgency attached to a deal and its approvals.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ValidPriority reports whether p is a known priority.
func ValidPriority(p Priority) bool {
	return p == PriorityNormal || p == PriorityHigh || p == PriorityUrgent
}
