package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allStatuses = []Status{
	StatusDraft, StatusScoping, StatusSubmitted, StatusUnderReview,
	StatusRevisionRequested, StatusNegotiating, StatusApproved,
	StatusContractDrafting, StatusClientReview, StatusSigned, StatusLost,
}

func TestIsLegalTransition_Table(t *testing.T) {
	legal := map[Status][]Status{
		StatusDraft:             {StatusScoping, StatusSubmitted},
		StatusScoping:           {StatusSubmitted},
		StatusSubmitted:         {StatusUnderReview, StatusLost},
		StatusUnderReview:       {StatusRevisionRequested, StatusNegotiating, StatusApproved, StatusLost},
		StatusRevisionRequested: {StatusUnderReview, StatusLost},
		StatusNegotiating:       {StatusRevisionRequested, StatusApproved, StatusLost},
		StatusApproved:          {StatusContractDrafting, StatusLost},
		StatusContractDrafting:  {StatusClientReview, StatusLost},
		StatusClientReview:      {StatusSigned, StatusNegotiating, StatusLost},
	}

	for _, from := range allStatuses {
		allowed := map[Status]bool{}
		for _, to := range legal[from] {
			allowed[to] = true
		}
		// Every pair not in the table is illegal, including self-transitions
		// and stage skips.
		for _, to := range allStatuses {
			got := IsLegalTransition(from, to)
			assert.Equal(t, allowed[to], got, "%s -> %s", from, to)
		}
	}
}

func TestIsLegalTransition_UnknownStatus(t *testing.T) {
	assert.False(t, IsLegalTransition(Status("bogus"), StatusDraft))
	assert.False(t, IsLegalTransition(StatusDraft, Status("bogus")))
}

func TestIsTerminal(t *testing.T) {
	for _, s := range allStatuses {
		want := s == StatusSigned || s == StatusLost
		assert.Equal(t, want, IsTerminal(s), "status %s", s)
		if want {
			assert.Empty(t, AllowedTargets(s))
		}
	}
}

func TestLostReachableFromEveryNonTerminalExceptDraftStages(t *testing.T) {
	// lost is reachable from every status once a deal has been submitted.
	for _, s := range []Status{
		StatusSubmitted, StatusUnderReview, StatusRevisionRequested,
		StatusNegotiating, StatusApproved, StatusContractDrafting, StatusClientReview,
	} {
		assert.True(t, IsLegalTransition(s, StatusLost), "from %s", s)
	}
}

func TestValidStatus(t *testing.T) {
	for _, s := range allStatuses {
		assert.True(t, ValidStatus(s))
	}
	assert.False(t, ValidStatus(Status("archived")))
}
