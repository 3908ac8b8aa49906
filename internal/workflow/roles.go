package workflow

import (
	"github.com/dealdesk/be-deal-approvals/internal/apperrors"
)

// Role is an acting user's role. A department_reviewer additionally carries
// exactly one department; the (role, department) pair is the unit of
// authorization, never the user identity alone.
type Role string

const (
	RoleSeller             Role = "seller"
	RoleDepartmentReviewer Role = "department_reviewer"
	RoleApprover           Role = "approver"
	RoleLegal              Role = "legal"
	RoleAdmin              Role = "admin"
)

// DepartmentLegal is the one department with status-level privileges:
// only legal reviewers (or the legal role, or admin) may move deals into
// the contract statuses.
const DepartmentLegal = "legal"

// Actor is the authenticated identity the core trusts: a role plus, for
// department reviewers, a department. It is threaded explicitly into every
// core call; there is no ambient "current user".
type Actor struct {
	Role       Role
	Department string
}

// Capabilities is the boolean capability set held by an actor.
type Capabilities struct {
	CanCreateDeals       bool
	CanViewAllDeals      bool
	CanEditDeals         bool
	CanApproveDeals      bool
	CanAccessLegalReview bool
	CanManageContracts   bool
}

// CapabilitiesFor resolves the capability set for an actor. An unknown role
// is an error, never a default-deny silent answer.
func CapabilitiesFor(actor Actor) (Capabilities, error) {
	switch actor.Role {
	case RoleSeller:
		return Capabilities{
			CanCreateDeals: true,
			CanEditDeals:   true,
		}, nil
	case RoleDepartmentReviewer:
		caps := Capabilities{
			CanViewAllDeals: true,
			CanApproveDeals: true,
		}
		if actor.Department == DepartmentLegal {
			caps.CanAccessLegalReview = true
			caps.CanManageContracts = true
		}
		return caps, nil
	case RoleApprover:
		return Capabilities{
			CanViewAllDeals: true,
			CanApproveDeals: true,
		}, nil
	case RoleLegal:
		return Capabilities{
			CanViewAllDeals:      true,
			CanAccessLegalReview: true,
			CanManageContracts:   true,
		}, nil
	case RoleAdmin:
		return Capabilities{
			CanCreateDeals:       true,
			CanViewAllDeals:      true,
			CanEditDeals:         true,
			CanApproveDeals:      true,
			CanAccessLegalReview: true,
			CanManageContracts:   true,
		}, nil
	default:
		return Capabilities{}, apperrors.Newf(apperrors.ErrCodeInvalidInput, "unknown role %q", actor.Role)
	}
}

// roleTargets lists the statuses each role may move a deal into. Legal-only
// statuses carry an additional department gate applied in CanTransitionTo.
var roleTargets = map[Role][]Status{
	RoleSeller: {
		StatusScoping, StatusSubmitted, StatusUnderReview, StatusLost,
	},
	RoleDepartmentReviewer: {
		StatusUnderReview, StatusRevisionRequested, StatusLost,
	},
	RoleApprover: {
		StatusUnderReview, StatusRevisionRequested, StatusNegotiating,
		StatusApproved, StatusLost,
	},
	RoleLegal: {
		StatusContractDrafting, StatusClientReview, StatusSigned, StatusLost,
	},
}

// legalOnlyStatuses require contract-management privileges to enter.
var legalOnlyStatuses = map[Status]bool{
	StatusContractDrafting: true,
	StatusClientReview:     true,
}

// CanTransitionTo reports whether the actor is authorized to move a deal
// into the target status. Admin may enter any status unconditionally; that
// is the one deliberate bypass.
func (a Actor) CanTransitionTo(target Status) bool {
	if a.Role == RoleAdmin {
		return true
	}

	if legalOnlyStatuses[target] {
		switch a.Role {
		case RoleLegal:
			// allowed below via roleTargets
		case RoleDepartmentReviewer:
			if a.Department != DepartmentLegal {
				return false
			}
			return true
		default:
			return false
		}
	}

	for _, s := range roleTargets[a.Role] {
		if s == target {
			return true
		}
	}
	return false
}
