package domain

import "time"

// InvitationTargetKind discriminates what an invitation points at.
type InvitationTargetKind string

const (
	InviteTargetGroup InvitationTargetKind = "group"
	InviteTargetChat  InvitationTargetKind = "chat"
)

// InvitationState is the tri-valued acceptance state. On the wire it is an
// optional boolean: nil = pending, true = accepted, false = rejected.
type InvitationState string

const (
	InvitePending  InvitationState = "pending"
	InviteAccepted InvitationState = "accepted"
	InviteRejected InvitationState = "rejected"
)

// Invitation is a proposal from inviter to invitee to join a target joinable.
// The inviter is always the authenticated actor that created it; it is
// resolved exactly once by the invitee.
type Invitation struct {
	ID         int64                `json:"id"`
	TargetKind InvitationTargetKind `json:"-"`
	TargetID   int64                `json:"targetID"`
	InviterID  int64                `json:"inviter"`
	InviteeID  int64                `json:"invitee"`
	Accepted   *bool                `json:"accepted"`
	CDate      time.Time            `json:"cdate"`
}

// State folds the optional boolean into the three-valued state.
func (i Invitation) State() InvitationState {
	if i.Accepted == nil {
		return InvitePending
	}
	if *i.Accepted {
		return InviteAccepted
	}
	return InviteRejected
}

// InvitationVerdict is the invitee's resolution of an invitation.
type InvitationVerdict bool

const (
	VerdictAccept InvitationVerdict = true
	VerdictReject InvitationVerdict = false
)

// ResolveInvitation validates a resolution attempt and returns the resulting
// state. Both accept and reject are invitee-only; a resolved invitation can
// not be resolved again.
func ResolveInvitation(inv Invitation, actorID int64, verdict InvitationVerdict) (InvitationState, error) {
	if actorID != inv.InviteeID {
		return inv.State(), ForbiddenError{Reason: "only the invitee may resolve an invitation"}
	}
	if inv.State() != InvitePending {
		return inv.State(), ConflictError{Reason: "invitation already " + string(inv.State())}
	}
	if verdict == VerdictAccept {
		return InviteAccepted, nil
	}
	return InviteRejected, nil
}

// ValidateInvitation checks a creation request before it reaches storage.
func ValidateInvitation(inviterID, inviteeID int64) error {
	if inviteeID == 0 {
		return ValidationError{Reason: "invitee is required"}
	}
	if inviterID == inviteeID {
		return ValidationError{Reason: "inviter and invitee must differ"}
	}
	return nil
}
