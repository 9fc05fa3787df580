package usecase

import (
	"context"

	"github.com/lacomunita/comunita/internal/domain"
)

type InvitationUsecase struct {
	repo InvitationRepository
}

func NewInvitationUsecase(repo InvitationRepository) *InvitationUsecase {
	return &InvitationUsecase{repo: repo}
}

// Create opens an invitation. The inviter is always the acting identity,
// never client input.
func (uc *InvitationUsecase) Create(ctx context.Context, kind domain.InvitationTargetKind, targetID, actorID, inviteeID int64) (domain.Invitation, error) {
	if targetID == 0 {
		return domain.Invitation{}, domain.ValidationError{Reason: "target is required"}
	}
	if err := domain.ValidateInvitation(actorID, inviteeID); err != nil {
		return domain.Invitation{}, err
	}
	return uc.repo.Create(ctx, kind, targetID, actorID, inviteeID)
}

// List returns the invitations the actor sent or received.
func (uc *InvitationUsecase) List(ctx context.Context, kind domain.InvitationTargetKind, actorID int64) ([]domain.Invitation, error) {
	return uc.repo.ListFor(ctx, kind, actorID)
}

// Accept resolves a pending invitation and joins the actor to the target.
func (uc *InvitationUsecase) Accept(ctx context.Context, kind domain.InvitationTargetKind, id, actorID int64) (domain.Invitation, error) {
	return uc.repo.Resolve(ctx, kind, id, actorID, domain.VerdictAccept)
}

// Reject resolves a pending invitation with no membership side effect.
func (uc *InvitationUsecase) Reject(ctx context.Context, kind domain.InvitationTargetKind, id, actorID int64) (domain.Invitation, error) {
	return uc.repo.Resolve(ctx, kind, id, actorID, domain.VerdictReject)
}
