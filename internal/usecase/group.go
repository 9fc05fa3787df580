package usecase

import (
	"context"

	"github.com/lacomunita/comunita/internal/domain"
)

type GroupUsecase struct {
	repo GroupRepository
}

func NewGroupUsecase(repo GroupRepository) *GroupUsecase {
	return &GroupUsecase{repo: repo}
}

// Create makes a new group under a community with the actor as its first
// member. The community reference is immutable after creation.
func (uc *GroupUsecase) Create(ctx context.Context, name, pictureURL string, communityID, actorID int64) (domain.Group, error) {
	if name == "" {
		return domain.Group{}, domain.ValidationError{Reason: "name is required"}
	}
	if communityID == 0 {
		return domain.Group{}, domain.ValidationError{Reason: "community is required"}
	}
	return uc.repo.Create(ctx, name, pictureURL, communityID, actorID)
}

func (uc *GroupUsecase) Get(ctx context.Context, id, actorID int64) (domain.Group, error) {
	return uc.repo.Get(ctx, id, actorID)
}

func (uc *GroupUsecase) List(ctx context.Context, actorID int64) ([]domain.Group, error) {
	return uc.repo.ListVisible(ctx, actorID)
}

func (uc *GroupUsecase) Leave(ctx context.Context, id, actorID int64) error {
	return uc.repo.Leave(ctx, id, actorID)
}
