package usecase

import (
	"context"

	"github.com/lacomunita/comunita/internal/domain"
)

type CommunityUsecase struct {
	repo CommunityRepository
}

func NewCommunityUsecase(repo CommunityRepository) *CommunityUsecase {
	return &CommunityUsecase{repo: repo}
}

// Create makes a new community with the actor as its first member.
func (uc *CommunityUsecase) Create(ctx context.Context, name, pictureURL string, actorID int64) (domain.Community, error) {
	if name == "" {
		return domain.Community{}, domain.ValidationError{Reason: "name is required"}
	}
	return uc.repo.Create(ctx, name, pictureURL, actorID)
}

func (uc *CommunityUsecase) Get(ctx context.Context, id, actorID int64) (domain.Community, error) {
	return uc.repo.Get(ctx, id, actorID)
}

func (uc *CommunityUsecase) List(ctx context.Context, actorID int64) ([]domain.Community, error) {
	return uc.repo.ListVisible(ctx, actorID)
}

func (uc *CommunityUsecase) Join(ctx context.Context, id, actorID int64) error {
	return uc.repo.Join(ctx, id, actorID)
}

func (uc *CommunityUsecase) Leave(ctx context.Context, id, actorID int64) error {
	return uc.repo.Leave(ctx, id, actorID)
}
