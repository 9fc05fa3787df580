package usecase

import (
	"context"

	"github.com/lacomunita/comunita/internal/domain"
)

type ChatUsecase struct {
	repo ChatRepository
}

func NewChatUsecase(repo ChatRepository) *ChatUsecase {
	return &ChatUsecase{repo: repo}
}

// Create makes a new chat with the actor as its first member. A nil groupID
// makes a standalone private chat.
func (uc *ChatUsecase) Create(ctx context.Context, name string, groupID *int64, actorID int64) (domain.Chat, error) {
	if name == "" {
		return domain.Chat{}, domain.ValidationError{Reason: "name is required"}
	}
	return uc.repo.Create(ctx, name, groupID, actorID)
}

func (uc *ChatUsecase) Get(ctx context.Context, id, actorID int64) (domain.Chat, error) {
	return uc.repo.Get(ctx, id, actorID)
}

func (uc *ChatUsecase) List(ctx context.Context, actorID int64) ([]domain.Chat, error) {
	return uc.repo.ListVisible(ctx, actorID)
}

func (uc *ChatUsecase) Leave(ctx context.Context, id, actorID int64) error {
	return uc.repo.Leave(ctx, id, actorID)
}

// IsMember reports chat membership; the realtime endpoint uses it to scope
// subscriptions.
func (uc *ChatUsecase) IsMember(ctx context.Context, id, actorID int64) (bool, error) {
	return uc.repo.IsMember(ctx, id, actorID)
}
