package usecase

import (
	"context"
	"log/slog"

	"github.com/lacomunita/comunita/internal/domain"
)

type MessageUsecase struct {
	repo   MessageRepository
	signal EventPublisher
}

func NewMessageUsecase(repo MessageRepository, signal EventPublisher) *MessageUsecase {
	return &MessageUsecase{repo: repo, signal: signal}
}

// Create sends a message. The sender is always the acting identity; any
// client-supplied sender was already discarded at the boundary. Fanout
// failures do not fail the send.
func (uc *MessageUsecase) Create(ctx context.Context, chatID, actorID int64, content string) (domain.Message, error) {
	if content == "" {
		return domain.Message{}, domain.ValidationError{Reason: "content is required"}
	}
	if chatID == 0 {
		return domain.Message{}, domain.ValidationError{Reason: "chat is required"}
	}

	message, err := uc.repo.Create(ctx, chatID, actorID, content)
	if err != nil {
		return domain.Message{}, err
	}

	if uc.signal != nil {
		err := uc.signal.Publish(ctx, domain.Event{
			Type:    "message",
			ChatID:  message.ChatID,
			Message: &message,
		})
		if err != nil {
			slog.ErrorContext(
				ctx, "Failed to publish message event",
				slog.String("error", err.Error()),
				slog.String("module", "message"),
			)
		}
	}

	return message, nil
}

func (uc *MessageUsecase) List(ctx context.Context, actorID int64, chatID *int64) ([]domain.Message, error) {
	return uc.repo.ListVisible(ctx, actorID, chatID)
}

// MarkSeen adds the actor to the message's seen set.
func (uc *MessageUsecase) MarkSeen(ctx context.Context, messageID, actorID int64) error {
	return uc.repo.MarkSeen(ctx, messageID, actorID)
}
