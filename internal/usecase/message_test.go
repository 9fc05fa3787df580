package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lacomunita/comunita/internal/domain"
)

type mockMessageRepo struct {
	created *domain.Message
}

func (m *mockMessageRepo) Create(ctx context.Context, chatID, senderID int64, content string) (domain.Message, error) {
	msg := domain.Message{ID: 1, ChatID: chatID, SenderID: senderID, Content: content, SeenBy: []int64{}}
	m.created = &msg
	return msg, nil
}

func (m *mockMessageRepo) ListVisible(ctx context.Context, viewerID int64, chatID *int64) ([]domain.Message, error) {
	return nil, nil
}

func (m *mockMessageRepo) MarkSeen(ctx context.Context, messageID, userID int64) error {
	return nil
}

type mockPublisher struct {
	events []domain.Event
	fail   bool
}

func (m *mockPublisher) Publish(ctx context.Context, event domain.Event) error {
	if m.fail {
		return fmt.Errorf("redis down")
	}
	m.events = append(m.events, event)
	return nil
}

func TestMessageCreatePublishes(t *testing.T) {
	repo := &mockMessageRepo{}
	signal := &mockPublisher{}
	uc := NewMessageUsecase(repo, signal)

	msg, err := uc.Create(context.Background(), 7, 1, "hello")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if msg.SenderID != 1 {
		t.Fatalf("expected sender 1 got %d", msg.SenderID)
	}
	if len(signal.events) != 1 {
		t.Fatalf("expected 1 event got %d", len(signal.events))
	}
	if signal.events[0].ChatID != 7 || signal.events[0].Type != "message" {
		t.Fatalf("unexpected event: %+v", signal.events[0])
	}
}

func TestMessageCreatePublishFailureIsNotFatal(t *testing.T) {
	repo := &mockMessageRepo{}
	uc := NewMessageUsecase(repo, &mockPublisher{fail: true})

	_, err := uc.Create(context.Background(), 7, 1, "hello")
	if err != nil {
		t.Fatalf("create must not fail on fanout error: %v", err)
	}
}

func TestMessageCreateEmptyContent(t *testing.T) {
	repo := &mockMessageRepo{}
	uc := NewMessageUsecase(repo, &mockPublisher{})

	_, err := uc.Create(context.Background(), 7, 1, "")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error got %v", err)
	}
	if repo.created != nil {
		t.Fatal("empty message must not reach the repository")
	}
}
