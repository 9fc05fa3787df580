package usecase

import (
	"context"

	"github.com/lacomunita/comunita/internal/domain"
)

// UserRepository defines persistence/lookup for users.
type UserRepository interface {
	Create(ctx context.Context, handle, passwordHash, pictureURL string) (domain.User, error)
	Get(ctx context.Context, id int64) (domain.User, error)
	GetByHandle(ctx context.Context, handle string) (domain.User, string, error)
	List(ctx context.Context) ([]domain.User, error)
}

// CommunityRepository defines storage operations for communities and their
// membership ledger.
type CommunityRepository interface {
	Create(ctx context.Context, name, pictureURL string, creatorID int64) (domain.Community, error)
	Get(ctx context.Context, id, viewerID int64) (domain.Community, error)
	ListVisible(ctx context.Context, viewerID int64) ([]domain.Community, error)
	Join(ctx context.Context, id, userID int64) error
	Leave(ctx context.Context, id, userID int64) error
}

// GroupRepository defines storage operations for groups and their membership
// ledger, including the derived activity flag.
type GroupRepository interface {
	Create(ctx context.Context, name, pictureURL string, communityID, creatorID int64) (domain.Group, error)
	Get(ctx context.Context, id, viewerID int64) (domain.Group, error)
	ListVisible(ctx context.Context, viewerID int64) ([]domain.Group, error)
	Leave(ctx context.Context, id, userID int64) error
}

// ChatRepository defines storage operations for chats and their membership
// ledger.
type ChatRepository interface {
	Create(ctx context.Context, name string, groupID *int64, creatorID int64) (domain.Chat, error)
	Get(ctx context.Context, id, viewerID int64) (domain.Chat, error)
	ListVisible(ctx context.Context, viewerID int64) ([]domain.Chat, error)
	Leave(ctx context.Context, id, userID int64) error
	IsMember(ctx context.Context, id, userID int64) (bool, error)
}

// MessageRepository defines storage operations for messages and the seen-by
// ledger.
type MessageRepository interface {
	Create(ctx context.Context, chatID, senderID int64, content string) (domain.Message, error)
	ListVisible(ctx context.Context, viewerID int64, chatID *int64) ([]domain.Message, error)
	MarkSeen(ctx context.Context, messageID, userID int64) error
}

// InvitationRepository defines storage operations for invitations; Resolve
// applies the state transition and its membership side effect atomically.
type InvitationRepository interface {
	Create(ctx context.Context, kind domain.InvitationTargetKind, targetID, inviterID, inviteeID int64) (domain.Invitation, error)
	ListFor(ctx context.Context, kind domain.InvitationTargetKind, userID int64) ([]domain.Invitation, error)
	Resolve(ctx context.Context, kind domain.InvitationTargetKind, id, actorID int64, verdict domain.InvitationVerdict) (domain.Invitation, error)
}

// EventPublisher fans message events out to realtime subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}
