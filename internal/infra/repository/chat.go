package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lacomunita/comunita/internal/domain"
	"github.com/lacomunita/comunita/internal/infra/database/models"
)

type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// Create inserts the chat and its first membership atomically. Group chats
// require the creator to belong to the owning group; private chats are open
// to any user.
func (r *ChatRepository) Create(ctx context.Context, name string, groupID *int64, creatorID int64) (domain.Chat, error) {
	m := models.Chat{
		Name:    name,
		GroupID: groupID,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if groupID != nil {
			var group models.Group
			if err := tx.Take(&group, "id = ?", *groupID).Error; err != nil {
				return notFoundAs(err, "group")
			}
			member, err := isGroupMember(tx, *groupID, creatorID)
			if err != nil {
				return err
			}
			if !member {
				return domain.ForbiddenError{Reason: "not a group member"}
			}
		}

		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		return tx.Create(&models.ChatMember{
			ChatID: m.ID,
			UserID: creatorID,
		}).Error
	})
	if err != nil {
		return domain.Chat{}, err
	}

	return domain.Chat{
		ID:      m.ID,
		Name:    m.Name,
		GroupID: m.GroupID,
		CDate:   m.CDate,
		Members: []int64{creatorID},
	}, nil
}

// Get returns the chat only if the viewer belongs to it.
func (r *ChatRepository) Get(ctx context.Context, id, viewerID int64) (domain.Chat, error) {
	db := r.db.WithContext(ctx)

	var m models.Chat
	err := db.
		Joins("JOIN chat_members cm ON cm.chat_id = chats.id AND cm.user_id = ?", viewerID).
		Take(&m, "chats.id = ?", id).Error
	if err != nil {
		return domain.Chat{}, notFoundAs(err, "chat")
	}

	members, err := chatMemberIDs(db, m.ID)
	if err != nil {
		return domain.Chat{}, err
	}

	return domain.Chat{
		ID:      m.ID,
		Name:    m.Name,
		GroupID: m.GroupID,
		CDate:   m.CDate,
		Members: members,
	}, nil
}

// ListVisible returns the chats the viewer belongs to in insertion order.
func (r *ChatRepository) ListVisible(ctx context.Context, viewerID int64) ([]domain.Chat, error) {
	db := r.db.WithContext(ctx)

	var rows []models.Chat
	err := db.
		Joins("JOIN chat_members cm ON cm.chat_id = chats.id AND cm.user_id = ?", viewerID).
		Order("chats.id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make([]domain.Chat, 0, len(rows))
	for _, m := range rows {
		members, err := chatMemberIDs(db, m.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, domain.Chat{
			ID:      m.ID,
			Name:    m.Name,
			GroupID: m.GroupID,
			CDate:   m.CDate,
			Members: members,
		})
	}
	return result, nil
}

// Leave removes the membership and collects the chat when its member set
// becomes empty.
func (r *ChatRepository) Leave(ctx context.Context, id, userID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.Chat
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&m, "id = ?", id).Error
		if err != nil {
			return notFoundAs(err, "chat")
		}

		res := tx.Delete(&models.ChatMember{},
			"chat_id = ? AND user_id = ?", id, userID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.NotFoundError{Resource: "chat"}
		}

		count, err := chatMemberCount(tx, id)
		if err != nil {
			return err
		}
		if domain.ShouldCollect(domain.KindChat, count) {
			return collectChat(tx, id)
		}
		return nil
	})
}

// IsMember reports whether the user belongs to the chat.
func (r *ChatRepository) IsMember(ctx context.Context, id, userID int64) (bool, error) {
	return isChatMember(r.db.WithContext(ctx), id, userID)
}
