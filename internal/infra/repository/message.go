package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lacomunita/comunita/internal/domain"
	"github.com/lacomunita/comunita/internal/infra/database/models"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a message. The sender must belong to the chat.
func (r *MessageRepository) Create(ctx context.Context, chatID, senderID int64, content string) (domain.Message, error) {
	m := models.Message{
		ChatID:   chatID,
		SenderID: senderID,
		Content:  content,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chat models.Chat
		if err := tx.Take(&chat, "id = ?", chatID).Error; err != nil {
			return notFoundAs(err, "chat")
		}

		member, err := isChatMember(tx, chatID, senderID)
		if err != nil {
			return err
		}
		if !member {
			return domain.ForbiddenError{Reason: "not a chat member"}
		}

		return tx.Create(&m).Error
	})
	if err != nil {
		return domain.Message{}, err
	}

	return domain.Message{
		ID:       m.ID,
		ChatID:   m.ChatID,
		SenderID: m.SenderID,
		Content:  m.Content,
		CDate:    m.CDate,
		SeenBy:   []int64{},
	}, nil
}

// ListVisible returns messages in the chats the viewer belongs to, in
// insertion order, optionally restricted to one chat.
func (r *MessageRepository) ListVisible(ctx context.Context, viewerID int64, chatID *int64) ([]domain.Message, error) {
	db := r.db.WithContext(ctx)

	q := db.
		Joins("JOIN chat_members cm ON cm.chat_id = messages.chat_id AND cm.user_id = ?", viewerID).
		Order("messages.id asc")
	if chatID != nil {
		q = q.Where("messages.chat_id = ?", *chatID)
	}

	var rows []models.Message
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	result := make([]domain.Message, 0, len(rows))
	for _, m := range rows {
		seen, err := messageSeenIDs(db, m.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, domain.Message{
			ID:       m.ID,
			ChatID:   m.ChatID,
			SenderID: m.SenderID,
			Content:  m.Content,
			CDate:    m.CDate,
			SeenBy:   seen,
		})
	}
	return result, nil
}

// MarkSeen adds the user to the seen set. The set only grows; re-marking is
// a no-op.
func (r *MessageRepository) MarkSeen(ctx context.Context, messageID, userID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.Message
		if err := tx.Take(&m, "id = ?", messageID).Error; err != nil {
			return notFoundAs(err, "message")
		}

		member, err := isChatMember(tx, m.ChatID, userID)
		if err != nil {
			return err
		}
		if !member {
			return domain.ForbiddenError{Reason: "not a chat member"}
		}

		return tx.Clauses(clause.OnConflict{
			DoNothing: true,
		}).Create(&models.MessageSeen{
			MessageID: messageID,
			UserID:    userID,
		}).Error
	})
}

func messageSeenIDs(tx *gorm.DB, messageID int64) ([]int64, error) {
	ids := []int64{}
	err := tx.Model(&models.MessageSeen{}).
		Where("message_id = ?", messageID).
		Order("cdate asc, user_id asc").
		Pluck("user_id", &ids).Error
	return ids, err
}
