package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lacomunita/comunita/internal/domain"
	"github.com/lacomunita/comunita/internal/infra/database/models"
)

// Membership ledger helpers. Every function here runs inside a caller-owned
// transaction; callers lock the joinable row before mutating its member set
// so the activity recompute and the empty-set check never act on stale
// counts.

func addGroupMember(tx *gorm.DB, groupID, userID int64) error {
	err := tx.Clauses(clause.OnConflict{
		DoNothing: true,
	}).Create(&models.GroupMember{
		GroupID: groupID,
		UserID:  userID,
	}).Error
	if err != nil {
		return err
	}
	return recomputeGroupActivity(tx, groupID)
}

func addChatMember(tx *gorm.DB, chatID, userID int64) error {
	return tx.Clauses(clause.OnConflict{
		DoNothing: true,
	}).Create(&models.ChatMember{
		ChatID: chatID,
		UserID: userID,
	}).Error
}

func groupMemberCount(tx *gorm.DB, groupID int64) (int64, error) {
	var count int64
	err := tx.Model(&models.GroupMember{}).
		Where("group_id = ?", groupID).
		Count(&count).Error
	return count, err
}

func chatMemberCount(tx *gorm.DB, chatID int64) (int64, error) {
	var count int64
	err := tx.Model(&models.ChatMember{}).
		Where("chat_id = ?", chatID).
		Count(&count).Error
	return count, err
}

func recomputeGroupActivity(tx *gorm.DB, groupID int64) error {
	count, err := groupMemberCount(tx, groupID)
	if err != nil {
		return err
	}
	return tx.Model(&models.Group{}).
		Where("id = ?", groupID).
		Update("is_active", domain.GroupActive(count)).Error
}

// collectGroup deletes an emptied group. Its chats and their messages go via
// FK cascade; invitations reference targets polymorphically and are cleaned
// up here.
func collectGroup(tx *gorm.DB, groupID int64) error {
	var chatIDs []int64
	err := tx.Model(&models.Chat{}).
		Where("group_id = ?", groupID).
		Pluck("id", &chatIDs).Error
	if err != nil {
		return err
	}

	if len(chatIDs) > 0 {
		err = tx.Delete(&models.Invitation{},
			"target_kind = ? AND target_id IN ?", string(domain.InviteTargetChat), chatIDs).Error
		if err != nil {
			return err
		}
	}

	err = tx.Delete(&models.Invitation{},
		"target_kind = ? AND target_id = ?", string(domain.InviteTargetGroup), groupID).Error
	if err != nil {
		return err
	}

	return tx.Delete(&models.Group{}, "id = ?", groupID).Error
}

// collectChat deletes an emptied chat; messages and seen-marks go via FK
// cascade.
func collectChat(tx *gorm.DB, chatID int64) error {
	err := tx.Delete(&models.Invitation{},
		"target_kind = ? AND target_id = ?", string(domain.InviteTargetChat), chatID).Error
	if err != nil {
		return err
	}
	return tx.Delete(&models.Chat{}, "id = ?", chatID).Error
}

func communityMemberIDs(tx *gorm.DB, communityID int64) ([]int64, error) {
	ids := []int64{}
	err := tx.Model(&models.CommunityMember{}).
		Where("community_id = ?", communityID).
		Order("cdate asc, user_id asc").
		Pluck("user_id", &ids).Error
	return ids, err
}

func groupMemberIDs(tx *gorm.DB, groupID int64) ([]int64, error) {
	ids := []int64{}
	err := tx.Model(&models.GroupMember{}).
		Where("group_id = ?", groupID).
		Order("cdate asc, user_id asc").
		Pluck("user_id", &ids).Error
	return ids, err
}

func chatMemberIDs(tx *gorm.DB, chatID int64) ([]int64, error) {
	ids := []int64{}
	err := tx.Model(&models.ChatMember{}).
		Where("chat_id = ?", chatID).
		Order("cdate asc, user_id asc").
		Pluck("user_id", &ids).Error
	return ids, err
}

func isGroupMember(tx *gorm.DB, groupID, userID int64) (bool, error) {
	var count int64
	err := tx.Model(&models.GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	return count > 0, err
}

func isChatMember(tx *gorm.DB, chatID, userID int64) (bool, error) {
	var count int64
	err := tx.Model(&models.ChatMember{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&count).Error
	return count > 0, err
}

func isCommunityMember(tx *gorm.DB, communityID, userID int64) (bool, error) {
	var count int64
	err := tx.Model(&models.CommunityMember{}).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		Count(&count).Error
	return count > 0, err
}

func notFoundAs(err error, resource string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NotFoundError{Resource: resource}
	}
	return err
}
