package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bradfitz/gomemcache/memcache"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lacomunita/comunita/internal/domain"
	"github.com/lacomunita/comunita/internal/infra/database/models"
)

type GroupRepository struct {
	db *gorm.DB
	mc *memcache.Client
}

func NewGroupRepository(db *gorm.DB, mc *memcache.Client) *GroupRepository {
	return &GroupRepository{db: db, mc: mc}
}

func groupCacheKey(id int64) string {
	return fmt.Sprintf("comunita:group:%d", id)
}

// Create inserts the group and its first membership atomically. The creator
// must already belong to the parent community.
func (r *GroupRepository) Create(ctx context.Context, name, pictureURL string, communityID, creatorID int64) (domain.Group, error) {
	m := models.Group{
		Name:        name,
		PictureURL:  pictureURL,
		CommunityID: communityID,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var community models.Community
		if err := tx.Take(&community, "id = ?", communityID).Error; err != nil {
			return notFoundAs(err, "community")
		}

		member, err := isCommunityMember(tx, communityID, creatorID)
		if err != nil {
			return err
		}
		if !member {
			return domain.ForbiddenError{Reason: "not a community member"}
		}

		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		return tx.Create(&models.GroupMember{
			GroupID: m.ID,
			UserID:  creatorID,
		}).Error
	})
	if err != nil {
		return domain.Group{}, err
	}

	return domain.Group{
		ID:          m.ID,
		Name:        m.Name,
		PictureURL:  m.PictureURL,
		CommunityID: m.CommunityID,
		IsActive:    m.IsActive,
		CDate:       m.CDate,
		Members:     []int64{creatorID},
	}, nil
}

// Get returns the group only if the viewer belongs to it. The group row is
// served through memcache; membership is always checked against the
// database.
func (r *GroupRepository) Get(ctx context.Context, id, viewerID int64) (domain.Group, error) {
	db := r.db.WithContext(ctx)

	member, err := isGroupMember(db, id, viewerID)
	if err != nil {
		return domain.Group{}, err
	}
	if !member {
		return domain.Group{}, domain.NotFoundError{Resource: "group"}
	}

	m, err := r.getRow(ctx, id)
	if err != nil {
		return domain.Group{}, err
	}

	members, err := groupMemberIDs(db, id)
	if err != nil {
		return domain.Group{}, err
	}

	return domain.Group{
		ID:          m.ID,
		Name:        m.Name,
		PictureURL:  m.PictureURL,
		CommunityID: m.CommunityID,
		IsActive:    m.IsActive,
		CDate:       m.CDate,
		Members:     members,
	}, nil
}

func (r *GroupRepository) getRow(ctx context.Context, id int64) (models.Group, error) {
	var m models.Group

	if r.mc != nil {
		item, err := r.mc.Get(groupCacheKey(id))
		if err == nil {
			if json.Unmarshal(item.Value, &m) == nil {
				return m, nil
			}
		}
	}

	err := r.db.WithContext(ctx).Take(&m, "id = ?", id).Error
	if err != nil {
		return models.Group{}, notFoundAs(err, "group")
	}

	if r.mc != nil {
		if raw, err := json.Marshal(m); err == nil {
			r.mc.Set(&memcache.Item{Key: groupCacheKey(id), Value: raw, Expiration: 60})
		}
	}

	return m, nil
}

func (r *GroupRepository) invalidate(id int64) {
	if r.mc != nil {
		r.mc.Delete(groupCacheKey(id))
	}
}

// ListVisible returns the groups the viewer belongs to in insertion order.
func (r *GroupRepository) ListVisible(ctx context.Context, viewerID int64) ([]domain.Group, error) {
	db := r.db.WithContext(ctx)

	var rows []models.Group
	err := db.
		Joins("JOIN group_members gm ON gm.group_id = groups.id AND gm.user_id = ?", viewerID).
		Order("groups.id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make([]domain.Group, 0, len(rows))
	for _, m := range rows {
		members, err := groupMemberIDs(db, m.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, domain.Group{
			ID:          m.ID,
			Name:        m.Name,
			PictureURL:  m.PictureURL,
			CommunityID: m.CommunityID,
			IsActive:    m.IsActive,
			CDate:       m.CDate,
			Members:     members,
		})
	}
	return result, nil
}

// Leave removes the membership, recomputes the activity flag, and collects
// the group when its member set becomes empty. The group row is locked so
// concurrent membership changes never recompute from stale counts.
func (r *GroupRepository) Leave(ctx context.Context, id, userID int64) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.Group
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&m, "id = ?", id).Error
		if err != nil {
			return notFoundAs(err, "group")
		}

		res := tx.Delete(&models.GroupMember{},
			"group_id = ? AND user_id = ?", id, userID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.NotFoundError{Resource: "group"}
		}

		count, err := groupMemberCount(tx, id)
		if err != nil {
			return err
		}
		if domain.ShouldCollect(domain.KindGroup, count) {
			return collectGroup(tx, id)
		}
		return tx.Model(&models.Group{}).
			Where("id = ?", id).
			Update("is_active", domain.GroupActive(count)).Error
	})
	if err != nil {
		return err
	}

	r.invalidate(id)
	return nil
}
