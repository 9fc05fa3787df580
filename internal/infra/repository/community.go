package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lacomunita/comunita/internal/domain"
	"github.com/lacomunita/comunita/internal/infra/database/models"
)

type CommunityRepository struct {
	db *gorm.DB
}

func NewCommunityRepository(db *gorm.DB) *CommunityRepository {
	return &CommunityRepository{db: db}
}

// Create inserts the community and its first membership atomically. No
// reader ever observes the community with an empty member set.
func (r *CommunityRepository) Create(ctx context.Context, name, pictureURL string, creatorID int64) (domain.Community, error) {
	m := models.Community{
		Name:       name,
		PictureURL: pictureURL,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		return tx.Create(&models.CommunityMember{
			CommunityID: m.ID,
			UserID:      creatorID,
		}).Error
	})
	if err != nil {
		return domain.Community{}, err
	}

	return domain.Community{
		ID:         m.ID,
		Name:       m.Name,
		PictureURL: m.PictureURL,
		CDate:      m.CDate,
		Members:    []int64{creatorID},
	}, nil
}

// Get returns the community only if the viewer belongs to it.
func (r *CommunityRepository) Get(ctx context.Context, id, viewerID int64) (domain.Community, error) {
	db := r.db.WithContext(ctx)

	var m models.Community
	err := db.
		Joins("JOIN community_members cm ON cm.community_id = communities.id AND cm.user_id = ?", viewerID).
		Take(&m, "communities.id = ?", id).Error
	if err != nil {
		return domain.Community{}, notFoundAs(err, "community")
	}

	members, err := communityMemberIDs(db, m.ID)
	if err != nil {
		return domain.Community{}, err
	}

	return domain.Community{
		ID:         m.ID,
		Name:       m.Name,
		PictureURL: m.PictureURL,
		CDate:      m.CDate,
		Members:    members,
	}, nil
}

// ListVisible returns the communities the viewer belongs to in insertion
// order.
func (r *CommunityRepository) ListVisible(ctx context.Context, viewerID int64) ([]domain.Community, error) {
	db := r.db.WithContext(ctx)

	var rows []models.Community
	err := db.
		Joins("JOIN community_members cm ON cm.community_id = communities.id AND cm.user_id = ?", viewerID).
		Order("communities.id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make([]domain.Community, 0, len(rows))
	for _, m := range rows {
		members, err := communityMemberIDs(db, m.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, domain.Community{
			ID:         m.ID,
			Name:       m.Name,
			PictureURL: m.PictureURL,
			CDate:      m.CDate,
			Members:    members,
		})
	}
	return result, nil
}

// Join is an open, idempotent membership insert.
func (r *CommunityRepository) Join(ctx context.Context, id, userID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.Community
		if err := tx.Take(&m, "id = ?", id).Error; err != nil {
			return notFoundAs(err, "community")
		}
		return tx.Clauses(clause.OnConflict{
			DoNothing: true,
		}).Create(&models.CommunityMember{
			CommunityID: id,
			UserID:      userID,
		}).Error
	})
}

// Leave removes the membership. Communities are not garbage-collected when
// emptied.
func (r *CommunityRepository) Leave(ctx context.Context, id, userID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.CommunityMember{},
			"community_id = ? AND user_id = ?", id, userID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.NotFoundError{Resource: "community"}
		}
		return nil
	})
}
