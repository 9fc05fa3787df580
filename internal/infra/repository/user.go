package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/lacomunita/comunita/internal/domain"
	"github.com/lacomunita/comunita/internal/infra/database/models"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func userToDomain(m models.User) domain.User {
	return domain.User{
		ID:         m.ID,
		Handle:     m.Handle,
		PictureURL: m.PictureURL,
		CDate:      m.CDate,
	}
}

func (r *UserRepository) Create(ctx context.Context, handle, passwordHash, pictureURL string) (domain.User, error) {
	m := models.User{
		Handle:       handle,
		PasswordHash: passwordHash,
		PictureURL:   pictureURL,
	}

	err := r.db.WithContext(ctx).Create(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.User{}, domain.ConflictError{Reason: "handle already taken"}
		}
		return domain.User{}, err
	}

	return userToDomain(m), nil
}

func (r *UserRepository) Get(ctx context.Context, id int64) (domain.User, error) {
	var m models.User
	err := r.db.WithContext(ctx).Take(&m, "id = ?", id).Error
	if err != nil {
		return domain.User{}, notFoundAs(err, "user")
	}
	return userToDomain(m), nil
}

// GetByHandle also returns the password hash for credential checks; the hash
// never crosses the usecase boundary.
func (r *UserRepository) GetByHandle(ctx context.Context, handle string) (domain.User, string, error) {
	var m models.User
	err := r.db.WithContext(ctx).Take(&m, "handle = ?", handle).Error
	if err != nil {
		return domain.User{}, "", notFoundAs(err, "user")
	}
	return userToDomain(m), m.PasswordHash, nil
}

func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	var rows []models.User
	err := r.db.WithContext(ctx).Order("id asc").Find(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make([]domain.User, 0, len(rows))
	for _, m := range rows {
		result = append(result, userToDomain(m))
	}
	return result, nil
}
