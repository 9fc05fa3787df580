package usecase

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/lacomunita/comunita/internal/domain"
)

type UserUsecase struct {
	repo UserRepository
}

func NewUserUsecase(repo UserRepository) *UserUsecase {
	return &UserUsecase{repo: repo}
}

// Register creates a user with a bcrypt-hashed password.
func (uc *UserUsecase) Register(ctx context.Context, handle, password, pictureURL string) (domain.User, error) {
	if handle == "" {
		return domain.User{}, domain.ValidationError{Reason: "handle is required"}
	}
	if password == "" {
		return domain.User{}, domain.ValidationError{Reason: "password is required"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	return uc.repo.Create(ctx, handle, string(hash), pictureURL)
}

// Authenticate checks the handle/password pair. Failures are Forbidden so
// the boundary can map them to 401 without leaking which part was wrong.
func (uc *UserUsecase) Authenticate(ctx context.Context, handle, password string) (domain.User, error) {
	user, hash, err := uc.repo.GetByHandle(ctx, handle)
	if err != nil {
		return domain.User{}, domain.ForbiddenError{Reason: "invalid credentials"}
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return domain.User{}, domain.ForbiddenError{Reason: "invalid credentials"}
	}
	return user, nil
}

func (uc *UserUsecase) Get(ctx context.Context, id int64) (domain.User, error) {
	return uc.repo.Get(ctx, id)
}

func (uc *UserUsecase) List(ctx context.Context) ([]domain.User, error) {
	return uc.repo.List(ctx)
}
