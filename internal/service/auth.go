package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/lacomunita/comunita/internal/domain"
)

var tracer = otel.Tracer("auth")

const tokenLifetime = 24 * time.Hour

type AuthService struct {
	secret []byte
	issuer string
	cache  *cache.Cache
}

func NewAuthService(secret, issuer string) *AuthService {
	return &AuthService{
		secret: []byte(secret),
		issuer: issuer,
		cache:  cache.New(5*time.Minute, 10*time.Minute),
	}
}

type AuthResult struct {
	UserID int64
	Handle string
}

// IssueToken signs a bearer token for the user. Called explicitly on
// register and login, not from a persistence hook.
func (s *AuthService) IssueToken(user domain.User) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   strconv.FormatInt(user.ID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
		ID:        uuid.New().String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "AuthService.IssueToken: signing failed")
	}
	return signed, nil
}

// VerifyToken resolves a bearer token to a requester identity. Verified
// tokens are cached until shortly before expiry.
func (s *AuthService) VerifyToken(ctx context.Context, token string) (*AuthResult, error) {
	_, span := tracer.Start(ctx, "Auth.Service.VerifyToken")
	defer span.End()

	if cached, found := s.cache.Get(token); found {
		result := cached.(AuthResult)
		return &result, nil
	}

	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		span.RecordError(errors.Wrap(err, "jwt validation failed"))
		return nil, err
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		err := fmt.Errorf("invalid token claims")
		span.RecordError(err)
		return nil, err
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		err := fmt.Errorf("jwt issuer mismatch: expected %s, got %s", s.issuer, claims.Issuer)
		span.RecordError(err)
		return nil, err
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		span.RecordError(fmt.Errorf("invalid subject"))
		return nil, fmt.Errorf("invalid subject")
	}

	result := AuthResult{UserID: userID}

	ttl := cache.DefaultExpiration
	if claims.ExpiresAt != nil {
		if remaining := time.Until(claims.ExpiresAt.Time) - time.Minute; remaining > 0 && remaining < 5*time.Minute {
			ttl = remaining
		}
	}
	s.cache.Set(token, result, ttl)

	return &result, nil
}
