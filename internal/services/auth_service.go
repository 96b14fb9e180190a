package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/callqa-backend/internal/auth"
	"github.com/tbourn/callqa-backend/internal/domain"
	"github.com/tbourn/callqa-backend/internal/observability"
	"github.com/tbourn/callqa-backend/internal/repo"
)

// LoginInput is the body of a login request.
type LoginInput struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Session is an issued session token.
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      domain.User `json:"user"`
}

// AuthService exchanges credentials for session tokens.
type AuthService struct {
	DB     *gorm.DB
	Tokens *auth.Manager
	Now    Clock
}

// Login verifies the credentials and issues a token. Unknown emails and
// wrong passwords both return ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	ctx, span := observability.StartSpan(ctx, "AuthService.Login")
	var err error
	defer func() { observability.EndSpan(span, err) }()

	in.Email = normalizeEmail(in.Email)
	if err = validateStruct(in); err != nil {
		return nil, err
	}
	u, err := repo.GetUserByEmail(ctx, s.DB, in.Email)
	if errors.Is(err, repo.ErrNotFound) {
		err = ErrInvalidCredentials
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, in.Password) {
		err = ErrInvalidCredentials
		return nil, err
	}

	now := s.Now.now()
	token, err := s.Tokens.Issue(now, *u)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: now.Add(s.Tokens.TTL()), User: *u}, nil
}
