package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/estatehub/estatehub/internal/shared"
	"github.com/estatehub/estatehub/internal/users"
)

// UserFinder looks up accounts by email.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (users.User, error)
}

// Session is the result of a successful login.
type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Service wraps authentication business rules.
type Service struct {
	users  UserFinder
	tokens *TokenService
}

// NewService constructs a new Service.
func NewService(users UserFinder, tokens *TokenService) *Service {
	return &Service{users: users, tokens: tokens}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (users.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	if !user.IsActive || user.PasswordHash == "" {
		return users.User{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	token, expires, err := s.tokens.Issue(user.ID.String(), user.Email)
	if err != nil {
		return Session{}, err
	}
	return Session{AccessToken: token, TokenType: "Bearer", ExpiresAt: expires}, nil
}
