package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Service authenticates users and issues access tokens.
type Service struct {
	users  UserRepository
	secret string
	ttl    time.Duration
}

// NewService creates an auth service signing tokens with secret.
func NewService(users UserRepository, secret string, ttl time.Duration) *Service {
	return &Service{users: users, secret: secret, ttl: ttl}
}

// Token is the result of a successful login.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        *User     `json:"user"`
}

// Login checks credentials and returns a signed access token.
// Unknown users and wrong passwords both report ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (*Token, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	now := time.Now().UTC()
	if err := s.users.TouchLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("recording login: %w", err)
	}
	user.LastLoginAt = &now

	signed, expires, err := GenerateAccessToken(user, s.secret, s.ttl)
	if err != nil {
		return nil, err
	}
	return &Token{AccessToken: signed, TokenType: "Bearer", ExpiresAt: expires, User: user}, nil
}

// Verify parses an access token and returns the caller it identifies.
func (s *Service) Verify(token string) (Subject, error) {
	claims, err := ParseToken(token, s.secret)
	if err != nil {
		return Subject{}, err
	}
	return claims.Caller(), nil
}
