package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"passionautos/internal/chat"
	"passionautos/internal/infra/security"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrPasswordTooShort   = errors.New("auth: password must be at least 8 characters")
	ErrEmailRequired      = errors.New("auth: email is required")
)

// UserStore is the account persistence the service needs.
type UserStore interface {
	User(ctx context.Context, id string) (chat.Participant, error)
	UserByEmail(ctx context.Context, email string) (chat.UserAccount, error)
	CreateUser(ctx context.Context, account chat.UserAccount) (chat.UserAccount, error)
}

// Service registers accounts and exchanges credentials for bearer tokens.
type Service struct {
	Users  UserStore
	Hasher security.BcryptHasher
	Tokens *security.TokenService
	Logger *slog.Logger
}

type RegisterParams struct {
	Email     string
	FirstName string
	LastName  string
	Password  string
}

type LoginParams struct {
	Email    string
	Password string
}

// Result pairs the resolved account with a freshly issued token.
type Result struct {
	User  chat.UserAccount
	Token string
}

func (s *Service) Register(ctx context.Context, params RegisterParams) (Result, error) {
	email := strings.ToLower(strings.TrimSpace(params.Email))
	if email == "" {
		return Result{}, ErrEmailRequired
	}
	if len(params.Password) < 8 {
		return Result{}, ErrPasswordTooShort
	}
	hash, err := s.Hasher.Hash(params.Password)
	if err != nil {
		return Result{}, fmt.Errorf("auth: hash password: %w", err)
	}
	created, err := s.Users.CreateUser(ctx, chat.UserAccount{
		Email:        email,
		FirstName:    strings.TrimSpace(params.FirstName),
		LastName:     strings.TrimSpace(params.LastName),
		PasswordHash: hash,
	})
	if err != nil {
		return Result{}, err
	}
	token, err := s.Tokens.Issue(created.ID)
	if err != nil {
		return Result{}, fmt.Errorf("auth: issue token: %w", err)
	}
	if s.Logger != nil {
		s.Logger.Info("user registered", "user_id", created.ID)
	}
	return Result{User: created, Token: token}, nil
}

func (s *Service) Login(ctx context.Context, params LoginParams) (Result, error) {
	email := strings.ToLower(strings.TrimSpace(params.Email))
	account, err := s.Users.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, chat.ErrUserNotFound) {
			return Result{}, ErrInvalidCredentials
		}
		return Result{}, err
	}
	if err := s.Hasher.Compare(account.PasswordHash, params.Password); err != nil {
		return Result{}, ErrInvalidCredentials
	}
	token, err := s.Tokens.Issue(account.ID)
	if err != nil {
		return Result{}, fmt.Errorf("auth: issue token: %w", err)
	}
	return Result{User: account, Token: token}, nil
}

// ResolveToken verifies a bearer token and loads the account it names.
func (s *Service) ResolveToken(ctx context.Context, token string) (chat.Participant, error) {
	userID, err := s.Tokens.Verify(token)
	if err != nil {
		return chat.Participant{}, err
	}
	return s.Users.User(ctx, userID)
}
