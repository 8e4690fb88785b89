package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/notepid/twilight_forum/internal/credential"
	"github.com/notepid/twilight_forum/internal/domain"
)

// Service implements registration and authentication on top of Repo.
type Service struct {
	repo  *Repo
	creds *credential.Service
}

// NewService creates a user service.
func NewService(repo *Repo, creds *credential.Service) *Service {
	return &Service{repo: repo, creds: creds}
}

// Repo exposes the underlying repository.
func (s *Service) Repo() *Repo {
	return s.repo
}

// Register validates and creates a new account. Checks run in order:
// username syntax, username availability, password strength, confirmation.
func (s *Service) Register(ctx context.Context, username, password, confirm string) (*User, error) {
	if !credential.ValidUsername(username) {
		return nil, domain.Invalid("username", "must be 1-32 letters or digits")
	}

	taken, err := s.repo.Exists(ctx, username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, domain.ErrUsernameTaken
	}

	strong, err := s.creds.StrongEnough(ctx, password)
	if err != nil {
		return nil, err
	}
	if !strong {
		return nil, domain.ErrWeakPassword
	}
	if password != confirm {
		return nil, domain.ErrPasswordMismatch
	}

	hash, err := s.creds.Hash(ctx, password)
	if err != nil {
		return nil, err
	}

	// The unique constraint still guards the race between Exists and Create.
	u, err := s.repo.Create(ctx, username, hash)
	if err != nil {
		return nil, err
	}
	slog.Info("user registered", "user_id", u.ID)
	return u, nil
}

// Authenticate checks username/password and returns the session principal.
// Unknown usernames and wrong passwords fail identically with
// domain.ErrInvalidCredentials, and both paths pay for one bcrypt comparison.
func (s *Service) Authenticate(ctx context.Context, username, password string) (domain.Principal, error) {
	u, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.Anonymous(), err
		}
		if err := s.creds.VerifyNothing(ctx, password); err != nil {
			return domain.Anonymous(), err
		}
		return domain.Anonymous(), domain.ErrInvalidCredentials
	}

	ok, err := s.creds.Verify(ctx, password, u.PasswordHash)
	if err != nil {
		return domain.Anonymous(), err
	}
	if !ok {
		return domain.Anonymous(), domain.ErrInvalidCredentials
	}

	return u.Principal(), nil
}

// ResetPassword sets a new password for a user after the same strength check
// registration applies.
func (s *Service) ResetPassword(ctx context.Context, id int, password string) error {
	strong, err := s.creds.StrongEnough(ctx, password)
	if err != nil {
		return err
	}
	if !strong {
		return domain.ErrWeakPassword
	}
	hash, err := s.creds.Hash(ctx, password)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePasswordHash(ctx, id, hash); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	return nil
}
