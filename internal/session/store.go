// Package session keeps server-side login sessions and the signed tokens
// clients hold to refer to them.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/notepid/twilight_forum/internal/db"
	"github.com/notepid/twilight_forum/internal/domain"
)

// Store persists sessions in the sessions table.
type Store struct {
	db *db.DB
}

// NewStore creates a session store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Create records a session for userID that is valid until expires.
func (s *Store) Create(ctx context.Context, id string, userID int, expires time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, expires_at) VALUES (?, ?, ?)
	`, id, userID, expires.Unix())
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Load returns the principal behind a live session. The role is read from
// the user row, so elevation and demotion apply to existing sessions.
func (s *Store) Load(ctx context.Context, id string, now time.Time) (domain.Principal, error) {
	var (
		p       domain.Principal
		isAdmin bool
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.is_admin
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = ? AND s.expires_at > ?
	`, id, now.Unix()).Scan(&p.UserID, &p.Username, &isAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Anonymous(), domain.ErrAuthRequired
	}
	if err != nil {
		return domain.Anonymous(), fmt.Errorf("load session: %w", err)
	}
	p.Role = domain.RoleFor(isAdmin)
	return p, nil
}

// Delete removes a session. Deleting an unknown session is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteForUser ends every session of userID.
func (s *Store) DeleteForUser(ctx context.Context, userID int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete sessions for user %d: %w", userID, err)
	}
	return res.RowsAffected()
}

// PurgeExpired deletes sessions that expired at or before now.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return res.RowsAffected()
}
