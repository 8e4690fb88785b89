package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/notepid/twilight_forum/internal/db"
	"github.com/notepid/twilight_forum/internal/domain"
)

// Repo handles database operations for users.
type Repo struct {
	db *db.DB
}

// NewRepo creates a new user repository.
func NewRepo(database *db.DB) *Repo {
	return &Repo{db: database}
}

// Create inserts a new user with an already hashed password.
// A duplicate username yields domain.ErrUsernameTaken.
func (r *Repo) Create(ctx context.Context, username, passwordHash string) (*User, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, is_admin) VALUES (?, ?, 0)
	`, username, passwordHash)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, domain.ErrUsernameTaken
		}
		return nil, fmt.Errorf("create user %s: %w", username, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get user id: %w", err)
	}

	return r.GetByID(ctx, int(id))
}

// GetByID retrieves a user by ID.
func (r *Repo) GetByID(ctx context.Context, id int) (*User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, is_admin, created_at
		FROM users WHERE id = ?
	`, id))
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

// GetByUsername retrieves a user by exact, case-sensitive username.
func (r *Repo) GetByUsername(ctx context.Context, username string) (*User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, is_admin, created_at
		FROM users WHERE username = ?
	`, username))
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", username, err)
	}
	return u, nil
}

// Exists checks if a username is already taken.
func (r *Repo) Exists(ctx context.Context, username string) (bool, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&count); err != nil {
		return false, fmt.Errorf("check username %s: %w", username, err)
	}
	return count > 0, nil
}

// SetAdmin changes a user's role flag. Only the admin console calls this;
// there is no in-product promotion flow.
func (r *Repo) SetAdmin(ctx context.Context, id int, isAdmin bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET is_admin = ? WHERE id = ?`, isAdmin, id)
	if err != nil {
		return fmt.Errorf("set admin for user %d: %w", id, err)
	}
	return expectOne(res, id)
}

// UpdatePasswordHash replaces a user's password hash.
func (r *Repo) UpdatePasswordHash(ctx context.Context, id int, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("update password for user %d: %w", id, err)
	}
	return expectOne(res, id)
}

// List returns all users, ordered by username.
func (r *Repo) List(ctx context.Context) ([]*User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, username, is_admin, created_at
		FROM users ORDER BY username
	`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u := &User{}
		var created sql.NullTime
		if err := rows.Scan(&u.ID, &u.Username, &u.IsAdmin, &created); err != nil {
			return nil, err
		}
		if created.Valid {
			u.CreatedAt = created.Time
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(row *sql.Row) (*User, error) {
	u := &User{}
	var created sql.NullTime
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if created.Valid {
		u.CreatedAt = created.Time
	}
	return u, nil
}

func expectOne(res sql.Result, id int) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
	}
	return nil
}
