package forum

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/notepid/twilight_forum/internal/db"
	"github.com/notepid/twilight_forum/internal/domain"
)

// PrivilegeRepo handles secret-area privilege grants.
type PrivilegeRepo struct {
	q db.Querier
}

// NewPrivilegeRepo creates a privilege repository.
func NewPrivilegeRepo(q db.Querier) *PrivilegeRepo {
	return &PrivilegeRepo{q: q}
}

// Has reports whether userID holds a grant for areaID.
func (r *PrivilegeRepo) Has(ctx context.Context, areaID, userID int) (bool, error) {
	var count int
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM secret_area_privileges WHERE area_id = ? AND user_id = ?
	`, areaID, userID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check privilege on area %d: %w", areaID, err)
	}
	return count > 0, nil
}

// Grant adds a grant. Granting twice leaves a single row.
func (r *PrivilegeRepo) Grant(ctx context.Context, areaID, userID int) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO secret_area_privileges (area_id, user_id) VALUES (?, ?)
		ON CONFLICT(area_id, user_id) DO NOTHING
	`, areaID, userID)
	if err != nil {
		return fmt.Errorf("grant area %d to user %d: %w", areaID, userID, err)
	}
	return nil
}

// Revoke removes a grant and reports whether one existed.
func (r *PrivilegeRepo) Revoke(ctx context.Context, areaID, userID int) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		DELETE FROM secret_area_privileges WHERE area_id = ? AND user_id = ?
	`, areaID, userID)
	if err != nil {
		return false, fmt.Errorf("revoke area %d from user %d: %w", areaID, userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Usernames lists the users granted access to areaID, ordered by username.
func (r *PrivilegeRepo) Usernames(ctx context.Context, areaID int) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT u.username FROM secret_area_privileges s
		JOIN users u ON u.id = s.user_id
		WHERE s.area_id = ?
		ORDER BY u.username
	`, areaID)
	if err != nil {
		return nil, fmt.Errorf("list access for area %d: %w", areaID, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// UserID resolves a username to its ID, or domain.ErrUserNotFound.
func (r *PrivilegeRepo) UserID(ctx context.Context, username string) (int, error) {
	var id int
	err := r.q.QueryRowContext(ctx, `SELECT id FROM users WHERE username = ?`, username).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("resolve user %s: %w", username, err)
	}
	return id, nil
}
