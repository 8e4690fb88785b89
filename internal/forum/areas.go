package forum

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/notepid/twilight_forum/internal/access"
	"github.com/notepid/twilight_forum/internal/db"
	"github.com/notepid/twilight_forum/internal/domain"
)

// AreaRepo handles database operations for areas.
type AreaRepo struct {
	q db.Querier
}

// NewAreaRepo creates an area repository over a database handle or transaction.
func NewAreaRepo(q db.Querier) *AreaRepo {
	return &AreaRepo{q: q}
}

// Create inserts an area and returns its ID.
func (r *AreaRepo) Create(ctx context.Context, topic string, isSecret bool) (int, error) {
	result, err := r.q.ExecContext(ctx, `
		INSERT INTO areas (topic, is_secret) VALUES (?, ?)
	`, topic, isSecret)
	if err != nil {
		return 0, fmt.Errorf("create area: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get area id: %w", err)
	}
	return int(id), nil
}

// Get returns a single area by ID without any visibility check.
func (r *AreaRepo) Get(ctx context.Context, id int) (*Area, error) {
	a := &Area{}
	err := r.q.QueryRowContext(ctx, `
		SELECT id, topic, is_secret FROM areas WHERE id = ?
	`, id).Scan(&a.ID, &a.Topic, &a.IsSecret)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get area %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get area %d: %w", id, err)
	}
	return a, nil
}

// ListVisible returns the areas p may read, with statistics.
func (r *AreaRepo) ListVisible(ctx context.Context, p domain.Principal) ([]*Area, error) {
	cond, args := access.VisibleAreas(p, "a")
	rows, err := r.q.QueryContext(ctx, `
		SELECT a.id, a.topic, a.is_secret,
		       (SELECT COUNT(*) FROM threads t WHERE t.area_id = a.id) AS thread_count,
		       (SELECT COUNT(*) FROM messages m JOIN threads t ON t.id = m.thread_id
		         WHERE t.area_id = a.id) AS message_count
		FROM areas a
		WHERE `+cond+`
		ORDER BY a.id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list areas: %w", err)
	}
	defer rows.Close()

	var areas []*Area
	for rows.Next() {
		a := &Area{}
		if err := rows.Scan(&a.ID, &a.Topic, &a.IsSecret, &a.ThreadCount, &a.MessageCount); err != nil {
			return nil, err
		}
		areas = append(areas, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, a := range areas {
		if a.LastMessage, err = r.lastMessage(ctx, a.ID); err != nil {
			return nil, err
		}
	}
	return areas, nil
}

func (r *AreaRepo) lastMessage(ctx context.Context, areaID int) (*time.Time, error) {
	var last time.Time
	err := r.q.QueryRowContext(ctx, `
		SELECT m.sent_time FROM messages m
		JOIN threads t ON t.id = m.thread_id
		WHERE t.area_id = ?
		ORDER BY m.sent_time DESC LIMIT 1
	`, areaID).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last message in area %d: %w", areaID, err)
	}
	return &last, nil
}

// ImageRefs returns the image references of every message in the area.
func (r *AreaRepo) ImageRefs(ctx context.Context, areaID int) ([]string, error) {
	return queryImageRefs(ctx, r.q, `
		SELECT m.image_url FROM messages m
		JOIN threads t ON t.id = m.thread_id
		WHERE t.area_id = ? AND m.image_url IS NOT NULL AND m.image_url != ''
	`, areaID)
}

// Delete removes an area. Threads, messages, notifications and privilege
// grants go with it through foreign-key cascades.
func (r *AreaRepo) Delete(ctx context.Context, id int) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM areas WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete area %d: %w", id, err)
	}
	return expectRow(res, "area", id)
}

func queryImageRefs(ctx context.Context, q db.Querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list image refs: %w", err)
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func expectRow(res sql.Result, kind string, id int) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, domain.ErrNotFound)
	}
	return nil
}
