package forum

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/notepid/twilight_forum/internal/db"
	"github.com/notepid/twilight_forum/internal/domain"
)

// ThreadRepo handles database operations for threads.
type ThreadRepo struct {
	q db.Querier
}

// NewThreadRepo creates a thread repository.
func NewThreadRepo(q db.Querier) *ThreadRepo {
	return &ThreadRepo{q: q}
}

// Create inserts a thread. Callers create its first message in the same
// transaction; a thread never exists without messages.
func (r *ThreadRepo) Create(ctx context.Context, areaID int, title string, ownerID int) (int, error) {
	result, err := r.q.ExecContext(ctx, `
		INSERT INTO threads (area_id, title, owner_id) VALUES (?, ?, ?)
	`, areaID, title, ownerID)
	if err != nil {
		return 0, fmt.Errorf("create thread: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get thread id: %w", err)
	}
	return int(id), nil
}

// Get returns a thread with its owning area's topic and secrecy flag.
func (r *ThreadRepo) Get(ctx context.Context, id int) (*Thread, error) {
	t := &Thread{}
	err := r.q.QueryRowContext(ctx, `
		SELECT t.id, t.area_id, a.topic, a.is_secret, t.title, t.owner_id,
		       COALESCE(u.username, 'Unknown'),
		       (SELECT COUNT(*) FROM messages m WHERE m.thread_id = t.id)
		FROM threads t
		JOIN areas a ON a.id = t.area_id
		LEFT JOIN users u ON u.id = t.owner_id
		WHERE t.id = ?
	`, id).Scan(&t.ID, &t.AreaID, &t.AreaTopic, &t.areaSecret, &t.Title, &t.OwnerID,
		&t.OwnerName, &t.MessageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get thread %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get thread %d: %w", id, err)
	}
	return t, nil
}

// ListByArea returns the threads of an area with message statistics.
// Threads are created together with their first message, so ID order is
// first-message order.
func (r *ThreadRepo) ListByArea(ctx context.Context, areaID int) ([]*Thread, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT t.id, t.area_id, a.topic, t.title, t.owner_id,
		       COALESCE(u.username, 'Unknown'),
		       (SELECT COUNT(*) FROM messages m WHERE m.thread_id = t.id)
		FROM threads t
		JOIN areas a ON a.id = t.area_id
		LEFT JOIN users u ON u.id = t.owner_id
		WHERE t.area_id = ?
		ORDER BY t.id ASC
	`, areaID)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var threads []*Thread
	for rows.Next() {
		t := &Thread{}
		if err := rows.Scan(&t.ID, &t.AreaID, &t.AreaTopic, &t.Title, &t.OwnerID,
			&t.OwnerName, &t.MessageCount); err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, t := range threads {
		if t.LastMessage, err = r.lastMessage(ctx, t.ID); err != nil {
			return nil, err
		}
	}
	return threads, nil
}

func (r *ThreadRepo) lastMessage(ctx context.Context, threadID int) (*time.Time, error) {
	var last time.Time
	err := r.q.QueryRowContext(ctx, `
		SELECT sent_time FROM messages WHERE thread_id = ?
		ORDER BY sent_time DESC LIMIT 1
	`, threadID).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last message in thread %d: %w", threadID, err)
	}
	return &last, nil
}

// ImageRefs returns the image references of every message in the thread.
func (r *ThreadRepo) ImageRefs(ctx context.Context, threadID int) ([]string, error) {
	return queryImageRefs(ctx, r.q, `
		SELECT image_url FROM messages
		WHERE thread_id = ? AND image_url IS NOT NULL AND image_url != ''
	`, threadID)
}

// Participants returns the owner and every sender of the thread.
func (r *ThreadRepo) Participants(ctx context.Context, threadID int) ([]int, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT owner_id FROM threads WHERE id = ?
		UNION
		SELECT sender_id FROM messages WHERE thread_id = ?
	`, threadID, threadID)
	if err != nil {
		return nil, fmt.Errorf("list participants of thread %d: %w", threadID, err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes a thread; its messages and notifications cascade.
func (r *ThreadRepo) Delete(ctx context.Context, id int) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete thread %d: %w", id, err)
	}
	return expectRow(res, "thread", id)
}
