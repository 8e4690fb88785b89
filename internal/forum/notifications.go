package forum

import (
	"context"
	"fmt"
	"time"

	"github.com/notepid/twilight_forum/internal/access"
	"github.com/notepid/twilight_forum/internal/db"
	"github.com/notepid/twilight_forum/internal/domain"
)

// NotificationRepo stores per-user notices about new posts.
type NotificationRepo struct {
	q db.Querier
}

// NewNotificationRepo creates a notification repository.
func NewNotificationRepo(q db.Querier) *NotificationRepo {
	return &NotificationRepo{q: q}
}

// Create records a notification for userID.
func (r *NotificationRepo) Create(ctx context.Context, userID, threadID, senderID int, text string, sent time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO notifications (user_id, thread_id, sender_id, message, sent_time)
		VALUES (?, ?, ?, ?, ?)
	`, userID, threadID, senderID, text, sent.UTC())
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListVisible returns p's notifications, newest first, for threads whose
// area p can still read.
func (r *NotificationRepo) ListVisible(ctx context.Context, p domain.Principal, limit int) ([]*Notification, error) {
	cond, args := access.VisibleAreas(p, "a")
	args = append([]any{p.UserID}, args...)
	args = append(args, limit)
	rows, err := r.q.QueryContext(ctx, `
		SELECT n.id, n.thread_id, t.title, a.id, a.topic,
		       n.sender_id, COALESCE(u.username, 'Unknown'), n.message, n.sent_time
		FROM notifications n
		JOIN threads t ON t.id = n.thread_id
		JOIN areas a ON a.id = t.area_id
		LEFT JOIN users u ON u.id = n.sender_id
		WHERE n.user_id = ? AND `+cond+`
		ORDER BY n.id DESC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n := &Notification{}
		if err := rows.Scan(&n.ID, &n.ThreadID, &n.ThreadTitle, &n.AreaID, &n.AreaTopic,
			&n.SenderID, &n.SenderName, &n.Message, &n.SentTime); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
