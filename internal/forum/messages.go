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

// MessageRepo handles database operations for messages.
type MessageRepo struct {
	q db.Querier
}

// NewMessageRepo creates a message repository.
func NewMessageRepo(q db.Querier) *MessageRepo {
	return &MessageRepo{q: q}
}

// Create inserts a message. imageURL may be empty.
func (r *MessageRepo) Create(ctx context.Context, threadID, senderID int, text, imageURL string, sent time.Time) (int, error) {
	var image sql.NullString
	if imageURL != "" {
		image = sql.NullString{String: imageURL, Valid: true}
	}
	result, err := r.q.ExecContext(ctx, `
		INSERT INTO messages (thread_id, sender_id, text, image_url, sent_time)
		VALUES (?, ?, ?, ?, ?)
	`, threadID, senderID, text, image, sent.UTC())
	if err != nil {
		return 0, fmt.Errorf("post message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get message id: %w", err)
	}
	return int(id), nil
}

// Get returns a single message with its thread's area and secrecy flag.
func (r *MessageRepo) Get(ctx context.Context, id int) (*Message, error) {
	msg, err := r.getOne(ctx, "m.id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("get message %d: %w", id, err)
	}
	return msg, nil
}

// FindByImage returns the message an image reference is attached to.
func (r *MessageRepo) FindByImage(ctx context.Context, imageURL string) (*Message, error) {
	msg, err := r.getOne(ctx, "m.image_url = ?", imageURL)
	if err != nil {
		return nil, fmt.Errorf("find message for image %s: %w", imageURL, err)
	}
	return msg, nil
}

func (r *MessageRepo) getOne(ctx context.Context, where string, arg any) (*Message, error) {
	msg := &Message{}
	var image sql.NullString
	err := r.q.QueryRowContext(ctx, `
		SELECT m.id, m.thread_id, m.sender_id, COALESCE(u.username, 'Unknown'),
		       m.text, m.image_url, m.sent_time,
		       t.title, a.id, a.topic, a.is_secret
		FROM messages m
		JOIN threads t ON t.id = m.thread_id
		JOIN areas a ON a.id = t.area_id
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE `+where+`
		LIMIT 1
	`, arg).Scan(&msg.ID, &msg.ThreadID, &msg.SenderID, &msg.SenderName,
		&msg.Text, &image, &msg.SentTime,
		&msg.ThreadTitle, &msg.AreaID, &msg.AreaTopic, &msg.areaSecret)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	msg.ImageURL = image.String
	return msg, nil
}

// ListByThread returns the messages of a thread ordered by sent time.
func (r *MessageRepo) ListByThread(ctx context.Context, threadID int) ([]*Message, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT m.id, m.thread_id, m.sender_id, COALESCE(u.username, 'Unknown'),
		       m.text, m.image_url, m.sent_time
		FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.thread_id = ?
		ORDER BY m.sent_time ASC, m.id ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{}
		var image sql.NullString
		if err := rows.Scan(&msg.ID, &msg.ThreadID, &msg.SenderID, &msg.SenderName,
			&msg.Text, &image, &msg.SentTime); err != nil {
			return nil, err
		}
		msg.ImageURL = image.String
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// CountInThread returns the number of messages in a thread.
func (r *MessageRepo) CountInThread(ctx context.Context, threadID int) (int, error) {
	var count int
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages WHERE thread_id = ?", threadID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages in thread %d: %w", threadID, err)
	}
	return count, nil
}

// Delete removes a single message.
func (r *MessageRepo) Delete(ctx context.Context, id int) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete message %d: %w", id, err)
	}
	return expectRow(res, "message", id)
}
