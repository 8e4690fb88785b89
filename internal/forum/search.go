package forum

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/notepid/twilight_forum/internal/access"
	"github.com/notepid/twilight_forum/internal/db"
	"github.com/notepid/twilight_forum/internal/domain"
)

// searchLimit caps each result group.
const searchLimit = 50

// SearchRepo runs substring searches restricted to areas a principal can read.
type SearchRepo struct {
	q db.Querier
}

// NewSearchRepo creates a search repository.
func NewSearchRepo(q db.Querier) *SearchRepo {
	return &SearchRepo{q: q}
}

// Search matches query against area topics, thread titles and message text,
// ignoring case for any script.
func (r *SearchRepo) Search(ctx context.Context, p domain.Principal, query string) (*SearchResults, error) {
	pattern := likePattern(db.Fold(query))
	cond, visArgs := access.VisibleAreas(p, "a")
	args := func() []any {
		out := append([]any{pattern}, visArgs...)
		return append(out, searchLimit)
	}

	res := &SearchResults{}

	rows, err := r.q.QueryContext(ctx, `
		SELECT a.id, a.topic, a.is_secret FROM areas a
		WHERE casefold(a.topic) LIKE ? ESCAPE '\' AND `+cond+`
		ORDER BY a.id LIMIT ?
	`, args()...)
	if err != nil {
		return nil, fmt.Errorf("search areas: %w", err)
	}
	err = scanEach(rows, func(rows *sql.Rows) error {
		a := &Area{}
		if err := rows.Scan(&a.ID, &a.Topic, &a.IsSecret); err != nil {
			return err
		}
		res.Areas = append(res.Areas, a)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search areas: %w", err)
	}

	rows, err = r.q.QueryContext(ctx, `
		SELECT t.id, t.area_id, a.topic, t.title, t.owner_id, COALESCE(u.username, 'Unknown')
		FROM threads t
		JOIN areas a ON a.id = t.area_id
		LEFT JOIN users u ON u.id = t.owner_id
		WHERE casefold(t.title) LIKE ? ESCAPE '\' AND `+cond+`
		ORDER BY t.id LIMIT ?
	`, args()...)
	if err != nil {
		return nil, fmt.Errorf("search threads: %w", err)
	}
	err = scanEach(rows, func(rows *sql.Rows) error {
		t := &Thread{}
		if err := rows.Scan(&t.ID, &t.AreaID, &t.AreaTopic, &t.Title, &t.OwnerID, &t.OwnerName); err != nil {
			return err
		}
		res.Threads = append(res.Threads, t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search threads: %w", err)
	}

	rows, err = r.q.QueryContext(ctx, `
		SELECT m.id, m.thread_id, m.sender_id, COALESCE(u.username, 'Unknown'),
		       m.text, m.image_url, m.sent_time, t.title, a.id, a.topic
		FROM messages m
		JOIN threads t ON t.id = m.thread_id
		JOIN areas a ON a.id = t.area_id
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE casefold(m.text) LIKE ? ESCAPE '\' AND `+cond+`
		ORDER BY m.id LIMIT ?
	`, args()...)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	err = scanEach(rows, func(rows *sql.Rows) error {
		msg := &Message{}
		var image sql.NullString
		if err := rows.Scan(&msg.ID, &msg.ThreadID, &msg.SenderID, &msg.SenderName,
			&msg.Text, &image, &msg.SentTime, &msg.ThreadTitle, &msg.AreaID, &msg.AreaTopic); err != nil {
			return err
		}
		msg.ImageURL = image.String
		res.Messages = append(res.Messages, msg)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}

	return res, nil
}

func scanEach(rows *sql.Rows, fn func(*sql.Rows) error) error {
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
