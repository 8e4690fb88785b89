package web

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/notepid/twilight_forum/internal/forum"
)

type areaView struct {
	ID           int          `json:"id"`
	Topic        string       `json:"topic"`
	IsSecret     bool         `json:"is_secret"`
	ThreadCount  int          `json:"thread_count"`
	MessageCount int          `json:"message_count"`
	LastMessage  *time.Time   `json:"last_message,omitempty"`
	LastAgo      string       `json:"last_message_ago,omitempty"`
	Threads      []threadView `json:"threads,omitempty"`
}

type threadView struct {
	ID           int           `json:"id"`
	AreaID       int           `json:"area_id"`
	AreaTopic    string        `json:"area_topic,omitempty"`
	Title        string        `json:"title"`
	Owner        string        `json:"owner"`
	MessageCount int           `json:"message_count"`
	LastMessage  *time.Time    `json:"last_message,omitempty"`
	LastAgo      string        `json:"last_message_ago,omitempty"`
	Messages     []messageView `json:"messages,omitempty"`
}

type messageView struct {
	ID          int       `json:"id"`
	ThreadID    int       `json:"thread_id"`
	ThreadTitle string    `json:"thread_title,omitempty"`
	AreaID      int       `json:"area_id,omitempty"`
	Sender      string    `json:"sender"`
	Text        string    `json:"text"`
	ImageURL    string    `json:"image_url,omitempty"`
	SentTime    time.Time `json:"sent_time"`
	SentAgo     string    `json:"sent_ago"`
}

type notificationView struct {
	ID          int       `json:"id"`
	ThreadID    int       `json:"thread_id"`
	ThreadTitle string    `json:"thread_title"`
	AreaTopic   string    `json:"area_topic"`
	Sender      string    `json:"sender"`
	Message     string    `json:"message"`
	SentTime    time.Time `json:"sent_time"`
	SentAgo     string    `json:"sent_ago"`
}

type searchView struct {
	Areas    []areaView    `json:"areas"`
	Threads  []threadView  `json:"threads"`
	Messages []messageView `json:"messages"`
}

func ago(t *time.Time) string {
	if t == nil {
		return ""
	}
	return humanize.Time(*t)
}

func newAreaView(a *forum.Area) areaView {
	v := areaView{
		ID:           a.ID,
		Topic:        a.Topic,
		IsSecret:     a.IsSecret,
		ThreadCount:  a.ThreadCount,
		MessageCount: a.MessageCount,
		LastMessage:  a.LastMessage,
		LastAgo:      ago(a.LastMessage),
	}
	for _, t := range a.Threads {
		v.Threads = append(v.Threads, newThreadView(t))
	}
	return v
}

func newThreadView(t *forum.Thread) threadView {
	v := threadView{
		ID:           t.ID,
		AreaID:       t.AreaID,
		AreaTopic:    t.AreaTopic,
		Title:        t.Title,
		Owner:        t.OwnerName,
		MessageCount: t.MessageCount,
		LastMessage:  t.LastMessage,
		LastAgo:      ago(t.LastMessage),
	}
	for _, m := range t.Messages {
		v.Messages = append(v.Messages, newMessageView(m))
	}
	return v
}

func newMessageView(m *forum.Message) messageView {
	return messageView{
		ID:          m.ID,
		ThreadID:    m.ThreadID,
		ThreadTitle: m.ThreadTitle,
		AreaID:      m.AreaID,
		Sender:      m.SenderName,
		Text:        m.Text,
		ImageURL:    m.ImageURL,
		SentTime:    m.SentTime,
		SentAgo:     humanize.Time(m.SentTime),
	}
}

func newNotificationView(n *forum.Notification) notificationView {
	return notificationView{
		ID:          n.ID,
		ThreadID:    n.ThreadID,
		ThreadTitle: n.ThreadTitle,
		AreaTopic:   n.AreaTopic,
		Sender:      n.SenderName,
		Message:     n.Message,
		SentTime:    n.SentTime,
		SentAgo:     humanize.Time(n.SentTime),
	}
}

func newSearchView(res *forum.SearchResults) searchView {
	v := searchView{
		Areas:    []areaView{},
		Threads:  []threadView{},
		Messages: []messageView{},
	}
	for _, a := range res.Areas {
		v.Areas = append(v.Areas, newAreaView(a))
	}
	for _, t := range res.Threads {
		v.Threads = append(v.Threads, newThreadView(t))
	}
	for _, m := range res.Messages {
		v.Messages = append(v.Messages, newMessageView(m))
	}
	return v
}
