package forum

import "time"

// Area is a top-level discussion category, optionally secret.
type Area struct {
	ID       int
	Topic    string
	IsSecret bool

	ThreadCount  int        // computed
	MessageCount int        // computed
	LastMessage  *time.Time // computed, nil when the area is empty

	Threads []*Thread // filled by Service.GetArea
}

// Thread is a titled conversation within one area.
type Thread struct {
	ID        int
	AreaID    int
	AreaTopic string // joined from areas
	Title     string
	OwnerID   int
	OwnerName string // joined from users

	MessageCount int        // computed
	LastMessage  *time.Time // computed

	Messages []*Message // filled by Service.GetThread

	areaSecret bool
}

// Message is a single post within a thread.
type Message struct {
	ID         int
	ThreadID   int
	SenderID   int
	SenderName string // joined from users
	Text       string
	ImageURL   string // empty when no image is attached
	SentTime   time.Time

	ThreadTitle string // joined, search results only
	AreaID      int    // joined
	AreaTopic   string // joined, search results only

	areaSecret bool
}

// Post is the content of a new message.
type Post struct {
	Text  string
	Image []byte // optional
}

// Notification tells a thread participant that someone else posted.
type Notification struct {
	ID          int
	ThreadID    int
	ThreadTitle string
	AreaID      int
	AreaTopic   string
	SenderID    int
	SenderName  string
	Message     string
	SentTime    time.Time
}

// SearchResults groups matches by entity type.
type SearchResults struct {
	Areas    []*Area
	Threads  []*Thread
	Messages []*Message
}
