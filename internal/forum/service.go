package forum

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/notepid/twilight_forum/internal/access"
	"github.com/notepid/twilight_forum/internal/db"
	"github.com/notepid/twilight_forum/internal/domain"
)

// DefaultNotificationLimit is used when Notifications is called without a limit.
const DefaultNotificationLimit = 50

// ImageStore is the file storage boundary for message attachments.
type ImageStore interface {
	Store(ctx context.Context, data []byte) (string, error)
	Delete(ctx context.Context, ref string) error
}

// DecisionObserver is told about every policy decision the service makes.
type DecisionObserver func(ctx context.Context, action access.Action, err error)

// Option configures a Service.
type Option func(*Service)

// WithImages enables image attachments backed by store.
func WithImages(store ImageStore) Option {
	return func(s *Service) { s.images = store }
}

// WithObserver registers a decision observer.
func WithObserver(fn DecisionObserver) Option {
	return func(s *Service) { s.observe = fn }
}

// WithClock overrides the time source used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service enforces the access policy around every forum read and mutation.
type Service struct {
	db     *db.DB
	policy access.Policy

	areas         *AreaRepo
	threads       *ThreadRepo
	messages      *MessageRepo
	privileges    *PrivilegeRepo
	notifications *NotificationRepo
	search        *SearchRepo

	images  ImageStore
	observe DecisionObserver
	now     func() time.Time
}

// NewService creates the forum service over database.
func NewService(database *db.DB, opts ...Option) *Service {
	s := &Service{
		db:            database,
		areas:         NewAreaRepo(database),
		threads:       NewThreadRepo(database),
		messages:      NewMessageRepo(database),
		privileges:    NewPrivilegeRepo(database),
		notifications: NewNotificationRepo(database),
		search:        NewSearchRepo(database),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func requireAuth(p domain.Principal) error {
	if !p.Authenticated() {
		return domain.ErrAuthRequired
	}
	return nil
}

func (s *Service) decide(ctx context.Context, p domain.Principal, a access.Action, r access.Resource) error {
	err := s.policy.Decide(p, a, r)
	if s.observe != nil {
		s.observe(ctx, a, err)
	}
	if errors.Is(err, domain.ErrForbidden) {
		slog.Warn("access denied", "action", a.String(), "user_id", p.UserID)
	}
	return err
}

// resource describes an area-scoped target, looking up p's grant only
// when the answer matters.
func (s *Service) resource(ctx context.Context, p domain.Principal, areaID int, secret bool, owner int) (access.Resource, error) {
	r := access.Resource{AreaSecret: secret, OwnerID: owner}
	if secret && p.Authenticated() && !p.IsAdmin() {
		ok, err := s.privileges.Has(ctx, areaID, p.UserID)
		if err != nil {
			return r, err
		}
		r.Granted = ok
	}
	return r, nil
}

// ListAreas returns every area p may read, with statistics.
func (s *Service) ListAreas(ctx context.Context, p domain.Principal) ([]*Area, error) {
	if err := requireAuth(p); err != nil {
		return nil, err
	}
	return s.areas.ListVisible(ctx, p)
}

// GetArea returns an area with its threads. Areas p may not read are
// reported as domain.ErrNotFound.
func (s *Service) GetArea(ctx context.Context, p domain.Principal, id int) (*Area, error) {
	if err := requireAuth(p); err != nil {
		return nil, err
	}
	area, err := s.areas.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r, err := s.resource(ctx, p, area.ID, area.IsSecret, 0)
	if err != nil {
		return nil, err
	}
	if err := s.decide(ctx, p, access.ReadArea, r); err != nil {
		return nil, fmt.Errorf("get area %d: %w", id, err)
	}

	area.Threads, err = s.threads.ListByArea(ctx, id)
	if err != nil {
		return nil, err
	}
	area.ThreadCount = len(area.Threads)
	for _, t := range area.Threads {
		area.MessageCount += t.MessageCount
		if t.LastMessage != nil && (area.LastMessage == nil || t.LastMessage.After(*area.LastMessage)) {
			area.LastMessage = t.LastMessage
		}
	}
	return area, nil
}

// CreateArea creates an area. The secret flag is honored only for admins.
func (s *Service) CreateArea(ctx context.Context, p domain.Principal, topic string, secret bool) (*Area, error) {
	if err := requireAuth(p); err != nil {
		return nil, err
	}
	if err := ValidateTopic(topic); err != nil {
		return nil, err
	}
	if err := s.decide(ctx, p, access.CreateArea, access.Resource{}); err != nil {
		return nil, err
	}
	isSecret := s.policy.SecretFlag(p, secret)
	if secret && !isSecret {
		slog.Debug("secret flag dropped for non-admin", "user_id", p.UserID)
	}

	id, err := s.areas.Create(ctx, topic, isSecret)
	if err != nil {
		return nil, err
	}
	slog.Info("area created", "area_id", id, "secret", isSecret, "user_id", p.UserID)
	return &Area{ID: id, Topic: topic, IsSecret: isSecret}, nil
}

// DeleteArea removes an area with everything in it. Admin only.
func (s *Service) DeleteArea(ctx context.Context, p domain.Principal, id int) error {
	if err := requireAuth(p); err != nil {
		return err
	}
	if err := s.decide(ctx, p, access.DeleteArea, access.Resource{}); err != nil {
		return err
	}

	var refs []string
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		areas := NewAreaRepo(tx)
		var err error
		if refs, err = areas.ImageRefs(ctx, id); err != nil {
			return err
		}
		return areas.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.removeImages(ctx, refs)
	slog.Info("area deleted", "area_id", id, "user_id", p.UserID)
	return nil
}

// CreateThread starts a thread together with its first message.
func (s *Service) CreateThread(ctx context.Context, p domain.Principal, areaID int, title string, first Post) (*Thread, error) {
	if err := requireAuth(p); err != nil {
		return nil, err
	}
	if err := ValidateTitle(title); err != nil {
		return nil, err
	}
	if err := ValidateMessage(first.Text); err != nil {
		return nil, err
	}
	area, err := s.areas.Get(ctx, areaID)
	if err != nil {
		return nil, err
	}
	r, err := s.resource(ctx, p, area.ID, area.IsSecret, 0)
	if err != nil {
		return nil, err
	}
	if err := s.decide(ctx, p, access.CreateThread, r); err != nil {
		return nil, fmt.Errorf("create thread in area %d: %w", areaID, err)
	}

	ref, err := s.storeImage(ctx, first.Image)
	if err != nil {
		return nil, err
	}

	var threadID int
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		if threadID, err = NewThreadRepo(tx).Create(ctx, areaID, title, p.UserID); err != nil {
			return err
		}
		_, err = NewMessageRepo(tx).Create(ctx, threadID, p.UserID, first.Text, ref, s.now())
		return err
	})
	if err != nil {
		s.removeImages(ctx, []string{ref})
		return nil, err
	}
	return s.threads.Get(ctx, threadID)
}

// GetThread returns a thread with its messages, re-checking the visibility
// of its area.
func (s *Service) GetThread(ctx context.Context, p domain.Principal, id int) (*Thread, error) {
	if err := requireAuth(p); err != nil {
		return nil, err
	}
	t, err := s.threads.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r, err := s.resource(ctx, p, t.AreaID, t.areaSecret, t.OwnerID)
	if err != nil {
		return nil, err
	}
	if err := s.decide(ctx, p, access.ReadThread, r); err != nil {
		return nil, fmt.Errorf("get thread %d: %w", id, err)
	}

	if t.Messages, err = s.messages.ListByThread(ctx, id); err != nil {
		return nil, err
	}
	if n := len(t.Messages); n > 0 {
		last := t.Messages[n-1].SentTime
		t.LastMessage = &last
	}
	return t, nil
}

// AuthorizeImage checks that p may read the message an image reference is
// attached to. Unattached images and images in hidden areas are
// domain.ErrNotFound.
func (s *Service) AuthorizeImage(ctx context.Context, p domain.Principal, ref string) error {
	if err := requireAuth(p); err != nil {
		return err
	}
	msg, err := s.messages.FindByImage(ctx, ref)
	if err != nil {
		return err
	}
	r, err := s.resource(ctx, p, msg.AreaID, msg.areaSecret, msg.SenderID)
	if err != nil {
		return err
	}
	if err := s.decide(ctx, p, access.ReadThread, r); err != nil {
		return fmt.Errorf("read image %s: %w", ref, err)
	}
	return nil
}

// DeleteThread removes a thread. Allowed for its owner and admins.
func (s *Service) DeleteThread(ctx context.Context, p domain.Principal, id int) error {
	if err := requireAuth(p); err != nil {
		return err
	}
	t, err := s.threads.Get(ctx, id)
	if err != nil {
		return err
	}
	r, err := s.resource(ctx, p, t.AreaID, t.areaSecret, t.OwnerID)
	if err != nil {
		return err
	}
	if err := s.decide(ctx, p, access.DeleteThread, r); err != nil {
		return fmt.Errorf("delete thread %d: %w", id, err)
	}

	var refs []string
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		threads := NewThreadRepo(tx)
		var err error
		if refs, err = threads.ImageRefs(ctx, id); err != nil {
			return err
		}
		return threads.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.removeImages(ctx, refs)
	return nil
}

// PostMessage adds a message to a thread and notifies the other participants.
func (s *Service) PostMessage(ctx context.Context, p domain.Principal, threadID int, post Post) (*Message, error) {
	if err := requireAuth(p); err != nil {
		return nil, err
	}
	if err := ValidateMessage(post.Text); err != nil {
		return nil, err
	}
	t, err := s.threads.Get(ctx, threadID)
	if err != nil {
		return nil, err
	}
	r, err := s.resource(ctx, p, t.AreaID, t.areaSecret, 0)
	if err != nil {
		return nil, err
	}
	if err := s.decide(ctx, p, access.PostMessage, r); err != nil {
		return nil, fmt.Errorf("post to thread %d: %w", threadID, err)
	}

	ref, err := s.storeImage(ctx, post.Image)
	if err != nil {
		return nil, err
	}

	var msgID int
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		sent := s.now()
		participants, err := NewThreadRepo(tx).Participants(ctx, threadID)
		if err != nil {
			return err
		}
		if msgID, err = NewMessageRepo(tx).Create(ctx, threadID, p.UserID, post.Text, ref, sent); err != nil {
			return err
		}
		notes := NewNotificationRepo(tx)
		text := excerpt(post.Text, notificationExcerptRunes)
		for _, uid := range participants {
			if uid == p.UserID {
				continue
			}
			if err := notes.Create(ctx, uid, threadID, p.UserID, text, sent); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.removeImages(ctx, []string{ref})
		return nil, err
	}
	return s.messages.Get(ctx, msgID)
}

// DeleteMessage removes a message and reports whether its thread went with
// it. Allowed for the sender and admins.
func (s *Service) DeleteMessage(ctx context.Context, p domain.Principal, id int) (threadDeleted bool, err error) {
	if err := requireAuth(p); err != nil {
		return false, err
	}
	msg, err := s.messages.Get(ctx, id)
	if err != nil {
		return false, err
	}
	r, err := s.resource(ctx, p, msg.AreaID, msg.areaSecret, msg.SenderID)
	if err != nil {
		return false, err
	}
	if err := s.decide(ctx, p, access.DeleteMessage, r); err != nil {
		return false, fmt.Errorf("delete message %d: %w", id, err)
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		messages := NewMessageRepo(tx)
		if err := messages.Delete(ctx, id); err != nil {
			return err
		}
		left, err := messages.CountInThread(ctx, msg.ThreadID)
		if err != nil {
			return err
		}
		if left > 0 {
			return nil
		}
		threadDeleted = true
		return NewThreadRepo(tx).Delete(ctx, msg.ThreadID)
	})
	if err != nil {
		return false, err
	}
	if msg.ImageURL != "" {
		s.removeImages(ctx, []string{msg.ImageURL})
	}
	return threadDeleted, nil
}

// AccessList returns the usernames granted access to a secret area. Admin only.
func (s *Service) AccessList(ctx context.Context, p domain.Principal, areaID int) ([]string, error) {
	if _, err := s.privilegedArea(ctx, p, areaID); err != nil {
		return nil, err
	}
	return s.privileges.Usernames(ctx, areaID)
}

// Grant gives username access to a secret area. Granting twice is a no-op.
func (s *Service) Grant(ctx context.Context, p domain.Principal, areaID int, username string) error {
	area, err := s.privilegedArea(ctx, p, areaID)
	if err != nil {
		return err
	}
	if !area.IsSecret {
		return domain.Invalid("area", "Area is not secret")
	}
	uid, err := s.privileges.UserID(ctx, username)
	if err != nil {
		return err
	}
	if err := s.privileges.Grant(ctx, areaID, uid); err != nil {
		return err
	}
	slog.Info("access granted", "area_id", areaID, "target_user_id", uid, "user_id", p.UserID)
	return nil
}

// Revoke withdraws username's access to a secret area.
func (s *Service) Revoke(ctx context.Context, p domain.Principal, areaID int, username string) error {
	if _, err := s.privilegedArea(ctx, p, areaID); err != nil {
		return err
	}
	uid, err := s.privileges.UserID(ctx, username)
	if err != nil {
		return err
	}
	removed, err := s.privileges.Revoke(ctx, areaID, uid)
	if err != nil {
		return err
	}
	slog.Info("access revoked", "area_id", areaID, "target_user_id", uid, "removed", removed, "user_id", p.UserID)
	return nil
}

func (s *Service) privilegedArea(ctx context.Context, p domain.Principal, areaID int) (*Area, error) {
	if err := requireAuth(p); err != nil {
		return nil, err
	}
	if err := s.decide(ctx, p, access.ManagePrivileges, access.Resource{}); err != nil {
		return nil, err
	}
	return s.areas.Get(ctx, areaID)
}

// Search finds areas, threads and messages p can read.
func (s *Service) Search(ctx context.Context, p domain.Principal, query string) (*SearchResults, error) {
	if err := requireAuth(p); err != nil {
		return nil, err
	}
	q, err := validateQuery(query)
	if err != nil {
		return nil, err
	}
	if err := s.decide(ctx, p, access.Search, access.Resource{}); err != nil {
		return nil, err
	}
	return s.search.Search(ctx, p, q)
}

// Notifications returns p's newest notifications.
func (s *Service) Notifications(ctx context.Context, p domain.Principal, limit int) ([]*Notification, error) {
	if err := requireAuth(p); err != nil {
		return nil, err
	}
	if err := s.decide(ctx, p, access.ReadNotifications, access.Resource{}); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultNotificationLimit
	}
	return s.notifications.ListVisible(ctx, p, limit)
}

func (s *Service) storeImage(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	if s.images == nil {
		return "", domain.Invalid("image", "Image uploads are disabled")
	}
	return s.images.Store(ctx, data)
}

// removeImages deletes stored files after their rows are gone. Failures
// leave an orphaned file, never a dangling reference.
func (s *Service) removeImages(ctx context.Context, refs []string) {
	if s.images == nil {
		return
	}
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if err := s.images.Delete(ctx, ref); err != nil {
			slog.Warn("failed to delete image", "ref", ref, "error", err)
		}
	}
}
