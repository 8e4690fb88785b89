package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/notepid/twilight_forum/internal/domain"
)

// DefaultTTL is how long a login lasts when no TTL is configured.
const DefaultTTL = 7 * 24 * time.Hour

// ErrMissingSecret is returned when the signing secret is empty.
var ErrMissingSecret = errors.New("session secret is required")

// Manager issues and resolves session tokens. A token is an HS256 JWT whose
// jti names a server-side session row; the row, not the token, is the
// source of truth, so logout takes effect immediately.
type Manager struct {
	store  *Store
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewManager creates a manager signing with secret.
func NewManager(store *Store, secret string, ttl time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Store returns the underlying session store.
func (m *Manager) Store() *Store {
	return m.store
}

// Issue starts a session for p and returns the client token and its expiry.
func (m *Manager) Issue(ctx context.Context, p domain.Principal) (string, time.Time, error) {
	if !p.Authenticated() || p.UserID == 0 {
		return "", time.Time{}, domain.ErrAuthRequired
	}
	now := m.now()
	expires := now.Add(m.ttl)
	sid := uuid.NewString()

	if err := m.store.Create(ctx, sid, p.UserID, expires); err != nil {
		return "", time.Time{}, err
	}

	claims := jwt.RegisteredClaims{
		ID:        sid,
		Subject:   strconv.Itoa(p.UserID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return token, expires, nil
}

// Resolve returns the principal for token. Any problem with the token or the
// session it names yields domain.ErrAuthRequired.
func (m *Manager) Resolve(ctx context.Context, token string) (domain.Principal, error) {
	sid, err := m.sessionID(token)
	if err != nil {
		slog.Debug("session token rejected", "error", err)
		return domain.Anonymous(), domain.ErrAuthRequired
	}
	return m.store.Load(ctx, sid, m.now())
}

// Revoke ends the session named by token. Invalid tokens are ignored.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	sid, err := m.sessionID(token)
	if err != nil {
		return nil
	}
	return m.store.Delete(ctx, sid)
}

func (m *Manager) sessionID(token string) (string, error) {
	if token == "" {
		return "", errors.New("empty token")
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return "", err
	}
	if claims.ID == "" {
		return "", errors.New("token has no session id")
	}
	return claims.ID, nil
}
