package user

import (
	"time"

	"github.com/notepid/twilight_forum/internal/domain"
)

// User represents a registered forum account.
type User struct {
	ID           int
	Username     string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
}

// Role returns the authorization role derived from the admin flag.
func (u *User) Role() domain.Role {
	return domain.RoleFor(u.IsAdmin)
}

// Principal returns the session context for u.
func (u *User) Principal() domain.Principal {
	return domain.Principal{UserID: u.ID, Username: u.Username, Role: u.Role()}
}
