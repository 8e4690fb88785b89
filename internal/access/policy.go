// Package access decides, for every read and mutation in the forum, whether a
// principal may act on an area, thread or message. All role checks live here;
// callers describe the resource and ask.
package access

import (
	"github.com/notepid/twilight_forum/internal/domain"
)

// Action is an operation subject to authorization.
type Action int

const (
	ReadArea Action = iota
	CreateArea
	CreateSecretArea
	DeleteArea
	ReadThread
	CreateThread
	DeleteThread
	PostMessage
	DeleteMessage
	ManagePrivileges
	Search
	ReadNotifications
)

var actionNames = map[Action]string{
	ReadArea:          "read_area",
	CreateArea:        "create_area",
	CreateSecretArea:  "create_secret_area",
	DeleteArea:        "delete_area",
	ReadThread:        "read_thread",
	CreateThread:      "create_thread",
	DeleteThread:      "delete_thread",
	PostMessage:       "post_message",
	DeleteMessage:     "delete_message",
	ManagePrivileges:  "manage_privileges",
	Search:            "search",
	ReadNotifications: "read_notifications",
}

func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return "unknown"
}

// Resource describes the target of an action as far as the policy needs it.
// Fields that do not apply to an action are ignored.
type Resource struct {
	// AreaSecret is the secrecy flag of the area the resource lives in.
	AreaSecret bool
	// Granted reports whether the principal holds a privilege row for that area.
	Granted bool
	// OwnerID is the thread owner or the message sender.
	OwnerID int
}

// Policy is the access decision table. The zero value is ready to use.
type Policy struct{}

// Decide returns nil when p may perform a on r.
//
// Denials on reads (and on creating content inside an area) surface as
// domain.ErrNotFound so that callers cannot discover secret areas. Denials
// on explicit actions against a resource the caller already knows about
// surface as domain.ErrForbidden. Anonymous principals always get
// domain.ErrAuthRequired.
func (Policy) Decide(p domain.Principal, a Action, r Resource) error {
	if !p.Authenticated() {
		return domain.ErrAuthRequired
	}

	switch a {
	case ReadArea, ReadThread, CreateThread, PostMessage:
		if !canSeeArea(p, r) {
			return domain.ErrNotFound
		}
		return nil
	case CreateArea, Search, ReadNotifications:
		return nil
	case CreateSecretArea, DeleteArea, ManagePrivileges:
		if !p.IsAdmin() {
			return domain.ErrForbidden
		}
		return nil
	case DeleteThread, DeleteMessage:
		if !canSeeArea(p, r) {
			return domain.ErrNotFound
		}
		if p.IsAdmin() || (p.UserID != 0 && p.UserID == r.OwnerID) {
			return nil
		}
		return domain.ErrForbidden
	default:
		return domain.ErrForbidden
	}
}

// Allowed is Decide reduced to a boolean.
func (pol Policy) Allowed(p domain.Principal, a Action, r Resource) bool {
	return pol.Decide(p, a, r) == nil
}

// SecretFlag is the secrecy flag an area created by p actually gets: a
// request for a secret area from a non-admin is silently downgraded.
func (pol Policy) SecretFlag(p domain.Principal, requested bool) bool {
	return requested && pol.Allowed(p, CreateSecretArea, Resource{})
}

func canSeeArea(p domain.Principal, r Resource) bool {
	return !r.AreaSecret || p.IsAdmin() || r.Granted
}
