package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/notepid/twilight_forum/internal/credential"
	"github.com/notepid/twilight_forum/internal/db"
	"github.com/notepid/twilight_forum/internal/domain"
)

const password = "violet-harbor-tango-91"

func newTestApp(t *testing.T) *App {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "forum.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewWithDB(database, credential.NewService(4, 1), nil)
}

func TestCreateUserAndRole(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	u, err := a.CreateUser(ctx, "root", password, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := a.GetUser(ctx, u.ID)
	if err != nil || !got.IsAdmin {
		t.Fatalf("expected admin user, got %+v %v", got, err)
	}

	if err := a.SetAdmin(ctx, u.ID, false); err != nil {
		t.Fatalf("demote: %v", err)
	}
	got, _ = a.GetUser(ctx, u.ID)
	if got.IsAdmin {
		t.Fatal("expected demoted user")
	}

	if _, err := a.CreateUser(ctx, "weak", "password", false); !errors.Is(err, domain.ErrWeakPassword) {
		t.Fatalf("expected weak password, got %v", err)
	}
	if err := a.SetAdmin(ctx, 999, true); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	users, err := a.ListUsers(ctx)
	if err != nil || len(users) != 1 {
		t.Fatalf("expected one user, got %d %v", len(users), err)
	}
}

func TestResetPasswordEndsSessions(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	u, err := a.CreateUser(ctx, "alice", password, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := a.Sessions.Create(ctx, "sid", u.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("session: %v", err)
	}

	if err := a.ResetPassword(ctx, u.ID, "amber-comet-lantern-57"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := a.Sessions.Load(ctx, "sid", time.Now()); !errors.Is(err, domain.ErrAuthRequired) {
		t.Fatalf("expected session gone, got %v", err)
	}
	if _, err := a.Users.Authenticate(ctx, "alice", "amber-comet-lantern-57"); err != nil {
		t.Fatalf("new password should work: %v", err)
	}
	if err := a.ResetPassword(ctx, u.ID, "abc"); !errors.Is(err, domain.ErrWeakPassword) {
		t.Fatalf("expected weak password, got %v", err)
	}
}

func TestAreaAdministration(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	if _, err := a.CreateUser(ctx, "alice", password, false); err != nil {
		t.Fatalf("create: %v", err)
	}
	area, err := a.CreateArea(ctx, "Staff", true)
	if err != nil {
		t.Fatalf("create area: %v", err)
	}
	if !area.IsSecret {
		t.Fatal("console may create secret areas")
	}

	if err := a.Grant(ctx, area.ID, "alice"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	names, err := a.AccessList(ctx, area.ID)
	if err != nil || len(names) != 1 || names[0] != "alice" {
		t.Fatalf("unexpected access list %v %v", names, err)
	}
	if err := a.Grant(ctx, area.ID, "nobody"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
	if err := a.Revoke(ctx, area.ID, "alice"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	areas, err := a.ListAreas(ctx)
	if err != nil || len(areas) != 1 {
		t.Fatalf("console sees every area, got %d %v", len(areas), err)
	}
	if err := a.DeleteArea(ctx, area.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := a.GetArea(ctx, area.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
