package user

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/notepid/twilight_forum/internal/credential"
	"github.com/notepid/twilight_forum/internal/db"
	"github.com/notepid/twilight_forum/internal/domain"
)

const strongPassword = "VBt8fETYzn$64ecARjmG"

func newTestService(t *testing.T) *Service {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "forum.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewService(NewRepo(database), credential.NewService(bcrypt.MinCost, 2))
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "bob", strongPassword, strongPassword)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.IsAdmin {
		t.Fatal("new users must not be admins")
	}
	if u.PasswordHash == strongPassword || u.PasswordHash == "" {
		t.Fatalf("password must be stored hashed, got %q", u.PasswordHash)
	}

	p, err := svc.Authenticate(ctx, "bob", strongPassword)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.UserID != u.ID || p.Username != "bob" || p.Role != domain.RoleUser {
		t.Fatalf("unexpected principal %+v", p)
	}
}

func TestRegisterWeakPassword(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "bob", "password123", "password123"); !errors.Is(err, domain.ErrWeakPassword) {
		t.Fatalf("expected weak password, got %v", err)
	}
	if _, err := svc.Register(ctx, "bob", strongPassword, strongPassword); err != nil {
		t.Fatalf("expected strong password to be accepted, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "bad name", strongPassword, strongPassword); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.Register(ctx, "carol", strongPassword, "wc5rd6ePdLHct&5EM3i3"); !errors.Is(err, domain.ErrPasswordMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
}

func TestRegisterTwice(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "bob", strongPassword, strongPassword); err != nil {
		t.Fatalf("register: %v", err)
	}
	other := "wc5rd6ePdLHct&5EM3i3"
	if _, err := svc.Register(ctx, "bob", other, other); !errors.Is(err, domain.ErrUsernameTaken) {
		t.Fatalf("expected username taken, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "bob", strongPassword); err != nil {
		t.Fatalf("first credentials must remain valid, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "bob", other); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("second password must not work, got %v", err)
	}
}

func TestRepoCreateDuplicate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Repo().Create(ctx, "dup", "hash"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Repo().Create(ctx, "dup", "hash"); !errors.Is(err, domain.ErrUsernameTaken) {
		t.Fatalf("expected username taken, got %v", err)
	}
}

func TestAuthenticateGenericFailure(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "bob", strongPassword, strongPassword); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, errUnknown := svc.Authenticate(ctx, "nobody", strongPassword)
	_, errWrong := svc.Authenticate(ctx, "bob", "wrong")
	_, errCase := svc.Authenticate(ctx, "BOB", strongPassword)

	for _, err := range []error{errUnknown, errWrong, errCase} {
		if !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("expected invalid credentials, got %v", err)
		}
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Fatalf("failure messages differ: %q vs %q", errUnknown, errWrong)
	}
}

func TestSetAdminAndReset(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "root", strongPassword, strongPassword)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.Repo().SetAdmin(ctx, u.ID, true); err != nil {
		t.Fatalf("set admin: %v", err)
	}
	p, err := svc.Authenticate(ctx, "root", strongPassword)
	if err != nil || !p.IsAdmin() {
		t.Fatalf("expected admin principal, got %+v err=%v", p, err)
	}

	if err := svc.ResetPassword(ctx, u.ID, "short"); !errors.Is(err, domain.ErrWeakPassword) {
		t.Fatalf("expected weak password, got %v", err)
	}
	newPassword := "wc5rd6ePdLHct&5EM3i3"
	if err := svc.ResetPassword(ctx, u.ID, newPassword); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "root", newPassword); err != nil {
		t.Fatalf("login with new password: %v", err)
	}

	if err := svc.Repo().SetAdmin(ctx, 9999, true); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for missing user, got %v", err)
	}
}

func TestList(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	for _, name := range []string{"zed", "amy"} {
		if _, err := svc.Repo().Create(ctx, name, "hash"); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	users, err := svc.Repo().List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 2 || users[0].Username != "amy" || users[1].Username != "zed" {
		t.Fatalf("unexpected order: %+v", users)
	}
}
