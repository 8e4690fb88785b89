package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/notepid/twilight_forum/internal/domain"
)

func TestRoleString(t *testing.T) {
	tests := []struct {
		role domain.Role
		want string
	}{
		{domain.RoleAnonymous, "anonymous"},
		{domain.RoleUser, "user"},
		{domain.RoleAdmin, "admin"},
	}
	for _, tt := range tests {
		if got := tt.role.String(); got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, got)
		}
		if got := domain.ParseRole(tt.want); got != tt.role {
			t.Errorf("ParseRole(%q): expected %v, got %v", tt.want, tt.role, got)
		}
	}
	if domain.ParseRole("root") != domain.RoleAnonymous {
		t.Error("unknown role strings must parse as anonymous")
	}
}

func TestRoleFor(t *testing.T) {
	if domain.RoleFor(true) != domain.RoleAdmin {
		t.Error("expected admin flag to map to RoleAdmin")
	}
	if domain.RoleFor(false) != domain.RoleUser {
		t.Error("expected cleared admin flag to map to RoleUser")
	}
}

func TestPrincipalZeroValueIsAnonymous(t *testing.T) {
	var p domain.Principal
	if p.Authenticated() {
		t.Error("zero principal must not be authenticated")
	}
	if p.IsAdmin() {
		t.Error("zero principal must not be admin")
	}
	if p != domain.Anonymous() {
		t.Error("Anonymous() should equal the zero value")
	}
}

func TestPrincipalRoles(t *testing.T) {
	u := domain.Principal{UserID: 7, Username: "alice", Role: domain.RoleUser}
	if !u.Authenticated() || u.IsAdmin() {
		t.Fatalf("unexpected user flags: auth=%v admin=%v", u.Authenticated(), u.IsAdmin())
	}
	if c := domain.Console(); !c.Authenticated() || !c.IsAdmin() {
		t.Fatalf("console principal must be an authenticated admin")
	}
}

func TestValidationErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("create area: %w", domain.Invalid("topic", "must be 1-63 characters"))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatal("expected wrapped ValidationError to match ErrValidation")
	}
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Field != "topic" {
		t.Fatalf("expected ValidationError for topic, got %v", err)
	}
	if errors.Is(err, domain.ErrNotFound) {
		t.Error("ValidationError must not match ErrNotFound")
	}
}
