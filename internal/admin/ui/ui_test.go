package ui

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/notepid/twilight_forum/internal/admin/app"
	"github.com/notepid/twilight_forum/internal/credential"
	"github.com/notepid/twilight_forum/internal/db"
)

func newTestRoot(t *testing.T) (*rootModel, *app.App) {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "forum.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	a := app.NewWithDB(database, credential.NewService(4, 1), nil)
	root := NewRootModel(a).(*rootModel)
	root.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return root, a
}

func key(t tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: t} }

func TestNavigateUsersAndBack(t *testing.T) {
	root, a := newTestRoot(t)
	if _, err := a.CreateUser(context.Background(), "alice", "violet-harbor-tango-91", false); err != nil {
		t.Fatalf("create user: %v", err)
	}

	root.Update(key(tea.KeyEnter))
	if root.active != screenUsers || root.users == nil {
		t.Fatalf("expected users screen, got %v", root.active)
	}
	if v := root.View(); !strings.Contains(v, "alice") {
		t.Fatalf("expected alice in users list:\n%s", v)
	}

	root.Update(key(tea.KeyEsc))
	if root.active != screenHome || root.users != nil {
		t.Fatalf("expected home screen after esc, got %v", root.active)
	}
}

func TestAreasScreenShowsSecretAreas(t *testing.T) {
	root, a := newTestRoot(t)
	if _, err := a.CreateArea(context.Background(), "Staff", true); err != nil {
		t.Fatalf("create area: %v", err)
	}

	root.Update(key(tea.KeyDown))
	root.Update(key(tea.KeyEnter))
	if root.active != screenAreas {
		t.Fatalf("expected areas screen, got %v", root.active)
	}
	v := root.View()
	if !strings.Contains(v, "Staff") || !strings.Contains(v, "secret") {
		t.Fatalf("expected secret area listed:\n%s", v)
	}
}
