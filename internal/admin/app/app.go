package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/notepid/twilight_forum/internal/config"
	"github.com/notepid/twilight_forum/internal/credential"
	"github.com/notepid/twilight_forum/internal/db"
	"github.com/notepid/twilight_forum/internal/domain"
	"github.com/notepid/twilight_forum/internal/forum"
	"github.com/notepid/twilight_forum/internal/media"
	"github.com/notepid/twilight_forum/internal/session"
	"github.com/notepid/twilight_forum/internal/user"
)

// App holds the console's handles on the forum database. Every forum action
// runs as the console principal, which has admin rights but no user row.
type App struct {
	ConfigPath string
	Config     *config.Config
	DB         *db.DB

	Users    *user.Service
	Forum    *forum.Service
	Sessions *session.Store
}

// New opens the configured database for console use.
func New(configPath string) (*App, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	if err := os.MkdirAll(cfg.Paths.Data, 0755); err != nil {
		return nil, nil, fmt.Errorf("create data directory: %w", err)
	}

	database, err := db.Open(cfg.Paths.Database)
	if err != nil {
		return nil, nil, err
	}

	images, err := media.NewStore(cfg.Paths.Uploads, cfg.Uploads.MaxBytes.Int64())
	if err != nil {
		_ = database.Close()
		return nil, nil, err
	}

	a := NewWithDB(database, credential.NewService(cfg.Auth.BcryptCost, cfg.Auth.HashWorkers), images)
	a.ConfigPath = configPath
	a.Config = cfg

	cleanup := func() {
		_ = database.Close()
	}
	return a, cleanup, nil
}

// NewWithDB wires the console over an already open database.
func NewWithDB(database *db.DB, creds *credential.Service, images *media.Store) *App {
	var opts []forum.Option
	if images != nil {
		opts = append(opts, forum.WithImages(images))
	}
	return &App{
		DB:       database,
		Users:    user.NewService(user.NewRepo(database), creds),
		Forum:    forum.NewService(database, opts...),
		Sessions: session.NewStore(database),
	}
}

func (a *App) ListUsers(ctx context.Context) ([]*user.User, error) {
	return a.Users.Repo().List(ctx)
}

func (a *App) GetUser(ctx context.Context, id int) (*user.User, error) {
	return a.Users.Repo().GetByID(ctx, id)
}

// CreateUser registers an account with the same checks the web form applies.
func (a *App) CreateUser(ctx context.Context, username, password string, admin bool) (*user.User, error) {
	u, err := a.Users.Register(ctx, username, password, password)
	if err != nil {
		return nil, err
	}
	if admin {
		if err := a.SetAdmin(ctx, u.ID, true); err != nil {
			return nil, err
		}
		u.IsAdmin = true
	}
	return u, nil
}

// SetAdmin changes a user's role. Open sessions pick the change up on their
// next request.
func (a *App) SetAdmin(ctx context.Context, id int, admin bool) error {
	if err := a.Users.Repo().SetAdmin(ctx, id, admin); err != nil {
		return err
	}
	slog.Info("role changed", "user_id", id, "admin", admin)
	return nil
}

// ResetPassword sets a new password and ends the user's sessions.
func (a *App) ResetPassword(ctx context.Context, id int, password string) error {
	if err := a.Users.ResetPassword(ctx, id, password); err != nil {
		return err
	}
	if _, err := a.Sessions.DeleteForUser(ctx, id); err != nil {
		return err
	}
	slog.Info("password reset", "user_id", id)
	return nil
}

// EndSessions logs a user out everywhere.
func (a *App) EndSessions(ctx context.Context, id int) (int64, error) {
	return a.Sessions.DeleteForUser(ctx, id)
}

func (a *App) ListAreas(ctx context.Context) ([]*forum.Area, error) {
	return a.Forum.ListAreas(ctx, domain.Console())
}

func (a *App) GetArea(ctx context.Context, id int) (*forum.Area, error) {
	return a.Forum.GetArea(ctx, domain.Console(), id)
}

func (a *App) CreateArea(ctx context.Context, topic string, secret bool) (*forum.Area, error) {
	return a.Forum.CreateArea(ctx, domain.Console(), topic, secret)
}

func (a *App) DeleteArea(ctx context.Context, id int) error {
	return a.Forum.DeleteArea(ctx, domain.Console(), id)
}

func (a *App) AccessList(ctx context.Context, areaID int) ([]string, error) {
	return a.Forum.AccessList(ctx, domain.Console(), areaID)
}

func (a *App) Grant(ctx context.Context, areaID int, username string) error {
	return a.Forum.Grant(ctx, domain.Console(), areaID, username)
}

func (a *App) Revoke(ctx context.Context, areaID int, username string) error {
	return a.Forum.Revoke(ctx, domain.Console(), areaID, username)
}
