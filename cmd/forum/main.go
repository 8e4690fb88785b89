package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/notepid/twilight_forum/internal/captcha"
	"github.com/notepid/twilight_forum/internal/config"
	"github.com/notepid/twilight_forum/internal/credential"
	"github.com/notepid/twilight_forum/internal/db"
	"github.com/notepid/twilight_forum/internal/forum"
	"github.com/notepid/twilight_forum/internal/media"
	"github.com/notepid/twilight_forum/internal/session"
	"github.com/notepid/twilight_forum/internal/telemetry"
	"github.com/notepid/twilight_forum/internal/user"
	"github.com/notepid/twilight_forum/internal/web"
)

func main() {
	flags := pflag.NewFlagSet("forum", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "config.yaml", "path to configuration file")
	envPath := flags.String("env-file", ".env", "path to a .env file with secrets")
	addr := flags.String("addr", "", "listen address (overrides server.http_addr)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(*configPath, *envPath, *addr); err != nil {
		slog.Error("forum stopped", "error", err)
		os.Exit(1)
	}
}

func run(configPath, envPath, addr string) error {
	if err := config.LoadDotEnv(envPath); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.HTTPAddr = addr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level, _ := config.ParseLevel(cfg.Server.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.Paths.Data, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	database, err := db.Open(cfg.Paths.Database)
	if err != nil {
		return err
	}
	defer database.Close()
	slog.Info("database opened", "path", cfg.Paths.Database)

	// Telemetry
	tel, err := telemetry.Setup(ctx)
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("telemetry shutdown failed", "error", err)
		}
	}()
	metrics, err := tel.NewForumMetrics()
	if err != nil {
		return fmt.Errorf("metrics initialization: %w", err)
	}

	images, err := media.NewStore(cfg.Paths.Uploads, cfg.Uploads.MaxBytes.Int64())
	if err != nil {
		return err
	}

	creds := credential.NewService(cfg.Auth.BcryptCost, cfg.Auth.HashWorkers)
	users := user.NewService(user.NewRepo(database), creds)
	forums := forum.NewService(database,
		forum.WithImages(images),
		forum.WithObserver(metrics.RecordDecision),
	)

	// Sessions
	sessionStore := session.NewStore(database)
	sessions, err := session.NewManager(sessionStore, cfg.Auth.SessionSecret, cfg.Auth.SessionTTL)
	if err != nil {
		return err
	}
	sweeper, err := session.NewSweeper(sessionStore, cfg.Auth.PurgeSchedule)
	if err != nil {
		return err
	}
	go sweeper.Run(ctx)

	// Login throttling
	limiter := web.NewLimiterPool(cfg.Auth.LoginRate, cfg.Auth.LoginBurst, time.Now)
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Cleanup()
			}
		}
	}()

	verifier := captcha.New(captcha.Config{
		Enabled:   cfg.Captcha.Enabled,
		Secret:    cfg.Captcha.Secret,
		SiteKey:   cfg.Captcha.SiteKey,
		VerifyURL: cfg.Captcha.VerifyURL,
		Timeout:   cfg.Captcha.Timeout,
	})
	if verifier.Enabled() {
		slog.Info("captcha enabled", "site_key", verifier.SiteKey())
	}

	handler := web.NewRouter(web.Deps{
		Users:          users,
		Forum:          forums,
		Sessions:       sessions,
		Captcha:        verifier,
		Images:         images,
		Metrics:        metrics,
		MetricsHandler: tel.MetricsHandler(),
		LoginLimiter:   limiter,
		Logger:         logger,
		Health:         database.PingContext,
	})

	srv := web.NewServer(cfg.Server.HTTPAddr, handler)
	if err := srv.Run(ctx); err != nil {
		return err
	}
	slog.Info("forum shut down")
	return nil
}
