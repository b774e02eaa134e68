package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vbonduro/homeinv/internal/auth"
	"github.com/vbonduro/homeinv/internal/client"
	"github.com/vbonduro/homeinv/internal/db"
	"github.com/vbonduro/homeinv/internal/domain"
	"github.com/vbonduro/homeinv/internal/filestore/local"
	"github.com/vbonduro/homeinv/internal/remote/sqlstore"
	"github.com/vbonduro/homeinv/internal/repository"
	"github.com/vbonduro/homeinv/internal/service"
	"github.com/vbonduro/homeinv/internal/settings"
	"github.com/vbonduro/homeinv/internal/vision"
	claudevision "github.com/vbonduro/homeinv/internal/vision/claude"
	"github.com/vbonduro/homeinv/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer a.closeDB(database)

	store := sqlstore.New(database, logger)
	files, err := local.New(cfg.FilesPath, cfg.PublicBaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize file store: %w", err)
	}
	svc := service.New(repository.New(store), files, a.newVisionAnalyzer(), logger)

	sessions, err := client.NewRegistry(cfg.MaxSessions, func(ctx context.Context, user domain.User) (*client.Session, error) {
		return client.Open(ctx, svc, store, user, logger, client.Options{
			UndoDepth:        cfg.UndoDepth,
			RefreshOnSuccess: cfg.RefreshOnSuccess,
		})
	})
	if err != nil {
		return err
	}
	defer sessions.Close()

	prefs, err := settings.Open(ctx, settings.NewFilePort(cfg.PreferencesPath), logger)
	if err != nil {
		return fmt.Errorf("failed to load preferences: %w", err)
	}

	authn := auth.NewAuthenticator(store, cfg.JWTSecret, time.Duration(cfg.SessionTTLHours)*time.Hour)
	go a.purgeNotifications(ctx, svc)

	server := web.NewServer(svc, authn, sessions, prefs, files, logger)
	return server.ListenAndServe(ctx, cfg.ListenAddr)
}

// purgeNotifications drops expired notifications once an hour.
func (a *app) purgeNotifications(ctx context.Context, svc *service.InventoryService) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.PurgeExpiredNotifications(ctx)
			if err != nil {
				a.logger.Warn("failed to purge notifications", "error", err)
				continue
			}
			if n > 0 {
				a.logger.Info("purged expired notifications", "count", n)
			}
		}
	}
}

func (a *app) newVisionAnalyzer() vision.Analyzer {
	switch a.cfg.VisionBackend {
	case "claude":
		if a.cfg.ClaudeAPIKey == "" {
			a.logger.Error("CLAUDE_API_KEY is required when VISION_BACKEND=claude")
			return nil
		}
		a.logger.Info("using Claude vision backend", "model", a.cfg.ClaudeModel)
		return claudevision.NewClaudeAnalyzer(a.cfg.ClaudeAPIKey, a.cfg.ClaudeModel)
	default:
		a.logger.Info("photo capture disabled")
		return nil
	}
}

func (a *app) closeDB(database *sql.DB) {
	if err := database.Close(); err != nil {
		a.logger.Error("failed to close database", "error", err)
	}
}
