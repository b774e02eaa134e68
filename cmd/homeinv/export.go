package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vbonduro/homeinv/internal/auth"
	"github.com/vbonduro/homeinv/internal/db"
	"github.com/vbonduro/homeinv/internal/remote/sqlstore"
	"github.com/vbonduro/homeinv/internal/repository"
	"github.com/vbonduro/homeinv/internal/service"
)

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export inventory data",
	}
	cmd.AddCommand(newExportItemsCmd(a))
	return cmd
}

func newExportItemsCmd(a *app) *cobra.Command {
	var (
		userRef string
		outPath string
		filter  repository.ItemFilter
	)
	cmd := &cobra.Command{
		Use:   "items",
		Short: "Write items as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.Open(a.cfg.DBPath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer a.closeDB(database)

			store := sqlstore.New(database, a.logger)
			user, err := auth.NewAuthenticator(store, a.cfg.JWTSecret, 0).LookupUser(cmd.Context(), userRef)
			if err != nil {
				return err
			}
			ctx := auth.WithUser(cmd.Context(), *user)

			var w io.Writer = cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", outPath, err)
				}
				defer closeFile(f, a)
				w = f
			}

			svc := service.New(repository.New(store), nil, nil, a.logger)
			n, err := svc.ExportItemsCSV(ctx, w, filter)
			if err != nil {
				return err
			}
			a.logger.Info("exported items", "user_id", user.ID, "count", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&userRef, "user", "", "user id or email")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&filter.Search, "search", "", "only items matching this text")
	cmd.Flags().StringVar(&filter.CategoryID, "category", "", "only items in this category")
	cmd.Flags().StringVar(&filter.LocationID, "location", "", "only items at this location")
	cmd.Flags().BoolVar(&filter.Favorites, "favorites", false, "only favorites")
	cmd.Flags().BoolVar(&filter.IncludeArchived, "archived", false, "include archived items")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func closeFile(f *os.File, a *app) {
	if err := f.Close(); err != nil {
		a.logger.Error("failed to close export file", "error", err)
	}
}
