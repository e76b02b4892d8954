package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/config"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/db"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/middleware"
)

func newMigrateCmd() *cobra.Command {
	var printOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if printOnly {
				_, err := fmt.Fprint(cmd.OutOrStdout(), db.Schema())
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			middleware.InitLogger(cfg.LogLevel, "smartroad-migrate")

			pool, err := db.NewPool(cmd.Context(), cfg.DatabaseURL, cfg.DBMaxConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			log.Info().Msg("schema applied")
			return nil
		},
	}

	cmd.Flags().BoolVar(&printOnly, "print", false, "Print the schema instead of applying it")
	return cmd
}
