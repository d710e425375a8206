package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/finboard/server/internal/config"
	"github.com/finboard/server/internal/db"
	"github.com/finboard/server/internal/logging"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status|reset]",
		Short:     "Run database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status", "reset"},
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.SetDefault(logging.New(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL")))

			dsn, err := config.DatabaseURL()
			if err != nil {
				return err
			}
			database, err := db.Open(cmd.Context(), dsn)
			if err != nil {
				return err
			}
			defer database.Close()

			return db.Migrate(database, args[0])
		},
	}
}
