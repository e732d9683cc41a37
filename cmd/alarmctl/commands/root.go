// Package commands implements the alarmctl administrative CLI: direct-to-database
// operator tooling for seeding accounts and inspecting groups and pages without
// going through the HTTP API.
package commands

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jmougeot/alarm-server/internal/config"
	"github.com/jmougeot/alarm-server/internal/postgres"
	"github.com/jmougeot/alarm-server/internal/store"
)

var (
	cfg *config.Config
	db  *pgxpool.Pool
	st  store.Store
)

var rootCmd = &cobra.Command{
	Use:           "alarmctl",
	Short:         "Administrative CLI for the alarm server",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded

		pool, err := postgres.Connect(cmd.Context(), cfg.DatabaseURL, cfg.DatabaseMaxConn, cfg.DatabaseMinConn)
		if err != nil {
			return err
		}
		db = pool
		st = postgres.NewStore(db, zerolog.Nop())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			db.Close()
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(groupCmd)
	rootCmd.AddCommand(pageCmd)
}
