package migrate

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/unimsg/internal/config"
	registrymigrate "github.com/chirino/unimsg/internal/registry/migrate"
	"github.com/urfave/cli/v3"

	// Store plugins register their migrators alongside their loaders.
	_ "github.com/chirino/unimsg/internal/plugin/store/gormstore"
	_ "github.com/chirino/unimsg/internal/plugin/store/mongo"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create collections, tables and indexes, then exit",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "db-url",
				Sources:  cli.EnvVars("UNIMSG_DB_URL"),
				Usage:    "Database connection URL",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "db-kind",
				Sources: cli.EnvVars("UNIMSG_DB_KIND"),
				Usage:   "Store backend (" + strings.Join([]string{config.DatastoreMongo, config.DatastorePostgres, config.DatastoreSQLite}, "|") + ")",
				Value:   config.DatastoreMongo,
			},
			&cli.StringFlag{
				Name:    "db-name",
				Sources: cli.EnvVars("UNIMSG_DB_NAME"),
				Usage:   "MongoDB database name",
				Value:   "unimsg",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.DefaultConfig()
			cfg.DBURL = cmd.String("db-url")
			cfg.DatastoreType = cmd.String("db-kind")
			cfg.DBName = cmd.String("db-name")
			cfg.DatastoreMigrateAtStart = true
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx = config.WithContext(ctx, &cfg)

			log.Info("Running migrations...", "migrators", registrymigrate.Names())
			if err := registrymigrate.RunAll(ctx); err != nil {
				return err
			}
			log.Info("All migrations completed successfully")
			return nil
		},
	}
}
