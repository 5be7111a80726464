package main

import (
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/R3E-Network/storefront/internal/app/storage/postgres"
	"github.com/R3E-Network/storefront/internal/app/storage/postgres/migrations"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd, func(db *sqlx.DB) error {
				if err := migrations.Up(db.DB); err != nil {
					return err
				}
				return printVersion(cmd, db)
			})
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps <= 0 {
				return errors.New("--steps must be positive")
			}
			return withDB(cmd, func(db *sqlx.DB) error {
				if err := migrations.Down(db.DB, steps); err != nil {
					return err
				}
				return printVersion(cmd, db)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd, func(db *sqlx.DB) error {
				return printVersion(cmd, db)
			})
		},
	})
	return cmd
}

func withDB(cmd *cobra.Command, fn func(db *sqlx.DB) error) error {
	if cfg.Database.DSN == "" {
		return errors.New("database dsn is not configured")
	}
	db, err := postgres.Open(cmd.Context(), cfg.Database.DSN, postgres.PoolOptions{MaxOpenConns: 2})
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func printVersion(cmd *cobra.Command, db *sqlx.DB) error {
	version, dirty, err := migrations.Version(db.DB)
	if err != nil {
		return err
	}
	if dirty {
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty)\n", version)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
	return nil
}
