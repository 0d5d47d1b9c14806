package main

import (
	"fmt"
	"strconv"

	"github.com/clinicsched/clinicsched/libs/config"
	"github.com/clinicsched/clinicsched/libs/db"
	"github.com/clinicsched/clinicsched/services/booking-service/migrations"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	withMigrator := func(fn func(*db.Migrator) error) error {
		_, logger := serviceLogger()
		dbURL, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			return err
		}
		mg, err := db.NewMigrator(dbURL, migrations.FS, ".", logger)
		if err != nil {
			return err
		}
		defer func() { _ = mg.Close() }()
		return fn(mg)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator((*db.Migrator).Up)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator((*db.Migrator).Down)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations (clears the dirty flag)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("version must be an integer: %w", err)
			}
			return withMigrator(func(mg *db.Migrator) error { return mg.Force(version) })
		},
	})
	return cmd
}
