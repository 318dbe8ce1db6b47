package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/wayfare/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var flags configFlags

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the Wayfare database",
		Long:  "Creates the MySQL database if needed (or the SQLite file) and migrates the bookings, messages, and message_hides tables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, &flags)
		},
	}

	flags.register(cmd)
	return cmd
}

func runDBInit(cmd *cobra.Command, flags *configFlags) error {
	out := cmd.OutOrStdout()

	cfg, err := flags.load()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Loaded %s config from %s\n", cfg.Database.Driver, flags.path)

	if cfg.Database.Driver == "mysql" {
		if err := db.CreateDatabase(cfg.Database); err != nil {
			return err
		}
		fmt.Fprintf(out, "Database %s ready on %s:%d\n", cfg.Database.Name, cfg.Database.Host, cfg.Database.Port)
	}

	gormDB, err := db.Open(cfg.Database)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	fmt.Fprintln(out, "\nWayfare database initialized successfully.")
	return nil
}
