package main

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/afterdarksys/servicedesk/internal/config"
	"github.com/afterdarksys/servicedesk/internal/store"
)

var rootCmd = &cobra.Command{
	Use:          "migrate",
	Short:        "Database migration tool for the service desk",
	Long:         `Apply, roll back or inspect the embedded schema migrations.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(forceCmd)

	downCmd.Flags().Int("steps", 1, "Number of migrations to roll back")
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *store.Migrator) error {
			if err := m.Up(); err != nil {
				return err
			}
			return printVersion(m)
		})
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, _ := cmd.Flags().GetInt("steps")
		return withMigrator(func(m *store.Migrator) error {
			if err := m.Down(steps); err != nil {
				return err
			}
			return printVersion(m)
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the applied schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(printVersion)
	},
}

var forceCmd = &cobra.Command{
	Use:   "force [version]",
	Short: "Set the schema version without migrating, clearing the dirty flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return withMigrator(func(m *store.Migrator) error {
			if err := m.Force(version); err != nil {
				return err
			}
			return printVersion(m)
		})
	},
}

func withMigrator(fn func(m *store.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	m, err := store.NewMigrator(db)
	if err != nil {
		db.Close()
		return err
	}
	defer m.Close()

	fmt.Printf("Database %s:%d/%s\n", cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName)
	return fn(m)
}

func printVersion(m *store.Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if version == 0 {
		fmt.Println("No migrations applied")
		return nil
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Printf("Schema version %d (%s)\n", version, state)
	return nil
}
