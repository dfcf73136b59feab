package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/brdforge/internal/store"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
		Long: `Apply, revert or inspect the embedded Postgres schema migrations.

The connection string comes from --dsn, or store.dsn in the configuration
(BRDFORGE_STORE_DSN).

Examples:
  # Apply pending migrations
  brdforge migrate up --dsn postgres://brdforge@localhost/brdforge?sslmode=disable

  # Show the applied version
  brdforge migrate version`,
	}
	cmd.PersistentFlags().StringVar(&dsn, "dsn", "", "postgres connection string (overrides store.dsn)")

	resolve := func() (string, error) {
		if dsn != "" {
			return dsn, nil
		}
		cfg, err := loadConfig(opts)
		if err != nil {
			return "", err
		}
		if !cfg.Store.DSN.IsSet() {
			return "", errors.New("no database configured: pass --dsn or set store.dsn")
		}
		return cfg.Store.DSN.Value(), nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				url, err := resolve()
				if err != nil {
					return err
				}
				if err := store.MigrateUp(url); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Revert every migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				url, err := resolve()
				if err != nil {
					return err
				}
				if err := store.MigrateDown(url); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations reverted")
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				url, err := resolve()
				if err != nil {
					return err
				}
				status, err := store.MigrationVersion(url)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version: %d\n", status.Version)
				if status.Dirty {
					fmt.Fprintln(cmd.OutOrStdout(), "dirty: true (fix the failed migration, then force the version)")
				}
				return nil
			},
		},
	)
	return cmd
}
