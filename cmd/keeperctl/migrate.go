package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"squadkeeper.io/keeper/internal/config"
	"squadkeeper.io/keeper/internal/pkg/logger"
	"squadkeeper.io/keeper/internal/repository/postgres"
)

func newMigrateCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
		Long:  `Apply or inspect the SquadKeeper schema migrations. Connection settings come from the server configuration.`,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: search ./config.yaml, /etc/squadkeeper)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Run all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				dsn, err := loadDSN(configPath)
				if err != nil {
					return err
				}
				if err := postgres.Migrate(cmd.Context(), dsn); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				dsn, err := loadDSN(configPath)
				if err != nil {
					return err
				}
				return postgres.MigrationStatus(cmd.Context(), dsn)
			},
		},
	)
	return cmd
}

func loadDSN(path string) (string, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return "", fmt.Errorf("init logger: %w", err)
	}
	return cfg.Database.DSN(), nil
}
