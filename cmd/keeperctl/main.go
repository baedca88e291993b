// Package main is the operator CLI for SquadKeeper. Account and upgrade
// commands talk to a running server; migrate works on the database directly.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type globalOptions struct {
	server  string
	token   string
	timeout string
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "keeperctl",
		Short:         "Operate SquadKeeper deployments",
		Long:          `keeperctl inspects tenant deployments, runs upgrades and rollbacks, and manages the SquadKeeper database schema.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVarP(&opts.server, "server", "s", envOr("KEEPER_SERVER", "http://localhost:8080"), "SquadKeeper server base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("KEEPER_TOKEN"), "Bearer token for write operations")
	root.PersistentFlags().StringVar(&opts.timeout, "timeout", "5m", "Request timeout")

	root.AddCommand(
		newDeploymentCommand(opts),
		newHistoryCommand(opts),
		newProvisionCommand(opts),
		newUpgradeCommand(opts),
		newPlanCommand(opts),
		newRollbackCommand(opts),
		newReconcileCommand(opts),
		newTemplatesCommand(opts),
		newMigrateCommand(),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
