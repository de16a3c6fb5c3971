package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pscheid92/integrations/internal/adapter/postgres"
	"github.com/pscheid92/integrations/internal/platform/config"
	"github.com/pscheid92/integrations/internal/platform/crypto"
	"github.com/pscheid92/integrations/internal/platform/logging"
	"github.com/pscheid92/integrations/internal/platform/version"
	"github.com/spf13/cobra"
)

const migrateTimeout = 2 * time.Minute

func newRootCommand() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:          "tokenctl",
		Short:        "Operator tooling for the integrations service",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), logLevel, "text"))
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newKeygenCommand(),
		newSelftestCommand(),
		newMigrateCommand(),
		newVersionCommand(),
	)
	return root
}

func newKeygenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a fresh ENCRYPTION_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

func newSelftestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Validate ENCRYPTION_KEY and run an encrypt/decrypt round trip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := config.LoadKey()
			if err != nil {
				return err
			}
			cipher, err := crypto.NewCipher(key)
			if err != nil {
				return err
			}
			if err := cipher.SelfTest(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cipher self-test passed")
			return nil
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbURL, err := config.LoadDatabaseURL()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), migrateTimeout)
			defer cancel()

			pool, err := postgres.Connect(ctx, dbURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
		},
	}
}
