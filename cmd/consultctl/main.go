package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/consult-api/internal/app"
	"github.com/jwalitptl/consult-api/internal/config"
	"github.com/jwalitptl/consult-api/internal/repository/postgres"
	"github.com/jwalitptl/consult-api/internal/service/scanner"
	"github.com/jwalitptl/consult-api/pkg/auth"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	rootCmd := &cobra.Command{
		Use:           "consultctl",
		Short:         "Operate the consultation booking service",
		SilenceUsage:  true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	load := func() (*config.Config, error) {
		return config.Load(configPath)
	}

	rootCmd.AddCommand(migrateCmd(load))
	rootCmd.AddCommand(scanCmd(load))
	rootCmd.AddCommand(tokenCmd(load))
	return rootCmd
}

type loader func() (*config.Config, error)

func migrateCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres schema",
	}

	run := func(direction postgres.MigrateDirection) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			db, err := postgres.NewDB(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.Migrate(db, direction); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", direction)
			return nil
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE:  run(postgres.MigrateUp),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Revert all migrations",
		RunE:  run(postgres.MigrateDown),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			db, err := postgres.NewDB(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			version, dirty, err := postgres.MigrationVersion(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
			return nil
		},
	})
	return cmd
}

func scanCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a scan once and enqueue its notifications",
	}

	var at string
	run := func(pick func(*scanner.Service) func(context.Context, time.Time) (*scanner.Result, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			now := time.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				now = t
			}

			cfg, err := load()
			if err != nil {
				return err
			}
			log := app.NewLogger(cfg.Log)

			store, _, err := app.OpenStore(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()

			locker, err := app.NewLocker(config.LockConfig{Driver: config.LockDriverLocal}, nil)
			if err != nil {
				return err
			}
			svcs, err := app.NewServices(cfg, store, locker, nil, log)
			if err != nil {
				return err
			}

			res, err := pick(svcs.Scanner)(cmd.Context(), now)
			if err != nil {
				return err
			}
			return printResult(cmd, res)
		}
	}

	reminders := &cobra.Command{
		Use:   "reminders",
		Short: "Remind providers of tomorrow's consultations",
		RunE: run(func(s *scanner.Service) func(context.Context, time.Time) (*scanner.Result, error) {
			return s.Reminders
		}),
	}
	licenses := &cobra.Command{
		Use:   "licenses",
		Short: "Notify providers whose license has expired",
		RunE: run(func(s *scanner.Service) func(context.Context, time.Time) (*scanner.Result, error) {
			return s.LicenseExpiry
		}),
	}
	cmd.PersistentFlags().StringVar(&at, "at", "", "run as if the current time were this RFC 3339 timestamp")
	cmd.AddCommand(reminders, licenses)
	return cmd
}

func printResult(cmd *cobra.Command, res *scanner.Result) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if res.Err != nil {
		return fmt.Errorf("%d items failed: %w", res.Failed, res.Err)
	}
	return nil
}

func tokenCmd(load loader) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not configured")
			}

			token, err := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer).GenerateToken(subject, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject")
	cmd.Flags().StringVar(&role, "role", "operator", "token role")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
