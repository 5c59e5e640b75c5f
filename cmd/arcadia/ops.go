package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/arcadia/internal/app"
	"github.com/and161185/arcadia/internal/config"
	"github.com/and161185/arcadia/internal/jobs"
	"github.com/and161185/arcadia/internal/migrate"
	"github.com/and161185/arcadia/internal/threat"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := migrate.Up(cmd.Context(), cfg.DatabaseDSN); err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
			printf(cmd, "migrations applied\n")
			return nil
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				if err := migrate.Down(cmd.Context(), cfg.DatabaseDSN); err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
				printf(cmd, "rolled back one migration\n")
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				v, err := migrate.Version(cmd.Context(), cfg.DatabaseDSN)
				if err != nil {
					return err
				}
				printf(cmd, "schema version %d\n", v)
				return nil
			},
		},
	)
	return cmd
}

func newCheckConfigCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate configuration and report security weaknesses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			issues := cfg.SecurityIssues()
			for _, issue := range issues {
				printf(cmd, "WARN: %s\n", issue)
			}
			if len(issues) == 0 {
				printf(cmd, "configuration OK (%s)\n", cfg.Environment)
				return nil
			}
			if strict || cfg.Production() {
				return fmt.Errorf("%d security issue(s) found", len(issues))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on security issues outside production too")
	return cmd
}

func newSeedCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Install the starter catalog into an empty database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, deps, func(ctx context.Context, rt *runtime) error {
				n, err := app.SeedCatalog(ctx, rt.backend.Store, rt.now())
				if err != nil {
					return err
				}
				if n == 0 {
					printf(cmd, "catalog already has games\n")
					return nil
				}
				printf(cmd, "created %d games\n", n)
				return nil
			})
		},
	}
}

func newMaintenanceCmd(deps Deps) *cobra.Command {
	var scheduled bool
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Purge old audit events, prune threat windows and write a metrics snapshot, once or on MAINTENANCE_SCHEDULE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, deps, func(ctx context.Context, rt *runtime) error {
				jcfg := jobs.Config{
					Schedule:        rt.cfg.MaintenanceSchedule,
					AuditRetention:  rt.cfg.AuditRetention,
					WindowMaxAge:    threat.MaxWindow,
					MetricsTextfile: rt.cfg.MetricsTextfile,
				}
				s := jobs.NewScheduler(jcfg, rt.backend.Store, rt.window, rt.registry, rt.log, rt.now)

				if !scheduled {
					if err := s.RunOnce(ctx); err != nil {
						return err
					}
					printf(cmd, "maintenance done\n")
					return nil
				}
				if err := s.Start(ctx); err != nil {
					return err
				}
				<-ctx.Done()
				s.Stop()
				rt.log.Info("maintenance shutdown", zap.Error(ctx.Err()))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&scheduled, "schedule", false, "keep running and repeat on MAINTENANCE_SCHEDULE")
	return cmd
}

func newAuditCmd(deps Deps) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the most recent audit events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 || limit > 1000 {
				return fmt.Errorf("bad --limit %d: want 1..1000", limit)
			}
			return withRuntime(cmd, deps, func(ctx context.Context, rt *runtime) error {
				events, err := rt.backend.Store.Audit.ListRecent(ctx, limit)
				if err != nil {
					return err
				}
				w := table(cmd.OutOrStdout())
				fmt.Fprintln(w, "TIME\tSEVERITY\tACTION\tRESOURCE\tACCOUNT")
				for _, e := range events {
					account := "-"
					if e.AccountID != nil {
						account = e.AccountID.String()
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						e.CreatedAt.UTC().Format(time.RFC3339), e.Severity, e.Action, e.Resource, account)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "events to show")
	return cmd
}
