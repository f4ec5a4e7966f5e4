package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/mailqueue/internal/config"
	"github.com/dmitrymomot/mailqueue/internal/server"
	"github.com/dmitrymomot/mailqueue/internal/tasks"
	"github.com/dmitrymomot/mailqueue/pkg/db"
	"github.com/dmitrymomot/mailqueue/pkg/job"
	"github.com/dmitrymomot/mailqueue/pkg/logger"
	"github.com/dmitrymomot/mailqueue/pkg/queue"
	"github.com/dmitrymomot/mailqueue/pkg/queue/postgres"
	"github.com/dmitrymomot/mailqueue/pkg/seed"
)

type rootOptions struct {
	envFiles []string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "mailqueue",
		Short: "Scheduled email dispatch service",
		Long: `mailqueue stores scheduled emails in PostgreSQL and sends them in batches.

Jobs come from sequence enrollments or one-off sends. A periodic run claims
due jobs, renders their templates and hands them to the configured transport
(SMTP or Resend). Failed jobs are retried until they run out of attempts.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files to load")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newSeedCmd(opts),
		newEnrollCmd(opts),
		newProcessCmd(opts),
		newRetryCmd(opts),
		newCleanupCmd(opts),
		newStatsCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.envFiles...)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.NewWithSentry(cfg.Log, logger.DefaultExtractors()...), nil
}

// withApp loads config, wires the app and closes it after fn.
func (o *rootOptions) withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	cfg, log, err := o.load()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))
	return fn(ctx, a)
}

func newServeCmd(o *rootOptions) *cobra.Command {
	var seedDir string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, log, err := o.load()
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}

			if err := migrate(ctx, a); err != nil {
				a.close(context.WithoutCancel(ctx))
				return err
			}
			if dir := firstNonEmpty(seedDir, cfg.SeedDir); dir != "" {
				if _, err := seed.Seed(ctx, os.DirFS(dir), a.store, log); err != nil {
					a.close(context.WithoutCancel(ctx))
					return err
				}
			}

			m, err := a.manager()
			if err != nil {
				a.close(context.WithoutCancel(ctx))
				return err
			}

			return server.Run(ctx, server.Config{
				Handler:         a.handler(m),
				Logger:          log,
				Addr:            cfg.HTTP.Addr,
				ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
				ReadTimeout:     cfg.HTTP.ReadTimeout,
				WriteTimeout:    cfg.HTTP.WriteTimeout,
				StartupHooks:    []server.Hook{startJobs(m)},
				ShutdownHooks:   append([]server.Hook{stopJobs(m)}, a.shutdownHooks()...),
			})
		},
	}
	cmd.Flags().StringVar(&seedDir, "seed", "", "seed templates and sequences from this directory on start")
	return cmd
}

// startJobs detaches the runner from the signal context; shutdown goes
// through stopJobs so running jobs can finish.
func startJobs(m *job.Manager) server.Hook {
	return func(ctx context.Context) error {
		return m.Start(context.WithoutCancel(ctx))
	}
}

func stopJobs(m *job.Manager) server.Hook {
	return func(ctx context.Context) error {
		if err := m.Stop(ctx); err != nil && !errors.Is(err, job.ErrNotStarted) {
			return err
		}
		return nil
	}
}

func migrate(ctx context.Context, a *app) error {
	if err := db.Migrate(ctx, a.pool, postgres.Migrations, postgres.MigrationsDir, a.cfg.DB.MigrationsTable, a.log); err != nil {
		return err
	}
	return job.Migrate(ctx, a.pool, a.log)
}

func newMigrateCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply queue and job runner migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withApp(cmd.Context(), migrate)
		},
	}
}

func newSeedCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <dir>",
		Short: "Upsert templates and sequences from a directory",
		Long: `seed reads templates/*.md (YAML front matter plus markdown body) and
sequences/*.yaml from dir and upserts them by key.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				c, err := seed.Seed(ctx, os.DirFS(args[0]), a.store, a.log)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]int{
					"templates": len(c.Templates),
					"sequences": len(c.Sequences),
				})
			})
		},
	}
}

func newEnrollCmd(o *rootOptions) *cobra.Command {
	var (
		vars  map[string]string
		async bool
	)
	cmd := &cobra.Command{
		Use:   "enroll <sequence> <recipient-id>...",
		Short: "Enroll recipients into a sequence",
		Long: `enroll schedules every step of the sequence for each recipient.
Recipients with an active enrollment are skipped.

With --async the batch is handed to the job runner of a running serve
process instead of being expanded here.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				key, ids := args[0], args[1:]
				v := cliVars(vars)

				if async {
					enq, err := job.NewEnqueuer(a.pool, a.log)
					if err != nil {
						return err
					}
					err = enq.Enqueue(ctx, tasks.NameEnrollBatch, tasks.EnrollBatchPayload{
						SequenceKey:  key,
						RecipientIDs: ids,
						Vars:         v,
					})
					if err != nil {
						return err
					}
					return printJSON(cmd, map[string]any{"queued": true, "recipients": len(ids)})
				}

				res, err := a.scheduler.TriggerBatch(ctx, key, ids, v)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
	cmd.Flags().StringToStringVar(&vars, "var", nil, "template variable as key=value (repeatable)")
	cmd.Flags().BoolVar(&async, "async", false, "enqueue for the job runner instead of enrolling inline")
	return cmd
}

// cliVars converts flag values to string variables.
func cliVars(m map[string]string) queue.Vars {
	if len(m) == 0 {
		return nil
	}
	v := make(queue.Vars, len(m))
	for k, s := range m {
		v[k] = queue.String(s)
	}
	return v
}

func newProcessCmd(o *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Send due jobs once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				res, err := a.processor.ProcessBatch(ctx, limit)
				if perr := printJSON(cmd, res); perr != nil {
					return perr
				}
				return err
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum jobs to process")
	return cmd
}

func newRetryCmd(o *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Requeue retryable failed jobs and send them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				res, err := a.maintenance.RetryFailedJobs(ctx, limit)
				if res != nil {
					if perr := printJSON(cmd, res); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum jobs to requeue")
	return cmd
}

func newCleanupCmd(o *rootOptions) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete sent and cancelled jobs older than the retention window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if !cmd.Flags().Changed("days") {
					days = a.cfg.Retention.DaysToKeep
				}
				n, err := a.maintenance.CleanupOldJobs(ctx, days)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]int{"deleted": n, "days_to_keep": days})
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "days to keep")
	return cmd
}

func newStatsCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print job counts by status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				st, err := a.maintenance.QueueStats(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, st)
			})
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
