package tasks

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/mailqueue/internal/config"
	"github.com/dmitrymomot/mailqueue/pkg/job"
)

// Deps are the components the tasks drive.
type Deps struct {
	Processor   BatchProcessor
	Maintenance Maintainer
	Enroller    Enroller
	// Nil when the log archive is disabled.
	Archive Flusher
	Logger  *slog.Logger
}

// Options registers every task with the job manager.
func Options(d Deps, cfg *config.Config) []job.Option {
	s := cfg.Schedules
	opts := []job.Option{
		job.WithScheduledTask(Process(d.Processor, s.Process, cfg.Jobs.BatchLimit)),
		job.WithScheduledTask(Retry(d.Maintenance, s.Retry, cfg.Jobs.BatchLimit)),
		job.WithScheduledTask(ReleaseStale(d.Maintenance, s.ReleaseStale, staleAfter(cfg), d.Logger)),
		job.WithScheduledTask(Cleanup(d.Maintenance, s.Cleanup, cfg.Retention.DaysToKeep, d.Logger)),
		job.WithScheduledTask(Stats(d.Maintenance, s.Stats)),
		job.WithTask[EnrollBatchPayload](NewEnrollBatch(d.Enroller, d.Logger)),
	}
	if d.Archive != nil {
		opts = append(opts, job.WithScheduledTask(FlushArchive(d.Archive, s.FlushArchive)))
	}
	return opts
}

func staleAfter(cfg *config.Config) time.Duration {
	// Jobs stay in processing until their whole page has been worked off.
	return max(cfg.Retention.StaleAfter, 2*cfg.Dispatch.MaxHold())
}
