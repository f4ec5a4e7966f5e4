// Package tasks binds the dispatch pipeline to background jobs: the
// periodic runs that drive the queue and the async batch enrollment.
package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/mailqueue/pkg/dispatch"
	"github.com/dmitrymomot/mailqueue/pkg/logger"
	"github.com/dmitrymomot/mailqueue/pkg/queue"
	"github.com/dmitrymomot/mailqueue/pkg/sequence"
)

// Task names.
const (
	NameProcess      = "dispatch.process"
	NameRetry        = "dispatch.retry"
	NameReleaseStale = "dispatch.release_stale"
	NameCleanup      = "dispatch.cleanup"
	NameStats        = "dispatch.stats"
	NameFlushArchive = "archive.flush"
	NameEnrollBatch  = "sequence.enroll_batch"
)

// BatchProcessor runs one dispatch batch.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, limit int) (*dispatch.Result, error)
}

// Maintainer runs queue maintenance.
type Maintainer interface {
	RetryFailedJobs(ctx context.Context, limit int) (*dispatch.Result, error)
	QueueStats(ctx context.Context) (*queue.Stats, error)
	CleanupOldJobs(ctx context.Context, daysToKeep int) (int, error)
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// Flusher writes buffered log entries out.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Enroller enrolls recipients into sequences.
type Enroller interface {
	TriggerBatch(ctx context.Context, key string, recipientIDs []string, vars queue.Vars) (*sequence.BatchResult, error)
}

// Periodic is a named task run on a cron schedule.
type Periodic struct {
	run      func(context.Context) error
	name     string
	schedule string
	onStart  bool
}

func (p Periodic) Name() string { return p.name }

func (p Periodic) Schedule() string { return p.schedule }

func (p Periodic) RunOnStart() bool { return p.onStart }

func (p Periodic) Handle(ctx context.Context) error { return p.run(ctx) }

// Process drains due jobs up to limit per run.
// The processor logs the run summary.
func Process(p BatchProcessor, schedule string, limit int) Periodic {
	return Periodic{
		name:     NameProcess,
		schedule: schedule,
		run: func(ctx context.Context) error {
			_, err := p.ProcessBatch(ctx, limit)
			return err
		},
	}
}

// Retry requeues failed jobs that still have attempts left and sends them.
func Retry(m Maintainer, schedule string, limit int) Periodic {
	return Periodic{
		name:     NameRetry,
		schedule: schedule,
		run: func(ctx context.Context) error {
			_, err := m.RetryFailedJobs(ctx, limit)
			return err
		},
	}
}

// ReleaseStale returns jobs stuck in processing for longer than olderThan
// to the queue. It also runs once at startup to recover from a crash.
func ReleaseStale(m Maintainer, schedule string, olderThan time.Duration, log *slog.Logger) Periodic {
	log = orNope(log)
	return Periodic{
		name:     NameReleaseStale,
		schedule: schedule,
		onStart:  true,
		run: func(ctx context.Context) error {
			n, err := m.ReleaseStale(ctx, olderThan)
			if err != nil {
				return err
			}
			if n > 0 {
				log.WarnContext(ctx, "released stale jobs", slog.Int("count", n))
			}
			return nil
		},
	}
}

// Cleanup deletes finished jobs older than daysToKeep.
func Cleanup(m Maintainer, schedule string, daysToKeep int, log *slog.Logger) Periodic {
	log = orNope(log)
	return Periodic{
		name:     NameCleanup,
		schedule: schedule,
		run: func(ctx context.Context) error {
			n, err := m.CleanupOldJobs(ctx, daysToKeep)
			if err != nil {
				return err
			}
			log.InfoContext(ctx, "old jobs deleted", slog.Int("count", n), slog.Int("days_to_keep", daysToKeep))
			return nil
		},
	}
}

// Stats refreshes the queue gauges.
func Stats(m Maintainer, schedule string) Periodic {
	return Periodic{
		name:     NameStats,
		schedule: schedule,
		onStart:  true,
		run: func(ctx context.Context) error {
			_, err := m.QueueStats(ctx)
			return err
		},
	}
}

// FlushArchive pushes buffered log entries to the archive so a quiet period
// does not hold them in memory indefinitely.
func FlushArchive(f Flusher, schedule string) Periodic {
	return Periodic{
		name:     NameFlushArchive,
		schedule: schedule,
		run:      f.Flush,
	}
}

func orNope(l *slog.Logger) *slog.Logger {
	if l == nil {
		return logger.NewNope()
	}
	return l
}

// EnrollBatchPayload is the payload of the enroll batch task.
type EnrollBatchPayload struct {
	Vars         queue.Vars `json:"variables,omitempty"`
	SequenceKey  string     `json:"sequence_key"`
	RecipientIDs []string   `json:"recipient_ids"`
}

// EnrollBatch enrolls a large recipient list outside the request path.
type EnrollBatch struct {
	enroller Enroller
	logger   *slog.Logger
}

// NewEnrollBatch returns the enroll batch task.
func NewEnrollBatch(e Enroller, log *slog.Logger) *EnrollBatch {
	return &EnrollBatch{enroller: e, logger: orNope(log)}
}

func (t *EnrollBatch) Name() string { return NameEnrollBatch }

// Handle enrolls the recipients. Per-recipient failures are logged; only
// failures that prevent the whole batch are returned for River to retry.
func (t *EnrollBatch) Handle(ctx context.Context, p EnrollBatchPayload) error {
	res, err := t.enroller.TriggerBatch(ctx, p.SequenceKey, p.RecipientIDs, p.Vars)
	if err != nil {
		return err
	}

	ctx = logger.WithSequence(ctx, p.SequenceKey)
	for _, f := range res.Errors {
		t.logger.WarnContext(ctx, "enrollment failed",
			slog.String("recipient_id", f.RecipientID),
			slog.String("error", f.Error),
		)
	}
	t.logger.InfoContext(ctx, "batch enrollment finished",
		slog.Int("successful", res.Successful),
		slog.Int("failed", res.Failed),
		slog.Int("skipped", res.Skipped),
	)
	return nil
}
