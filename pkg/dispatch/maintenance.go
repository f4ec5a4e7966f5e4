package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/mailqueue/pkg/queue"
)

const cleanupPage = 500

// Maintenance runs the periodic sweeps around a Processor: retrying failed
// jobs, reporting queue stats, pruning old jobs and releasing stuck claims.
// It shares the processor's attempt limit, logger, metrics and clock.
type Maintenance struct {
	store     queue.JobStore
	processor *Processor
}

// NewMaintenance creates maintenance operations over store.
func NewMaintenance(store queue.JobStore, processor *Processor) *Maintenance {
	return &Maintenance{store: store, processor: processor}
}

// RetryFailedJobs moves up to limit failed jobs that still have attempts
// left back to scheduled and immediately runs a batch of that size.
func (m *Maintenance) RetryFailedJobs(ctx context.Context, limit int) (*Result, error) {
	ids, err := m.store.RequeueFailed(ctx, limit, m.processor.opts.maxRetries)
	if err != nil {
		return nil, fmt.Errorf("dispatch: requeue failed jobs: %w", err)
	}
	if len(ids) == 0 {
		return &Result{Successful: []string{}, Failed: []Failure{}}, nil
	}

	m.processor.opts.logger.InfoContext(ctx, "requeued failed jobs", slog.Int("count", len(ids)))
	return m.processor.ProcessBatch(ctx, len(ids))
}

// QueueStats counts jobs per status plus failed jobs that can still be retried.
func (m *Maintenance) QueueStats(ctx context.Context) (*queue.Stats, error) {
	stats := &queue.Stats{}
	for _, st := range queue.Statuses {
		n, err := m.store.CountByStatus(ctx, st)
		if err != nil {
			return nil, fmt.Errorf("dispatch: count %s jobs: %w", st, err)
		}
		stats.Set(st, n)
	}

	n, err := m.store.CountRetryable(ctx, m.processor.opts.maxRetries)
	if err != nil {
		return nil, fmt.Errorf("dispatch: count retryable jobs: %w", err)
	}
	stats.Retryable = n

	m.processor.opts.metrics.observeStats(stats)
	return stats, nil
}

// CleanupOldJobs deletes sent and cancelled jobs last updated more than
// daysToKeep days ago. Rows are deleted one by one; a failed delete is
// logged and skipped. The count covers successful deletes only.
// Scheduled, processing and failed jobs are never touched.
func (m *Maintenance) CleanupOldJobs(ctx context.Context, daysToKeep int) (int, error) {
	if daysToKeep < 0 {
		return 0, ErrInvalidRetention
	}
	log := m.processor.opts.logger
	cutoff := m.processor.opts.now().Add(-time.Duration(daysToKeep) * 24 * time.Hour)

	deleted := 0
	skipped := make(map[string]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		ids, err := m.store.FindTerminalOlderThan(ctx, cutoff, cleanupPage+len(skipped))
		if err != nil {
			return deleted, fmt.Errorf("dispatch: find old jobs: %w", err)
		}

		progressed := false
		for _, id := range ids {
			if _, ok := skipped[id]; ok {
				continue
			}
			if err := m.store.Delete(ctx, id); err != nil {
				skipped[id] = struct{}{}
				log.WarnContext(ctx, "failed to delete old job",
					slog.String("job_id", id),
					slog.String("error", err.Error()),
				)
				continue
			}
			deleted++
			progressed = true
		}

		if !progressed || len(ids) < cleanupPage+len(skipped) {
			break
		}
	}

	if deleted > 0 {
		log.InfoContext(ctx, "old jobs cleaned up",
			slog.Int("deleted", deleted),
			slog.Int("days_to_keep", daysToKeep),
		)
	}
	return deleted, nil
}

// ReleaseStale moves jobs stuck in processing for longer than olderThan back
// to scheduled. A job stays in processing when its status write failed after
// the send attempt; releasing it allows a resend, which is the at-least-once
// trade-off.
func (m *Maintenance) ReleaseStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := m.processor.opts.now().Add(-olderThan)
	n, err := m.store.ReleaseStale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("dispatch: release stale jobs: %w", err)
	}
	if n > 0 {
		m.processor.opts.logger.WarnContext(ctx, "released stale processing jobs", slog.Int("count", n))
	}
	return n, nil
}
