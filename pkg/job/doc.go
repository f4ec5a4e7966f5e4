// Package job runs background work on River, the Postgres-native queue.
//
// The dispatcher itself has no scheduler loop: processing, retrying,
// releasing stale claims and cleanup are periodic tasks registered here,
// and large enrollments can be handed off as one-off tasks.
//
// # Tasks
//
// Tasks are plain structs with Name and Handle methods. The payload type is
// inferred from Handle and travels as JSON:
//
//	type EnrollBatch struct{ scheduler *sequence.Scheduler }
//
//	func (t *EnrollBatch) Name() string { return "enroll_batch" }
//
//	func (t *EnrollBatch) Handle(ctx context.Context, p EnrollBatchPayload) error {
//		_, err := t.scheduler.TriggerBatch(ctx, p.Sequence, p.RecipientIDs, p.Vars)
//		return err
//	}
//
// # Periodic tasks
//
// A periodic task adds Schedule, a five-field cron expression. It may also
// implement RunOnStart() bool to fire once when the manager starts:
//
//	func (t *ProcessDue) Schedule() string { return "* * * * *" }
//
// # Manager
//
//	if err := job.Migrate(ctx, pool, log); err != nil {
//		return err
//	}
//	m, err := job.NewManager(pool,
//		job.WithLogger(log),
//		job.WithScheduledTask(tasks.NewProcessDue(processor, cfg)),
//		job.WithTask(tasks.NewEnrollBatch(scheduler)),
//		job.WithTaskTimeout(5*time.Minute),
//	)
//	if err := m.Start(ctx); err != nil {
//		return err
//	}
//	defer m.Stop(context.Background())
//
// Jobs may be enqueued before Start; they run once workers are up.
// Processes that only enqueue use NewEnqueuer.
package job
