// Package sequence enrolls recipients into multi-step email sequences.
//
// A Scheduler expands a sequence definition into one scheduled job per step,
// each firing at trigger time plus the step's delay. Enrollment is
// idempotent: a recipient that already holds a scheduled or processing job
// of the sequence is skipped.
//
// Usage:
//
//	s := sequence.New(store, store, store, sequence.WithLogger(log))
//	enr, err := s.Trigger(ctx, "onboarding", userID, queue.Vars{"plan": queue.String("pro")})
//	if err != nil {
//		return err
//	}
//	if enr.Skipped {
//		// already enrolled
//	}
//
// Batch enrollment fetches the sequence, the recipients and the existing
// enrollments once, then inserts the jobs in chunks:
//
//	res, err := s.TriggerBatch(ctx, "onboarding", userIDs, nil)
//
// A missing recipient is a per-recipient failure in a batch and a fatal
// error for Trigger.
package sequence
