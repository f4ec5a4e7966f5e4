package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dmitrymomot/mailqueue/pkg/logger"
	"github.com/dmitrymomot/mailqueue/pkg/queue"
)

// Variables injected into every job of an enrollment. They override caller
// variables of the same name.
const (
	VarUserName     = "userName"
	VarUserEmail    = "userEmail"
	VarSequenceName = "sequenceName"
)

// Enrollment is the outcome of a single trigger.
type Enrollment struct {
	Jobs        []*queue.EmailJob `json:"jobs,omitempty"`
	SequenceID  string            `json:"sequence_id"`
	RecipientID string            `json:"recipient_id"`
	Skipped     bool              `json:"skipped"`
}

// Failure is a recipient that could not be enrolled.
type Failure struct {
	RecipientID string `json:"recipient_id"`
	Error       string `json:"error"`
}

// BatchResult aggregates a batch trigger. Skipped recipients were already
// enrolled and count as neither successful nor failed.
type BatchResult struct {
	Errors     []Failure `json:"errors"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Jobs       int       `json:"jobs"`
}

// Scheduler turns sequence triggers into scheduled jobs.
type Scheduler struct {
	sequences   queue.SequenceStore
	recipients  queue.RecipientStore
	jobs        queue.JobStore
	logger      *slog.Logger
	now         func() time.Time
	insertChunk int
}

// New creates a scheduler.
func New(sequences queue.SequenceStore, recipients queue.RecipientStore, jobs queue.JobStore, opts ...Option) *Scheduler {
	s := defaults()
	s.sequences = sequences
	s.recipients = recipients
	s.jobs = jobs
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trigger enrolls one recipient into the sequence with key.
//
// Unknown sequences and recipients are returned as queue.ErrSequenceNotFound
// and queue.ErrRecipientNotFound and nothing is stored. A recipient already
// enrolled gets Enrollment{Skipped: true} and a nil error.
func (s *Scheduler) Trigger(ctx context.Context, key, recipientID string, vars queue.Vars) (*Enrollment, error) {
	ctx = logger.WithSequence(ctx, key)

	seq, err := s.sequence(ctx, key)
	if err != nil {
		return nil, err
	}
	rcpt, err := s.recipients.Recipient(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if rcpt.Email == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoEmail, recipientID)
	}

	enr := &Enrollment{SequenceID: seq.ID, RecipientID: rcpt.ID}

	active, err := s.jobs.CountActiveForRecipientSequence(ctx, rcpt.ID, seq.ID)
	if err != nil {
		return nil, fmt.Errorf("sequence: check enrollment: %w", err)
	}
	if active > 0 {
		s.logger.InfoContext(ctx, "recipient already enrolled",
			slog.String("recipient_id", rcpt.ID),
			slog.Int("active_jobs", active),
		)
		enr.Skipped = true
		return enr, nil
	}

	enr.Jobs = s.expand(seq, *rcpt, vars, s.now())
	if err := s.jobs.InsertMany(ctx, enr.Jobs); err != nil {
		return nil, errors.Join(ErrInsertFailed, err)
	}

	s.logger.InfoContext(ctx, "recipient enrolled",
		slog.String("recipient_id", rcpt.ID),
		slog.Int("jobs", len(enr.Jobs)),
	)
	return enr, nil
}

// TriggerBatch enrolls many recipients into the sequence with key.
//
// The sequence is fetched once, recipients in one call and existing
// enrollments in one call. Unknown recipients are reported per recipient.
// Jobs are inserted in chunks; a chunk that fails to insert marks its
// recipients as failed and the remaining chunks still run. Repeated ids are
// enrolled once.
func (s *Scheduler) TriggerBatch(ctx context.Context, key string, recipientIDs []string, vars queue.Vars) (*BatchResult, error) {
	ctx = logger.WithSequence(ctx, key)

	seq, err := s.sequence(ctx, key)
	if err != nil {
		return nil, err
	}

	ids := dedupe(recipientIDs)
	res := &BatchResult{Errors: []Failure{}}
	if len(ids) == 0 {
		return res, nil
	}

	known, err := s.recipients.Recipients(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("sequence: fetch recipients: %w", err)
	}
	enrolled, err := s.jobs.ActiveRecipientsForSequence(ctx, seq.ID, ids)
	if err != nil {
		return nil, fmt.Errorf("sequence: check enrollments: %w", err)
	}

	now := s.now()
	var pending []*queue.EmailJob
	for _, id := range ids {
		rcpt, ok := known[id]
		switch {
		case !ok:
			res.fail(id, queue.ErrRecipientNotFound)
		case rcpt.Email == "":
			res.fail(id, ErrNoEmail)
		case enrolled[id]:
			res.Skipped++
		default:
			pending = append(pending, s.expand(seq, rcpt, vars, now)...)
		}
	}

	// Chunk boundaries follow recipients so one recipient's steps are stored
	// together or not at all.
	for group := range slices.Chunk(pending, s.chunkSize(len(seq.Steps))) {
		if err := s.jobs.InsertMany(ctx, group); err != nil {
			s.logger.ErrorContext(ctx, "failed to insert enrollment chunk",
				slog.Int("jobs", len(group)),
				slog.String("error", err.Error()),
			)
			for _, j := range group {
				if j.Sequence.StepIndex == 0 {
					res.fail(j.Recipient.ID, errors.Join(ErrInsertFailed, err))
				}
			}
			continue
		}
		for _, j := range group {
			if j.Sequence.StepIndex == 0 {
				res.Successful++
			}
		}
		res.Jobs += len(group)
	}

	s.logger.InfoContext(ctx, "batch enrollment finished",
		slog.Int("requested", len(ids)),
		slog.Int("successful", res.Successful),
		slog.Int("failed", res.Failed),
		slog.Int("skipped", res.Skipped),
	)
	return res, nil
}

func (s *Scheduler) sequence(ctx context.Context, key string) (*queue.Sequence, error) {
	seq, err := s.sequences.ActiveSequenceByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(seq.Steps) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSteps, key)
	}
	return seq, nil
}

// chunkSize rounds the insert chunk down to whole enrollments, keeping at
// least one.
func (s *Scheduler) chunkSize(steps int) int {
	return max(s.insertChunk/steps, 1) * steps
}

func (s *Scheduler) expand(seq *queue.Sequence, rcpt queue.Recipient, vars queue.Vars, now time.Time) []*queue.EmailJob {
	merged := vars.Merge(queue.Vars{
		VarUserName:     queue.String(rcpt.Name),
		VarUserEmail:    queue.String(rcpt.Email),
		VarSequenceName: queue.String(seq.Name),
	})

	jobs := make([]*queue.EmailJob, len(seq.Steps))
	for i, step := range seq.Steps {
		jobs[i] = &queue.EmailJob{
			Recipient: rcpt,
			Template:  queue.TemplateRef{ID: step.TemplateID, Key: step.TemplateKey},
			Sequence: &queue.SequenceRef{
				ID:        seq.ID,
				Key:       seq.Key,
				StepIndex: i,
			},
			Vars:         merged.Merge(nil),
			Status:       queue.StatusScheduled,
			ScheduledFor: now.Add(step.Delay()).UTC(),
		}
	}
	return jobs
}

func (r *BatchResult) fail(recipientID string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, Failure{RecipientID: recipientID, Error: err.Error()})
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
