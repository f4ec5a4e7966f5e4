// Package memory provides an in-process implementation of the queue store
// contracts. It is safe for concurrent use and intended for tests and local
// development.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/mailqueue/pkg/queue"
)

var (
	_ queue.JobStore       = (*Store)(nil)
	_ queue.TemplateStore  = (*Store)(nil)
	_ queue.SequenceStore  = (*Store)(nil)
	_ queue.RecipientStore = (*Store)(nil)
	_ queue.LogSink        = (*Store)(nil)
)

// Option configures the store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store keeps jobs, templates, sequences, recipients and send logs in maps.
type Store struct {
	now        func() time.Time
	jobs       map[string]*queue.EmailJob
	templates  map[string]*queue.Template
	sequences  map[string]*queue.Sequence
	recipients map[string]queue.Recipient
	logs       []queue.LogEntry
	mu         sync.RWMutex
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		now:        time.Now,
		jobs:       make(map[string]*queue.EmailJob),
		templates:  make(map[string]*queue.Template),
		sequences:  make(map[string]*queue.Sequence),
		recipients: make(map[string]queue.Recipient),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ──────────────────────────────────────────────────
// Jobs
// ──────────────────────────────────────────────────

// FindDue implements queue.JobStore.
func (s *Store) FindDue(_ context.Context, limit, offset, maxAttempts int) ([]queue.EmailJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	due := s.dueLocked(maxAttempts)
	if offset >= len(due) {
		return nil, nil
	}
	due = due[offset:]
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]queue.EmailJob, len(due))
	for i, j := range due {
		out[i] = cloneJob(j)
	}
	return out, nil
}

// Claim implements queue.JobStore.
func (s *Store) Claim(_ context.Context, ids []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	claimed := make([]string, 0, len(ids))
	for _, id := range ids {
		j, ok := s.jobs[id]
		if !ok || j.Status != queue.StatusScheduled {
			continue
		}
		j.Status = queue.StatusProcessing
		j.UpdatedAt = now
		claimed = append(claimed, id)
	}
	return claimed, nil
}

// Unclaim implements queue.JobStore.
func (s *Store) Unclaim(_ context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for _, id := range ids {
		j, ok := s.jobs[id]
		if !ok || j.Status != queue.StatusProcessing {
			continue
		}
		j.Status = queue.StatusScheduled
		j.UpdatedAt = now
		n++
	}
	return n, nil
}

// ClaimDue implements queue.JobStore.
func (s *Store) ClaimDue(_ context.Context, limit, maxAttempts int) ([]queue.EmailJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	due := s.dueLocked(maxAttempts)
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	now := s.now()
	out := make([]queue.EmailJob, len(due))
	for i, j := range due {
		j.Status = queue.StatusProcessing
		j.UpdatedAt = now
		out[i] = cloneJob(j)
	}
	return out, nil
}

// ApplySuccess implements queue.JobStore.
func (s *Store) ApplySuccess(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return queue.ErrJobNotFound
	}
	if j.Status != queue.StatusProcessing {
		return nil
	}
	now := s.now()
	j.Status = queue.StatusSent
	j.LastAttempt = &now
	j.Error = ""
	j.UpdatedAt = now
	return nil
}

// ApplyFailure implements queue.JobStore.
func (s *Store) ApplyFailure(_ context.Context, id string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return queue.ErrJobNotFound
	}
	if j.Status != queue.StatusProcessing {
		return nil
	}
	now := s.now()
	j.Status = queue.StatusFailed
	j.LastAttempt = &now
	j.Error = errMsg
	j.Attempts++
	j.UpdatedAt = now
	return nil
}

// CountActiveForRecipientSequence implements queue.JobStore.
func (s *Store) CountActiveForRecipientSequence(_ context.Context, recipientID, sequenceID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, j := range s.jobs {
		if j.Recipient.ID == recipientID && j.Sequence != nil && j.Sequence.ID == sequenceID && j.Status.Active() {
			n++
		}
	}
	return n, nil
}

// ActiveRecipientsForSequence implements queue.JobStore.
func (s *Store) ActiveRecipientsForSequence(_ context.Context, sequenceID string, recipientIDs []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]struct{}, len(recipientIDs))
	for _, id := range recipientIDs {
		wanted[id] = struct{}{}
	}

	active := make(map[string]bool)
	for _, j := range s.jobs {
		if j.Sequence == nil || j.Sequence.ID != sequenceID || !j.Status.Active() {
			continue
		}
		if _, ok := wanted[j.Recipient.ID]; ok {
			active[j.Recipient.ID] = true
		}
	}
	return active, nil
}

// Insert implements queue.JobStore.
func (s *Store) Insert(ctx context.Context, job *queue.EmailJob) error {
	return s.InsertMany(ctx, []*queue.EmailJob{job})
}

// InsertMany implements queue.JobStore.
func (s *Store) InsertMany(_ context.Context, jobs []*queue.EmailJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, j := range jobs {
		if j.ID == "" {
			j.ID = uuid.NewString()
		}
		if j.Status == "" {
			j.Status = queue.StatusScheduled
		}
		if j.CreatedAt.IsZero() {
			j.CreatedAt = now
		}
		j.UpdatedAt = now
		c := cloneJob(j)
		s.jobs[j.ID] = &c
	}
	return nil
}

// Get implements queue.JobStore.
func (s *Store) Get(_ context.Context, id string) (*queue.EmailJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, queue.ErrJobNotFound
	}
	c := cloneJob(j)
	return &c, nil
}

// Cancel implements queue.JobStore.
func (s *Store) Cancel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return queue.ErrJobNotFound
	}
	if j.Status != queue.StatusScheduled {
		return queue.ErrNotCancellable
	}
	j.Status = queue.StatusCancelled
	j.UpdatedAt = s.now()
	return nil
}

// CountByStatus implements queue.JobStore.
func (s *Store) CountByStatus(_ context.Context, status queue.Status) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, j := range s.jobs {
		if j.Status == status {
			n++
		}
	}
	return n, nil
}

// CountRetryable implements queue.JobStore.
func (s *Store) CountRetryable(_ context.Context, maxAttempts int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, j := range s.jobs {
		if j.Status == queue.StatusFailed && j.Attempts < maxAttempts {
			n++
		}
	}
	return n, nil
}

// RequeueFailed implements queue.JobStore.
func (s *Store) RequeueFailed(_ context.Context, limit, maxAttempts int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var failed []*queue.EmailJob
	for _, j := range s.jobs {
		if j.Status == queue.StatusFailed && j.Attempts < maxAttempts {
			failed = append(failed, j)
		}
	}
	sortJobs(failed)
	if limit > 0 && len(failed) > limit {
		failed = failed[:limit]
	}

	now := s.now()
	ids := make([]string, len(failed))
	for i, j := range failed {
		j.Status = queue.StatusScheduled
		j.ScheduledFor = now
		j.UpdatedAt = now
		ids[i] = j.ID
	}
	return ids, nil
}

// ReleaseStale implements queue.JobStore.
func (s *Store) ReleaseStale(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for _, j := range s.jobs {
		if j.Status == queue.StatusProcessing && j.UpdatedAt.Before(cutoff) {
			j.Status = queue.StatusScheduled
			j.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

// FindTerminalOlderThan implements queue.JobStore.
func (s *Store) FindTerminalOlderThan(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var old []*queue.EmailJob
	for _, j := range s.jobs {
		if deletable(j, cutoff) {
			old = append(old, j)
		}
	}
	slices.SortFunc(old, func(a, b *queue.EmailJob) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})
	if limit > 0 && len(old) > limit {
		old = old[:limit]
	}

	ids := make([]string, len(old))
	for i, j := range old {
		ids[i] = j.ID
	}
	return ids, nil
}

// Delete implements queue.JobStore.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || (j.Status != queue.StatusSent && j.Status != queue.StatusCancelled) {
		return queue.ErrJobNotFound
	}
	delete(s.jobs, id)
	return nil
}

// DeleteTerminalOlderThan implements queue.JobStore.
func (s *Store) DeleteTerminalOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, j := range s.jobs {
		if deletable(j, cutoff) {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}

// Jobs returns a snapshot of every job ordered by schedule time.
func (s *Store) Jobs() []queue.EmailJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*queue.EmailJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		all = append(all, j)
	}
	sortJobs(all)

	out := make([]queue.EmailJob, len(all))
	for i, j := range all {
		out[i] = cloneJob(j)
	}
	return out
}

// Touch overrides the update time of a job. Useful for retention tests.
func (s *Store) Touch(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.UpdatedAt = at
	}
}

func (s *Store) dueLocked(maxAttempts int) []*queue.EmailJob {
	now := s.now()
	var due []*queue.EmailJob
	for _, j := range s.jobs {
		if j.Due(now, maxAttempts) {
			due = append(due, j)
		}
	}
	sortJobs(due)
	return due
}

func deletable(j *queue.EmailJob, cutoff time.Time) bool {
	return (j.Status == queue.StatusSent || j.Status == queue.StatusCancelled) && j.UpdatedAt.Before(cutoff)
}

func sortJobs(jobs []*queue.EmailJob) {
	slices.SortFunc(jobs, func(a, b *queue.EmailJob) int {
		if c := a.ScheduledFor.Compare(b.ScheduledFor); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func cloneJob(j *queue.EmailJob) queue.EmailJob {
	c := *j
	if j.Sequence != nil {
		seq := *j.Sequence
		c.Sequence = &seq
	}
	if j.LastAttempt != nil {
		t := *j.LastAttempt
		c.LastAttempt = &t
	}
	if j.Vars != nil {
		c.Vars = j.Vars.Merge(nil)
	}
	return c
}
