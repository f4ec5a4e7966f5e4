package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/mailqueue/pkg/queue"
)

const jobColumns = `
	id, recipient_id, recipient_email, recipient_name,
	template_id, template_key, sequence_id, sequence_key, step_index,
	variables, status, scheduled_for, attempts, last_attempt, error,
	created_at, updated_at`

// FindDue implements queue.JobStore.
func (s *Store) FindDue(ctx context.Context, limit, offset, maxAttempts int) ([]queue.EmailJob, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+jobColumns+`
		FROM email_jobs
		WHERE status = 'scheduled'
		  AND scheduled_for <= NOW()
		  AND attempts < $3
		ORDER BY scheduled_for ASC, created_at ASC, id ASC
		LIMIT $1 OFFSET $2`,
		limit, offset, maxAttempts,
	)
	if err != nil {
		return nil, fmt.Errorf("queue/postgres: find due: %w", err)
	}
	return collectJobs(rows)
}

// Claim implements queue.JobStore.
func (s *Store) Claim(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		UPDATE email_jobs
		SET status = 'processing', updated_at = NOW()
		WHERE id = ANY($1) AND status = 'scheduled'
		RETURNING id`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("queue/postgres: claim: %w", err)
	}
	claimed, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("queue/postgres: claim: %w", err)
	}
	return claimed, nil
}

// ClaimDue implements queue.JobStore.
func (s *Store) ClaimDue(ctx context.Context, limit, maxAttempts int) ([]queue.EmailJob, error) {
	rows, err := s.db.Query(ctx, `
		WITH claimed AS (
			UPDATE email_jobs
			SET status = 'processing', updated_at = NOW()
			WHERE id IN (
				SELECT id FROM email_jobs
				WHERE status = 'scheduled'
				  AND scheduled_for <= NOW()
				  AND attempts < $2
				ORDER BY scheduled_for ASC, created_at ASC
				LIMIT $1
				FOR UPDATE SKIP LOCKED
			)
			RETURNING `+jobColumns+`
		)
		SELECT * FROM claimed ORDER BY scheduled_for ASC, created_at ASC`,
		limit, maxAttempts,
	)
	if err != nil {
		return nil, fmt.Errorf("queue/postgres: claim due: %w", err)
	}
	return collectJobs(rows)
}

// Unclaim implements queue.JobStore.
func (s *Store) Unclaim(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE email_jobs SET status = 'scheduled', updated_at = NOW()
		WHERE id = ANY($1) AND status = 'processing'`,
		ids,
	)
	if err != nil {
		return 0, fmt.Errorf("queue/postgres: unclaim: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ApplySuccess implements queue.JobStore.
func (s *Store) ApplySuccess(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE email_jobs
		SET status = 'sent', last_attempt = NOW(), error = '', updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("queue/postgres: apply success: %w", err)
	}
	return nil
}

// ApplyFailure implements queue.JobStore.
func (s *Store) ApplyFailure(ctx context.Context, id string, errMsg string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE email_jobs
		SET status = 'failed', last_attempt = NOW(), error = $2,
		    attempts = attempts + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`,
		id, errMsg,
	)
	if err != nil {
		return fmt.Errorf("queue/postgres: apply failure: %w", err)
	}
	return nil
}

// CountActiveForRecipientSequence implements queue.JobStore.
func (s *Store) CountActiveForRecipientSequence(ctx context.Context, recipientID, sequenceID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM email_jobs
		WHERE recipient_id = $1 AND sequence_id = $2
		  AND status IN ('scheduled', 'processing')`,
		recipientID, sequenceID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("queue/postgres: count active enrollment: %w", err)
	}
	return n, nil
}

// ActiveRecipientsForSequence implements queue.JobStore.
func (s *Store) ActiveRecipientsForSequence(ctx context.Context, sequenceID string, recipientIDs []string) (map[string]bool, error) {
	active := make(map[string]bool)
	if len(recipientIDs) == 0 {
		return active, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT recipient_id FROM email_jobs
		WHERE sequence_id = $1 AND recipient_id = ANY($2)
		  AND status IN ('scheduled', 'processing')`,
		sequenceID, recipientIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("queue/postgres: active recipients: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("queue/postgres: active recipients: %w", err)
	}
	for _, id := range ids {
		active[id] = true
	}
	return active, nil
}

// Insert implements queue.JobStore.
func (s *Store) Insert(ctx context.Context, job *queue.EmailJob) error {
	return s.InsertMany(ctx, []*queue.EmailJob{job})
}

// InsertMany implements queue.JobStore. All rows are sent in one batch
// inside a transaction.
func (s *Store) InsertMany(ctx context.Context, jobs []*queue.EmailJob) error {
	if len(jobs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, j := range jobs {
		if j.ID == "" {
			j.ID = uuid.NewString()
		}
		if j.Status == "" {
			j.Status = queue.StatusScheduled
		}
		vars, err := json.Marshal(nonNilVars(j.Vars))
		if err != nil {
			return fmt.Errorf("queue/postgres: encode variables: %w", err)
		}

		var seqID, seqKey *string
		var step *int
		if j.Sequence != nil {
			seqID, seqKey, step = &j.Sequence.ID, &j.Sequence.Key, &j.Sequence.StepIndex
		}

		batch.Queue(`
			INSERT INTO email_jobs (
				id, recipient_id, recipient_email, recipient_name,
				template_id, template_key, sequence_id, sequence_key, step_index,
				variables, status, scheduled_for, attempts, error
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			j.ID, j.Recipient.ID, j.Recipient.Email, j.Recipient.Name,
			j.Template.ID, j.Template.Key, seqID, seqKey, step,
			vars, string(j.Status), j.ScheduledFor, j.Attempts, j.Error,
		)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("queue/postgres: insert jobs: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("queue/postgres: insert jobs: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("queue/postgres: insert jobs: %w", err)
	}
	return nil
}

// Get implements queue.JobStore.
func (s *Store) Get(ctx context.Context, id string) (*queue.EmailJob, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM email_jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, queue.ErrJobNotFound
		}
		return nil, fmt.Errorf("queue/postgres: get job: %w", err)
	}
	return &j, nil
}

// Cancel implements queue.JobStore.
func (s *Store) Cancel(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE email_jobs SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("queue/postgres: cancel job: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM email_jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("queue/postgres: cancel job: %w", err)
	}
	if !exists {
		return queue.ErrJobNotFound
	}
	return queue.ErrNotCancellable
}

// CountByStatus implements queue.JobStore.
func (s *Store) CountByStatus(ctx context.Context, status queue.Status) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM email_jobs WHERE status = $1`, string(status)).Scan(&n); err != nil {
		return 0, fmt.Errorf("queue/postgres: count by status: %w", err)
	}
	return n, nil
}

// CountRetryable implements queue.JobStore.
func (s *Store) CountRetryable(ctx context.Context, maxAttempts int) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM email_jobs WHERE status = 'failed' AND attempts < $1`,
		maxAttempts,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("queue/postgres: count retryable: %w", err)
	}
	return n, nil
}

// RequeueFailed implements queue.JobStore.
func (s *Store) RequeueFailed(ctx context.Context, limit, maxAttempts int) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE email_jobs
		SET status = 'scheduled', scheduled_for = NOW(), updated_at = NOW()
		WHERE id IN (
			SELECT id FROM email_jobs
			WHERE status = 'failed' AND attempts < $2
			ORDER BY scheduled_for ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id`,
		limit, maxAttempts,
	)
	if err != nil {
		return nil, fmt.Errorf("queue/postgres: requeue failed: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("queue/postgres: requeue failed: %w", err)
	}
	return ids, nil
}

// ReleaseStale implements queue.JobStore.
func (s *Store) ReleaseStale(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE email_jobs SET status = 'scheduled', updated_at = NOW()
		WHERE status = 'processing' AND updated_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("queue/postgres: release stale: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// FindTerminalOlderThan implements queue.JobStore.
func (s *Store) FindTerminalOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id FROM email_jobs
		WHERE status IN ('sent', 'cancelled') AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("queue/postgres: find terminal: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("queue/postgres: find terminal: %w", err)
	}
	return ids, nil
}

// Delete implements queue.JobStore.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM email_jobs WHERE id = $1 AND status IN ('sent', 'cancelled')`,
		id,
	)
	if err != nil {
		return fmt.Errorf("queue/postgres: delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return queue.ErrJobNotFound
	}
	return nil
}

// DeleteTerminalOlderThan implements queue.JobStore.
func (s *Store) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM email_jobs WHERE status IN ('sent', 'cancelled') AND updated_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("queue/postgres: delete terminal: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func collectJobs(rows pgx.Rows) ([]queue.EmailJob, error) {
	defer rows.Close()

	var jobs []queue.EmailJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("queue/postgres: scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queue/postgres: read jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (queue.EmailJob, error) {
	var (
		j       queue.EmailJob
		seqID   *string
		seqKey  *string
		step    *int
		vars    []byte
		status  string
		lastAtt *time.Time
	)
	err := row.Scan(
		&j.ID, &j.Recipient.ID, &j.Recipient.Email, &j.Recipient.Name,
		&j.Template.ID, &j.Template.Key, &seqID, &seqKey, &step,
		&vars, &status, &j.ScheduledFor, &j.Attempts, &lastAtt, &j.Error,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return j, err
	}

	j.Status = queue.Status(status)
	j.LastAttempt = lastAtt
	if seqID != nil {
		j.Sequence = &queue.SequenceRef{ID: *seqID}
		if seqKey != nil {
			j.Sequence.Key = *seqKey
		}
		if step != nil {
			j.Sequence.StepIndex = *step
		}
	}
	if len(vars) > 0 {
		if err := json.Unmarshal(vars, &j.Vars); err != nil {
			return j, fmt.Errorf("decode variables: %w", err)
		}
	}
	return j, nil
}

func nonNilVars(v queue.Vars) queue.Vars {
	if v == nil {
		return queue.Vars{}
	}
	return v
}
