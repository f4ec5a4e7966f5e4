package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/mailqueue/pkg/db"
	"github.com/dmitrymomot/mailqueue/pkg/queue"
)

// ActiveTemplateByKey implements queue.TemplateStore.
func (s *Store) ActiveTemplateByKey(ctx context.Context, key string) (*queue.Template, error) {
	var t queue.Template
	err := s.db.QueryRow(ctx, `
		SELECT id, key, subject, body_rich, body_text, header_rich, header_text,
		       footer_rich, footer_text, from_name, from_email, reply_to, active, updated_at
		FROM email_templates
		WHERE key = $1 AND active`,
		key,
	).Scan(
		&t.ID, &t.Key, &t.Subject, &t.Body.Rich, &t.Body.Text, &t.Header.Rich, &t.Header.Text,
		&t.Footer.Rich, &t.Footer.Text, &t.FromName, &t.FromEmail, &t.ReplyTo, &t.Active, &t.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, queue.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("queue/postgres: get template: %w", err)
	}
	return &t, nil
}

// ActiveSequenceByKey implements queue.SequenceStore.
func (s *Store) ActiveSequenceByKey(ctx context.Context, key string) (*queue.Sequence, error) {
	var seq queue.Sequence
	err := s.db.QueryRow(ctx, `
		SELECT id, key, name, active FROM email_sequences WHERE key = $1 AND active`,
		key,
	).Scan(&seq.ID, &seq.Key, &seq.Name, &seq.Active)
	if err != nil {
		if isNoRows(err) {
			return nil, queue.ErrSequenceNotFound
		}
		return nil, fmt.Errorf("queue/postgres: get sequence: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT st.template_id, t.key, st.delay_value, st.delay_unit
		FROM email_sequence_steps st
		JOIN email_templates t ON t.id = st.template_id
		WHERE st.sequence_id = $1
		ORDER BY st.position ASC`,
		seq.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("queue/postgres: get sequence steps: %w", err)
	}
	steps, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (queue.Step, error) {
		var st queue.Step
		var unit string
		err := row.Scan(&st.TemplateID, &st.TemplateKey, &st.DelayValue, &unit)
		st.DelayUnit = queue.DelayUnit(unit)
		return st, err
	})
	if err != nil {
		return nil, fmt.Errorf("queue/postgres: get sequence steps: %w", err)
	}
	seq.Steps = steps
	return &seq, nil
}

// Recipient implements queue.RecipientStore.
func (s *Store) Recipient(ctx context.Context, id string) (*queue.Recipient, error) {
	var r queue.Recipient
	err := s.db.QueryRow(ctx, `SELECT id, email, name FROM recipients WHERE id = $1`, id).
		Scan(&r.ID, &r.Email, &r.Name)
	if err != nil {
		if isNoRows(err) {
			return nil, queue.ErrRecipientNotFound
		}
		return nil, fmt.Errorf("queue/postgres: get recipient: %w", err)
	}
	return &r, nil
}

// Recipients implements queue.RecipientStore.
func (s *Store) Recipients(ctx context.Context, ids []string) (map[string]queue.Recipient, error) {
	out := make(map[string]queue.Recipient, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.Query(ctx, `SELECT id, email, name FROM recipients WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("queue/postgres: get recipients: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (queue.Recipient, error) {
		var r queue.Recipient
		err := row.Scan(&r.ID, &r.Email, &r.Name)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("queue/postgres: get recipients: %w", err)
	}
	for _, r := range list {
		out[r.ID] = r
	}
	return out, nil
}

// Append implements queue.LogSink.
func (s *Store) Append(ctx context.Context, e queue.LogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	var jobID *string
	if e.JobID != "" {
		jobID = &e.JobID
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO email_logs (
			id, job_id, recipient_id, recipient_email, template_id, template_key,
			subject, status, sent_at, provider_message_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, jobID, e.RecipientID, e.RecipientEmail, e.TemplateID, e.TemplateKey,
		e.Subject, string(e.Status), e.SentAt, e.ProviderMessageID,
	)
	if err != nil {
		return fmt.Errorf("queue/postgres: append log: %w", err)
	}
	return nil
}

// UpsertRecipient creates or updates a recipient.
func (s *Store) UpsertRecipient(ctx context.Context, r queue.Recipient) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO recipients (id, email, name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name, updated_at = NOW()`,
		r.ID, r.Email, r.Name,
	)
	if err != nil {
		return fmt.Errorf("queue/postgres: upsert recipient: %w", err)
	}
	return nil
}

// UpsertTemplate creates or updates a template by key and returns its id.
func (s *Store) UpsertTemplate(ctx context.Context, t queue.Template) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	var id string
	err := s.db.QueryRow(ctx, `
		INSERT INTO email_templates (
			id, key, subject, body_rich, body_text, header_rich, header_text,
			footer_rich, footer_text, from_name, from_email, reply_to, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (key) DO UPDATE SET
			subject = EXCLUDED.subject,
			body_rich = EXCLUDED.body_rich, body_text = EXCLUDED.body_text,
			header_rich = EXCLUDED.header_rich, header_text = EXCLUDED.header_text,
			footer_rich = EXCLUDED.footer_rich, footer_text = EXCLUDED.footer_text,
			from_name = EXCLUDED.from_name, from_email = EXCLUDED.from_email,
			reply_to = EXCLUDED.reply_to, active = EXCLUDED.active,
			updated_at = NOW()
		RETURNING id`,
		t.ID, t.Key, t.Subject, t.Body.Rich, t.Body.Text, t.Header.Rich, t.Header.Text,
		t.Footer.Rich, t.Footer.Text, t.FromName, t.FromEmail, t.ReplyTo, t.Active,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("queue/postgres: upsert template: %w", err)
	}
	return id, nil
}

// UpsertSequence creates or updates a sequence by key, replacing its steps.
// Steps reference templates by TemplateKey.
func (s *Store) UpsertSequence(ctx context.Context, seq queue.Sequence) (string, error) {
	if seq.ID == "" {
		seq.ID = uuid.NewString()
	}

	var id string
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO email_sequences (id, key, name, active) VALUES ($1, $2, $3, $4)
			ON CONFLICT (key) DO UPDATE SET name = EXCLUDED.name, active = EXCLUDED.active, updated_at = NOW()
			RETURNING id`,
			seq.ID, seq.Key, seq.Name, seq.Active,
		).Scan(&id)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM email_sequence_steps WHERE sequence_id = $1`, id); err != nil {
			return err
		}

		for i, st := range seq.Steps {
			tag, err := tx.Exec(ctx, `
				INSERT INTO email_sequence_steps (sequence_id, position, template_id, delay_value, delay_unit)
				SELECT $1, $2, id, $4, $5 FROM email_templates WHERE key = $3`,
				id, i, st.TemplateKey, st.DelayValue, string(st.DelayUnit),
			)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("%w: step %d references %q", queue.ErrTemplateNotFound, i, st.TemplateKey)
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("queue/postgres: upsert sequence: %w", err)
	}
	return id, nil
}
