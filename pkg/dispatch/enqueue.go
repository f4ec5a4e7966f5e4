package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrymomot/mailqueue/pkg/queue"
)

// Enqueue schedules a one-off send of the template with key to recipient at
// the given time. A zero time means now. The template must be active.
func Enqueue(
	ctx context.Context,
	store queue.JobStore,
	templates queue.TemplateStore,
	to queue.Recipient,
	key string,
	vars queue.Vars,
	at time.Time,
) (*queue.EmailJob, error) {
	if to.Email == "" {
		return nil, ErrNoRecipient
	}
	tpl, err := templates.ActiveTemplateByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if at.IsZero() {
		at = time.Now()
	}

	job := &queue.EmailJob{
		Recipient:    to,
		Template:     queue.TemplateRef{ID: tpl.ID, Key: tpl.Key},
		Vars:         vars,
		Status:       queue.StatusScheduled,
		ScheduledFor: at.UTC(),
	}
	if err := store.Insert(ctx, job); err != nil {
		return nil, fmt.Errorf("dispatch: enqueue job: %w", err)
	}
	return job, nil
}

// Cancel cancels a scheduled job. Jobs already claimed or finished return
// queue.ErrNotCancellable.
func Cancel(ctx context.Context, store queue.JobStore, id string) error {
	return store.Cancel(ctx, id)
}
