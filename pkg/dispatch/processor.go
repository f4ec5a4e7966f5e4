package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/dmitrymomot/mailqueue/pkg/logger"
	"github.com/dmitrymomot/mailqueue/pkg/mailer"
	"github.com/dmitrymomot/mailqueue/pkg/queue"
)

// Renderer renders a template for a recipient. *mailer.Renderer implements it.
type Renderer interface {
	Render(ctx context.Context, key string, vars queue.Vars, to queue.Recipient) (*mailer.Rendered, error)
}

// Mailer composes and delivers emails. *mailer.Mailer implements it.
type Mailer interface {
	Compose(r *mailer.Rendered, to queue.Recipient, tags mailer.Tags) *mailer.Email
	Send(ctx context.Context, email *mailer.Email) (string, error)
}

// Processor claims due jobs, sends them and records the outcome.
type Processor struct {
	store    queue.JobStore
	renderer Renderer
	mailer   Mailer
	sink     queue.LogSink
	opts     *options
}

// New creates a processor. sink may be nil.
func New(store queue.JobStore, renderer Renderer, m Mailer, sink queue.LogSink, opts ...Option) *Processor {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Processor{
		store:    store,
		renderer: renderer,
		mailer:   m,
		sink:     sink,
		opts:     o,
	}
}

// MaxRetries returns the configured attempt limit.
func (p *Processor) MaxRetries() int { return p.opts.maxRetries }

// MaxHold returns the longest time a claimed job stays in processing during
// a run. Stale releases must use a longer threshold.
func (p *Processor) MaxHold() time.Duration { return p.opts.maxHold() }

type outcome struct {
	err       error
	job       *queue.EmailJob
	messageID string
	duplicate bool
	// skipped is set when the run was cancelled before the job reached the
	// transport.
	skipped bool
}

// ProcessBatch claims and sends up to limit due jobs.
//
// Jobs are claimed in pages of the batch size. Each page is split into
// chunks of the concurrency setting; chunks run one after another and jobs
// inside a chunk run in parallel. A failing job never affects its siblings.
// Outcomes are written after every chunk. The run stops early once a page
// comes back short.
//
// When ctx is cancelled mid-page, jobs that never reached the transport are
// unclaimed without using an attempt and the context error is returned.
//
// A non-nil error means the run stopped early; the result still holds
// everything processed before that.
func (p *Processor) ProcessBatch(ctx context.Context, limit int) (*Result, error) {
	start := p.opts.now()
	ctx = logger.WithRunID(ctx, uuid.NewString())
	log := p.opts.logger

	if limit <= 0 {
		limit = p.opts.batchSize
	}
	res := &Result{Successful: []string{}, Failed: []Failure{}}

	var runErr error
	pages := (limit + p.opts.batchSize - 1) / p.opts.batchSize
	remaining := limit
	for range pages {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		size := min(p.opts.batchSize, remaining)
		jobs, err := p.store.ClaimDue(ctx, size, p.opts.maxRetries)
		if err != nil {
			runErr = errors.Join(ErrClaimFailed, err)
			break
		}
		if len(jobs) == 0 {
			break
		}
		remaining -= len(jobs)

		if err := p.dispatchPage(ctx, jobs, res); err != nil {
			runErr = err
			break
		}

		if len(jobs) < size || remaining <= 0 {
			break
		}
	}

	res.TotalProcessed = len(res.Successful) + len(res.Failed)
	res.Duration = p.opts.now().Sub(start)
	p.opts.metrics.observeBatch(res)

	attrs := []any{
		slog.Int("successful", len(res.Successful)),
		slog.Int("failed", len(res.Failed)),
		slog.Int("unclaimed", len(res.Unclaimed)),
		slog.Int64("duration_ms", res.DurationMs()),
		slog.Float64("jobs_per_second", res.Throughput()),
	}
	switch {
	case runErr != nil:
		log.ErrorContext(ctx, "batch interrupted", append(attrs, slog.String("error", runErr.Error()))...)
	case res.TotalProcessed > 0:
		log.InfoContext(ctx, "batch processed", attrs...)
	}
	return res, runErr
}

// dispatchPage runs the claimed jobs chunk by chunk and returns the context
// error if the run was cancelled before the page finished.
func (p *Processor) dispatchPage(ctx context.Context, jobs []queue.EmailJob, res *Result) error {
	for start := 0; start < len(jobs); start += p.opts.concurrency {
		if err := ctx.Err(); err != nil {
			ids := make([]string, 0, len(jobs)-start)
			for _, j := range jobs[start:] {
				ids = append(ids, j.ID)
			}
			p.unclaim(ctx, ids, res)
			return err
		}

		chunk := jobs[start:min(start+p.opts.concurrency, len(jobs))]
		results := make([]outcome, len(chunk))
		var wg sync.WaitGroup
		for i := range chunk {
			wg.Go(func() {
				results[i] = p.processJob(ctx, &chunk[i])
			})
		}
		wg.Wait()
		p.persist(ctx, results, res)
	}
	return ctx.Err()
}

func (p *Processor) processJob(ctx context.Context, job *queue.EmailJob) (out outcome) {
	out.job = job
	ctx = logger.WithJobID(ctx, job.ID)
	var tags mailer.Tags
	if job.Sequence != nil {
		ctx = logger.WithSequence(ctx, job.Sequence.Key)
		tags = mailer.Tags{mailer.SequenceTag: job.Sequence.Key}
	}

	defer func() {
		if r := recover(); r != nil {
			out.err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	if ctx.Err() != nil {
		out.skipped = true
		return out
	}

	rendered, err := p.renderer.Render(ctx, job.Template.Key, job.Vars, job.Recipient)
	if err != nil {
		out.err = fmt.Errorf("render %q: %w", job.Template.Key, err)
		return out
	}
	email := p.mailer.Compose(rendered, job.Recipient, tags)

	key := guardKey(job)
	if p.opts.guard != nil {
		first, err := p.opts.guard.Acquire(ctx, key)
		switch {
		case err != nil:
			// Fail open: the claim already makes duplicates unlikely.
			p.opts.logger.WarnContext(ctx, "send guard unavailable", slog.String("error", err.Error()))
		case !first:
			p.opts.metrics.duplicate()
			p.opts.logger.WarnContext(ctx, "duplicate send suppressed")
			out.duplicate = true
			return out
		}
	}

	if p.opts.limiter != nil {
		if err := p.opts.limiter.Wait(ctx); err != nil {
			p.releaseGuard(ctx, key)
			if ctx.Err() != nil {
				out.skipped = true
				return out
			}
			out.err = errors.Join(ErrRateLimit, err)
			return out
		}
	}
	if ctx.Err() != nil {
		p.releaseGuard(ctx, key)
		out.skipped = true
		return out
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.opts.sendTimeout)
	messageID, err := p.mailer.Send(sendCtx, email)
	cancel()
	if err != nil {
		p.releaseGuard(ctx, key)
		out.err = err
		return out
	}
	out.messageID = messageID

	if p.sink != nil {
		entry := queue.LogEntry{
			JobID:             job.ID,
			RecipientID:       job.Recipient.ID,
			RecipientEmail:    job.Recipient.Email,
			TemplateID:        rendered.TemplateID,
			TemplateKey:       rendered.TemplateKey,
			Subject:           rendered.Subject,
			Status:            queue.StatusSent,
			SentAt:            p.opts.now(),
			ProviderMessageID: messageID,
		}
		// The email is out; a lost log entry must not turn into a resend.
		if err := p.sink.Append(context.WithoutCancel(ctx), entry); err != nil {
			p.opts.logger.ErrorContext(ctx, "failed to append send log", slog.String("error", err.Error()))
		}
	}
	return out
}

func (p *Processor) releaseGuard(ctx context.Context, key string) {
	if p.opts.guard == nil {
		return
	}
	if err := p.opts.guard.Release(context.WithoutCancel(ctx), key); err != nil {
		p.opts.logger.WarnContext(ctx, "failed to release send guard", slog.String("error", err.Error()))
	}
}

// persist writes every outcome back to the store. Writes outlive a cancelled
// run context so sent jobs are not left in processing.
func (p *Processor) persist(ctx context.Context, outcomes []outcome, res *Result) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.persistTimeout)
	defer cancel()

	var skipped []string
	for _, o := range outcomes {
		jctx := logger.WithJobID(ctx, o.job.ID)

		if o.skipped {
			skipped = append(skipped, o.job.ID)
			continue
		}

		if o.err != nil {
			msg := o.err.Error()
			res.Failed = append(res.Failed, Failure{JobID: o.job.ID, Error: msg})
			p.opts.metrics.failedJob()
			p.opts.logger.WarnContext(jctx, "email job failed",
				slog.Int("attempt", o.job.Attempts+1),
				slog.String("error", msg),
			)
			p.writeStatus(wctx, jctx, func(ctx context.Context) error {
				return p.store.ApplyFailure(ctx, o.job.ID, msg)
			})
			continue
		}

		res.Successful = append(res.Successful, o.job.ID)
		if !o.duplicate {
			p.opts.metrics.sentJob()
			p.opts.logger.DebugContext(jctx, "email sent", slog.String("message_id", o.messageID))
		}
		p.writeStatus(wctx, jctx, func(ctx context.Context) error {
			return p.store.ApplySuccess(ctx, o.job.ID)
		})
	}

	p.unclaim(ctx, skipped, res)
}

// unclaim hands jobs that never reached the transport back to the queue.
func (p *Processor) unclaim(ctx context.Context, ids []string, res *Result) {
	if len(ids) == 0 {
		return
	}
	res.Unclaimed = append(res.Unclaimed, ids...)

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.persistTimeout)
	defer cancel()

	p.opts.logger.WarnContext(ctx, "run cancelled; returning unsent jobs to the queue", slog.Int("jobs", len(ids)))
	p.writeStatus(wctx, ctx, func(ctx context.Context) error {
		_, err := p.store.Unclaim(ctx, ids)
		return err
	})
}

func (p *Processor) writeStatus(wctx, logCtx context.Context, write func(context.Context) error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.opts.persistBackoff
	b.MaxElapsedTime = p.opts.persistTimeout

	op := func() error {
		err := write(wctx)
		if errors.Is(err, queue.ErrJobNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(b, wctx)); err != nil {
		p.opts.metrics.persistError()
		p.opts.logger.ErrorContext(logCtx, "failed to persist job status; job stays processing until released",
			slog.String("error", err.Error()),
		)
	}
}
