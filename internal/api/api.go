// Package api exposes the mail queue over HTTP: enrollment, one-off jobs,
// manual dispatch runs, maintenance, probes and metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/mailqueue/pkg/dispatch"
	"github.com/dmitrymomot/mailqueue/pkg/health"
	"github.com/dmitrymomot/mailqueue/pkg/job"
	"github.com/dmitrymomot/mailqueue/pkg/logger"
	"github.com/dmitrymomot/mailqueue/pkg/queue"
	"github.com/dmitrymomot/mailqueue/pkg/sequence"
)

const maxBodyBytes = 1 << 20

// Enroller enrolls recipients into sequences.
type Enroller interface {
	Trigger(ctx context.Context, key, recipientID string, vars queue.Vars) (*sequence.Enrollment, error)
	TriggerBatch(ctx context.Context, key string, recipientIDs []string, vars queue.Vars) (*sequence.BatchResult, error)
}

// BatchProcessor runs dispatch batches.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, limit int) (*dispatch.Result, error)
}

// Maintainer runs queue maintenance.
type Maintainer interface {
	RetryFailedJobs(ctx context.Context, limit int) (*dispatch.Result, error)
	QueueStats(ctx context.Context) (*queue.Stats, error)
	CleanupOldJobs(ctx context.Context, daysToKeep int) (int, error)
}

// TaskEnqueuer hands work to the background runner.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, name string, payload any, opts ...job.EnqueueOption) error
}

// Deps are the components behind the handlers.
type Deps struct {
	Jobs        queue.JobStore
	Templates   queue.TemplateStore
	Recipients  queue.RecipientStore
	Enroller    Enroller
	Processor   BatchProcessor
	Maintenance Maintainer
	// Nil runs batch enrollments inline.
	Tasks TaskEnqueuer
	// Served at /metrics when set.
	Metrics  http.Handler
	Checks   health.Checks
	Optional []string
	Logger   *slog.Logger
	// Empty disables authentication of /v1.
	Token string
}

type server struct {
	Deps
	now func() time.Time
}

// New builds the HTTP handler.
func New(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = logger.NewNope()
	}
	s := &server{Deps: d, now: time.Now}

	r := chi.NewRouter()
	r.Use(requestID, s.recoverer, s.accessLog)

	r.Get("/health/live", health.LivenessHandler())
	r.Get("/health/ready", health.ReadinessHandler(d.Checks,
		health.WithOptional(d.Optional...),
		health.WithLogger(d.Logger),
	))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(bearerAuth(d.Token))

		r.Post("/sequences/{key}/enroll", s.handle(s.enroll))
		r.Post("/sequences/{key}/enroll-batch", s.handle(s.enrollBatch))

		r.Post("/jobs", s.handle(s.createJob))
		r.Get("/jobs/{id}", s.handle(s.getJob))
		r.Post("/jobs/{id}/cancel", s.handle(s.cancelJob))

		r.Get("/stats", s.handle(s.stats))
		r.Post("/process", s.handle(s.process))
		r.Post("/retry", s.handle(s.retry))
		r.Post("/cleanup", s.handle(s.cleanup))
	})

	return r
}

// handlerFunc returns an error instead of writing one.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (s *server) handle(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			s.writeError(w, r, err)
		}
	}
}
