package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/mailqueue/internal/api"
	"github.com/dmitrymomot/mailqueue/internal/config"
	"github.com/dmitrymomot/mailqueue/internal/server"
	"github.com/dmitrymomot/mailqueue/internal/tasks"
	"github.com/dmitrymomot/mailqueue/pkg/cache"
	"github.com/dmitrymomot/mailqueue/pkg/db"
	"github.com/dmitrymomot/mailqueue/pkg/dispatch"
	"github.com/dmitrymomot/mailqueue/pkg/health"
	"github.com/dmitrymomot/mailqueue/pkg/job"
	"github.com/dmitrymomot/mailqueue/pkg/logger"
	"github.com/dmitrymomot/mailqueue/pkg/mailer"
	"github.com/dmitrymomot/mailqueue/pkg/mailer/resend"
	"github.com/dmitrymomot/mailqueue/pkg/mailer/smtp"
	"github.com/dmitrymomot/mailqueue/pkg/queue"
	"github.com/dmitrymomot/mailqueue/pkg/queue/cached"
	"github.com/dmitrymomot/mailqueue/pkg/queue/postgres"
	"github.com/dmitrymomot/mailqueue/pkg/queue/s3log"
	"github.com/dmitrymomot/mailqueue/pkg/redis"
	"github.com/dmitrymomot/mailqueue/pkg/sequence"
)

const guardPrefix = "mailqueue:send:"

// app holds the wired components shared by every command.
type app struct {
	cfg         *config.Config
	log         *slog.Logger
	pool        *pgxpool.Pool
	redis       goredis.UniversalClient
	store       *postgres.Store
	templates   queue.TemplateStore
	sequences   queue.SequenceStore
	archive     *s3log.Sink
	registry    *prometheus.Registry
	processor   *dispatch.Processor
	maintenance *dispatch.Maintenance
	scheduler   *sequence.Scheduler
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.close(context.WithoutCancel(ctx))
		}
	}()

	if a.pool, err = db.Connect(ctx, cfg.DB); err != nil {
		return nil, err
	}
	a.store = postgres.New(a.pool)

	if cfg.Redis.Enabled() {
		if a.redis, err = redis.Open(ctx, cfg.Redis); err != nil {
			return nil, err
		}
	}
	a.templates, a.sequences = a.catalog()

	sender, err := newSender(cfg)
	if err != nil {
		return nil, err
	}

	var sink queue.LogSink = a.store
	if cfg.Archive.Enabled() {
		if a.archive, err = s3log.New(cfg.Archive); err != nil {
			return nil, err
		}
		sink = queue.MultiSink(a.store, a.archive)
	}

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	opts := append(cfg.Dispatch.Options(),
		dispatch.WithLogger(log),
		dispatch.WithMetrics(dispatch.NewMetrics(a.registry)),
	)
	if a.redis != nil {
		opts = append(opts, dispatch.WithGuard(redis.NewGuard(a.redis, guardPrefix, cfg.Retention.GuardTTL)))
	}

	a.processor = dispatch.New(a.store, mailer.NewRenderer(a.templates), mailer.New(sender, cfg.Mail), sink, opts...)
	a.maintenance = dispatch.NewMaintenance(a.store, a.processor)
	a.scheduler = sequence.New(a.sequences, a.store, a.store,
		append(cfg.Sequence.Options(), sequence.WithLogger(log))...,
	)
	return a, nil
}

// catalog wraps template and sequence lookups with Redis when available and
// a process-local cache otherwise.
func (a *app) catalog() (queue.TemplateStore, queue.SequenceStore) {
	ttl := a.cfg.Retention.TemplateCache
	if a.redis != nil {
		return cached.NewTemplates(a.store, cache.NewRedis[queue.Template](a.redis, "mailqueue:tpl:", ttl), ttl),
			cached.NewSequences(a.store, cache.NewRedis[queue.Sequence](a.redis, "mailqueue:seq:", ttl), ttl)
	}
	return cached.NewTemplates(a.store, cache.NewMemory[queue.Template](cache.WithDefaultTTL(ttl)), ttl),
		cached.NewSequences(a.store, cache.NewMemory[queue.Sequence](cache.WithDefaultTTL(ttl)), ttl)
}

func newSender(cfg *config.Config) (mailer.Sender, error) {
	switch cfg.Transport {
	case config.TransportResend:
		return resend.New(cfg.Resend)
	case config.TransportSMTP:
		return smtp.New(cfg.SMTP), nil
	}
	return nil, fmt.Errorf("%w: %q", config.ErrUnknownTransport, cfg.Transport)
}

func (a *app) manager() (*job.Manager, error) {
	d := tasks.Deps{
		Processor:   a.processor,
		Maintenance: a.maintenance,
		Enroller:    a.scheduler,
		Logger:      a.log,
	}
	if a.archive != nil {
		d.Archive = a.archive
	}

	opts := append([]job.Option{
		job.WithLogger(a.log),
		job.WithMaxWorkers(a.cfg.Jobs.Workers),
		job.WithTaskTimeout(a.cfg.Jobs.TaskTimeout),
	}, tasks.Options(d, a.cfg)...)
	return job.NewManager(a.pool, opts...)
}

func (a *app) handler(m *job.Manager) http.Handler {
	checks := health.Checks{
		"postgres": db.Healthcheck(a.pool),
		"jobs":     job.Healthcheck(m),
		"backlog":  health.ProcessingBacklog(a.store, a.cfg.Retention.BacklogLimit),
	}
	optional := []string{"backlog"}
	if a.redis != nil {
		checks["redis"] = redis.Healthcheck(a.redis)
		optional = append(optional, "redis")
	}

	return api.New(api.Deps{
		Jobs:        a.store,
		Templates:   a.templates,
		Recipients:  a.store,
		Enroller:    a.scheduler,
		Processor:   a.processor,
		Maintenance: a.maintenance,
		Tasks:       m,
		Metrics:     promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
		Checks:      checks,
		Optional:    optional,
		Logger:      a.log,
		Token:       a.cfg.HTTP.APIToken,
	})
}

// shutdownHooks stop components in reverse start order.
func (a *app) shutdownHooks() []server.Hook {
	var hooks []server.Hook
	if a.archive != nil {
		hooks = append(hooks, a.archive.Close)
	}
	if a.redis != nil {
		hooks = append(hooks, redis.Shutdown(a.redis))
	}
	if a.pool != nil {
		hooks = append(hooks, db.Shutdown(a.pool))
	}
	return append(hooks, func(ctx context.Context) error {
		logger.Flush(ctx)
		return nil
	})
}

// close releases resources outside of the server lifecycle.
func (a *app) close(ctx context.Context) {
	for _, hook := range a.shutdownHooks() {
		if err := hook(ctx); err != nil {
			a.log.ErrorContext(ctx, "close failed", slog.String("error", err.Error()))
		}
	}
}
