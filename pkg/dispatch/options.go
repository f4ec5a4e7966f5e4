package dispatch

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmitrymomot/mailqueue/pkg/logger"
)

// Config holds processor settings.
// Parsed from the environment by internal/config.
type Config struct {
	BatchSize   int           `env:"DISPATCH_BATCH_SIZE" envDefault:"100"`
	MaxRetries  int           `env:"DISPATCH_MAX_RETRIES" envDefault:"3"`
	Concurrency int           `env:"DISPATCH_CONCURRENCY" envDefault:"10"`
	SendTimeout time.Duration `env:"DISPATCH_SEND_TIMEOUT" envDefault:"30s"`
	// Sends per second across the process. Zero disables limiting.
	RateLimit float64 `env:"DISPATCH_RATE_LIMIT" envDefault:"0"`
	RateBurst int     `env:"DISPATCH_RATE_BURST" envDefault:"1"`
}

// Options returns the processor options for cfg.
func (c Config) Options() []Option {
	return []Option{
		WithBatchSize(c.BatchSize),
		WithMaxRetries(c.MaxRetries),
		WithConcurrency(c.Concurrency),
		WithSendTimeout(c.SendTimeout),
		WithRateLimit(c.RateLimit, c.RateBurst),
	}
}

// MaxHold returns the longest time a job claimed by a processor built from
// c stays in processing during one run.
func (c Config) MaxHold() time.Duration {
	o := defaultOptions()
	for _, opt := range c.Options() {
		opt(o)
	}
	return o.maxHold()
}

// Option configures a Processor.
type Option func(*options)

type options struct {
	logger         *slog.Logger
	limiter        *rate.Limiter
	metrics        *Metrics
	guard          Guard
	now            func() time.Time
	sendTimeout    time.Duration
	persistTimeout time.Duration
	persistBackoff time.Duration
	batchSize      int
	maxRetries     int
	concurrency    int
}

func defaultOptions() *options {
	return &options{
		logger:         logger.NewNope(),
		now:            time.Now,
		sendTimeout:    30 * time.Second,
		persistTimeout: 10 * time.Second,
		persistBackoff: 100 * time.Millisecond,
		batchSize:      100,
		maxRetries:     3,
		concurrency:    10,
	}
}

// maxHold bounds how long the last job of a page waits in processing: every
// chunk before it may use the full send timeout, its share of the rate
// limit and a full status write. Unsent jobs of a cancelled run need one
// more write to be unclaimed.
func (o *options) maxHold() time.Duration {
	chunks := (o.batchSize + o.concurrency - 1) / o.concurrency
	perChunk := o.sendTimeout + o.persistTimeout
	if o.limiter != nil {
		perChunk += time.Duration(float64(o.concurrency) / float64(o.limiter.Limit()) * float64(time.Second))
	}
	return time.Duration(chunks)*perChunk + o.persistTimeout
}

// WithBatchSize sets the page size used when claiming jobs.
// Default: 100
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithMaxRetries sets the attempt limit. Jobs that failed this many times
// are no longer claimed or requeued.
// Default: 3
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

// WithConcurrency sets how many jobs of a page are sent in parallel.
// Default: 10
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithSendTimeout bounds each transport call.
// Default: 30 seconds
func WithSendTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.sendTimeout = d
		}
	}
}

// WithRateLimit caps sends per second. A zero or negative limit disables it.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *options) {
		if perSecond <= 0 {
			o.limiter = nil
			return
		}
		o.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// WithPersistRetry sets the initial backoff interval and the overall timeout
// of status writes after a send.
// Default: 100ms, 10 seconds
func WithPersistRetry(initial, timeout time.Duration) Option {
	return func(o *options) {
		if initial > 0 {
			o.persistBackoff = initial
		}
		if timeout > 0 {
			o.persistTimeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithGuard enables duplicate send suppression.
func WithGuard(g Guard) Option {
	return func(o *options) {
		o.guard = g
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
