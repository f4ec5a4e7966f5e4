package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/mailqueue/pkg/logger"
)

const defaultMaxWorkers = 10

type schedule struct {
	handler    periodicTask
	name       string
	expr       string
	runOnStart bool
}

type config struct {
	registry    *registry
	queues      map[string]int
	logger      *slog.Logger
	schedules   []schedule
	maxWorkers  int
	taskTimeout time.Duration
}

func newConfig() *config {
	return &config{
		registry:   newRegistry(),
		queues:     make(map[string]int),
		logger:     logger.NewNope(),
		maxWorkers: defaultMaxWorkers,
	}
}

// Option configures a Manager.
type Option func(*config)

// WithTask registers a task. The payload type is inferred from Handle.
func WithTask[P any, T interface {
	Name() string
	Handle(context.Context, P) error
}](task T) Option {
	return func(c *config) {
		c.registry.register(task.Name(), &typedTask[P, T]{task: task})
	}
}

// WithScheduledTask registers a periodic task. Schedule returns a
// five-field cron expression; an empty one leaves the task disabled.
// Tasks that implement RunOnStart() bool can also fire at startup.
func WithScheduledTask[T interface {
	Name() string
	Schedule() string
	Handle(context.Context) error
}](task T) Option {
	return func(c *config) {
		s := schedule{
			name:    task.Name(),
			expr:    task.Schedule(),
			handler: task.Handle,
		}
		if r, ok := any(task).(interface{ RunOnStart() bool }); ok {
			s.runOnStart = r.RunOnStart()
		}
		c.schedules = append(c.schedules, s)
	}
}

// WithQueue adds a named queue with its own worker count.
func WithQueue(name string, workers int) Option {
	return func(c *config) {
		if name != "" && workers > 0 {
			c.queues[name] = workers
		}
	}
}

// WithLogger sets the logger for the manager and River.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxWorkers sets the worker count of the default queue.
func WithMaxWorkers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxWorkers = n
		}
	}
}

// WithTaskTimeout bounds every task run. Zero keeps River's default and a
// negative value disables the timeout.
func WithTaskTimeout(d time.Duration) Option {
	return func(c *config) {
		c.taskTimeout = d
	}
}
