package sequence

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/mailqueue/pkg/logger"
)

// DefaultInsertChunk is the number of jobs stored per InsertMany call in
// TriggerBatch.
const DefaultInsertChunk = 50

// Config holds environment-driven scheduler settings.
type Config struct {
	InsertChunk int `env:"SEQUENCE_INSERT_CHUNK" envDefault:"50"`
}

// Options converts the config into scheduler options.
func (c Config) Options() []Option {
	return []Option{WithInsertChunk(c.InsertChunk)}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInsertChunk sets how many jobs TriggerBatch inserts per call.
// Non-positive values are ignored.
func WithInsertChunk(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.insertChunk = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the trigger time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func defaults() *Scheduler {
	return &Scheduler{
		insertChunk: DefaultInsertChunk,
		logger:      logger.NewNope(),
		now:         time.Now,
	}
}
