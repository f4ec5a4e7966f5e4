// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/dmitrymomot/mailqueue/pkg/db"
	"github.com/dmitrymomot/mailqueue/pkg/dispatch"
	"github.com/dmitrymomot/mailqueue/pkg/logger"
	"github.com/dmitrymomot/mailqueue/pkg/mailer"
	"github.com/dmitrymomot/mailqueue/pkg/mailer/resend"
	"github.com/dmitrymomot/mailqueue/pkg/mailer/smtp"
	"github.com/dmitrymomot/mailqueue/pkg/queue/s3log"
	"github.com/dmitrymomot/mailqueue/pkg/redis"
	"github.com/dmitrymomot/mailqueue/pkg/sequence"
)

// Transports accepted by MAIL_TRANSPORT.
const (
	TransportResend = "resend"
	TransportSMTP   = "smtp"
)

var (
	ErrLoad             = errors.New("config: load failed")
	ErrUnknownTransport = errors.New("config: unknown mail transport")
)

// Config is the full service configuration.
type Config struct {
	HTTP      HTTP
	Schedules Schedules
	Log       logger.Config
	DB        db.Config
	Redis     redis.Config
	Mail      mailer.Config
	Resend    resend.Config
	SMTP      smtp.Config
	Dispatch  dispatch.Config
	Sequence  sequence.Config
	Archive   s3log.Config
	Jobs      Jobs
	Retention Retention

	Transport string `env:"MAIL_TRANSPORT" envDefault:"smtp"`
	SeedDir   string `env:"SEED_DIR"`
}

// HTTP configures the API server.
type HTTP struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	// Process and retry requests run a whole batch before answering.
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"5m"`
	// Empty disables the bearer token check on /v1.
	APIToken string `env:"API_TOKEN"`
}

// Schedules holds the cron expressions of the periodic tasks.
// An empty expression disables the task.
type Schedules struct {
	Process      string `env:"SCHEDULE_PROCESS" envDefault:"* * * * *"`
	Retry        string `env:"SCHEDULE_RETRY" envDefault:"*/15 * * * *"`
	ReleaseStale string `env:"SCHEDULE_RELEASE_STALE" envDefault:"*/5 * * * *"`
	Cleanup      string `env:"SCHEDULE_CLEANUP" envDefault:"0 3 * * *"`
	Stats        string `env:"SCHEDULE_STATS" envDefault:"* * * * *"`
	FlushArchive string `env:"SCHEDULE_FLUSH_ARCHIVE" envDefault:"*/10 * * * *"`
}

// Jobs configures the background task runner.
type Jobs struct {
	Workers     int           `env:"JOBS_WORKERS" envDefault:"10"`
	TaskTimeout time.Duration `env:"JOBS_TASK_TIMEOUT" envDefault:"10m"`
	// Batch limit for the periodic process and retry tasks.
	BatchLimit int `env:"JOBS_BATCH_LIMIT" envDefault:"1000"`
}

// Retention configures maintenance thresholds.
type Retention struct {
	DaysToKeep    int           `env:"RETENTION_DAYS" envDefault:"30"`
	StaleAfter    time.Duration `env:"RETENTION_STALE_AFTER" envDefault:"15m"`
	BacklogLimit  int           `env:"RETENTION_BACKLOG_LIMIT" envDefault:"1000"`
	GuardTTL      time.Duration `env:"SEND_GUARD_TTL" envDefault:"24h"`
	TemplateCache time.Duration `env:"TEMPLATE_CACHE_TTL" envDefault:"1m"`
}

// Load reads an optional .env file and parses the environment.
// Files listed later do not override variables already set.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, errors.Join(ErrLoad, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Join(ErrLoad, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportResend:
		if c.Resend.APIKey == "" {
			return fmt.Errorf("%w: RESEND_API_KEY is required for resend", ErrLoad)
		}
	case TransportSMTP:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTransport, c.Transport)
	}
	if c.Retention.DaysToKeep < 0 {
		return fmt.Errorf("%w: RETENTION_DAYS must not be negative", ErrLoad)
	}
	return nil
}
