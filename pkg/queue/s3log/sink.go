package s3log

import (
	"bytes"
	"context"
	"encoding/json"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/dmitrymomot/mailqueue/pkg/queue"
)

const (
	DefaultRegion     = "us-east-1"
	DefaultPrefix     = "email-logs"
	DefaultMaxEntries = 500
)

// Config holds archive settings. The archive is disabled when Bucket is empty.
type Config struct {
	Bucket     string `env:"LOG_ARCHIVE_BUCKET"`
	Prefix     string `env:"LOG_ARCHIVE_PREFIX" envDefault:"email-logs"`
	Region     string `env:"LOG_ARCHIVE_REGION" envDefault:"us-east-1"`
	Endpoint   string `env:"LOG_ARCHIVE_ENDPOINT"`
	AccessKey  string `env:"LOG_ARCHIVE_ACCESS_KEY"`
	SecretKey  string `env:"LOG_ARCHIVE_SECRET_KEY"`
	MaxEntries int    `env:"LOG_ARCHIVE_MAX_ENTRIES" envDefault:"500"`
	PathStyle  bool   `env:"LOG_ARCHIVE_PATH_STYLE" envDefault:"false"`
}

// Enabled reports whether an archive bucket is configured.
func (c Config) Enabled() bool { return c.Bucket != "" }

func (c *Config) applyDefaults() {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultMaxEntries
	}
}

// Uploader is the subset of *s3.Client the sink uses.
type Uploader interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var _ queue.LogSink = (*Sink)(nil)

// Sink buffers log entries and uploads them in batches.
type Sink struct {
	client Uploader
	now    func() time.Time
	cfg    Config
	buf    []queue.LogEntry
	mu     sync.Mutex
	closed bool
}

// New creates a sink with a static-credentials S3 client.
func New(cfg Config) (*Sink, error) {
	cfg.applyDefaults()
	if cfg.Bucket == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, ErrInvalidConfig
	}

	opts := []func(*s3.Options){
		func(o *s3.Options) {
			o.Region = cfg.Region
			o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		},
	}
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.PathStyle
		})
	}

	return NewWithUploader(s3.New(s3.Options{}, opts...), cfg), nil
}

// NewWithUploader creates a sink over an existing client.
func NewWithUploader(client Uploader, cfg Config) *Sink {
	cfg.applyDefaults()
	return &Sink{client: client, cfg: cfg, now: time.Now}
}

// Append implements queue.LogSink. It uploads synchronously once the buffer
// is full.
func (s *Sink) Append(ctx context.Context, entry queue.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.buf = append(s.buf, entry)
	if len(s.buf) < s.cfg.MaxEntries {
		return nil
	}
	return s.flushLocked(ctx)
}

// Flush uploads buffered entries. It is a no-op on an empty buffer.
func (s *Sink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

// Buffered returns the number of entries waiting for upload.
func (s *Sink) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// Close flushes what is buffered and rejects further appends.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.flushLocked(ctx)
}

func (s *Sink) flushLocked(ctx context.Context) error {
	if len(s.buf) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, e := range s.buf {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}

	key := s.objectKey()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body.Bytes()),
		ContentLength: aws.Int64(int64(body.Len())),
		ContentType:   aws.String("application/x-ndjson"),
	})
	if err != nil {
		return wrapS3Error(err)
	}

	s.buf = s.buf[:0]
	return nil
}

func (s *Sink) objectKey() string {
	return path.Join(s.cfg.Prefix, s.now().UTC().Format("2006/01/02"), uuid.NewString()+".jsonl")
}
