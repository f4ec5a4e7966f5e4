package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrymomot/mailqueue/pkg/mailer"
	"github.com/dmitrymomot/mailqueue/pkg/queue"
	"github.com/dmitrymomot/mailqueue/pkg/queue/memory"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: epoch} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeSender records sends and fails for recipients listed in failFor.
type fakeSender struct {
	mu      sync.Mutex
	sent    []*mailer.Email
	failFor map[string]error
	calls   atomic.Int64
	fn      func(ctx context.Context, email *mailer.Email) (string, error)
}

func (s *fakeSender) Send(ctx context.Context, email *mailer.Email) (string, error) {
	n := s.calls.Add(1)
	if s.fn != nil {
		return s.fn(ctx, email)
	}
	if err, ok := s.failFor[email.To[0]]; ok {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, email)
	return fmt.Sprintf("msg-%d", n), nil
}

func (s *fakeSender) Sent() []*mailer.Email {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*mailer.Email(nil), s.sent...)
}

type fixture struct {
	clock  *clock
	store  *memory.Store
	sender *fakeSender
	mailer *mailer.Mailer
	render *mailer.Renderer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	c := newClock()
	store := memory.New(memory.WithClock(c.Now))
	store.PutTemplate(queue.Template{
		Key:     "welcome",
		Subject: "Welcome {{recipientName}}",
		Body:    queue.Content{Rich: "Hello {{recipientName}}"},
		Active:  true,
	})
	sender := &fakeSender{failFor: map[string]error{}}

	return &fixture{
		clock:  c,
		store:  store,
		sender: sender,
		mailer: mailer.New(sender, mailer.Config{FromEmail: "noreply@example.com"}),
		render: mailer.NewRenderer(store),
	}
}

func (f *fixture) addJob(t *testing.T, recipientEmail, templateKey string, at time.Time) *queue.EmailJob {
	t.Helper()

	job := &queue.EmailJob{
		Recipient:    queue.Recipient{ID: recipientEmail, Email: recipientEmail},
		Template:     queue.TemplateRef{Key: templateKey},
		ScheduledFor: at,
	}
	if err := f.store.Insert(context.Background(), job); err != nil {
		t.Fatalf("insert job: %v", err)
	}
	return job
}

// flakyStore fails the first n status writes and counts claims.
type flakyStore struct {
	*memory.Store
	failWrites atomic.Int64
	claims     atomic.Int64
	deleteErr  map[string]error
}

func (s *flakyStore) ClaimDue(ctx context.Context, limit, maxAttempts int) ([]queue.EmailJob, error) {
	s.claims.Add(1)
	return s.Store.ClaimDue(ctx, limit, maxAttempts)
}

func (s *flakyStore) ApplySuccess(ctx context.Context, id string) error {
	if s.failWrites.Add(-1) >= 0 {
		return errors.New("connection reset")
	}
	return s.Store.ApplySuccess(ctx, id)
}

func (s *flakyStore) Delete(ctx context.Context, id string) error {
	if err, ok := s.deleteErr[id]; ok {
		return err
	}
	return s.Store.Delete(ctx, id)
}

type fakeGuard struct {
	mu       sync.Mutex
	seen     map[string]bool
	released []string
	err      error
}

func (g *fakeGuard) Acquire(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false, g.err
	}
	if g.seen[key] {
		return false, nil
	}
	g.seen[key] = true
	return true, nil
}

func (g *fakeGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, key)
	g.released = append(g.released, key)
	return nil
}
