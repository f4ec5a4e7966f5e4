//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dmitrymomot/mailqueue/pkg/db"
	"github.com/dmitrymomot/mailqueue/pkg/logger"
	"github.com/dmitrymomot/mailqueue/pkg/queue"
	"github.com/dmitrymomot/mailqueue/pkg/queue/postgres"
)

func setupStore(t *testing.T) (*postgres.Store, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("mailqueue_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := db.Connect(ctx, db.Config{
		ConnectionString: dsn,
		MaxOpenConns:     10,
		RetryAttempts:    3,
		RetryInterval:    time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(ctx, pool, postgres.Migrations, postgres.MigrationsDir, "mailqueue_migrations", logger.NewNope()))
	return postgres.New(pool), pool
}

func seedCatalog(t *testing.T, s *postgres.Store) *queue.Sequence {
	t.Helper()
	ctx := context.Background()

	_, err := s.UpsertTemplate(ctx, queue.Template{Key: "welcome", Subject: "Hi", Body: queue.Content{Rich: "Hello"}, Active: true})
	require.NoError(t, err)
	_, err = s.UpsertTemplate(ctx, queue.Template{Key: "tips", Subject: "Tips", Body: queue.Content{Text: "Tips"}, Active: true})
	require.NoError(t, err)

	_, err = s.UpsertSequence(ctx, queue.Sequence{
		Key: "onboarding", Name: "Onboarding", Active: true,
		Steps: []queue.Step{
			{TemplateKey: "welcome", DelayValue: 0, DelayUnit: queue.Minutes},
			{TemplateKey: "tips", DelayValue: 2, DelayUnit: queue.Days},
		},
	})
	require.NoError(t, err)

	seq, err := s.ActiveSequenceByKey(ctx, "onboarding")
	require.NoError(t, err)
	return seq
}

func newJob(email string, at time.Time) *queue.EmailJob {
	return &queue.EmailJob{
		Recipient:    queue.Recipient{ID: email, Email: email},
		Template:     queue.TemplateRef{ID: "t", Key: "welcome"},
		Vars:         queue.Vars{"plan": queue.String("pro"), "seats": queue.Int(3)},
		ScheduledFor: at,
	}
}

func TestStore_Integration(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Minute)

	t.Run("catalog", func(t *testing.T) {
		seq := seedCatalog(t, s)
		require.Len(t, seq.Steps, 2)
		assert.Equal(t, "welcome", seq.Steps[0].TemplateKey)
		assert.Equal(t, 48*time.Hour, seq.Steps[1].Delay())

		// Upsert keeps the id and replaces steps.
		id1, err := s.UpsertTemplate(ctx, queue.Template{Key: "welcome", Subject: "Hey", Active: true})
		require.NoError(t, err)
		tpl, err := s.ActiveTemplateByKey(ctx, "welcome")
		require.NoError(t, err)
		assert.Equal(t, id1, tpl.ID)
		assert.Equal(t, "Hey", tpl.Subject)

		_, err = s.UpsertSequence(ctx, queue.Sequence{Key: "broken", Name: "x", Active: true,
			Steps: []queue.Step{{TemplateKey: "missing", DelayUnit: queue.Minutes}}})
		require.ErrorIs(t, err, queue.ErrTemplateNotFound)

		_, err = s.ActiveTemplateByKey(ctx, "nope")
		require.ErrorIs(t, err, queue.ErrTemplateNotFound)
	})

	t.Run("recipients", func(t *testing.T) {
		require.NoError(t, s.UpsertRecipient(ctx, queue.Recipient{ID: "u1", Email: "a@example.com", Name: "Ann"}))
		require.NoError(t, s.UpsertRecipient(ctx, queue.Recipient{ID: "u1", Email: "ann@example.com", Name: "Ann"}))

		r, err := s.Recipient(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "ann@example.com", r.Email)

		m, err := s.Recipients(ctx, []string{"u1", "ghost"})
		require.NoError(t, err)
		assert.Len(t, m, 1)

		_, err = s.Recipient(ctx, "ghost")
		require.ErrorIs(t, err, queue.ErrRecipientNotFound)
	})

	t.Run("lifecycle", func(t *testing.T) {
		due := newJob("due@example.com", past)
		later := newJob("later@example.com", time.Now().Add(time.Hour))
		require.NoError(t, s.InsertMany(ctx, []*queue.EmailJob{due, later}))
		require.NotEmpty(t, due.ID)

		got, err := s.Get(ctx, due.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusScheduled, got.Status)
		assert.Equal(t, "pro", got.Vars["plan"].String())
		assert.Equal(t, queue.KindInt, got.Vars["seats"].Kind())

		claimed, err := s.ClaimDue(ctx, 10, 3)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, due.ID, claimed[0].ID)
		assert.Equal(t, queue.StatusProcessing, claimed[0].Status)

		require.NoError(t, s.ApplyFailure(ctx, due.ID, "smtp: 421"))
		got, err = s.Get(ctx, due.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusFailed, got.Status)
		assert.Equal(t, 1, got.Attempts)
		assert.Equal(t, "smtp: 421", got.Error)
		require.NotNil(t, got.LastAttempt)

		// A second failure write is a no-op outside processing.
		require.NoError(t, s.ApplyFailure(ctx, due.ID, "again"))
		got, _ = s.Get(ctx, due.ID)
		assert.Equal(t, 1, got.Attempts)

		n, err := s.CountRetryable(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		ids, err := s.RequeueFailed(ctx, 10, 3)
		require.NoError(t, err)
		assert.Equal(t, []string{due.ID}, ids)

		claimed, err = s.ClaimDue(ctx, 10, 3)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		require.NoError(t, s.ApplySuccess(ctx, due.ID))

		got, _ = s.Get(ctx, due.ID)
		assert.Equal(t, queue.StatusSent, got.Status)
		assert.Empty(t, got.Error)

		require.ErrorIs(t, s.Cancel(ctx, due.ID), queue.ErrNotCancellable)
		require.NoError(t, s.Cancel(ctx, later.ID))
		require.ErrorIs(t, s.Cancel(ctx, "missing"), queue.ErrJobNotFound)

		old, err := s.FindTerminalOlderThan(ctx, time.Now().Add(time.Minute), 10)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{due.ID, later.ID}, old)

		require.NoError(t, s.Delete(ctx, due.ID))
		_, err = s.Get(ctx, due.ID)
		require.ErrorIs(t, err, queue.ErrJobNotFound)

		deleted, err := s.DeleteTerminalOlderThan(ctx, time.Now().Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, deleted)
	})

	t.Run("find due then claim", func(t *testing.T) {
		a := newJob("a@example.com", past.Add(-time.Hour))
		b := newJob("b@example.com", past)
		require.NoError(t, s.InsertMany(ctx, []*queue.EmailJob{b, a}))

		due, err := s.FindDue(ctx, 10, 0, 3)
		require.NoError(t, err)
		require.Len(t, due, 2)
		assert.Equal(t, a.ID, due[0].ID)

		claimed, err := s.Claim(ctx, []string{a.ID, b.ID})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{a.ID, b.ID}, claimed)

		claimed, err = s.Claim(ctx, []string{a.ID, b.ID})
		require.NoError(t, err)
		assert.Empty(t, claimed)

		n, err := s.Unclaim(ctx, []string{b.ID})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		got, err := s.Get(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusScheduled, got.Status)
		assert.Zero(t, got.Attempts)

		require.NoError(t, s.ApplySuccess(ctx, a.ID))
		require.NoError(t, s.Cancel(ctx, b.ID))
	})

	t.Run("concurrent claims never overlap", func(t *testing.T) {
		jobs := make([]*queue.EmailJob, 0, 40)
		for range 40 {
			jobs = append(jobs, newJob("c@example.com", past))
		}
		require.NoError(t, s.InsertMany(ctx, jobs))

		var (
			mu   sync.Mutex
			seen = make(map[string]int)
			wg   sync.WaitGroup
		)
		for range 4 {
			wg.Go(func() {
				for {
					claimed, err := s.ClaimDue(ctx, 5, 3)
					if err != nil || len(claimed) == 0 {
						return
					}
					mu.Lock()
					for _, j := range claimed {
						seen[j.ID]++
					}
					mu.Unlock()
				}
			})
		}
		wg.Wait()

		assert.Len(t, seen, 40)
		for id, n := range seen {
			assert.Equal(t, 1, n, id)
		}

		released, err := s.ReleaseStale(ctx, time.Now().Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 40, released)
	})

	t.Run("enrollment lookups", func(t *testing.T) {
		seq, err := s.ActiveSequenceByKey(ctx, "onboarding")
		require.NoError(t, err)

		j := newJob("u9@example.com", time.Now().Add(time.Hour))
		j.Recipient.ID = "u9"
		j.Sequence = &queue.SequenceRef{ID: seq.ID, Key: seq.Key, StepIndex: 0}
		require.NoError(t, s.Insert(ctx, j))

		n, err := s.CountActiveForRecipientSequence(ctx, "u9", seq.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		active, err := s.ActiveRecipientsForSequence(ctx, seq.ID, []string{"u9", "u10"})
		require.NoError(t, err)
		assert.Equal(t, map[string]bool{"u9": true}, active)
	})

	t.Run("log entries", func(t *testing.T) {
		err := s.Append(ctx, queue.LogEntry{
			RecipientID:    "u1",
			RecipientEmail: "ann@example.com",
			TemplateID:     "t",
			TemplateKey:    "welcome",
			Subject:        "Hi",
			Status:         queue.StatusSent,
			SentAt:         time.Now(),
		})
		require.NoError(t, err)
	})
}
