package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailqueue/pkg/health"
	"github.com/dmitrymomot/mailqueue/pkg/queue"
	"github.com/dmitrymomot/mailqueue/pkg/queue/memory"
)

func ok(context.Context) error { return nil }

func failing(msg string) health.CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func TestLivenessHandler(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	health.LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestReadinessHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checks     health.Checks
		opts       []health.Option
		wantCode   int
		wantBody   string
		wantStatus string
	}{
		{
			name:       "no checks",
			wantCode:   http.StatusOK,
			wantBody:   "OK",
			wantStatus: health.StatusHealthy,
		},
		{
			name:       "all healthy",
			checks:     health.Checks{"postgres": ok, "jobs": ok},
			wantCode:   http.StatusOK,
			wantBody:   "OK",
			wantStatus: health.StatusHealthy,
		},
		{
			name:       "required check fails",
			checks:     health.Checks{"postgres": failing("refused"), "redis": ok},
			wantCode:   http.StatusServiceUnavailable,
			wantBody:   "Service Unavailable",
			wantStatus: health.StatusUnhealthy,
		},
		{
			name:       "optional check fails",
			checks:     health.Checks{"postgres": ok, "redis": failing("refused")},
			opts:       []health.Option{health.WithOptional("redis")},
			wantCode:   http.StatusOK,
			wantBody:   "Degraded",
			wantStatus: health.StatusDegraded,
		},
		{
			name:       "required beats optional",
			checks:     health.Checks{"postgres": failing("down"), "redis": failing("down")},
			opts:       []health.Option{health.WithOptional("redis")},
			wantCode:   http.StatusServiceUnavailable,
			wantBody:   "Service Unavailable",
			wantStatus: health.StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := health.ReadinessHandler(tt.checks, tt.opts...)

			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())

			rec = httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, "/health/ready?format=json", nil))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp health.Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Len(t, resp.Checks, len(tt.checks))
		})
	}
}

func TestRun_Timeout(t *testing.T) {
	t.Parallel()

	slow := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	resp := health.Run(context.Background(), health.Checks{"slow": slow}, health.WithTimeout(10*time.Millisecond))
	assert.Equal(t, health.StatusUnhealthy, resp.Status)
	assert.Contains(t, resp.Checks["slow"].Error, health.ErrCheckTimeout.Error())
}

func TestProcessingBacklog(t *testing.T) {
	t.Parallel()

	store := memory.New()
	ctx := context.Background()
	for range 3 {
		require.NoError(t, store.Insert(ctx, &queue.EmailJob{
			Recipient:    queue.Recipient{ID: "u", Email: "u@example.com"},
			ScheduledFor: time.Now().Add(-time.Minute),
		}))
	}
	_, err := store.ClaimDue(ctx, 10, 3)
	require.NoError(t, err)

	require.NoError(t, health.ProcessingBacklog(store, 3)(ctx))
	require.ErrorIs(t, health.ProcessingBacklog(store, 2)(ctx), health.ErrCheckFailed)
}
