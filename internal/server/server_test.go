package server_test

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailqueue/internal/server"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) hook(name string, err error) server.Hook {
	return func(context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, name)
		return err
	}
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestRun_ServesAndShutsDown(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	addrCh := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() {
		done <- server.Run(ctx, server.Config{
			Addr: "127.0.0.1:0",
			Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("pong"))
			}),
			StartupHooks:  []server.Hook{rec.hook("start-jobs", nil)},
			ShutdownHooks: []server.Hook{rec.hook("stop-jobs", nil), rec.hook("close-db", nil)},
			OnListen:      func(a net.Addr) { addrCh <- a },
		})
	}()

	var addr net.Addr
	select {
	case addr = <-addrCh:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr.String())
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Equal(t, []string{"start-jobs", "stop-jobs", "close-db"}, rec.Calls())
}

func TestRun_StartupHookFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("river unavailable")
	rec := &recorder{}
	err := server.Run(context.Background(), server.Config{
		Addr:          "127.0.0.1:0",
		Handler:       http.NotFoundHandler(),
		StartupHooks:  []server.Hook{rec.hook("start-jobs", boom)},
		ShutdownHooks: []server.Hook{rec.hook("close-db", nil)},
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"start-jobs", "close-db"}, rec.Calls())
}

func TestRun_ShutdownHookErrorsAreJoined(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	boom := errors.New("flush failed")
	err := server.Run(ctx, server.Config{
		Addr:          "127.0.0.1:0",
		Handler:       http.NotFoundHandler(),
		ShutdownHooks: []server.Hook{func(context.Context) error { return boom }},
	})
	require.ErrorIs(t, err, boom)
}
