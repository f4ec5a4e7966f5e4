package dispatch

import (
	"context"
	"strconv"

	"github.com/dmitrymomot/mailqueue/pkg/queue"
)

// Guard suppresses a second provider call for the same claimed job attempt.
// pkg/redis.Guard implements it with SET NX.
type Guard interface {
	// Acquire returns true the first time key is seen.
	Acquire(ctx context.Context, key string) (bool, error)
	// Release forgets key after a failed send so a retry may proceed.
	Release(ctx context.Context, key string) error
}

func guardKey(j *queue.EmailJob) string {
	return j.ID + ":" + strconv.Itoa(j.Attempts)
}
