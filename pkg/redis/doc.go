// Package redis opens go-redis clients from a Config and provides the
// Redis-backed helpers mailqueue uses: a readiness check and a SET NX
// send guard.
//
//	client, err := redis.Open(ctx, cfg.Redis)
//	if err != nil {
//		return err
//	}
//	guard := redis.NewGuard(client, "mailqueue:sent:", 24*time.Hour)
//
// Errors are wrapped with [errors.Join] so callers can match the sentinels
// ([ErrEmptyConnectionURL], [ErrFailedToParseURL], [ErrConnectionFailed],
// [ErrHealthcheckFailed], [ErrGuardFailed]) with [errors.Is].
package redis
