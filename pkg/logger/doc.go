// Package logger builds the process *slog.Logger.
//
// Records are JSON on stdout by default. A decorator copies values stored on
// the context (dispatcher run id, job id, sequence key) onto every record:
//
//	log := logger.NewWithSentry(cfg.Log, logger.DefaultExtractors()...)
//	ctx = logger.WithJobID(ctx, job.ID)
//	log.InfoContext(ctx, "email sent") // {"msg":"email sent","job_id":"..."}
//
// When SENTRY_DSN is set, errors are also reported to Sentry as issues and,
// with SENTRY_WARN, warnings are shipped as Sentry logs.
//
// Components accept a logger through options and default to [NewNope].
package logger
