package logger

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	jobIDKey ctxKey = iota
	sequenceKey
	runIDKey
	requestIDKey
)

// WithJobID stores the email job id on the context.
func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDKey, id)
}

// WithSequence stores the sequence key on the context.
func WithSequence(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, sequenceKey, key)
}

// WithRunID stores the id of the current dispatcher run on the context.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// WithRequestID stores the HTTP request id on the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id stored by WithRequestID.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

func stringExtractor(key ctxKey, attr string) ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		v, ok := ctx.Value(key).(string)
		if !ok || v == "" {
			return slog.Attr{}, false
		}
		return slog.String(attr, v), true
	}
}

// Extractors for the values above. Pass them to New or NewWithSentry.
var (
	JobIDExtractor     = stringExtractor(jobIDKey, "job_id")
	SequenceExtractor  = stringExtractor(sequenceKey, "sequence")
	RunIDExtractor     = stringExtractor(runIDKey, "run_id")
	RequestIDExtractor = stringExtractor(requestIDKey, "request_id")
)

// DefaultExtractors returns every mailqueue extractor.
func DefaultExtractors() []ContextExtractor {
	return []ContextExtractor{RequestIDExtractor, RunIDExtractor, JobIDExtractor, SequenceExtractor}
}
