package queue

import (
	"context"
	"errors"
)

type multiSink struct {
	sinks []LogSink
}

// MultiSink fans an entry out to every sink. All sinks are attempted;
// their errors are joined.
func MultiSink(sinks ...LogSink) LogSink {
	clean := make([]LogSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			clean = append(clean, s)
		}
	}
	return &multiSink{sinks: clean}
}

func (m *multiSink) Append(ctx context.Context, entry LogEntry) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Append(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
