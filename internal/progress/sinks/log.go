// Package sinks provides Sink implementations for the progress stream.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/quirkfly/ivesna/internal/progress"
)

// LogSink emits structured logs for the progress stream. Useful during
// development where a metrics backend is unavailable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.logger.Info("ingest progress",
			zap.String("job_id", evt.JobID),
			zap.String("tenant", evt.Tenant),
			zap.String("stage", string(evt.Stage)),
			zap.String("url", evt.URL),
			zap.Int64("chunks", evt.Chunks),
			zap.Duration("dur", evt.Dur),
			zap.String("note", evt.Note),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
