package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/crawjud/pje-pipeline/internal/progress"
)

// EventWriter persists progress event batches; the Postgres event log
// satisfies it.
type EventWriter interface {
	InsertEvents(ctx context.Context, events []progress.Event) error
}

// StoreSink persists progress events through an EventWriter so finished
// executions stay auditable after the process exits.
type StoreSink struct {
	writer EventWriter
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided writer.
func NewStoreSink(writer EventWriter, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{writer: writer, logger: logger}
}

// Consume forwards the batch to the writer. It respects ctx deadlines and
// returns writer errors verbatim so the hub can log them.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.writer == nil || len(batch) == 0 {
		return nil
	}
	return s.writer.InsertEvents(ctx, batch)
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
