package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/crawjud/pje-pipeline/internal/progress"
)

// LogSink mirrors the progress stream into structured logs so an operator
// tailing the service log sees the same messages as the live channel.
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

// Consume logs each event in the batch, mapping event types to log levels.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("pid", evt.PID),
			zap.Int("row", evt.Row),
			zap.String("type", string(evt.Type)),
			zap.Time("ts", evt.TS),
		}
		switch evt.Type {
		case progress.TypeError:
			s.logger.Error(evt.Message, fields...)
		case progress.TypeWarning:
			s.logger.Warn(evt.Message, fields...)
		default:
			s.logger.Info(evt.Message, fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
