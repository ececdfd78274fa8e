package postgres

import (
	"context"
	"fmt"

	"github.com/crawjud/pje-pipeline/internal/progress"
)

// EventLog appends progress events to a Postgres table so operators can
// audit past executions row by row.
type EventLog struct {
	pool  pgxPool
	table string
}

// NewEventLog derives an event log sharing the process store's pool.
func (s *ProcessStore) NewEventLog(table string) (*EventLog, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("process store is not configured")
	}
	return NewEventLogWithPool(s.pool, table)
}

// NewEventLogWithPool constructs an EventLog over an existing pool.
func NewEventLogWithPool(pool pgxPool, table string) (*EventLog, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "progress_events"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &EventLog{pool: pool, table: table}, nil
}

// InsertEvents appends the batch in order. The first failed insert aborts
// the rest; the caller decides whether to retry the batch.
func (l *EventLog) InsertEvents(ctx context.Context, events []progress.Event) error {
	query := fmt.Sprintf(`
INSERT INTO %s (pid, row_number, event_type, message, emitted_at)
VALUES ($1, $2, $3, $4, $5)`, l.table)

	for _, evt := range events {
		if _, err := l.pool.Exec(ctx, query,
			evt.PID, evt.Row, string(evt.Type), evt.Message, evt.TS); err != nil {
			return fmt.Errorf("insert progress event: %w", err)
		}
	}
	return nil
}
