package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/crawjud/pje-pipeline/internal/progress"
)

func TestInsertEventsWritesEveryRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	log, err := NewEventLogWithPool(mock, "progress_events")
	require.NoError(t, err)

	events := []progress.Event{
		progress.NewEvent("pid-1", 1, progress.TypeLog, "pesquisando processo..."),
		progress.NewEvent("pid-1", 1, progress.TypeSuccess, "processo concluído"),
	}
	for _, evt := range events {
		mock.ExpectExec("INSERT INTO progress_events").
			WithArgs(evt.PID, evt.Row, string(evt.Type), evt.Message, evt.TS).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	require.NoError(t, log.InsertEvents(context.Background(), events))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEventsStopsOnFirstError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	log, err := NewEventLogWithPool(mock, "progress_events")
	require.NoError(t, err)

	events := []progress.Event{
		progress.NewEvent("pid-1", 1, progress.TypeLog, "a"),
		progress.NewEvent("pid-1", 2, progress.TypeLog, "b"),
	}
	mock.ExpectExec("INSERT INTO progress_events").
		WithArgs(events[0].PID, events[0].Row, string(events[0].Type), events[0].Message, events[0].TS).
		WillReturnError(errors.New("connection reset"))

	require.Error(t, log.InsertEvents(context.Background(), events))
	require.NoError(t, mock.ExpectationsWereMet())
}
