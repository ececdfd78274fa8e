package sinks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crawjud/pje-pipeline/internal/progress"
)

type fakeEventWriter struct {
	batches [][]progress.Event
	err     error
}

func (w *fakeEventWriter) InsertEvents(_ context.Context, events []progress.Event) error {
	if w.err != nil {
		return w.err
	}
	w.batches = append(w.batches, append([]progress.Event(nil), events...))
	return nil
}

func TestStoreSinkPersistsBatch(t *testing.T) {
	t.Parallel()

	writer := &fakeEventWriter{}
	sink := NewStoreSink(writer, nil)

	batch := []progress.Event{
		progress.NewEvent("pid-1", 1, progress.TypeLog, "pesquisando processo..."),
		progress.NewEvent("pid-1", 1, progress.TypeSuccess, "processo concluído"),
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.Len(t, writer.batches, 1)
	require.Len(t, writer.batches[0], 2)
}

func TestStoreSinkPropagatesWriterErrors(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("database offline")
	sink := NewStoreSink(&fakeEventWriter{err: wantErr}, nil)

	batch := []progress.Event{progress.NewEvent("pid-1", 1, progress.TypeLog, "m")}
	require.ErrorIs(t, sink.Consume(context.Background(), batch), wantErr)
}

func TestStoreSinkIgnoresEmptyBatches(t *testing.T) {
	t.Parallel()

	writer := &fakeEventWriter{}
	sink := NewStoreSink(writer, nil)
	require.NoError(t, sink.Consume(context.Background(), nil))
	require.Empty(t, writer.batches)
}
