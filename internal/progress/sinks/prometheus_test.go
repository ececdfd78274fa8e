package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/crawjud/pje-pipeline/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and gauges are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	last := time.Now().UTC()
	batch := []progress.Event{
		progress.NewEvent("pid-1", 1, progress.TypeLog, "pesquisando processo..."),
		progress.NewEvent("pid-1", 1, progress.TypeSuccess, "processo concluído"),
		progress.NewEvent("pid-1", 2, progress.TypeError, "processo não encontrado"),
		{PID: "pid-1", Row: 3, Type: progress.TypeWarning, Message: "cache falhou", TS: last},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.eventsTotal.WithLabelValues("log")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.eventsTotal.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.eventsTotal.WithLabelValues("error")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.eventsTotal.WithLabelValues("warning")))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.outcomesTotal.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.outcomesTotal.WithLabelValues("error")))

	require.InDelta(t, float64(last.Unix()), testutil.ToFloat64(sink.lastEventStamp), 1e-9)
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
