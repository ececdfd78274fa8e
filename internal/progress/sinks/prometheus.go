package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/crawjud/pje-pipeline/internal/progress"
)

// PrometheusSink exports progress counters so dashboards can track how an
// execution is going without consuming the event stream directly.
type PrometheusSink struct {
	eventsTotal    *prometheus.CounterVec
	outcomesTotal  *prometheus.CounterVec
	lastEventStamp prometheus.Gauge
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pje_progress_events_total",
			Help: "Progress events partitioned by type.",
		}, []string{"type"}),
		outcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pje_process_outcomes_total",
			Help: "Per-process terminal outcomes partitioned by result.",
		}, []string{"result"}),
		lastEventStamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pje_progress_last_event_timestamp_seconds",
			Help: "Unix time of the most recent progress event.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.eventsTotal,
		s.outcomesTotal,
		s.lastEventStamp,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors using the provided batch. It is safe for
// concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.eventsTotal.WithLabelValues(string(evt.Type)).Inc()
		switch evt.Type {
		case progress.TypeSuccess:
			s.outcomesTotal.WithLabelValues("success").Inc()
		case progress.TypeError:
			s.outcomesTotal.WithLabelValues("error").Inc()
		}
		if !evt.TS.IsZero() {
			s.lastEventStamp.Set(float64(evt.TS.Unix()))
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
