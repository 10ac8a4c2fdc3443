package dictation

import (
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/loqalabs/loqa-dictate/internal/dictation"

// Metrics holds the dictation instruments.
type Metrics struct {
	// Updates counts applied transcripts that changed the text.
	Updates metric.Int64Counter

	// Dropped counts transcripts that were not applied. Use with
	//   attribute.String("reason", "duplicate"|"stale"|"draining")
	Dropped metric.Int64Counter

	// Deliveries counts stop-word and control outcomes. Use with
	//   attribute.String("outcome", "sent"|"edit"|"empty"|"cancelled"|"failed")
	Deliveries metric.Int64Counter

	// RewoundActions counts log entries discarded by partial revisions.
	RewoundActions metric.Int64Counter

	ApplyDuration  metric.Float64Histogram
	ActiveSessions metric.Int64UpDownCounter
}

var applyBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(instrumentationName)
	var err error
	met := &Metrics{}

	if met.Updates, err = m.Int64Counter("loqa.dictation.updates",
		metric.WithDescription("Transcripts that changed the dictated text."),
	); err != nil {
		return nil, err
	}
	if met.Dropped, err = m.Int64Counter("loqa.dictation.dropped",
		metric.WithDescription("Transcripts ignored by reason."),
	); err != nil {
		return nil, err
	}
	if met.Deliveries, err = m.Int64Counter("loqa.dictation.deliveries",
		metric.WithDescription("Send and cancel outcomes."),
	); err != nil {
		return nil, err
	}
	if met.RewoundActions, err = m.Int64Counter("loqa.dictation.rewound_actions",
		metric.WithDescription("Action log entries discarded by revised partials."),
	); err != nil {
		return nil, err
	}
	if met.ApplyDuration, err = m.Float64Histogram("loqa.dictation.apply.duration",
		metric.WithDescription("Time to apply one transcript to a session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(applyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("loqa.dictation.active_sessions",
		metric.WithDescription("Number of live dictation sessions."),
	); err != nil {
		return nil, err
	}
	return met, nil
}
