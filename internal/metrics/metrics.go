package metrics

import "github.com/prometheus/client_golang/prometheus"

// Telemetry holds the Prometheus collectors for the ingestion pipeline.
type Telemetry struct {
	ReadingsTotal    *prometheus.CounterVec
	AcceptedTotal    *prometheus.CounterVec
	RejectedTotal    *prometheus.CounterVec
	MalformedTotal   *prometheus.CounterVec
	IngestDuration   prometheus.Histogram
	HistorySize      prometheus.Gauge
	EvictionsTotal   prometheus.Counter
	SinkDroppedTotal prometheus.Counter
	SinkErrorsTotal  *prometheus.CounterVec
	LEDState         prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Telemetry {
	m := &Telemetry{
		ReadingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "telemetry_readings_total",
				Help: "Total number of readings received",
			},
			[]string{"transport"},
		),
		AcceptedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "telemetry_readings_accepted_total",
				Help: "Total number of readings accepted into the store",
			},
			[]string{"transport"},
		),
		RejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "telemetry_readings_rejected_total",
				Help: "Total number of readings skipped by validation",
			},
			[]string{"transport", "reason"},
		),
		MalformedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "telemetry_malformed_total",
				Help: "Total number of payloads that could not be decoded",
			},
			[]string{"transport"},
		),
		IngestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "telemetry_ingest_duration_seconds",
				Help:    "Duration of decode, validate and append",
				Buckets: prometheus.DefBuckets,
			},
		),
		HistorySize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "telemetry_history_size",
				Help: "Number of entries currently held in history",
			},
		),
		EvictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "telemetry_history_evictions_total",
				Help: "Total number of entries evicted by capacity",
			},
		),
		SinkDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "telemetry_sink_dropped_total",
				Help: "Total number of entries dropped because the sink queue was full",
			},
		),
		SinkErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "telemetry_sink_errors_total",
				Help: "Total number of failed sink writes",
			},
			[]string{"sink"},
		),
		LEDState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "telemetry_led_state",
				Help: "Current LED state (1 on, 0 off)",
			},
		),
	}

	reg.MustRegister(
		m.ReadingsTotal,
		m.AcceptedTotal,
		m.RejectedTotal,
		m.MalformedTotal,
		m.IngestDuration,
		m.HistorySize,
		m.EvictionsTotal,
		m.SinkDroppedTotal,
		m.SinkErrorsTotal,
		m.LEDState,
	)
	return m
}

// NewUnregistered returns collectors that are not exported anywhere.
func NewUnregistered() *Telemetry {
	return New(prometheus.NewRegistry())
}
