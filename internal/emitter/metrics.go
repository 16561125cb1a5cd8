package emitter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tejusbharadwaj/cryolog/internal/models"
)

// Metrics are the per-run counters of the ingestion pipeline. The command
// writes them with prometheus.WriteToTextfile for node_exporter's textfile
// collector.
type Metrics struct {
	Readings    *prometheus.CounterVec
	Events      *prometheus.CounterVec
	LastEmitted *prometheus.GaugeVec
	RunDuration *prometheus.GaugeVec
}

// NewMetrics registers the pipeline metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Readings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryolog_readings_total",
				Help: "Composite readings processed, by outcome",
			},
			[]string{"device", "outcome"},
		),
		Events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryolog_events_total",
				Help: "Metric events emitted, by sensor kind",
			},
			[]string{"device", "sensor_kind"},
		),
		LastEmitted: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cryolog_last_emitted_timestamp_seconds",
				Help: "Timestamp of the last emitted reading",
			},
			[]string{"device"},
		),
		RunDuration: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cryolog_run_duration_seconds",
				Help: "Wall time of the last run",
			},
			[]string{"device"},
		),
	}
}

func (m *Metrics) skipped(device string) {
	if m == nil {
		return
	}
	m.Readings.WithLabelValues(device, "skipped").Inc()
}

func (m *Metrics) emitted(device string, events []models.MetricEvent) {
	if m == nil {
		return
	}
	m.Readings.WithLabelValues(device, "emitted").Inc()
	for _, e := range events {
		m.Events.WithLabelValues(device, e.Kind).Inc()
	}
}

// ObserveRun records the outcome of a completed run. last is zero when
// nothing was emitted.
func (m *Metrics) ObserveRun(device string, duration time.Duration, last time.Time) {
	if m == nil {
		return
	}
	m.RunDuration.WithLabelValues(device).Set(duration.Seconds())
	if !last.IsZero() {
		m.LastEmitted.WithLabelValues(device).Set(float64(last.UnixNano()) / 1e9)
	}
}
