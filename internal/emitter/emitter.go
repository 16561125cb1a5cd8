// Package emitter turns a composite reading series into cryo_sensor metric
// events and hands them to one or more sinks.
//
// Field names follow `<sensor_id>_<sensor_kind>`. Fields without an
// underscore are not sensor values and are skipped. `<id>_enable` fields
// are never emitted; they gate `<id>_pressure` of the same reading, which
// is suppressed when the flag is present and false.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/cryolog/internal/models"
)

// ErrValue is returned when a field value is not numeric.
var ErrValue = errors.New("invalid value")

const (
	kindPressure = "pressure"
	kindEnable   = "enable"
)

// RowError identifies the reading and field that failed to convert.
type RowError struct {
	Time  time.Time
	Field string
	Text  string
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %s field %s=%q: %v", e.Time.Format(time.RFC3339Nano), e.Field, e.Text, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Stats summarizes one Emit call.
type Stats struct {
	Readings    int
	SkippedRows int
	Events      int
}

// Emitter converts readings of one device.
type Emitter struct {
	device   string
	tolerant bool
	logger   logrus.FieldLogger
	metrics  *Metrics
}

// Option configures an Emitter.
type Option func(*Emitter)

// Tolerant makes Emit skip rows that fail to convert instead of aborting.
func Tolerant(tolerant bool) Option {
	return func(e *Emitter) { e.tolerant = tolerant }
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Emitter) { e.logger = logger }
}

// WithMetrics records emission counters.
func WithMetrics(m *Metrics) Option {
	return func(e *Emitter) { e.metrics = m }
}

// New returns an Emitter tagging events with device.
func New(device string, opts ...Option) *Emitter {
	e := &Emitter{
		device: device,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Convert returns the events of one reading in field order. A row either
// converts completely or not at all.
func (e *Emitter) Convert(r models.Reading) ([]models.MetricEvent, error) {
	var events []models.MetricEvent
	for _, f := range r.Fields {
		if !f.Value.Valid {
			continue
		}
		id, kind, ok := strings.Cut(f.Name, "_")
		if !ok || kind == kindEnable {
			continue
		}

		if kind == kindPressure {
			enabled, err := gate(r, id)
			if err != nil {
				return nil, err
			}
			if !enabled {
				continue
			}
		}

		v, err := f.Value.Float()
		if err != nil {
			return nil, &RowError{Time: r.Time, Field: f.Name, Text: f.Value.Text, Err: ErrValue}
		}
		events = append(events, models.MetricEvent{
			Device:   e.device,
			SensorID: id,
			Kind:     kind,
			Value:    v,
			Time:     r.Time,
		})
	}
	return events, nil
}

// gate reports whether the pressure of sensor id is enabled. A missing or
// null flag means enabled.
func gate(r models.Reading, id string) (bool, error) {
	name := id + "_" + kindEnable
	flag, ok := r.Get(name)
	if !ok || !flag.Valid {
		return true, nil
	}
	on, err := flag.Bool()
	if err != nil {
		return false, &RowError{Time: r.Time, Field: name, Text: flag.Text, Err: ErrValue}
	}
	return on, nil
}

// Emit converts series in order and writes each reading's events to sink.
//
// Under the default policy the first row that fails to convert aborts the
// run with a *RowError. Under the tolerant policy the row is skipped and
// counted. Sink errors always abort.
func (e *Emitter) Emit(ctx context.Context, series models.Series, sink Sink) (Stats, error) {
	var stats Stats
	for _, r := range series {
		stats.Readings++

		events, err := e.Convert(r)
		if err != nil {
			if !e.tolerant {
				e.logger.WithError(err).Error("Failed to convert reading")
				return stats, err
			}
			stats.SkippedRows++
			e.logger.WithError(err).Debug("Skipping reading")
			e.metrics.skipped(e.device)
			continue
		}

		if len(events) > 0 {
			if err := sink.Write(ctx, events); err != nil {
				return stats, fmt.Errorf("failed to write events: %w", err)
			}
		}
		stats.Events += len(events)
		e.metrics.emitted(e.device, events)
	}

	if stats.SkippedRows > 0 {
		e.logger.WithField("skipped", stats.SkippedRows).Warn("Skipped readings that failed to convert")
	}
	return stats, nil
}
