package emitter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/tejusbharadwaj/cryolog/internal/models"
)

// EventRow is one archived event in Parquet format.
type EventRow struct {
	Device     string  `parquet:"device,zstd"`
	SensorID   string  `parquet:"sensor_id,zstd"`
	SensorKind string  `parquet:"sensor_kind,zstd"`
	Value      float64 `parquet:"value"`
	TimeNs     int64   `parquet:"time_ns"`
}

// EventToRow converts an event to its archive row.
func EventToRow(e models.MetricEvent) EventRow {
	return EventRow{
		Device:     e.Device,
		SensorID:   e.SensorID,
		SensorKind: e.Kind,
		Value:      e.Value,
		TimeNs:     e.Time.UnixNano(),
	}
}

// ArchiveSink collects a run's events and writes them to one Parquet file
// on Close. Runs that emit nothing leave no file.
type ArchiveSink struct {
	path string
	rows []EventRow
}

// NewArchiveSink returns a sink writing dir/<device>-<started>.parquet.
func NewArchiveSink(dir, device string, started time.Time) *ArchiveSink {
	name := fmt.Sprintf("%s-%s.parquet", device, started.UTC().Format("20060102T150405Z"))
	return &ArchiveSink{path: filepath.Join(dir, name)}
}

// Path returns the file written on Close.
func (s *ArchiveSink) Path() string { return s.path }

func (s *ArchiveSink) Write(_ context.Context, events []models.MetricEvent) error {
	for _, e := range events {
		s.rows = append(s.rows, EventToRow(e))
	}
	return nil
}

func (s *ArchiveSink) Close() error {
	if len(s.rows) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	if err := parquet.WriteFile(s.path, s.rows); err != nil {
		return fmt.Errorf("write archive %s: %w", s.path, err)
	}
	s.rows = nil
	return nil
}
