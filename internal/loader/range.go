// Package loader assembles the composite reading series of a cryostat from
// its on-disk channel logs.
//
// Bluefors systems write one folder per day with one file per channel. A
// DayLoader merges the channel files of a single day; a RangeLoader walks
// the calendar days of a Window, trims the boundary days and concatenates
// the result. AttoDry systems write a single rolling file per run and are
// loaded by AttoDry.
package loader

import (
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/cryolog/internal/models"
)

// DayLoader produces the composite series of one calendar day.
type DayLoader interface {
	// LoadDay returns ok=false when the day has no data at all, which is
	// distinct from a day that exists but yields no rows.
	LoadDay(day time.Time) (series models.Series, ok bool, err error)
}

// RangeLoader loads a Window one calendar day at a time.
type RangeLoader struct {
	days   DayLoader
	loc    *time.Location
	logger logrus.FieldLogger
}

// RangeOption configures a RangeLoader.
type RangeOption func(*RangeLoader)

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) RangeOption {
	return func(l *RangeLoader) { l.logger = logger }
}

// NewRangeLoader returns a loader reading days from days, whose files are
// named after calendar days in loc.
func NewRangeLoader(days DayLoader, loc *time.Location, opts ...RangeOption) *RangeLoader {
	l := &RangeLoader{
		days:   days,
		loc:    loc,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns every Reading with Since < t < Till, sorted ascending. A
// window without data yields an empty, non-nil series.
//
// Only the first and last calendar days are trimmed; the days between lie
// fully inside the window.
func (l *RangeLoader) Load(w Window) (models.Series, error) {
	days := w.Days(l.loc)
	out := models.Series{}

	for i, day := range days {
		series, ok, err := l.days.LoadDay(day)
		if err != nil {
			return nil, err
		}
		if !ok {
			l.logger.WithField("day", day.Format(time.DateOnly)).Debug("No logs for day")
			continue
		}

		first, last := i == 0, i == len(days)-1
		for _, r := range series {
			if first && !r.Time.After(w.Since) {
				continue
			}
			if last && !r.Time.Before(w.Till) {
				continue
			}
			out = append(out, r)
		}
	}

	slices.SortStableFunc(out, func(a, b models.Reading) int { return a.Time.Compare(b.Time) })

	l.logger.WithFields(logrus.Fields{
		"since":    w.Since,
		"till":     w.Till,
		"days":     len(days),
		"readings": len(out),
	}).Debug("Loaded window")
	return out, nil
}
