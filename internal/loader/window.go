package loader

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrBadBound is returned for a window bound that is neither an ISO date
// nor an ISO timestamp.
var ErrBadBound = errors.New("invalid window bound")

const (
	// DefaultLookahead is added to now when no upper bound is given, so
	// that today is fully inside the window.
	DefaultLookahead = 24 * time.Hour
	// DefaultSpan is the window length when no lower bound is given.
	DefaultSpan = 48 * time.Hour
)

// Bound is one end of a load window. The zero Bound is unset.
type Bound struct {
	text string
	at   time.Time
}

// ParseBound returns a bound for an ISO date or timestamp string. An empty
// string is unset.
func ParseBound(s string) Bound {
	return Bound{text: strings.TrimSpace(s)}
}

// At returns a bound at an already resolved instant.
func At(t time.Time) Bound {
	return Bound{at: t}
}

// IsSet reports whether the bound was given.
func (b Bound) IsSet() bool {
	return b.text != "" || !b.at.IsZero()
}

func (b Bound) String() string {
	if b.text != "" {
		return b.text
	}
	if !b.at.IsZero() {
		return b.at.Format(time.RFC3339Nano)
	}
	return "unset"
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// resolve returns the bound as a UTC instant. Dates mean local midnight,
// naive timestamps are local and zoned timestamps keep their offset.
func (b Bound) resolve(loc *time.Location) (time.Time, error) {
	if b.text == "" {
		return b.at.UTC(), nil
	}
	if d, err := time.Parse(time.DateOnly, b.text); err == nil {
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, b.text); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, b.text, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadBound, b.text)
}

// Window is a resolved load window. Readings are kept when
// Since < t < Till.
type Window struct {
	Since time.Time
	Till  time.Time
}

// ResolveWindow turns caller bounds into a Window. An unset till means now
// plus DefaultLookahead; an unset since means till minus DefaultSpan.
func ResolveWindow(since, till Bound, now time.Time, loc *time.Location) (Window, error) {
	var w Window
	var err error

	if till.IsSet() {
		if w.Till, err = till.resolve(loc); err != nil {
			return Window{}, fmt.Errorf("till: %w", err)
		}
	} else {
		w.Till = now.Add(DefaultLookahead).UTC()
	}

	if since.IsSet() {
		if w.Since, err = since.resolve(loc); err != nil {
			return Window{}, fmt.Errorf("since: %w", err)
		}
	} else {
		w.Since = w.Till.Add(-DefaultSpan)
	}
	return w, nil
}

// Contains reports whether t lies strictly inside the window.
func (w Window) Contains(t time.Time) bool {
	return t.After(w.Since) && t.Before(w.Till)
}

// Days returns the local calendar days touched by the window, both ends
// included, as civil dates at UTC midnight.
func (w Window) Days(loc *time.Location) []time.Time {
	first := civil(w.Since.In(loc))
	last := civil(w.Till.In(loc))

	var days []time.Time
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
