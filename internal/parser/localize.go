package parser

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrTimestamp is returned for a local timestamp that cannot be parsed, does
// not exist in the local zone, or is ambiguous without enough context to
// pick one interpretation.
var ErrTimestamp = errors.New("invalid timestamp")

// candidates returns every UTC instant whose wall clock in loc reads wall,
// in ascending order. wall carries the naive reading in the UTC location.
// A DST fold yields two candidates and a DST gap yields none.
func candidates(wall time.Time, loc *time.Location) []time.Time {
	offsets := make([]int, 0, 3)
	for _, at := range []time.Time{wall.Add(-24 * time.Hour), wall, wall.Add(24 * time.Hour)} {
		_, off := at.In(loc).Zone()
		if !slices.Contains(offsets, off) {
			offsets = append(offsets, off)
		}
	}

	var out []time.Time
	for _, off := range offsets {
		t := wall.Add(-time.Duration(off) * time.Second)
		if _, got := t.In(loc).Zone(); got == off {
			out = append(out, t.UTC())
		}
	}
	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	return slices.CompactFunc(out, func(a, b time.Time) bool { return a.Equal(b) })
}

// Localize converts a sequence of naive wall clock readings into UTC.
//
// Readings inside a DST fold are resolved from their neighbours: within a
// consecutive run of ambiguous readings, the wall clock stepping backwards
// marks the switch from the first to the second occurrence. A run without a
// backwards step is placed before the switch when only earlier rows exist,
// after it when only later rows exist, and is rejected otherwise.
//
// The returned slices are index-aligned with walls; errs[i] is non-nil when
// walls[i] could not be resolved.
func Localize(walls []time.Time, loc *time.Location) (out []time.Time, errs []error) {
	n := len(walls)
	out = make([]time.Time, n)
	errs = make([]error, n)
	folds := make([][]time.Time, n)

	for i, w := range walls {
		c := candidates(w, loc)
		switch len(c) {
		case 0:
			errs[i] = fmt.Errorf("%w: %s does not exist in %s", ErrTimestamp, w.Format(time.DateTime), loc)
		case 1:
			out[i] = c[0]
		default:
			folds[i] = c
		}
	}

	for i := 0; i < n; {
		if folds[i] == nil {
			i++
			continue
		}
		j := i
		for j < n && folds[j] != nil {
			j++
		}
		before := i > 0 && errs[i-1] == nil
		after := j < n && errs[j] == nil
		resolveFold(walls, folds, out, errs, i, j, before, after, loc)
		i = j
	}
	return out, errs
}

// LocalizeFirst converts a single wall clock reading into UTC, taking the
// first occurrence when the reading falls in a DST fold.
func LocalizeFirst(wall time.Time, loc *time.Location) (time.Time, error) {
	c := candidates(wall, loc)
	if len(c) == 0 {
		return time.Time{}, fmt.Errorf("%w: %s does not exist in %s", ErrTimestamp, wall.Format(time.DateTime), loc)
	}
	return c[0], nil
}

func resolveFold(walls []time.Time, folds [][]time.Time, out []time.Time, errs []error, i, j int, before, after bool, loc *time.Location) {
	split := -1
	for k := i + 1; k < j; k++ {
		if !walls[k].Before(walls[k-1]) {
			continue
		}
		if split >= 0 {
			split = -2
			break
		}
		split = k
	}

	if split == -1 {
		switch {
		case before && !after:
			split = j
		case after && !before:
			split = i
		}
	}

	if split < 0 {
		for k := i; k < j; k++ {
			errs[k] = fmt.Errorf("%w: cannot infer DST side of ambiguous %s in %s", ErrTimestamp, walls[k].Format(time.DateTime), loc)
		}
		return
	}

	for k := i; k < j; k++ {
		if k < split {
			out[k] = folds[k][0]
		} else {
			out[k] = folds[k][len(folds[k])-1]
		}
	}
}
