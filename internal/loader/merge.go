package loader

import (
	"slices"
	"time"

	"github.com/tejusbharadwaj/cryolog/internal/models"
	"github.com/tejusbharadwaj/cryolog/internal/parser"
)

// Merge outer-joins channel tables on their exact UTC timestamps.
//
// The result holds one Reading per distinct timestamp, sorted ascending.
// Every Reading carries every column of every table in table order; columns
// of tables without a row at that instant are null. When one table has
// several rows with the same timestamp, the last one wins.
func Merge(tables []*parser.Table) models.Series {
	var columns []string
	index := make(map[string]int)
	for _, t := range tables {
		for _, c := range t.Columns {
			if _, ok := index[c]; !ok {
				index[c] = len(columns)
				columns = append(columns, c)
			}
		}
	}

	byTime := make(map[int64][]models.Value)
	var times []time.Time
	for _, t := range tables {
		slots := make([]int, len(t.Columns))
		for i, c := range t.Columns {
			slots[i] = index[c]
		}
		for _, row := range t.Rows {
			key := row.Time.UnixNano()
			values, ok := byTime[key]
			if !ok {
				values = make([]models.Value, len(columns))
				byTime[key] = values
				times = append(times, row.Time)
			}
			for i, v := range row.Values {
				values[slots[i]] = v
			}
		}
	}

	slices.SortFunc(times, func(a, b time.Time) int { return a.Compare(b) })

	series := make(models.Series, 0, len(times))
	for _, ts := range times {
		values := byTime[ts.UnixNano()]
		fields := make([]models.Field, len(columns))
		for i, name := range columns {
			fields[i] = models.Field{Name: name, Value: values[i]}
		}
		series = append(series, models.Reading{Time: ts, Fields: fields})
	}
	return series
}
