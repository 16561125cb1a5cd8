package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/cryolog/internal/models"
	"github.com/tejusbharadwaj/cryolog/internal/parser"
)

// ErrNoLogFile is returned when an AttoDry folder holds no log file.
var ErrNoLogFile = errors.New("no log file")

// attodryStartLayout is the start stamp in the first line of an AttoDry log.
const attodryStartLayout = "02 Jan 2006_15:04:05"

const attodryOffsetColumn = "time (s)"

// attodryColumns maps AttoDry column headers to field names, in emission order.
var attodryColumns = []struct{ header, field string }{
	{"Turbo Pump Frequency (Hz)", "Turbopump_frequency"},
	{"Sample Heater Power (W)", "Sampleheater_power"},
	{"Exchange Heater Power (W)", "Exchangeheater_power"},
	{"Sample Temperature (K)", "Sample_temperature"},
	{"Magnet Temperature (K)", "Coldhead_temperature"},
	{"User Temperature (K)", "User_temperature"},
	{"Cryo In Pressure (mbar)", "Cryo_pressure"},
}

// AttoDry loads the log folder of an AttoDry800 or AttoDry2100 system. The
// system appends to one tab-separated file per run; the newest run is the
// last `*.txt` file in lexical name order.
type AttoDry struct {
	Folder string
	Parse  parser.Options
	Logger logrus.FieldLogger
}

// LatestFile returns the last `*.txt` file of the folder by name.
func (a *AttoDry) LatestFile() (string, error) {
	matches, err := filepath.Glob(filepath.Join(a.Folder, "*.txt"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoLogFile, a.Folder)
	}
	slices.Sort(matches)
	return matches[len(matches)-1], nil
}

// Load returns the readings of the latest log file inside the window.
func (a *AttoDry) Load(w Window) (models.Series, error) {
	path, err := a.LatestFile()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	all, dropped, err := ParseAttoDry(f, path, a.Parse)
	if err != nil {
		return nil, err
	}
	if dropped > 0 && a.Logger != nil {
		a.Logger.WithFields(logrus.Fields{"file": path, "dropped": dropped}).Warn("Dropped unparseable rows")
	}

	out := models.Series{}
	for _, r := range all {
		if w.Contains(r.Time) {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(x, y models.Reading) int { return x.Time.Compare(y.Time) })
	return out, nil
}

// ParseAttoDry reads one AttoDry log. The first line carries the local start
// time, the second the column headers; each row's `time (s)` column is the
// offset from the start. dropped counts rows discarded under the tolerant
// policy.
func ParseAttoDry(r io.Reader, name string, opts parser.Options) (series models.Series, dropped int, err error) {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	first, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("%s: read start time: %w", name, err)
	}
	wall, err := time.Parse(attodryStartLayout, strings.TrimSpace(first[0]))
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w: %v", name, parser.ErrTimestamp, err)
	}
	start, err := parser.LocalizeFirst(wall, loc)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: start time: %w", name, err)
	}

	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("%s: read header: %w", name, err)
	}
	position := make(map[string]int, len(header))
	for i, h := range header {
		position[strings.TrimSpace(h)] = i
	}
	offsetAt, ok := position[attodryOffsetColumn]
	if !ok {
		return nil, 0, fmt.Errorf("%s: missing %q column", name, attodryOffsetColumn)
	}

	rowFailed := func(line int, err error) error {
		if !opts.Tolerant {
			return fmt.Errorf("%s:%d: %w", name, line, err)
		}
		dropped++
		return nil
	}

	series = models.Series{}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return nil, dropped, fmt.Errorf("read %s: %w", name, err)
			}
			if ferr := rowFailed(perr.StartLine, err); ferr != nil {
				return nil, dropped, ferr
			}
			continue
		}
		line, _ := cr.FieldPos(0)

		if len(record) != len(header) {
			if ferr := rowFailed(line, fmt.Errorf("%w: have %d, header has %d", parser.ErrColumnCount, len(record), len(header))); ferr != nil {
				return nil, dropped, ferr
			}
			continue
		}
		seconds, err := strconv.ParseFloat(strings.TrimSpace(record[offsetAt]), 64)
		if err != nil {
			if ferr := rowFailed(line, fmt.Errorf("%w: offset %q", parser.ErrTimestamp, record[offsetAt])); ferr != nil {
				return nil, dropped, ferr
			}
			continue
		}

		fields := make([]models.Field, 0, len(attodryColumns)+1)
		for _, c := range attodryColumns {
			v := models.Null
			if i, ok := position[c.header]; ok {
				v = models.Text(record[i])
			}
			fields = append(fields, models.Field{Name: c.field, Value: v})
		}
		fields = append(fields, models.Field{Name: "Cryo_enable", Value: models.Text("true")})

		series = append(series, models.Reading{
			Time:   start.Add(time.Duration(seconds * float64(time.Second))),
			Fields: fields,
		})
	}
	return series, dropped, nil
}
