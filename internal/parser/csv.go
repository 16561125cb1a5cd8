package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/tejusbharadwaj/cryolog/internal/models"
)

// ErrColumnCount is returned for a row whose column count does not match
// its schema.
var ErrColumnCount = errors.New("column count mismatch")

// Options controls how a channel file is parsed.
type Options struct {
	// Location is the zone the instrument logged its wall clock in.
	// Nil means time.Local.
	Location *time.Location
	// Tolerant drops rows that fail to parse instead of failing the file.
	Tolerant bool
}

// Row is one parsed line: a UTC timestamp and the schema's field values.
type Row struct {
	Time   time.Time
	Values []models.Value
}

// Table is the parsed content of one channel file. Columns lists the field
// names in the order of each Row's Values.
type Table struct {
	Channel string
	Columns []string
	Rows    []Row
	// Dropped counts rows discarded under the tolerant policy.
	Dropped int
}

type pendingRow struct {
	line   int
	wall   time.Time
	values []models.Value
}

// ParseFile reads the channel file at path with the given schema.
func ParseFile(path string, schema Schema, opts Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Parse(f, path, schema, opts)
}

// Parse reads a channel log from r. name is used in error messages.
//
// Under the default policy the first failing row aborts the parse with an
// error naming the file and line. Under the tolerant policy failing rows are
// dropped and counted in Table.Dropped.
func Parse(r io.Reader, name string, schema Schema, opts Options) (*Table, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	table := &Table{
		Channel: schema.Name,
		Columns: schema.Fields(),
	}

	rowFailed := func(line int, err error) error {
		if !opts.Tolerant {
			return fmt.Errorf("%s:%d: %w", name, line, err)
		}
		table.Dropped++
		return nil
	}

	cr := csv.NewReader(r)
	cr.Comma = schema.comma()
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var pending []pendingRow
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return nil, fmt.Errorf("read %s: %w", name, err)
			}
			if ferr := rowFailed(perr.StartLine, err); ferr != nil {
				return nil, ferr
			}
			continue
		}
		line, _ := cr.FieldPos(0)

		row, err := parseRecord(record, schema)
		if err != nil {
			if ferr := rowFailed(line, err); ferr != nil {
				return nil, ferr
			}
			continue
		}
		row.line = line
		pending = append(pending, row)
	}

	walls := make([]time.Time, len(pending))
	for i, p := range pending {
		walls[i] = p.wall
	}
	times, errs := Localize(walls, loc)

	table.Rows = make([]Row, 0, len(pending))
	for i, p := range pending {
		if errs[i] != nil {
			if ferr := rowFailed(p.line, errs[i]); ferr != nil {
				return nil, ferr
			}
			continue
		}
		table.Rows = append(table.Rows, Row{Time: times[i], Values: p.values})
	}
	return table, nil
}

func parseRecord(record []string, schema Schema) (pendingRow, error) {
	if len(record) != len(schema.Columns) {
		return pendingRow{}, fmt.Errorf("%w: have %d, schema %s wants %d",
			ErrColumnCount, len(record), schema.Name, len(schema.Columns))
	}

	var date, clock string
	values := make([]models.Value, 0, len(record))
	for i, c := range schema.Columns {
		switch c.Kind {
		case Date:
			date = strings.TrimSpace(record[i])
		case Clock:
			clock = strings.TrimSpace(record[i])
		case Data, Enable:
			values = append(values, models.Text(record[i]))
		}
	}

	wall, err := time.Parse(schema.Layout, date+" "+clock)
	if err != nil {
		return pendingRow{}, fmt.Errorf("%w: %q: %v", ErrTimestamp, date+" "+clock, err)
	}
	return pendingRow{wall: wall, values: values}, nil
}
