// Package parser reads one instrument channel log into a table of
// UTC-timestamped field values.
//
// A channel file is a header-less delimited text file whose column layout
// is fixed by the instrument. The layout is described by a Schema: which
// columns carry the local date and clock time, which are data fields, which
// data fields are enable flags gating a paired value, and which are
// placeholders that carry no meaning and are dropped.
//
// Example usage:
//
//	table, err := parser.ParseFile(path, schema, parser.Options{
//	    Location: time.Local,
//	})
//	if err != nil {
//	    return err
//	}
//	for _, row := range table.Rows {
//	    fmt.Println(row.Time, row.Values)
//	}
package parser

import (
	"fmt"
	"strings"
)

// ColumnKind is the role of one raw column.
type ColumnKind int

const (
	// Placeholder columns exist in the raw format but carry no meaning.
	Placeholder ColumnKind = iota
	// Date holds the local calendar date of the row.
	Date
	// Clock holds the local time of day of the row.
	Clock
	// Data is a plain field value.
	Data
	// Enable is a boolean flag gating the paired `<id>_pressure` field.
	Enable
)

// Column describes one raw column of a channel file.
type Column struct {
	Name string
	Kind ColumnKind
}

// Skip returns a placeholder column.
func Skip() Column { return Column{Kind: Placeholder} }

// Field returns a data column.
func Field(name string) Column { return Column{Name: name, Kind: Data} }

// Flag returns an enable column.
func Flag(name string) Column { return Column{Name: name, Kind: Enable} }

// Schema is the fixed layout of one channel file.
type Schema struct {
	// Name identifies the channel in logs and errors.
	Name string
	// Columns lists every raw column in file order.
	Columns []Column
	// Layout is the Go time layout of "<date> <clock>".
	Layout string
	// Comma is the field delimiter. Zero means ','.
	Comma rune
}

// Fields returns the names of the data and enable columns in file order.
func (s Schema) Fields() []string {
	var names []string
	for _, c := range s.Columns {
		if c.Kind == Data || c.Kind == Enable {
			names = append(names, c.Name)
		}
	}
	return names
}

// Validate checks that the schema has exactly one date and one clock column,
// unique field names, and that every enable flag has its paired value field.
func (s Schema) Validate() error {
	var dates, clocks int
	seen := make(map[string]bool)
	for _, c := range s.Columns {
		switch c.Kind {
		case Date:
			dates++
		case Clock:
			clocks++
		case Data, Enable:
			if c.Name == "" {
				return fmt.Errorf("schema %s: unnamed field column", s.Name)
			}
			if seen[c.Name] {
				return fmt.Errorf("schema %s: duplicate field %q", s.Name, c.Name)
			}
			seen[c.Name] = true
		}
	}
	if dates != 1 || clocks != 1 {
		return fmt.Errorf("schema %s: need one date and one clock column, have %d and %d", s.Name, dates, clocks)
	}
	for _, c := range s.Columns {
		if c.Kind != Enable {
			continue
		}
		id, _, ok := strings.Cut(c.Name, "_")
		if !ok || !seen[id+"_pressure"] {
			return fmt.Errorf("schema %s: enable flag %q has no paired pressure field", s.Name, c.Name)
		}
	}
	if s.Layout == "" {
		return fmt.Errorf("schema %s: missing time layout", s.Name)
	}
	return nil
}

func (s Schema) comma() rune {
	if s.Comma == 0 {
		return ','
	}
	return s.Comma
}
