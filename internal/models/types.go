package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Value is a single logged cell. Text holds the cell as it was written to
// disk; a Value that is not Valid is a null.
type Value struct {
	Text  string
	Valid bool
}

// Null is the absent value.
var Null = Value{}

// Text returns a valid Value for s. Empty, whitespace-only and NaN cells
// are null.
func Text(s string) Value {
	s = strings.TrimSpace(s)
	if s == "" || isNaN(s) {
		return Null
	}
	return Value{Text: s, Valid: true}
}

func isNaN(s string) bool {
	return strings.EqualFold(strings.TrimLeft(s, "+-"), "nan")
}

// Float parses the cell as a finite float64.
func (v Value) Float() (float64, error) {
	f, err := strconv.ParseFloat(v.Text, 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("not a finite number: %q", v.Text)
	}
	return f, nil
}

// Bool parses the cell as a flag. Numeric cells are true when non-zero.
func (v Value) Bool() (bool, error) {
	if b, err := strconv.ParseBool(v.Text); err == nil {
		return b, nil
	}
	f, err := strconv.ParseFloat(v.Text, 64)
	if err != nil {
		return false, fmt.Errorf("not a flag: %q", v.Text)
	}
	return f != 0, nil
}

// Field is a named value inside a Reading.
type Field struct {
	Name  string
	Value Value
}

// Reading is the composite record of all channels at one instant.
type Reading struct {
	Time   time.Time
	Fields []Field
}

// Get returns the value of the named field and whether the Reading carries
// that field at all.
func (r Reading) Get(name string) (Value, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Null, false
}

// Series is an ordered sequence of Readings for one device.
type Series []Reading

// Last returns the timestamp of the final Reading. ok is false for an
// empty series.
func (s Series) Last() (t time.Time, ok bool) {
	if len(s) == 0 {
		return time.Time{}, false
	}
	return s[len(s)-1].Time, true
}

// Measurement is the measurement name of every emitted event.
const Measurement = "cryo_sensor"

// MetricEvent is one field value of one sensor at one instant.
type MetricEvent struct {
	Device   string
	SensorID string
	Kind     string
	Value    float64
	Time     time.Time
}

// Line renders the event in InfluxDB line protocol:
//
//	cryo_sensor,device=<device>,sensor_id=<id> <kind>=<value> <unix_ns>
func (e MetricEvent) Line() string {
	var b strings.Builder
	b.WriteString(Measurement)
	b.WriteString(",device=")
	b.WriteString(escapeTag(e.Device))
	b.WriteString(",sensor_id=")
	b.WriteString(escapeTag(e.SensorID))
	b.WriteByte(' ')
	b.WriteString(escapeTag(e.Kind))
	b.WriteByte('=')
	b.WriteString(strconv.FormatFloat(e.Value, 'g', -1, 64))
	b.WriteByte(' ')
	b.WriteString(strconv.FormatInt(e.Time.UnixNano(), 10))
	return b.String()
}

var tagEscaper = strings.NewReplacer(",", `\,`, "=", `\=`, " ", `\ `)

func escapeTag(s string) string {
	return tagEscaper.Replace(s)
}
