package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/cryolog/internal/models"
	"github.com/tejusbharadwaj/cryolog/internal/parser"
)

// blueforsLayout is the "<date> <clock>" layout of every Bluefors log.
const blueforsLayout = "02-01-06 15:04:05"

// ThermometerLabels maps Bluefors temperature channel numbers to sensor ids.
var ThermometerLabels = map[int]string{
	1: "T50K",
	2: "T4K",
	5: "Tstill",
	6: "TMXC",
	7: "T7",
	8: "T8",
}

// DefaultChannels are the temperature channels loaded when none are configured.
var DefaultChannels = []int{1, 2, 5, 6, 7, 8}

// ValveLayout selects the valve/mode channel schema of a Bluefors
// control unit firmware generation.
type ValveLayout string

const (
	SingleTurbo ValveLayout = "single-turbo"
	DualTurbo   ValveLayout = "dual-turbo"
)

// ParseValveLayout validates a configured layout name.
func ParseValveLayout(s string) (ValveLayout, error) {
	switch l := ValveLayout(s); l {
	case SingleTurbo, DualTurbo:
		return l, nil
	case "":
		return DualTurbo, nil
	default:
		return "", fmt.Errorf("unknown valve layout %q", s)
	}
}

func switches(names ...string) []parser.Column {
	cols := make([]parser.Column, 0, 2*len(names))
	for _, n := range names {
		cols = append(cols, parser.Skip(), parser.Field(n+"_switch"))
	}
	return cols
}

func timestamped(name string, cols ...parser.Column) parser.Schema {
	return parser.Schema{
		Name:    name,
		Columns: append([]parser.Column{{Kind: parser.Date}, {Kind: parser.Clock}}, cols...),
		Layout:  blueforsLayout,
	}
}

// TemperatureSchema is the schema of a `CH<n> T` log.
func TemperatureSchema(channel int) (parser.Schema, error) {
	label, ok := ThermometerLabels[channel]
	if !ok {
		return parser.Schema{}, fmt.Errorf("unknown temperature channel %d", channel)
	}
	return timestamped("CH"+strconv.Itoa(channel)+" T", parser.Field(label+"_temperature")), nil
}

// ValveSchema is the schema of the `Channels` log for the given layout.
func ValveSchema(layout ValveLayout) parser.Schema {
	mode := parser.Field("mode")
	switch layout {
	case SingleTurbo:
		return timestamped("Channels", append([]parser.Column{mode}, switches(
			"v11", "v2", "v1", "turbo1", "v12", "v3", "v10", "v14", "v4", "v13",
			"compressor", "v15", "v5", "hs-still", "v21", "v16", "v6", "scroll1",
			"v17", "v7", "scroll2", "v18", "v8", "pulsetube", "v19", "v20", "v9",
			"hs-mc", "ext",
		)...)...)
	default:
		return timestamped("Channels", append([]parser.Column{mode}, switches(
			"v1", "v2", "v3", "v4", "v5", "v6", "v7", "v8", "v9", "v10", "v11",
			"v12", "v13", "v14", "v15", "v16", "v17", "v18", "v19", "v20", "v21",
			"v22", "v23", "turbo1", "turbo2", "scroll1", "scroll2", "compressor",
			"pulsetube", "hs-still", "hs-mc", "ext",
		)...)...)
	}
}

// MaxigaugeSchema is the schema of the `maxigauge` pressure log: six gauge
// blocks and a trailing empty column.
func MaxigaugeSchema() parser.Schema {
	var cols []parser.Column
	for i := 1; i <= 6; i++ {
		id := "P" + strconv.Itoa(i)
		cols = append(cols,
			parser.Skip(), parser.Skip(),
			parser.Flag(id+"_enable"), parser.Field(id+"_pressure"),
			parser.Skip(), parser.Skip(),
		)
	}
	return timestamped("maxigauge", append(cols, parser.Skip())...)
}

// Bluefors merges the per-day channel logs of a Bluefors dilution
// refrigerator. The log root holds one `YY-MM-DD` folder per day.
type Bluefors struct {
	Root     string
	Channels []int
	Valves   ValveLayout
	Parse    parser.Options
	Logger   logrus.FieldLogger
}

type channelFile struct {
	path   string
	schema parser.Schema
}

func (b *Bluefors) files(day time.Time) ([]channelFile, error) {
	stamp := day.Format("06-01-02")
	dir := filepath.Join(b.Root, stamp)

	channels := b.Channels
	if len(channels) == 0 {
		channels = DefaultChannels
	}

	var files []channelFile
	for _, ch := range channels {
		schema, err := TemperatureSchema(ch)
		if err != nil {
			return nil, err
		}
		files = append(files, channelFile{
			path:   filepath.Join(dir, fmt.Sprintf("CH%d T %s.log", ch, stamp)),
			schema: schema,
		})
	}
	files = append(files,
		channelFile{path: filepath.Join(dir, "Channels "+stamp+".log"), schema: ValveSchema(b.Valves)},
		channelFile{path: filepath.Join(dir, "maxigauge "+stamp+".log"), schema: MaxigaugeSchema()},
	)
	return files, nil
}

// LoadDay returns the composite series of one calendar day. day is a civil
// date; only its year, month and day are used. ok is false when no channel
// file exists for that day.
func (b *Bluefors) LoadDay(day time.Time) (series models.Series, ok bool, err error) {
	files, err := b.files(day)
	if err != nil {
		return nil, false, err
	}

	var tables []*parser.Table
	for _, f := range files {
		if _, err := os.Stat(f.path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, false, err
		}
		table, err := parser.ParseFile(f.path, f.schema, b.Parse)
		if err != nil {
			return nil, false, err
		}
		if table.Dropped > 0 && b.Logger != nil {
			b.Logger.WithFields(logrus.Fields{
				"file":    f.path,
				"dropped": table.Dropped,
			}).Warn("Dropped unparseable rows")
		}
		tables = append(tables, table)
	}

	if len(tables) == 0 {
		return nil, false, nil
	}
	return Merge(tables), true, nil
}

var _ DayLoader = (*Bluefors)(nil)
