package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejusbharadwaj/cryolog/internal/models"
)

const layout = "02-01-06 15:04:05"

func zurich(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Zurich")
	require.NoError(t, err)
	return loc
}

func temperatureSchema() Schema {
	return Schema{
		Name:    "CH6 T",
		Columns: []Column{{Kind: Date}, {Kind: Clock}, Field("TMXC_temperature")},
		Layout:  layout,
	}
}

func utc(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestParseTemperatureFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "CH6 T 24-05-10.log")
	content := " 10-05-24,12:00:00,1.234E-2\n 10-05-24,12:00:05,1.250E-2\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	table, err := ParseFile(path, temperatureSchema(), Options{Location: zurich(t)})
	require.NoError(t, err)

	assert.Equal(t, []string{"TMXC_temperature"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, utc("2024-05-10T10:00:00Z"), table.Rows[0].Time)
	assert.Equal(t, utc("2024-05-10T10:00:05Z"), table.Rows[1].Time)
	assert.Equal(t, models.Text("1.234E-2"), table.Rows[0].Values[0])
	assert.Equal(t, time.UTC, table.Rows[0].Time.Location())
}

func TestParseDropsPlaceholders(t *testing.T) {
	schema := Schema{
		Name: "maxigauge",
		Columns: []Column{
			{Kind: Date}, {Kind: Clock},
			Skip(), Skip(), Flag("P1_enable"), Field("P1_pressure"), Skip(), Skip(),
		},
		Layout: layout,
	}
	in := "10-05-24,12:00:00,CH1,,1,2.5e-06,0,1\n"

	table, err := Parse(strings.NewReader(in), "maxigauge", schema, Options{Location: time.UTC})
	require.NoError(t, err)

	assert.Equal(t, []string{"P1_enable", "P1_pressure"}, table.Columns)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, []models.Value{models.Text("1"), models.Text("2.5e-06")}, table.Rows[0].Values)
}

func TestParseEmptyCellIsNull(t *testing.T) {
	table, err := Parse(strings.NewReader("10-05-24,12:00:00, \n"), "t", temperatureSchema(), Options{Location: time.UTC})
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.False(t, table.Rows[0].Values[0].Valid)
}

func TestParseFailurePolicy(t *testing.T) {
	in := strings.Join([]string{
		"10-05-24,12:00:00,1.0",
		"not-a-date,12:00:01,2.0",
		"10-05-24,12:00:02",
		"31-03-24,02:30:00,3.0",
		"10-05-24,12:00:03,4.0",
	}, "\n")

	t.Run("default policy fails on first bad row", func(t *testing.T) {
		_, err := Parse(strings.NewReader(in), "CH6 T 24-05-10.log", temperatureSchema(), Options{Location: zurich(t)})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTimestamp)
		assert.Contains(t, err.Error(), "CH6 T 24-05-10.log:2")
	})

	t.Run("tolerant policy drops bad rows", func(t *testing.T) {
		table, err := Parse(strings.NewReader(in), "t", temperatureSchema(), Options{Location: zurich(t), Tolerant: true})
		require.NoError(t, err)
		assert.Equal(t, 3, table.Dropped)
		require.Len(t, table.Rows, 2)
		assert.Equal(t, models.Text("1.0"), table.Rows[0].Values[0])
		assert.Equal(t, models.Text("4.0"), table.Rows[1].Values[0])
	})

	t.Run("column count mismatch is fatal by default", func(t *testing.T) {
		_, err := Parse(strings.NewReader("10-05-24,12:00:02\n"), "t", temperatureSchema(), Options{Location: time.UTC})
		assert.ErrorIs(t, err, ErrColumnCount)
	})
}

func TestParseRejectsInvalidSchema(t *testing.T) {
	tests := []struct {
		name   string
		schema Schema
	}{
		{"missing clock", Schema{Name: "x", Columns: []Column{{Kind: Date}, Field("a_b")}, Layout: layout}},
		{"duplicate field", Schema{Name: "x", Columns: []Column{{Kind: Date}, {Kind: Clock}, Field("a_b"), Field("a_b")}, Layout: layout}},
		{"unpaired enable", Schema{Name: "x", Columns: []Column{{Kind: Date}, {Kind: Clock}, Flag("P1_enable")}, Layout: layout}},
		{"missing layout", Schema{Name: "x", Columns: []Column{{Kind: Date}, {Kind: Clock}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.schema.Validate())
		})
	}
}

func TestLocalizeFold(t *testing.T) {
	loc := zurich(t)
	walls := []time.Time{
		utc("2024-10-27T01:59:00Z"),
		utc("2024-10-27T02:30:00Z"),
		utc("2024-10-27T02:59:00Z"),
		utc("2024-10-27T02:10:00Z"),
		utc("2024-10-27T02:40:00Z"),
		utc("2024-10-27T03:00:00Z"),
	}

	out, errs := Localize(walls, loc)
	for i, err := range errs {
		require.NoError(t, err, "row %d", i)
	}
	assert.Equal(t, []time.Time{
		utc("2024-10-26T23:59:00Z"),
		utc("2024-10-27T00:30:00Z"),
		utc("2024-10-27T00:59:00Z"),
		utc("2024-10-27T01:10:00Z"),
		utc("2024-10-27T01:40:00Z"),
		utc("2024-10-27T02:00:00Z"),
	}, out)
}

func TestLocalizeFoldFromContext(t *testing.T) {
	loc := zurich(t)

	t.Run("only earlier rows means first occurrence", func(t *testing.T) {
		out, errs := Localize([]time.Time{utc("2024-10-27T01:50:00Z"), utc("2024-10-27T02:30:00Z")}, loc)
		require.NoError(t, errs[1])
		assert.Equal(t, utc("2024-10-27T00:30:00Z"), out[1])
	})

	t.Run("only later rows means second occurrence", func(t *testing.T) {
		out, errs := Localize([]time.Time{utc("2024-10-27T02:30:00Z"), utc("2024-10-27T03:10:00Z")}, loc)
		require.NoError(t, errs[0])
		assert.Equal(t, utc("2024-10-27T01:30:00Z"), out[0])
	})

	t.Run("isolated ambiguous row cannot be inferred", func(t *testing.T) {
		_, errs := Localize([]time.Time{utc("2024-10-27T02:30:00Z")}, loc)
		assert.ErrorIs(t, errs[0], ErrTimestamp)
	})

	t.Run("rows on both sides without a step back cannot be inferred", func(t *testing.T) {
		_, errs := Localize([]time.Time{
			utc("2024-10-27T01:50:00Z"),
			utc("2024-10-27T02:30:00Z"),
			utc("2024-10-27T03:10:00Z"),
		}, loc)
		assert.NoError(t, errs[0])
		assert.ErrorIs(t, errs[1], ErrTimestamp)
		assert.NoError(t, errs[2])
	})
}

func TestLocalizeFirst(t *testing.T) {
	loc := zurich(t)

	got, err := LocalizeFirst(utc("2024-10-27T02:30:00Z"), loc)
	require.NoError(t, err)
	assert.Equal(t, utc("2024-10-27T00:30:00Z"), got, "first occurrence of the repeated hour")

	got, err = LocalizeFirst(utc("2024-05-15T10:00:00Z"), loc)
	require.NoError(t, err)
	assert.Equal(t, utc("2024-05-15T08:00:00Z"), got)

	_, err = LocalizeFirst(utc("2024-03-31T02:30:00Z"), loc)
	assert.ErrorIs(t, err, ErrTimestamp)
}

func TestLocalizeGap(t *testing.T) {
	_, errs := Localize([]time.Time{utc("2024-03-31T02:30:00Z")}, zurich(t))
	assert.ErrorIs(t, errs[0], ErrTimestamp)
}
