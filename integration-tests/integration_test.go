//go:build integration
// +build integration

package integration_test

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejusbharadwaj/cryolog/internal/checkpoint"
	"github.com/tejusbharadwaj/cryolog/internal/emitter"
	"github.com/tejusbharadwaj/cryolog/internal/loader"
	"github.com/tejusbharadwaj/cryolog/internal/parser"
	"github.com/tejusbharadwaj/cryolog/internal/pipeline"
)

var logger *logrus.Logger

func connString() string {
	// Get database connection details from environment variables
	dbHost := getEnvOrDefault("DB_HOST", "db")
	dbPort := getEnvOrDefault("DB_PORT", "5432")
	dbUser := getEnvOrDefault("DB_USER", "cryolog")
	dbPass := getEnvOrDefault("DB_PASSWORD", "cryolog")
	dbName := getEnvOrDefault("DB_NAME", "cryolog")

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		dbHost, dbPort, dbUser, dbPass, dbName,
	)
}

func setupTestStore(t *testing.T) *checkpoint.PostgresStore {
	logger = logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	ctx := context.Background()
	store, err := checkpoint.NewPostgresStore(ctx, connString())
	require.NoError(t, err)

	// Clean up any existing test data
	db, err := sql.Open("postgres", connString())
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("TRUNCATE TABLE cryo_checkpoints")
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })
	return store
}

// Helper function to get environment variables with defaults
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func TestPostgresCheckpointRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, ok, err := store.Load(ctx, "bluefors")
	require.NoError(t, err)
	assert.False(t, ok)

	first := time.Date(2024, 5, 10, 10, 0, 5, 123456000, time.UTC)
	require.NoError(t, store.Store(ctx, "bluefors", first))
	got, ok, err := store.Load(ctx, "bluefors")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, first.Equal(got))

	second := first.Add(time.Hour)
	require.NoError(t, store.Store(ctx, "bluefors", second))
	got, _, err = store.Load(ctx, "bluefors")
	require.NoError(t, err)
	assert.True(t, second.Equal(got))

	_, ok, err = store.Load(ctx, "attocube")
	require.NoError(t, err)
	assert.False(t, ok, "devices are independent")

	assert.ErrorIs(t, store.Store(ctx, "", first), checkpoint.ErrInvalidDevice)
}

func TestPostgresCheckpointKeepsNanoseconds(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// AttoDry readings are a start time plus a fractional offset
	ts := time.Date(2024, 5, 15, 8, 0, 12, 345678901, time.UTC)
	require.NoError(t, store.Store(ctx, "attocube", ts))

	got, ok, err := store.Load(ctx, "attocube")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, ts.Equal(got), "got %s", got.Format(time.RFC3339Nano))

	w := loader.Window{Since: got, Till: ts.Add(time.Hour)}
	assert.False(t, w.Contains(ts), "last emitted reading stays outside the next window")
}

func TestPipelineWithPostgresCheckpoint(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	loc, err := time.LoadLocation("Europe/Zurich")
	require.NoError(t, err)

	root := t.TempDir()
	dir := filepath.Join(root, "24-05-10")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CH2 T 24-05-10.log"),
		[]byte("10-05-24,12:00:00,3.21\n10-05-24,12:00:05,3.22\n"), 0644))

	now := time.Date(2024, 5, 10, 14, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	days := &loader.Bluefors{Root: root, Valves: loader.DualTurbo, Parse: parser.Options{Location: loc}, Logger: logger}
	p := &pipeline.Pipeline{
		Loader:      loader.NewRangeLoader(days, loc, loader.WithLogger(logger)),
		Checkpoints: store,
		Location:    loc,
		Logger:      logger,
		Metrics:     emitter.NewMetrics(prometheus.NewRegistry()),
		Clock:       clock,
	}

	var buf bytes.Buffer
	res, err := p.Run(ctx, emitter.NewLineSink(&buf, 0, 0), pipeline.Options{
		Device:         "bluefors",
		Since:          loader.ParseBound("2024-05-10"),
		OverrideStored: true,
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.Emitted, res.State)
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))

	stored, ok, err := store.Load(ctx, "bluefors")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, time.Date(2024, 5, 10, 10, 0, 5, 0, time.UTC).Equal(stored))

	buf.Reset()
	res, err = p.Run(ctx, emitter.NewLineSink(&buf, 0, 0), pipeline.Options{Device: "bluefors", OverrideStored: true})
	require.NoError(t, err)
	assert.True(t, res.FromCheckpoint)
	assert.Equal(t, pipeline.NoData, res.State)
	assert.Empty(t, buf.String())
}
