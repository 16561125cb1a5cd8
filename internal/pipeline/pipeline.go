// Package pipeline runs one incremental ingestion of a cryostat: resolve
// the window from the caller or the stored checkpoint, load the composite
// series, emit it, then advance the checkpoint.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/cryolog/internal/checkpoint"
	"github.com/tejusbharadwaj/cryolog/internal/emitter"
	"github.com/tejusbharadwaj/cryolog/internal/loader"
	"github.com/tejusbharadwaj/cryolog/internal/models"
)

// Loader returns the readings of a window, sorted ascending.
type Loader interface {
	Load(w loader.Window) (models.Series, error)
}

// State is the outcome of a run.
type State int

const (
	// Failed means the run returned an error.
	Failed State = iota
	// Emitted means readings were emitted.
	Emitted
	// NoData means the window held no readings. Nothing was emitted and
	// the checkpoint is unchanged.
	NoData
	// NoCheckpoint means no since was given, none was stored, and the run
	// required one. Nothing was loaded.
	NoCheckpoint
)

func (s State) String() string {
	switch s {
	case Failed:
		return "failed"
	case Emitted:
		return "emitted"
	case NoData:
		return "no-data"
	case NoCheckpoint:
		return "no-checkpoint"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options are the per-run inputs of the command surface.
type Options struct {
	Device string
	Since  loader.Bound
	Till   loader.Bound
	// Tolerant skips rows that fail to convert instead of aborting.
	Tolerant bool
	// OverrideStored writes the checkpoint after a successful run.
	OverrideStored bool
	// RequireCheckpoint refuses to fall back to the default window when
	// neither Since nor a stored checkpoint exists.
	RequireCheckpoint bool
}

// Result describes a completed run.
type Result struct {
	RunID  string
	State  State
	Window loader.Window
	// FromCheckpoint is true when Since came from the checkpoint store.
	FromCheckpoint bool
	Stats          emitter.Stats
	// Last is the timestamp of the last emitted reading.
	Last   time.Time
	Stored bool
}

// Pipeline holds the collaborators of a run.
type Pipeline struct {
	Loader      Loader
	Checkpoints checkpoint.Store
	Location    *time.Location
	Logger      logrus.FieldLogger
	Metrics     *emitter.Metrics
	// Clock defaults to time.Now.
	Clock func() time.Time
}

func (p *Pipeline) now() time.Time {
	if p.Clock != nil {
		return p.Clock()
	}
	return time.Now()
}

func (p *Pipeline) logger() logrus.FieldLogger {
	if p.Logger != nil {
		return p.Logger
	}
	return logrus.StandardLogger()
}

// Run performs one ingestion and writes events to sink. Run closes sink
// before the checkpoint is written, so every event of the window has been
// flushed when the checkpoint advances.
func (p *Pipeline) Run(ctx context.Context, sink emitter.Sink, opts Options) (res Result, err error) {
	started := p.now()
	res.RunID = uuid.NewString()
	log := p.logger().WithFields(logrus.Fields{
		"run_id": res.RunID,
		"device": opts.Device,
	})

	closed := false
	defer func() {
		if !closed {
			sink.Close()
		}
		var last time.Time
		if res.State == Emitted {
			last = res.Last
		}
		p.Metrics.ObserveRun(opts.Device, p.now().Sub(started), last)
	}()

	since := opts.Since
	if !since.IsSet() {
		ts, ok, err := p.Checkpoints.Load(ctx, opts.Device)
		if err != nil {
			return res, fmt.Errorf("failed to load checkpoint: %w", err)
		}
		switch {
		case ok:
			since = loader.At(ts)
			res.FromCheckpoint = true
		case opts.RequireCheckpoint:
			log.Info("No checkpoint stored and no since given")
			res.State = NoCheckpoint
			return res, nil
		default:
			log.Info("No checkpoint stored, using default window")
		}
	}

	res.Window, err = loader.ResolveWindow(since, opts.Till, started, p.Location)
	if err != nil {
		return res, err
	}
	log = log.WithFields(logrus.Fields{
		"since": res.Window.Since.Format(time.RFC3339Nano),
		"till":  res.Window.Till.Format(time.RFC3339Nano),
	})

	series, err := p.Loader.Load(res.Window)
	if err != nil {
		return res, fmt.Errorf("failed to load logs: %w", err)
	}
	if len(series) == 0 {
		log.Debug("Nothing new in window")
		res.State = NoData
		return res, nil
	}

	em := emitter.New(opts.Device,
		emitter.Tolerant(opts.Tolerant),
		emitter.WithLogger(log),
		emitter.WithMetrics(p.Metrics),
	)
	res.Stats, err = em.Emit(ctx, series, sink)
	if err != nil {
		return res, err
	}

	closed = true
	if err := sink.Close(); err != nil {
		return res, fmt.Errorf("failed to flush events: %w", err)
	}

	res.State = Emitted
	res.Last, _ = series.Last()
	if opts.OverrideStored {
		if err := p.Checkpoints.Store(ctx, opts.Device, res.Last); err != nil {
			return res, fmt.Errorf("failed to store checkpoint: %w", err)
		}
		res.Stored = true
	}

	log.WithFields(logrus.Fields{
		"readings":   res.Stats.Readings,
		"events":     res.Stats.Events,
		"skipped":    res.Stats.SkippedRows,
		"checkpoint": res.Last.Format(time.RFC3339Nano),
		"stored":     res.Stored,
	}).Info("Run complete")
	return res, nil
}
