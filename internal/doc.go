// Package cryolog turns the log folders of cryostats into metric events.
//
// # Architecture
//
// The command is structured into several key packages:
//   - parser: Instrument log files to timestamped rows in UTC
//   - loader: Per-day merging and windowed range loading of log folders
//   - emitter: Readings to line protocol events, sinks and run metrics
//   - checkpoint: Per-device timestamp of the last emitted reading
//   - pipeline: One incremental run from checkpoint to checkpoint
//   - config: YAML configuration
//   - models: Shared data structures
//
// Key Features
//
//   - Incremental Runs:
//     Each run resumes after the stored checkpoint and advances it only
//     after every event of the window has been written. Delivery is
//     at-least-once.
//
//   - Local Time:
//     Log timestamps are naive local wall times. Readings inside the
//     repeated hour of a DST fall-back are resolved from the order of the
//     surrounding rows.
//
//   - Devices:
//     Bluefors dilution refrigerators (one folder per day, one file per
//     channel) and AttoDry systems (one tab-separated file per run).
//
// Example Usage
//
//	days := &loader.Bluefors{Root: "/data/bluefors", Parse: parser.Options{Location: loc}}
//	p := &pipeline.Pipeline{
//	    Loader:      loader.NewRangeLoader(days, loc),
//	    Checkpoints: checkpoint.NewFileStore(dir, logger),
//	    Location:    loc,
//	}
//	res, err := p.Run(ctx, emitter.NewLineSink(os.Stdout, 0, 0), pipeline.Options{
//	    Device:         "bluefors",
//	    OverrideStored: true,
//	})
//
// For more information about specific packages, see their respective
// documentation.
package cryolog
