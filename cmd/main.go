package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/tejusbharadwaj/cryolog/internal/checkpoint"
	"github.com/tejusbharadwaj/cryolog/internal/config"
	"github.com/tejusbharadwaj/cryolog/internal/emitter"
	"github.com/tejusbharadwaj/cryolog/internal/loader"
	"github.com/tejusbharadwaj/cryolog/internal/parser"
	"github.com/tejusbharadwaj/cryolog/internal/pipeline"
)

// Command cryolog emits the readings of a cryostat's log folder as line
// protocol on stdout, resuming after the last reading of the previous run.
//
// Usage:
//
//	cryolog bluefors --logfolder DIR [flags]
//	cryolog attodry  --logfolder DIR [flags]
//
// The flags are:
//
//	--logfolder string       log root of the device (required)
//	--since string           start of the window, ISO date or timestamp
//	--till string            end of the window, ISO date or timestamp
//	--device-name string     device tag and checkpoint key
//	--override-stored        store the checkpoint after the run (default true)
//	--no-override-stored     do not store the checkpoint
//	--fail-gracefully        skip unparseable rows instead of aborting
//	--require-checkpoint     exit with status 2 when no since is known
//	--configfolder string    checkpoint directory, overrides data_dir
//	--config string          path to config file
//	--verbose                debug logging
func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	// Parse command line flags
	cfg, err := parseFlags(os.Args[1], os.Args[2:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		usage()
		os.Exit(2)
	}

	// Load configuration
	appConfig, err := config.LoadOrDefault(cfg.ConfigPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := newLogger(appConfig.Logging, cfg.Verbose)

	// Create a context that will be canceled on shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(ctx, cancel, logger)

	state, err := run(ctx, cfg, appConfig, logger)
	if err != nil {
		logger.Fatalf("Run failed: %v", err)
	}
	if state == pipeline.NoCheckpoint {
		cancel()
		os.Exit(2)
	}
}

// Config holds the command line flags
type Config struct {
	Kind              string
	LogFolder         string
	Since             string
	Till              string
	DeviceName        string
	OverrideStored    bool
	FailGracefully    bool
	RequireCheckpoint bool
	ConfigFolder      string
	ConfigPath        string
	Verbose           bool
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cryolog {bluefors|attodry} --logfolder DIR [flags]")
}

func defaultDeviceName(kind string) (string, error) {
	switch kind {
	case "bluefors":
		return "bluefors", nil
	case "attodry":
		return "attocube", nil
	default:
		return "", fmt.Errorf("unknown device kind %q", kind)
	}
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "cryolog", "config.yaml")
}

func parseFlags(kind string, args []string) (*Config, error) {
	device, err := defaultDeviceName(kind)
	if err != nil {
		return nil, err
	}
	cfg := &Config{Kind: kind}

	var noOverride bool
	flags := pflag.NewFlagSet(kind, pflag.ContinueOnError)
	flags.StringVar(&cfg.LogFolder, "logfolder", "", "Log root of the device")
	flags.StringVar(&cfg.Since, "since", "", "Start of the window, ISO date or timestamp (default: stored checkpoint)")
	flags.StringVar(&cfg.Till, "till", "", "End of the window, ISO date or timestamp (default: now + 24h)")
	flags.StringVar(&cfg.DeviceName, "device-name", device, "Device tag and checkpoint key")
	flags.BoolVar(&cfg.OverrideStored, "override-stored", true, "Store the checkpoint after a successful run")
	flags.BoolVar(&noOverride, "no-override-stored", false, "Do not store the checkpoint")
	flags.BoolVar(&cfg.FailGracefully, "fail-gracefully", false, "Skip unparseable rows instead of aborting")
	flags.BoolVar(&cfg.RequireCheckpoint, "require-checkpoint", false, "Exit with status 2 when neither since nor a checkpoint is known")
	flags.StringVar(&cfg.ConfigFolder, "configfolder", "", "Checkpoint directory, overrides data_dir")
	flags.StringVar(&cfg.ConfigPath, "config", defaultConfigPath(), "Path to config file")
	flags.BoolVar(&cfg.Verbose, "verbose", false, "Debug logging")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if cfg.LogFolder == "" {
		return nil, errors.New("--logfolder is required")
	}
	if noOverride {
		cfg.OverrideStored = false
	}
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig, verbose bool) *logrus.Logger {
	// Initialize structured logger
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.WithField("level", cfg.Level).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)
	return logger
}

func run(ctx context.Context, cfg *Config, appConfig *config.Config, logger *logrus.Logger) (pipeline.State, error) {
	loc, err := appConfig.Location()
	if err != nil {
		return pipeline.Failed, err
	}

	store, closeStore, err := openCheckpoints(ctx, cfg, appConfig, logger)
	if err != nil {
		return pipeline.Failed, err
	}
	defer closeStore()

	logs, err := newLoader(cfg, appConfig, loc, logger)
	if err != nil {
		return pipeline.Failed, err
	}

	registry := prometheus.NewRegistry()
	p := &pipeline.Pipeline{
		Loader:      logs,
		Checkpoints: store,
		Location:    loc,
		Logger:      logger,
		Metrics:     emitter.NewMetrics(registry),
	}

	var sink emitter.Sink = emitter.NewLineSink(os.Stdout, appConfig.Emit.RateLimit, appConfig.Emit.Burst)
	if appConfig.Archive.Dir != "" {
		sink = emitter.Tee(sink, emitter.NewArchiveSink(appConfig.Archive.Dir, cfg.DeviceName, time.Now()))
	}

	logger.WithFields(logrus.Fields{
		"device":    cfg.DeviceName,
		"logfolder": cfg.LogFolder,
	}).Debug("Starting run")

	res, runErr := p.Run(ctx, sink, pipeline.Options{
		Device:            cfg.DeviceName,
		Since:             loader.ParseBound(cfg.Since),
		Till:              loader.ParseBound(cfg.Till),
		Tolerant:          cfg.FailGracefully,
		OverrideStored:    cfg.OverrideStored,
		RequireCheckpoint: cfg.RequireCheckpoint,
	})

	if appConfig.Metrics.Textfile != "" {
		if err := prometheus.WriteToTextfile(appConfig.Metrics.Textfile, registry); err != nil {
			logger.WithError(err).Warn("Failed to write metrics textfile")
		}
	}
	return res.State, runErr
}

func openCheckpoints(ctx context.Context, cfg *Config, appConfig *config.Config, logger logrus.FieldLogger) (checkpoint.Store, func(), error) {
	switch appConfig.Checkpoint.Backend {
	case "", "file":
		dir := appConfig.DataDir
		if cfg.ConfigFolder != "" {
			dir = cfg.ConfigFolder
		}
		return checkpoint.NewFileStore(dir, logger), func() {}, nil
	case "postgres":
		store, err := checkpoint.NewPostgresStore(ctx, appConfig.Checkpoint.Database.ConnString())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to checkpoint database: %w", err)
		}
		return store, func() { store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown checkpoint backend %q", appConfig.Checkpoint.Backend)
	}
}

func newLoader(cfg *Config, appConfig *config.Config, loc *time.Location, logger logrus.FieldLogger) (pipeline.Loader, error) {
	opts := parser.Options{Location: loc, Tolerant: cfg.FailGracefully}

	switch cfg.Kind {
	case "bluefors":
		valves, err := loader.ParseValveLayout(appConfig.Bluefors.ValveLayout)
		if err != nil {
			return nil, err
		}
		days := &loader.Bluefors{
			Root:     cfg.LogFolder,
			Channels: appConfig.Bluefors.Channels,
			Valves:   valves,
			Parse:    opts,
			Logger:   logger,
		}
		return loader.NewRangeLoader(days, loc, loader.WithLogger(logger)), nil
	case "attodry":
		return &loader.AttoDry{Folder: cfg.LogFolder, Parse: opts, Logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown device kind %q", cfg.Kind)
	}
}

// Handle graceful shutdown
func handleShutdown(ctx context.Context, cancel context.CancelFunc, logger *logrus.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
	case sig := <-sigChan:
		logger.Printf("Received signal %v, stopping run", sig)
		cancel()
	}
}
