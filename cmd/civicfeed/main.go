package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"civicfeed/internal/config"
	"civicfeed/internal/feed"
	appLog "civicfeed/internal/log"
	"civicfeed/internal/storage"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath  string
	once        bool
	firstRun    bool
	forwardOnly bool
	debug       bool
}

func main() {
	appLog.Info("civicfeed starting", "version", "0.1.0")

	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI flags override the config file when provided.
	if flags.firstRun {
		conf.FirstRun = true
	}
	if flags.forwardOnly {
		conf.ForwardOnly = true
	}

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"storage", conf.Storage,
		"feed_blob", conf.FeedBlob,
		"runs_prefix", conf.RunsPrefix,
		"extractor_count", len(conf.Extractors),
		"forward_only", conf.ForwardOnly,
		"first_run", conf.FirstRun,
		"refresh", conf.RefreshCron,
		"once", flags.once,
	)

	store, err := buildStore(conf)
	if err != nil {
		appLog.Error("failed to build storage client", err)
		os.Exit(1)
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	job := &feed.Job{
		Store:       store,
		FeedBlob:    conf.FeedBlob,
		RunsPrefix:  conf.RunsPrefix,
		Extractors:  conf.Extractors,
		FirstRun:    conf.FirstRun,
		ForwardOnly: conf.ForwardOnly,
		ICSPath:     conf.ICSPath,
	}

	if flags.once {
		if err := runOnce(ctx, job); err != nil {
			os.Exit(1)
		}
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(conf.RefreshCron, func() {
		// Scheduled runs keep going on failure; the next tick retries.
		_ = runOnce(ctx, job)
	}); err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	c.Start()

	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()

	time.Sleep(100 * time.Millisecond)
	appLog.Info("civicfeed exiting")
}

// runOnce executes one reconciliation and logs the per-stage summary.
// Per-record validation failures are already inside the summary and do not
// fail the run; source exhaustion and storage errors do.
func runOnce(ctx context.Context, job *feed.Job) error {
	started := time.Now()
	sum, err := job.Run(ctx)
	if err != nil {
		if errors.Is(err, feed.ErrNoFreshRecords) {
			appLog.Error("reconciliation aborted, feed left untouched", err)
		} else {
			appLog.Error("reconciliation failed", err)
		}
		return err
	}
	appLog.Info("reconciliation complete",
		"observed", sum.Observed,
		"invalid", sum.Invalid,
		"bad_lines", sum.BadLines,
		"kept", sum.Kept,
		"removed", sum.Removed,
		"added", sum.Added,
		"dropped_past", sum.DroppedPast,
		"final", sum.Final,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return nil
}

func buildStore(conf *config.Config) (storage.Blob, error) {
	switch conf.Storage {
	case config.BackendAzure:
		azCfg, err := storage.AzureConfigFromEnv()
		if err != nil {
			return nil, err
		}
		return storage.NewAzureStore(azCfg)
	case config.BackendFile:
		return storage.NewFileStore(conf.FileRoot)
	default:
		return nil, errors.New("unknown storage backend")
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/civicfeed/config.yaml", "Path to config file")
	flag.BoolVar(&cfg.once, "once", false, "Run one reconciliation and exit")
	flag.BoolVar(&cfg.firstRun, "first-run", false, "Acknowledge that no published feed exists yet")
	flag.BoolVar(&cfg.forwardOnly, "forward-only", false, "Publish only meetings that have not started yet")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
