package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethpandaops/smokeoor/pkg/api"
	"github.com/ethpandaops/smokeoor/pkg/config"
	"github.com/ethpandaops/smokeoor/pkg/executor"
	"github.com/ethpandaops/smokeoor/pkg/fsutil"
	"github.com/ethpandaops/smokeoor/pkg/publish"
	"github.com/ethpandaops/smokeoor/pkg/report"
	"github.com/ethpandaops/smokeoor/pkg/runner"
	"github.com/ethpandaops/smokeoor/pkg/scheduler"
	"github.com/ethpandaops/smokeoor/pkg/store"
	"github.com/ethpandaops/smokeoor/pkg/testcase"
	"github.com/ethpandaops/smokeoor/pkg/upload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	runPath         string
	runBackend      string
	runOnce         bool
	runInterval     time.Duration
	runStrictChecks bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the smoke tests",
	Long: `Discover test case files and run each one against every backend.
A directory of tests repeats on the configured interval until interrupted;
a single test file runs once.`,
	Args: cobra.NoArgs,
	RunE: runSmokeTests,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runPath, "path", "",
		"Test case file or directory (overrides runner.path)")
	runCmd.Flags().StringVar(&runBackend, "backend", "",
		"Run against this single backend instead of the configured list")
	runCmd.Flags().BoolVar(&runOnce, "once", false,
		"Run a single cycle and exit")
	runCmd.Flags().DurationVar(&runInterval, "interval", 0,
		"Pause between cycles (overrides runner.interval)")
	runCmd.Flags().BoolVar(&runStrictChecks, "strict-checks", false,
		"Treat unknown check types as test file errors")
}

func runSmokeTests(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFiles...)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := applyConfigLogLevel(cmd, cfg.Global.LogLevel); err != nil {
		return err
	}

	applyRunFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	// Setup context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			log.WithField("signal", sig).Info("Aborting")
			cancel()
		case <-ctx.Done():
		}
	}()

	sinks, cleanup, err := buildSinks(ctx, cfg)
	defer cleanup()

	if err != nil {
		return err
	}

	exec := executor.NewExecutor(log, &executor.Config{
		RequestTimeout: cfg.Runner.RequestTimeout,
		UserAgent:      cfg.Runner.UserAgent,
	})

	r := runner.NewRunner(log, &runner.Config{
		Path:        cfg.Runner.Path,
		Backends:    cfg.Runner.Backends,
		LoadOptions: testcase.LoadOptions{StrictChecks: cfg.Runner.StrictChecks},
	}, exec, sinks.all...)

	mode, err := scheduler.ParseMode(cfg.Runner.Repeat)
	if err != nil {
		return err
	}

	sched := scheduler.New(log, mode.Repeats(testcase.IsSingleFile(cfg.Runner.Path)), cfg.Runner.Interval)

	cycle := func(ctx context.Context) error {
		_, err := r.RunCycle(ctx)

		return err
	}

	if sinks.store == nil || !cfg.API.Enabled {
		return sched.Run(ctx, cycle)
	}

	return runWithAPI(ctx, cfg, sinks.store, sched, cycle)
}

// runWithAPI serves the status API for as long as the scheduler runs.
func runWithAPI(
	ctx context.Context,
	cfg *config.Config,
	st store.Store,
	sched scheduler.Scheduler,
	cycle scheduler.Cycle,
) error {
	srv := api.NewServer(log, &cfg.API, st)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting api server: %w", err)
	}

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer stopRun()

		return sched.Run(gctx, cycle)
	})

	g.Go(func() error {
		<-gctx.Done()

		if err := srv.Stop(); err != nil {
			return fmt.Errorf("stopping api server: %w", err)
		}

		return nil
	})

	return g.Wait()
}

// applyRunFlags overlays explicitly set run flags on the loaded config.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	if flags.Changed("path") {
		cfg.Runner.Path = runPath
	}

	if flags.Changed("backend") {
		cfg.Runner.Backends = []string{runBackend}
	}

	if flags.Changed("interval") {
		cfg.Runner.Interval = runInterval
	}

	if flags.Changed("strict-checks") {
		cfg.Runner.StrictChecks = runStrictChecks
	}

	if runOnce {
		cfg.Runner.Repeat = string(scheduler.ModeNever)
	}

	if cfg.Runner.UserAgent == "" {
		cfg.Runner.UserAgent = userAgent()
	}
}

type sinkSet struct {
	all   []report.Sink
	store store.Store
}

// buildSinks creates the configured result sinks. The returned cleanup func
// is always non-nil and releases whatever was created, even on error.
func buildSinks(ctx context.Context, cfg *config.Config) (*sinkSet, func(), error) {
	set := &sinkSet{
		all: []report.Sink{report.NewConsole(os.Stdout, os.Stderr)},
	}

	var closers []func()

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Output.ResultsDir != "" {
		owner, err := fsutil.ParseOwner(cfg.Output.ResultsOwner)
		if err != nil {
			return nil, cleanup, fmt.Errorf("parsing results_owner: %w", err)
		}

		var handlers []report.CycleFileHandler

		if cfg.Upload.S3.Enabled {
			uploader := upload.NewS3Uploader(log, &cfg.Upload.S3)

			if err := uploader.Preflight(ctx); err != nil {
				return nil, cleanup, fmt.Errorf("s3 preflight check: %w", err)
			}

			log.WithField("bucket", cfg.Upload.S3.Bucket).Info("S3 upload enabled")

			handlers = append(handlers, uploader)
		}

		set.all = append(set.all, report.NewFile(log, cfg.Output.ResultsDir, owner, handlers...))
	}

	if cfg.Store.Enabled {
		st := store.NewStore(log, &cfg.Store)
		if err := st.Start(ctx); err != nil {
			return nil, cleanup, fmt.Errorf("starting store: %w", err)
		}

		closers = append(closers, func() {
			if err := st.Stop(); err != nil {
				log.WithError(err).Warn("Failed to stop store")
			}
		})

		set.store = st
		set.all = append(set.all, st)
	}

	if cfg.Publish.Redis.Enabled {
		pub, err := publish.NewRedis(ctx, log, &cfg.Publish.Redis)
		if err != nil {
			return nil, cleanup, fmt.Errorf("creating redis publisher: %w", err)
		}

		closers = append(closers, func() {
			if err := pub.Close(); err != nil {
				log.WithError(err).Warn("Failed to close redis publisher")
			}
		})

		set.all = append(set.all, pub)
	}

	log.WithFields(logrus.Fields{
		"sinks":    len(set.all),
		"backends": len(cfg.Runner.Backends),
		"path":     cfg.Runner.Path,
	}).Debug("Result sinks configured")

	return set, cleanup, nil
}
