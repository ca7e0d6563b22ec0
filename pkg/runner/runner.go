package runner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ethpandaops/smokeoor/pkg/executor"
	"github.com/ethpandaops/smokeoor/pkg/report"
	"github.com/ethpandaops/smokeoor/pkg/testcase"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Runner drives one full enumeration of test files and backends.
type Runner interface {
	// RunCycle executes every (test file, backend) pair once, sequentially.
	// It returns ctx.Err() if the context is cancelled between executions.
	RunCycle(ctx context.Context) (*report.CycleInfo, error)
}

// Config for the runner.
type Config struct {
	// Path is a single .json test file or a directory to search.
	Path string
	// Backends are base URLs, tested in order for each file.
	Backends []string
	// LoadOptions controls test case parsing.
	LoadOptions testcase.LoadOptions
}

// NewRunner creates a new runner instance. The backend list is copied.
func NewRunner(
	log logrus.FieldLogger,
	cfg *Config,
	exec executor.Executor,
	sinks ...report.Sink,
) Runner {
	return &runner{
		log:      log.WithField("component", "runner"),
		path:     cfg.Path,
		backends: slices.Clone(cfg.Backends),
		loadOpts: cfg.LoadOptions,
		executor: exec,
		sinks:    sinks,
		now:      time.Now,
	}
}

type runner struct {
	log      logrus.FieldLogger
	path     string
	backends []string
	loadOpts testcase.LoadOptions
	executor executor.Executor
	sinks    []report.Sink
	now      func() time.Time
}

// Ensure interface compliance.
var _ Runner = (*runner)(nil)

// RunCycle discovers test files and runs each against every backend.
//
// A file that fails to load is logged and skipped without emitting a record.
// When the configured path is a single file, the load error is returned
// instead.
func (r *runner) RunCycle(ctx context.Context) (*report.CycleInfo, error) {
	info := &report.CycleInfo{
		RunID:     uuid.NewString(),
		StartedAt: r.now(),
	}

	log := r.log.WithField("run_id", info.RunID)

	paths, err := testcase.Discover(r.path)
	if err != nil {
		return nil, fmt.Errorf("discovering tests: %w", err)
	}

	log.WithFields(logrus.Fields{
		"tests":    len(paths),
		"backends": len(r.backends),
	}).Info("Starting cycle")

	r.startCycle(ctx, info.RunID)

	cycleErr := r.runPaths(ctx, log, paths, info)

	info.FinishedAt = r.now()

	// Sinks are finalized even when the cycle was interrupted, so that
	// files written so far are closed and handed off.
	r.endCycle(context.WithoutCancel(ctx), info)

	log.WithFields(logrus.Fields{
		"total":       info.Total,
		"passed":      info.Passed,
		"failed":      info.Failed,
		"load_errors": info.LoadErrors,
		"duration":    info.FinishedAt.Sub(info.StartedAt),
	}).Info("Cycle completed")

	return info, cycleErr
}

func (r *runner) runPaths(
	ctx context.Context,
	log logrus.FieldLogger,
	paths []string,
	info *report.CycleInfo,
) error {
	single := testcase.IsSingleFile(r.path)

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}

		tc, err := testcase.Load(path, r.loadOpts)
		if err != nil {
			if single {
				return err
			}

			info.LoadErrors++

			log.WithError(err).WithField("test", path).Error("Skipping test file that failed to load")

			continue
		}

		if len(tc.IgnoredCheckTypes) > 0 {
			log.WithFields(logrus.Fields{
				"test":  path,
				"types": tc.IgnoredCheckTypes,
			}).Warn("Ignoring checks of unknown type")
		}

		for _, backend := range r.backends {
			if err := ctx.Err(); err != nil {
				return err
			}

			result := r.executor.Execute(ctx, backend, tc)

			info.Total++

			if result.Success() {
				info.Passed++
			} else {
				info.Failed++
			}

			r.deliver(context.WithoutCancel(ctx), log, result)
		}
	}

	return nil
}

// deliver hands the result to every sink. It runs detached from cancellation
// so an execution finished during an interrupt still reaches every sink.
// Sink errors never change the outcome.
func (r *runner) deliver(ctx context.Context, log logrus.FieldLogger, result *executor.Result) {
	for _, sink := range r.sinks {
		if err := sink.Write(ctx, result); err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"test":    result.Record.Test,
				"backend": result.Record.Backend,
				"sink":    fmt.Sprintf("%T", sink),
			}).Warn("Failed to deliver result")
		}
	}
}

func (r *runner) startCycle(ctx context.Context, runID string) {
	for _, sink := range r.sinks {
		cs, ok := sink.(report.CycleSink)
		if !ok {
			continue
		}

		if err := cs.StartCycle(ctx, runID); err != nil {
			r.log.WithError(err).WithField("sink", fmt.Sprintf("%T", sink)).Warn("Failed to start cycle on sink")
		}
	}
}

func (r *runner) endCycle(ctx context.Context, info *report.CycleInfo) {
	for _, sink := range r.sinks {
		cs, ok := sink.(report.CycleSink)
		if !ok {
			continue
		}

		if err := cs.EndCycle(ctx, info); err != nil {
			r.log.WithError(err).WithField("sink", fmt.Sprintf("%T", sink)).Warn("Failed to end cycle on sink")
		}
	}
}

// IsLoadError reports whether err came from loading a test case file.
func IsLoadError(err error) bool {
	return errors.Is(err, testcase.ErrInvalidTestCase)
}
