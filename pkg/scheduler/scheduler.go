package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Cycle is one full pass of work driven by a scheduler.
type Cycle func(ctx context.Context) error

// Scheduler decides how often a cycle runs.
type Scheduler interface {
	// Run executes cycles until the schedule is exhausted or ctx is
	// cancelled. Cancellation is a graceful stop and returns nil.
	Run(ctx context.Context, cycle Cycle) error
}

// Mode selects whether cycles repeat.
type Mode string

const (
	// ModeAuto repeats when the test path is a directory and runs once for
	// a single file.
	ModeAuto   Mode = "auto"
	ModeAlways Mode = "always"
	ModeNever  Mode = "never"
)

// ParseMode validates a repeat mode string. An empty string is ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeAlways, ModeNever:
		return m, nil
	default:
		return "", fmt.Errorf("unknown repeat mode %q", s)
	}
}

// Repeats reports whether the mode repeats cycles for the given path kind.
func (m Mode) Repeats(singleFile bool) bool {
	switch m {
	case ModeAlways:
		return true
	case ModeNever:
		return false
	default:
		return !singleFile
	}
}

// New returns an interval scheduler when repeat is true and a one-shot
// scheduler otherwise.
func New(log logrus.FieldLogger, repeat bool, interval time.Duration) Scheduler {
	if repeat {
		return NewInterval(log, interval)
	}

	return NewOnce(log)
}

// NewOnce creates a scheduler that runs a single cycle.
func NewOnce(log logrus.FieldLogger) Scheduler {
	return &once{log: log.WithField("component", "scheduler")}
}

type once struct {
	log logrus.FieldLogger
}

// Ensure interface compliance.
var _ Scheduler = (*once)(nil)

// Run executes the cycle and returns its error, except for cancellation.
func (s *once) Run(ctx context.Context, cycle Cycle) error {
	if err := cycle(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			s.log.Info("Cycle interrupted")

			return nil
		}

		return err
	}

	return nil
}

// NewInterval creates a scheduler that runs a cycle, waits interval after
// it ends, and repeats.
func NewInterval(log logrus.FieldLogger, interval time.Duration) Scheduler {
	return &intervalScheduler{
		log:      log.WithField("component", "scheduler"),
		interval: interval,
	}
}

type intervalScheduler struct {
	log      logrus.FieldLogger
	interval time.Duration
}

// Ensure interface compliance.
var _ Scheduler = (*intervalScheduler)(nil)

// Run loops until ctx is cancelled. Cycle errors other than cancellation are
// logged and the next cycle is still scheduled.
func (s *intervalScheduler) Run(ctx context.Context, cycle Cycle) error {
	s.log.WithField("interval", s.interval.String()).Info("Starting interval scheduler")

	for {
		if err := cycle(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				s.log.Info("Cycle interrupted")

				return nil
			}

			s.log.WithError(err).Error("Cycle failed")
		}

		if ctx.Err() != nil {
			return nil
		}

		s.log.WithField("next_cycle", time.Now().Add(s.interval).Format(time.RFC3339)).
			Info("Waiting for next cycle")

		timer := time.NewTimer(s.interval)

		select {
		case <-ctx.Done():
			timer.Stop()

			return nil
		case <-timer.C:
		}
	}
}
