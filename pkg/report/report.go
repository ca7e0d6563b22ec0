// Package report delivers execution results to their destinations.
package report

import (
	"context"
	"time"

	"github.com/ethpandaops/smokeoor/pkg/executor"
)

// Sink receives every execution result.
type Sink interface {
	Write(ctx context.Context, result *executor.Result) error
}

// CycleInfo describes a finished cycle.
type CycleInfo struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Passed     int
	Failed     int
	LoadErrors int
}

// CycleSink is a Sink that also wants to know where cycles begin and end.
type CycleSink interface {
	Sink
	StartCycle(ctx context.Context, runID string) error
	EndCycle(ctx context.Context, info *CycleInfo) error
}
