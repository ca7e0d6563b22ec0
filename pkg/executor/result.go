package executor

import (
	"time"

	"github.com/ethpandaops/smokeoor/pkg/canonjson"
)

// Outcome is the aggregate result of a single test execution.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
)

// TimestampLayout formats record timestamps: UTC, second precision.
const TimestampLayout = "2006-01-02T15:04:05"

// Record is the structured line emitted for every execution. Field order is
// the order of the emitted keys.
type Record struct {
	Timestamp string          `json:"timestamp"`
	Test      string          `json:"test"`
	Result    Outcome         `json:"result"`
	Runtime   canonjson.Float `json:"runtime"`
	Backend   string          `json:"backend"`
}

// Line returns the record as a single canonical JSON line, without newline.
func (r *Record) Line() ([]byte, error) {
	return canonjson.Marshal(r)
}

// Result is everything known about one execution of a test case against one
// backend.
type Result struct {
	Record Record

	URL        string
	Payload    []byte
	StatusCode int    // Zero when no response was received.
	Body       []byte // Nil when no response was received.
	Err        error  // Transport, status or check failure; nil on success.
	Duration   time.Duration
	StartedAt  time.Time
}

// Success reports whether the execution passed.
func (r *Result) Success() bool {
	return r.Record.Result == OutcomeSuccess
}

// ReproCommand returns a curl command line that repeats the request.
func (r *Result) ReproCommand() string {
	return CurlCommand(r.URL, r.Payload)
}
