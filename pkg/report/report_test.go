package report

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethpandaops/smokeoor/pkg/executor"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResult(outcome executor.Outcome, body string) *executor.Result {
	r := &executor.Result{
		Record: executor.Record{
			Timestamp: "2024-01-02T03:04:05",
			Test:      "tests/ping.json",
			Result:    outcome,
			Runtime:   0.5,
			Backend:   "http://localhost:9000",
		},
		URL:     "http://localhost:9000/ping",
		Payload: []byte(`{"x": 1}`),
	}

	if body != "" {
		r.Body = []byte(body)
	}

	if outcome == executor.OutcomeFailure {
		r.Err = errors.New("boom")
	}

	return r
}

const expectedLine = `{"timestamp": "2024-01-02T03:04:05", "test": "tests/ping.json", "result": "%s", "runtime": 0.5, "backend": "http://localhost:9000"}` + "\n"

func TestConsole_Success(t *testing.T) {
	var out, diag bytes.Buffer

	c := NewConsole(&out, &diag)
	require.NoError(t, c.Write(context.Background(), newResult(executor.OutcomeSuccess, "ok")))

	assert.Equal(t, strings.Replace(expectedLine, "%s", "SUCCESS", 1), out.String())
	assert.Empty(t, diag.String())
}

func TestConsole_Failure(t *testing.T) {
	var out, diag bytes.Buffer

	c := NewConsole(&out, &diag)
	require.NoError(t, c.Write(context.Background(), newResult(executor.OutcomeFailure, "fail")))

	assert.Equal(t, strings.Replace(expectedLine, "%s", "FAILURE", 1), out.String())

	stderr := diag.String()
	assert.Contains(t, stderr, "Failed. Response body:")
	assert.Contains(t, stderr, "\nfail\n")
	assert.Contains(t, stderr, "curl repro command:")
	assert.Contains(t, stderr,
		`curl -H 'Content-Type: text/plain' http://localhost:9000/ping --data-binary '{"x": 1}'`)
	assert.Less(t, strings.Index(stderr, "fail"), strings.Index(stderr, "curl -H"))
}

func TestConsole_FailureWithoutBody(t *testing.T) {
	var out, diag bytes.Buffer

	c := NewConsole(&out, &diag)
	require.NoError(t, c.Write(context.Background(), newResult(executor.OutcomeFailure, "")))

	stderr := diag.String()
	assert.Contains(t, stderr, "curl -H 'Content-Type: text/plain' http://localhost:9000/ping")
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
}

type recordingHandler struct {
	paths []string
	infos []*CycleInfo
}

func (h *recordingHandler) HandleCycleFile(_ context.Context, path string, info *CycleInfo) error {
	h.paths = append(h.paths, path)
	h.infos = append(h.infos, info)

	return nil
}

func TestFile_CycleLifecycle(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	dir := filepath.Join(t.TempDir(), "results")
	handler := &recordingHandler{}

	sink := NewFile(log, dir, nil, handler)
	sink.now = func() time.Time { return time.Unix(1700000000, 0) }

	ctx := context.Background()

	assert.Error(t, sink.Write(ctx, newResult(executor.OutcomeSuccess, "")), "write outside a cycle")

	require.NoError(t, sink.StartCycle(ctx, "0123456789abcdef"))
	require.NoError(t, sink.Write(ctx, newResult(executor.OutcomeSuccess, "")))
	require.NoError(t, sink.Write(ctx, newResult(executor.OutcomeFailure, "x")))

	info := &CycleInfo{RunID: "0123456789abcdef", Total: 2, Passed: 1, Failed: 1}
	require.NoError(t, sink.EndCycle(ctx, info))

	expectedPath := filepath.Join(dir, "1700000000_01234567.jsonl")
	require.Equal(t, []string{expectedPath}, handler.paths)
	assert.Same(t, info, handler.infos[0])

	data, err := os.ReadFile(expectedPath)
	require.NoError(t, err)
	assert.Equal(t,
		strings.Replace(expectedLine, "%s", "SUCCESS", 1)+strings.Replace(expectedLine, "%s", "FAILURE", 1),
		string(data),
	)

	// Ending again without a new cycle is a no-op.
	require.NoError(t, sink.EndCycle(ctx, info))
	assert.Len(t, handler.paths, 1)
}
