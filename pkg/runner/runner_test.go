package runner

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethpandaops/smokeoor/pkg/executor"
	"github.com/ethpandaops/smokeoor/pkg/report"
	"github.com/ethpandaops/smokeoor/pkg/testcase"
	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func writeTest(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

type collectingSink struct {
	results []*executor.Result
	ctxErrs []error
	started []string
	ended   []*report.CycleInfo
}

func (s *collectingSink) Write(ctx context.Context, r *executor.Result) error {
	s.results = append(s.results, r)
	s.ctxErrs = append(s.ctxErrs, ctx.Err())

	return nil
}

func (s *collectingSink) StartCycle(_ context.Context, runID string) error {
	s.started = append(s.started, runID)

	return nil
}

func (s *collectingSink) EndCycle(_ context.Context, info *report.CycleInfo) error {
	s.ended = append(s.ended, info)

	return nil
}

func TestRunCycle_EveryFileAgainstEveryBackend(t *testing.T) {
	handler := httphelpers.HandlerWithResponse(200, nil, []byte("ok"))

	httphelpers.WithServer(handler, func(server *httptest.Server) {
		dir := t.TempDir()
		writeTest(t, dir, "a.json", `{"endpoint":"/a","data":{},"checks":[{"type":"contains","value":"ok"}]}`)
		writeTest(t, dir, "sub/b.json", `{"endpoint":"/b","data":[],"checks":[{"type":"contains","value":"nope"}]}`)
		writeTest(t, dir, "sub/notes.txt", `ignored`)

		backends := []string{server.URL + "/one", server.URL + "/two", server.URL + "/three"}

		var out, diag bytes.Buffer

		sink := &collectingSink{}
		r := NewRunner(testLogger(), &Config{Path: dir, Backends: backends},
			executor.NewExecutor(testLogger(), &executor.Config{}),
			report.NewConsole(&out, &diag), sink,
		)

		info, err := r.RunCycle(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 6, info.Total)
		assert.Equal(t, 3, info.Passed)
		assert.Equal(t, 3, info.Failed)
		assert.Zero(t, info.LoadErrors)
		assert.NotEmpty(t, info.RunID)

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		assert.Len(t, lines, 6)

		require.Len(t, sink.results, 6)

		// Files in sorted order, backends in configured order.
		for i, res := range sink.results {
			assert.Equal(t, backends[i%3], res.Record.Backend)
		}

		assert.Equal(t, filepath.Join(dir, "a.json"), sink.results[0].Record.Test)
		assert.Equal(t, filepath.Join(dir, "sub", "b.json"), sink.results[3].Record.Test)

		assert.Equal(t, []string{info.RunID}, sink.started)
		require.Len(t, sink.ended, 1)
		assert.Same(t, info, sink.ended[0])

		assert.Equal(t, 3, strings.Count(diag.String(), "curl repro command:"))
	})
}

func TestRunCycle_MalformedFileSkippedInDirectory(t *testing.T) {
	handler := httphelpers.HandlerWithStatus(200)

	httphelpers.WithServer(handler, func(server *httptest.Server) {
		dir := t.TempDir()
		writeTest(t, dir, "a.json", `{"data":{}}`)
		writeTest(t, dir, "b.json", `{"endpoint":"/b","data":{}}`)

		sink := &collectingSink{}
		r := NewRunner(testLogger(), &Config{Path: dir, Backends: []string{server.URL}},
			executor.NewExecutor(testLogger(), &executor.Config{}), sink)

		info, err := r.RunCycle(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, info.LoadErrors)
		assert.Equal(t, 1, info.Total)
		require.Len(t, sink.results, 1)
		assert.Equal(t, filepath.Join(dir, "b.json"), sink.results[0].Record.Test)
	})
}

func TestRunCycle_MalformedSingleFileReturnsError(t *testing.T) {
	path := writeTest(t, t.TempDir(), "bad.json", `not json`)

	sink := &collectingSink{}
	r := NewRunner(testLogger(), &Config{Path: path, Backends: []string{"http://127.0.0.1:1"}},
		executor.NewExecutor(testLogger(), &executor.Config{}), sink)

	_, err := r.RunCycle(context.Background())
	require.Error(t, err)
	assert.True(t, IsLoadError(err))
	assert.Empty(t, sink.results)
	assert.Len(t, sink.ended, 1, "sinks are finalized even when the cycle fails")
}

func TestRunCycle_StrictChecks(t *testing.T) {
	dir := t.TempDir()
	writeTest(t, dir, "a.json", `{"endpoint":"/a","data":{},"checks":[{"type":"regex","value":"x"}]}`)

	sink := &collectingSink{}
	r := NewRunner(testLogger(), &Config{
		Path:        dir,
		Backends:    []string{"http://127.0.0.1:1"},
		LoadOptions: testcase.LoadOptions{StrictChecks: true},
	}, executor.NewExecutor(testLogger(), &executor.Config{}), sink)

	info, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, info.LoadErrors)
	assert.Empty(t, sink.results)
}

func TestRunCycle_MissingPath(t *testing.T) {
	r := NewRunner(testLogger(), &Config{Path: filepath.Join(t.TempDir(), "missing"), Backends: []string{"x"}},
		executor.NewExecutor(testLogger(), &executor.Config{}))

	_, err := r.RunCycle(context.Background())
	assert.ErrorContains(t, err, "discovering tests")
}

type cancellingExecutor struct {
	cancel context.CancelFunc
	calls  int
}

func (e *cancellingExecutor) Execute(_ context.Context, backend string, tc *testcase.TestCase) *executor.Result {
	e.calls++
	e.cancel()

	return &executor.Result{Record: executor.Record{Test: tc.Path, Backend: backend, Result: executor.OutcomeSuccess}}
}

func TestRunCycle_CancelStopsBeforeNextExecution(t *testing.T) {
	dir := t.TempDir()
	writeTest(t, dir, "a.json", `{"endpoint":"/a","data":{}}`)
	writeTest(t, dir, "b.json", `{"endpoint":"/b","data":{}}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exec := &cancellingExecutor{cancel: cancel}
	sink := &collectingSink{}

	r := NewRunner(testLogger(), &Config{Path: dir, Backends: []string{"x", "y"}}, exec, sink)

	info, err := r.RunCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, exec.calls)
	assert.Equal(t, 1, info.Total)
	assert.Len(t, sink.results, 1, "the in-flight execution still produces its record")
	assert.Equal(t, []error{nil}, sink.ctxErrs, "sinks receive a live context after the interrupt")
	assert.Len(t, sink.ended, 1)
}

func TestNewRunner_CopiesBackends(t *testing.T) {
	backends := []string{"a", "b"}
	r := NewRunner(testLogger(), &Config{Backends: backends}, nil).(*runner)

	backends[0] = "changed"
	assert.Equal(t, []string{"a", "b"}, r.backends)
}
