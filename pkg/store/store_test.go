package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/smokeoor/pkg/config"
	"github.com/ethpandaops/smokeoor/pkg/executor"
	"github.com/ethpandaops/smokeoor/pkg/report"
	"github.com/ethpandaops/smokeoor/pkg/store"
)

func setupTestStore(t *testing.T) store.Store {
	t.Helper()

	cfg := &config.StoreConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: filepath.Join(t.TempDir(), "results.db")},
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	s := store.NewStore(log, cfg)
	require.NoError(t, s.Start(context.Background()))

	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func TestStore_UnsupportedDriver(t *testing.T) {
	s := store.NewStore(logrus.New(), &config.StoreConfig{Driver: "mysql"})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
	assert.NoError(t, s.Stop())
}

func TestStore_InsertAndListResults(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	rows := []store.Result{
		{RunID: "r1", Timestamp: "2024-01-01T00:00:00", Test: "a.json", Backend: "http://one", Result: "SUCCESS"},
		{RunID: "r1", Timestamp: "2024-01-01T00:00:01", Test: "a.json", Backend: "http://two", Result: "FAILURE"},
		{RunID: "r1", Timestamp: "2024-01-01T00:00:02", Test: "b.json", Backend: "http://one", Result: "SUCCESS"},
	}
	for i := range rows {
		require.NoError(t, s.InsertResult(ctx, &rows[i]))
	}

	tests := []struct {
		name   string
		filter store.ListFilter
		want   []string
	}{
		{name: "all newest first", filter: store.ListFilter{}, want: []string{"b.json", "a.json", "a.json"}},
		{name: "by test", filter: store.ListFilter{Test: "a.json"}, want: []string{"a.json", "a.json"}},
		{name: "by backend", filter: store.ListFilter{Backend: "http://two"}, want: []string{"a.json"}},
		{name: "by result", filter: store.ListFilter{Result: "SUCCESS"}, want: []string{"b.json", "a.json"}},
		{name: "limit", filter: store.ListFilter{Limit: 1}, want: []string{"b.json"}},
		{name: "no match", filter: store.ListFilter{Test: "c.json"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := s.ListResults(ctx, tt.filter)
			require.NoError(t, err)

			got := make([]string, 0, len(results))
			for _, r := range results {
				got = append(got, r.Test)
			}

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStore_LatestResults(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	rows := []store.Result{
		{RunID: "r1", Test: "a.json", Backend: "http://one", Result: "FAILURE"},
		{RunID: "r1", Test: "a.json", Backend: "http://two", Result: "SUCCESS"},
		{RunID: "r2", Test: "a.json", Backend: "http://one", Result: "SUCCESS"},
		{RunID: "r2", Test: "a.json", Backend: "http://two", Result: "FAILURE"},
	}
	for i := range rows {
		require.NoError(t, s.InsertResult(ctx, &rows[i]))
	}

	latest, err := s.LatestResults(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 2)

	assert.Equal(t, "http://one", latest[0].Backend)
	assert.Equal(t, "SUCCESS", latest[0].Result)
	assert.Equal(t, "r2", latest[0].RunID)
	assert.Equal(t, "http://two", latest[1].Backend)
	assert.Equal(t, "FAILURE", latest[1].Result)
}

func TestStore_WriteAsSink(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.StartCycle(ctx, "run-123"))

	require.NoError(t, s.Write(ctx, &executor.Result{
		Record: executor.Record{
			Timestamp: "2024-01-02T03:04:05",
			Test:      "tests/ping.json",
			Result:    executor.OutcomeFailure,
			Runtime:   0.25,
			Backend:   "http://localhost:9000",
		},
		StatusCode: 500,
		Err:        errors.New("unexpected status 500 Internal Server Error"),
	}))

	require.NoError(t, s.EndCycle(ctx, &report.CycleInfo{RunID: "run-123"}))

	results, err := s.ListResults(ctx, store.ListFilter{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "run-123", r.RunID)
	assert.Equal(t, "2024-01-02T03:04:05", r.Timestamp)
	assert.Equal(t, "tests/ping.json", r.Test)
	assert.Equal(t, "FAILURE", r.Result)
	assert.InDelta(t, 0.25, r.RuntimeSeconds, 1e-9)
	assert.Equal(t, 500, r.StatusCode)
	assert.Contains(t, r.Error, "500")
	assert.False(t, r.CreatedAt.IsZero())
}
