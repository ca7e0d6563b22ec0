package publish

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/ethpandaops/smokeoor/pkg/config"
	"github.com/ethpandaops/smokeoor/pkg/executor"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	op    string
	key   string
	value string
	start int64
	stop  int64
}

type fakeClient struct {
	calls      []call
	publishErr error
	closed     bool
}

func (f *fakeClient) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeClient) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	f.calls = append(f.calls, call{op: "publish", key: channel, value: string(message.([]byte))})

	return redis.NewIntResult(1, f.publishErr)
}

func (f *fakeClient) RPush(_ context.Context, key string, values ...any) *redis.IntCmd {
	f.calls = append(f.calls, call{op: "rpush", key: key, value: string(values[0].([]byte))})

	return redis.NewIntResult(1, nil)
}

func (f *fakeClient) LTrim(_ context.Context, key string, start, stop int64) *redis.StatusCmd {
	f.calls = append(f.calls, call{op: "ltrim", key: key, start: start, stop: stop})

	return redis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Close() error {
	f.closed = true

	return nil
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func testResult() *executor.Result {
	return &executor.Result{
		Record: executor.Record{
			Timestamp: "2024-01-02T03:04:05",
			Test:      "tests/ping.json",
			Result:    executor.OutcomeSuccess,
			Runtime:   0.5,
			Backend:   "http://localhost:9000",
		},
	}
}

const expectedLine = `{"timestamp": "2024-01-02T03:04:05", "test": "tests/ping.json", "result": "SUCCESS", "runtime": 0.5, "backend": "http://localhost:9000"}`

func TestRedis_Write(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.RedisConfig
		want []call
	}{
		{
			name: "channel only",
			cfg:  config.RedisConfig{Channel: "smokeoor:results"},
			want: []call{{op: "publish", key: "smokeoor:results", value: expectedLine}},
		},
		{
			name: "list without trim",
			cfg:  config.RedisConfig{List: "history"},
			want: []call{{op: "rpush", key: "history", value: expectedLine}},
		},
		{
			name: "channel and trimmed list",
			cfg:  config.RedisConfig{Channel: "live", List: "history", MaxListLength: 100},
			want: []call{
				{op: "publish", key: "live", value: expectedLine},
				{op: "rpush", key: "history", value: expectedLine},
				{op: "ltrim", key: "history", start: -100, stop: -1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{}
			r := newRedis(testLogger(), client, &tt.cfg)

			require.NoError(t, r.Write(context.Background(), testResult()))
			assert.Equal(t, tt.want, client.calls)
		})
	}
}

func TestRedis_WriteError(t *testing.T) {
	client := &fakeClient{publishErr: errors.New("connection reset")}
	r := newRedis(testLogger(), client, &config.RedisConfig{Channel: "live", List: "history"})

	err := r.Write(context.Background(), testResult())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publishing to live")
	assert.Len(t, client.calls, 1, "list push is skipped after a publish failure")
}

func TestRedis_Close(t *testing.T) {
	client := &fakeClient{}
	r := newRedis(testLogger(), client, &config.RedisConfig{})

	require.NoError(t, r.Close())
	assert.True(t, client.closed)
}

func TestNewRedis_Unreachable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRedis(ctx, testLogger(), &config.RedisConfig{Addr: "127.0.0.1:1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connecting to redis")
}
