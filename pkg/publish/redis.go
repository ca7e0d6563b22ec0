package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/smokeoor/pkg/config"
	"github.com/ethpandaops/smokeoor/pkg/executor"
	"github.com/ethpandaops/smokeoor/pkg/report"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const pingTimeout = 5 * time.Second

// redisClient is the subset of *redis.Client used by the publisher.
type redisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	RPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	Close() error
}

// Redis publishes each record line to a Redis channel and/or list.
type Redis struct {
	log    logrus.FieldLogger
	client redisClient

	channel string
	list    string
	maxLen  int64
}

// Ensure interface compliance.
var _ report.Sink = (*Redis)(nil)

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, log logrus.FieldLogger, cfg *config.RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		DisableIdentity: true,
	})

	r := newRedis(log, client, cfg)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}

	r.log.WithFields(logrus.Fields{
		"addr":    cfg.Addr,
		"channel": cfg.Channel,
		"list":    cfg.List,
	}).Info("Connected to Redis")

	return r, nil
}

func newRedis(log logrus.FieldLogger, client redisClient, cfg *config.RedisConfig) *Redis {
	return &Redis{
		log:     log.WithField("component", "redis-publisher"),
		client:  client,
		channel: cfg.Channel,
		list:    cfg.List,
		maxLen:  cfg.MaxListLength,
	}
}

// Write publishes the record line.
func (r *Redis) Write(ctx context.Context, result *executor.Result) error {
	line, err := result.Record.Line()
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	if r.channel != "" {
		if err := r.client.Publish(ctx, r.channel, line).Err(); err != nil {
			return fmt.Errorf("publishing to %s: %w", r.channel, err)
		}
	}

	if r.list != "" {
		if err := r.client.RPush(ctx, r.list, line).Err(); err != nil {
			return fmt.Errorf("pushing to %s: %w", r.list, err)
		}

		if r.maxLen > 0 {
			if err := r.client.LTrim(ctx, r.list, -r.maxLen, -1).Err(); err != nil {
				return fmt.Errorf("trimming %s: %w", r.list, err)
			}
		}
	}

	return nil
}

// Close releases the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
