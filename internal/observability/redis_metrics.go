package observability

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	redisCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redis_commands_total",
		Help: "Redis commands executed, by command name and outcome.",
	}, []string{"command", "outcome"})

	redisKeyspaceHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redis_keyspace_hits_total",
		Help: "Keyspace hits observed on read commands.",
	})

	redisKeyspaceMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redis_keyspace_misses_total",
		Help: "Keyspace misses observed on read commands.",
	})

	redisCommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "redis_command_duration_seconds",
		Help:    "Redis command round-trip latency.",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
	}, []string{"command"})
)

// InstrumentRedis attaches the metrics hook to the client.
func InstrumentRedis(client *redis.Client) {
	client.AddHook(&redisMetricsHook{})
}

type redisMetricsHook struct{}

func (redisMetricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (redisMetricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		observeRedisCommand(cmd, time.Since(start))
		return err
	}
}

func (redisMetricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		elapsed := time.Since(start)
		for _, cmd := range cmds {
			observeRedisCommand(cmd, elapsed)
		}
		return err
	}
}

func observeRedisCommand(cmd redis.Cmder, elapsed time.Duration) {
	name := strings.ToLower(cmd.Name())
	redisCommandDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	if hits, misses, ok := classifyKeyspaceOutcome(cmd); ok {
		redisKeyspaceHitsTotal.Add(float64(hits))
		redisKeyspaceMissesTotal.Add(float64(misses))
	}

	outcome := "ok"
	if err := cmd.Err(); err != nil && !errors.Is(err, redis.Nil) {
		outcome = classifyRedisError(err)
	}
	redisCommandsTotal.WithLabelValues(name, outcome).Inc()
}

// classifyKeyspaceOutcome inspects read commands for hit/miss counts.
// ok is false for commands that carry no keyspace signal.
func classifyKeyspaceOutcome(cmd redis.Cmder) (hits, misses int, ok bool) {
	switch strings.ToLower(cmd.Name()) {
	case "get":
		if errors.Is(cmd.Err(), redis.Nil) {
			return 0, 1, true
		}
		if cmd.Err() != nil {
			return 0, 0, false
		}
		return 1, 0, true
	case "mget":
		slice, isSlice := cmd.(*redis.SliceCmd)
		if !isSlice || slice.Err() != nil {
			return 0, 0, false
		}
		for _, v := range slice.Val() {
			if v == nil {
				misses++
			} else {
				hits++
			}
		}
		return hits, misses, true
	}
	return 0, 0, false
}

func classifyRedisError(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return "timeout"
	case strings.Contains(msg, "connection") || strings.Contains(msg, "refused") || strings.Contains(msg, "broken pipe"):
		return "connection"
	default:
		return "other"
	}
}
