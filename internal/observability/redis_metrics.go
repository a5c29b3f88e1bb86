package observability

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RedisMetricsHook counts commands by name and outcome and tracks keyspace
// hits for read commands.
type RedisMetricsHook struct{}

func InstrumentRedis(client *redis.Client) {
	if client == nil {
		return
	}
	client.AddHook(RedisMetricsHook{})
}

func (RedisMetricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (RedisMetricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		recordRedisCommand(ctx, cmd, err)
		return err
	}
}

func (RedisMetricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		for _, cmd := range cmds {
			recordRedisCommand(ctx, cmd, cmd.Err())
		}
		return err
	}
}

func recordRedisCommand(ctx context.Context, cmd redis.Cmder, err error) {
	m := currentMetrics()
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil && !errors.Is(err, redis.Nil) {
		outcome = classifyRedisError(err)
	}
	m.redisCommandCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", strings.ToLower(cmd.Name())),
		attribute.String("outcome", outcome),
	))
	hits, misses, ok := classifyKeyspaceOutcome(cmd)
	if !ok {
		return
	}
	if hits > 0 {
		m.redisKeyspaceCounter.Add(ctx, hits, metric.WithAttributes(attribute.String("result", "hit")))
	}
	if misses > 0 {
		m.redisKeyspaceCounter.Add(ctx, misses, metric.WithAttributes(attribute.String("result", "miss")))
	}
}

func classifyKeyspaceOutcome(cmd redis.Cmder) (hits, misses int64, ok bool) {
	switch c := cmd.(type) {
	case *redis.StringCmd:
		if errors.Is(c.Err(), redis.Nil) {
			return 0, 1, true
		}
		if c.Err() != nil {
			return 0, 0, false
		}
		return 1, 0, true
	case *redis.SliceCmd:
		if c.Err() != nil {
			return 0, 0, false
		}
		for _, v := range c.Val() {
			if v == nil {
				misses++
			} else {
				hits++
			}
		}
		return hits, misses, true
	default:
		return 0, 0, false
	}
}

func classifyRedisError(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "connection") || strings.Contains(msg, "refused") || strings.Contains(msg, "closed"):
		return "connection"
	default:
		return "other"
	}
}
