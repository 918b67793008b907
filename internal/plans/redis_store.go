package plans

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const redisKeyPrefix = "plancache:patient:"

// RedisStore keeps plan resolutions in Redis so several facade replicas
// serving the same clinic share one cache. Redis owns expiry via key
// TTLs.
type RedisStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

// NewRedisStore wraps a Redis client as a plan cache store.
func NewRedisStore(client *redis.Client, tracer trace.Tracer) *RedisStore {
	if client == nil {
		panic("plans: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("physiodesk.internal.plans.redis")
	}
	return &RedisStore{
		redis:  client,
		tracer: tracer,
	}
}

func redisKey(patientID string) string {
	return redisKeyPrefix + patientID
}

func (s *RedisStore) Get(ctx context.Context, patientID string) (string, bool, error) {
	ctx, span := s.tracer.Start(ctx, "plans.cache_get")
	defer span.End()

	planID, err := s.redis.Get(ctx, redisKey(patientID)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		span.RecordError(err)
		return "", false, fmt.Errorf("plans: redis get: %w", err)
	}
	return planID, true, nil
}

func (s *RedisStore) Set(ctx context.Context, patientID, planID string, ttl time.Duration) error {
	ctx, span := s.tracer.Start(ctx, "plans.cache_set")
	defer span.End()

	if err := s.redis.Set(ctx, redisKey(patientID), planID, ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("plans: redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, patientID string) error {
	ctx, span := s.tracer.Start(ctx, "plans.cache_delete")
	defer span.End()

	if err := s.redis.Del(ctx, redisKey(patientID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("plans: redis delete: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "plans.cache_clear")
	defer span.End()

	iter := s.redis.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.redis.Del(ctx, iter.Val()).Err(); err != nil {
			span.RecordError(err)
			return fmt.Errorf("plans: redis clear: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("plans: redis scan: %w", err)
	}
	return nil
}
