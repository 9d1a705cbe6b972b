package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when a key is absent. Callers treat a miss as a
// signal to recompute, never as a failure.
var ErrCacheMiss = errors.New("cache miss")

type CacheService interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error

	// AcquireLock takes a short-lived exclusive lock (SETNX). Used to keep at
	// most one active pipeline job per exam.
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

type redisCache struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisCache(client *redis.Client, logger *slog.Logger) CacheService {
	return &redisCache{
		client: client,
		logger: logger,
	}
}

func (r *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling cache value for %q: %w", key, err)
	}
	return r.client.Set(ctx, key, payload, ttl).Err()
}

func (r *redisCache) Get(ctx context.Context, key string, dest interface{}) error {
	payload, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, dest)
}

func (r *redisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *redisCache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, time.Now().UnixNano(), ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (r *redisCache) ReleaseLock(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// ===== KEY BUILDERS =====

func GlobalStatsKey(examID uint) string {
	return fmt.Sprintf("exam:%d:global_stats", examID)
}

func DistributionKey(examID uint) string {
	return fmt.Sprintf("exam:%d:distribution", examID)
}

func ExamJobLockKey(examID uint) string {
	return fmt.Sprintf("exam:%d:job_lock", examID)
}

// AllExamsJobLockKey guards whole-catalogue runs.
const AllExamsJobLockKey = "exam:all:job_lock"
