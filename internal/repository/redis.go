package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/lvdashuaibi/livevote/config"
	"github.com/lvdashuaibi/livevote/internal/model"
)

const tallyKey = "vote:tally:current"

// RedisRepository caches the derived tally so the public results
// endpoint does not hit MySQL on every poll. The cache is best-effort:
// every entry is overwritten from the ledger after a committed vote,
// and a TTL bounds staleness if an overwrite is ever lost.
type RedisRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRepository(cfg config.RedisConfig) (*RedisRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisRepository{client: client, ttl: cfg.CacheTTL}, nil
}

// GetTally returns the cached tally and whether the cache was hit.
func (r *RedisRepository) GetTally(ctx context.Context) (model.Tally, bool, error) {
	data, err := r.client.Get(ctx, tallyKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get tally cache: %w", err)
	}

	var tally model.Tally
	if err := json.Unmarshal([]byte(data), &tally); err != nil {
		return nil, false, fmt.Errorf("decode tally cache: %w", err)
	}

	return tally, true, nil
}

// SetTally overwrites the cached tally.
func (r *RedisRepository) SetTally(ctx context.Context, tally model.Tally) error {
	data, err := json.Marshal(tally)
	if err != nil {
		return fmt.Errorf("encode tally: %w", err)
	}

	if err := r.client.Set(ctx, tallyKey, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("set tally cache: %w", err)
	}

	return nil
}

// Close closes the redis client.
func (r *RedisRepository) Close() error {
	return r.client.Close()
}
