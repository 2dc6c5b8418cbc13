package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"power-quality-processor/models"
)

const latestSampleKey = "pq:latest_sample"

type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClient(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}

	return newRedisClient(rdb, ttl), nil
}

func newRedisClient(rdb *redis.Client, ttl time.Duration) *RedisClient {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisClient{client: rdb, ttl: ttl}
}

func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

func (rc *RedisClient) SaveLatest(ctx context.Context, s models.Sample) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return rc.client.Set(ctx, latestSampleKey, data, rc.ttl).Err()
}

// GetLatest returns nil, nil when nothing is cached.
func (rc *RedisClient) GetLatest(ctx context.Context) (*models.Sample, error) {
	val, err := rc.client.Get(ctx, latestSampleKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var s models.Sample
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
