package database

import (
	"context"
	"fmt"
	"time"

	"github.com/newrelic/go-agent/v3/integrations/nrredis-v9"
	"github.com/redis/go-redis/v9"
)

// RedisDB wraps the redis connection shared by the event fan-out (pub/sub),
// the idle-driver set, and the location cache.
type RedisDB struct {
	*redis.Client
}

func NewRedis(addr, password string) (*RedisDB, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		PoolSize:     100,
		MinIdleConns: 10,
		DialTimeout:  connectTimeout,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	client.AddHook(nrredis.NewHook(nil))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisDB{Client: client}, nil
}

func (r *RedisDB) Close() error {
	return r.Client.Close()
}

func (r *RedisDB) Health(ctx context.Context) error {
	return r.Ping(ctx).Err()
}
