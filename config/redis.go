package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/ariebrainware/educe-api/logger"
	"github.com/redis/go-redis/v9"
)

var (
	redisClient *redis.Client
	redisOnce   sync.Once
)

// ConnectRedis initializes a singleton Redis client based on environment variables.
// Redis is optional: with REDIS_ENABLED unset or in the test environment it
// returns a nil client and no error, and callers fall back to in-process stores.
func ConnectRedis() (*redis.Client, error) {
	var err error
	redisOnce.Do(func() {
		if os.Getenv("APPENV") == "test" || os.Getenv("REDIS_ENABLED") != "true" {
			return
		}

		addr := os.Getenv("REDIS_ADDR")
		if addr == "" {
			addr = "localhost:6379"
		}
		dbNum := 0
		if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
			if v, e := strconv.Atoi(dbStr); e == nil {
				dbNum = v
			}
		}

		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       dbNum,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err = rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			err = fmt.Errorf("redis ping failed: %w", err)
			return
		}

		redisClient = rdb
		logger.Log.WithField("addr", addr).Info("Connected to Redis")
	})
	return redisClient, err
}

// GetRedisClient returns the initialized Redis client (nil when Redis is disabled or unreachable).
func GetRedisClient() *redis.Client {
	return redisClient
}
