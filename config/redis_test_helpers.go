package config

import (
	"sync"

	"github.com/redis/go-redis/v9"
)

// SetRedisClientForTest sets the Redis client for testing purposes.
func SetRedisClientForTest(client *redis.Client) {
	redisClient = client
}

// ResetRedisClientForTest resets the Redis client singleton for testing purposes.
func ResetRedisClientForTest() {
	redisClient = nil
	redisOnce = sync.Once{}
}
