package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ManuelReschke/SaaSFox/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// ErrUnavailable is returned when SetupCache has not produced a client.
var ErrUnavailable = errors.New("cache not configured")

var client *redis.Client

// SetupCache initializes the connection to the Redis cache server
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       env.GetInt("CACHE_DB", 0),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warnf("[Cache] Could not connect to redis at %s:%s: %v", host, port, err)
	} else {
		log.Infof("[Cache] Connected to redis: %s", pong)
	}
}

// SetClient replaces the shared client, e.g. in tests.
func SetClient(c *redis.Client) {
	client = c
}

// GetClient returns the Redis client instance or nil before SetupCache.
func GetClient() *redis.Client {
	return client
}

// Port returns CACHE_PORT as an int for storage drivers that need it.
func Port() int {
	return env.GetInt("CACHE_PORT", 6379)
}

// Set stores a value in the cache with the given key and expiration time
func Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if client == nil {
		return ErrUnavailable
	}
	return client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value from the cache by key
func Get(ctx context.Context, key string) (string, error) {
	if client == nil {
		return "", ErrUnavailable
	}
	return client.Get(ctx, key).Result()
}

// GetInt retrieves an integer value from the cache by key
func GetInt(ctx context.Context, key string) (int, error) {
	val, err := Get(ctx, key)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(val)
}

// SetJSON stores v encoded as JSON.
func SetJSON(ctx context.Context, key string, v interface{}, expiration time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return Set(ctx, key, b, expiration)
}

// GetJSON decodes the JSON value stored at key into v.
func GetJSON(ctx context.Context, key string, v interface{}) error {
	val, err := Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(val), v)
}

// Delete removes a value from the cache by key
func Delete(ctx context.Context, key string) error {
	if client == nil {
		return ErrUnavailable
	}
	return client.Del(ctx, key).Err()
}

// IsMiss reports whether err means the key does not exist.
func IsMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}

// Ping checks that the cache server answers.
func Ping(ctx context.Context) error {
	if client == nil {
		return ErrUnavailable
	}
	return client.Ping(ctx).Err()
}
