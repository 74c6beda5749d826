package fork

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
)

// RedisCache persists fetched values in an external key-value store shared
// between sessions and processes.
type RedisCache struct {
	client *redis.Client
}

// DefaultRedisEndpoint returns the endpoint used when none is configured:
// the FORK_REDIS_ENDPOINT environment variable, or a local instance.
func DefaultRedisEndpoint() string {
	if endpoint := os.Getenv("FORK_REDIS_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	return "redis://localhost:6379"
}

// NewRedisCache connects to the key-value store at the given endpoint. An
// empty endpoint selects DefaultRedisEndpoint().
func NewRedisCache(endpoint string) (*RedisCache, error) {
	if endpoint == "" {
		endpoint = DefaultRedisEndpoint()
	}
	opts, err := redis.ParseURL(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheError, err)
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func redisKey(chain string, block uint64, api string, key string) string {
	return fmt.Sprintf("tinyevm_%s_%d_%s_%s", chain, block, api, cacheKey(chain, block, api, key))
}

func (c *RedisCache) Store(chain string, block uint64, api string, key string, value []byte) error {
	if err := c.client.Set(context.Background(), redisKey(chain, block, api, key), value, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheError, err)
	}
	return nil
}

func (c *RedisCache) Get(chain string, block uint64, api string, key string) ([]byte, error) {
	value, err := c.client.Get(context.Background(), redisKey(chain, block, api, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("%w: %v", ErrCacheError, err)
	}
	return value, nil
}
