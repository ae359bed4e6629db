package snapshot

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const DefaultRedisNamespace = "ruletest"

// RedisStore shares snapshots between machines. Keys are
// <namespace>:<case id>/<name>.
type RedisStore struct {
	client    redis.UniversalClient
	namespace string
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client redis.UniversalClient, namespace string) *RedisStore {
	if namespace == "" {
		namespace = DefaultRedisNamespace
	}
	return &RedisStore{client: client, namespace: namespace}
}

// NewRedisClient parses a redis:// URL into a client
func NewRedisClient(url string) (redis.UniversalClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis url")
	}
	return redis.NewClient(opts), nil
}

// CheckRedisConnection pings the server with a short timeout
func CheckRedisConnection(ctx context.Context, client redis.UniversalClient) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "error connecting to redis")
	}
	return nil
}

func (s *RedisStore) redisKey(key Key) string {
	return s.namespace + ":" + key.String()
}

func (s *RedisStore) Read(ctx context.Context, key Key) ([]byte, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	content, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading snapshot %s from redis", key)
	}
	return content, nil
}

func (s *RedisStore) Write(ctx context.Context, key Key, content []byte) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.redisKey(key), content, 0).Err(); err != nil {
		return errors.Wrapf(err, "writing snapshot %s to redis", key)
	}
	return nil
}
