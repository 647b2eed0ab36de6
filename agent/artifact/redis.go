package artifact

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string        `envconfig:"ADDR" split_words:"true" default:"localhost:6379"`
	Password string        `envconfig:"PASSWORD" split_words:"true"`
	DB       int           `envconfig:"DB" split_words:"true" default:"0"`
	TTL      time.Duration `envconfig:"TTL" split_words:"true" default:"0s"`
}

// RedisStore persists artifacts as JSON strings in Redis.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		ttl:       ttl,
	}
}

func NewRedisStoreFromConfig(cfg RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.Addr),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisStore(client, cfg.TTL)
}

func (s *RedisStore) Put(ctx context.Context, a *Artifact) error {
	if err := validate(a); err != nil {
		return err
	}
	payload, err := encode(a)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.keyPrefix+a.Key, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set artifact=%s: %w", a.Key, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Artifact, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrInvalidKey
	}
	raw, err := s.client.Get(ctx, s.keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get artifact=%s: %w", key, err)
	}
	return decode(raw)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
