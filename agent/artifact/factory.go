package artifact

import (
	"context"
	"fmt"
	"strings"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendUpstash  = "upstash"
	BackendPostgres = "postgres"
)

type Config struct {
	Backend  string         `envconfig:"BACKEND" split_words:"true" default:"memory"`
	Redis    RedisConfig    `envconfig:"REDIS"`
	Upstash  UpstashConfig  `envconfig:"UPSTASH"`
	Postgres PostgresConfig `envconfig:"POSTGRES"`
}

// Open builds the configured store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		return NewRedisStoreFromConfig(cfg.Redis), nil
	case BackendUpstash:
		return NewUpstashStore(cfg.Upstash)
	case BackendPostgres:
		return NewPostgresStore(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("unsupported artifact backend=%q", cfg.Backend)
	}
}
