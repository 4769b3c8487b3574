// Package redis keeps settings in a Redis hash so several workers share one token.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/natserract/harmony/pkg/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultKey is the hash holding the settings.
const DefaultKey = "harmony:settings"

type Config struct {
	Address  string
	Password string
	DB       int
	PoolSize int
	Key      string
}

// SettingsStore stores settings as fields of one Redis hash
type SettingsStore struct {
	rdb    *redis.Client
	key    string
	logger *zap.Logger
}

// NewSettingsStore connects to Redis and pings it
func NewSettingsStore(ctx context.Context, cfg *Config, logger *zap.Logger) (*SettingsStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}
	if cfg.Address == "" {
		cfg.Address = "localhost:6379"
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 10
	}
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis settings store connected",
		zap.String("address", cfg.Address),
		zap.String("key", cfg.Key))

	return &SettingsStore{rdb: rdb, key: cfg.Key, logger: logger}, nil
}

func (s *SettingsStore) Close() error {
	return s.rdb.Close()
}

func (s *SettingsStore) Load(ctx context.Context) (config.Settings, error) {
	values, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return config.Settings(values), nil
}

func (s *SettingsStore) Save(ctx context.Context, settings config.Settings) error {
	if len(settings) == 0 {
		return nil
	}

	fields := make(map[string]interface{}, len(settings))
	for k, v := range settings {
		fields[k] = v
	}
	if err := s.rdb.HSet(ctx, s.key, fields).Err(); err != nil {
		s.logger.Error("Failed to save settings", zap.String("key", s.key), zap.Error(err))
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
