// Package storage provides the durable key/value storage the client keeps its
// session tokens, persisted cart and analytics session id in.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrUnknownBackend = errors.New("unknown storage backend")
	ErrDecrypt        = errors.New("storage file could not be decrypted")
)

// Storage is a string key/value store. Get reports found=false for a missing key.
type Storage interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendDynamo   = "dynamodb"
)

// Config selects and configures a backend.
type Config struct {
	Backend       string
	Path          string
	Secret        string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	KeyPrefix     string
	DynamoTable   string
}

// Open builds the backend named by cfg.Backend. An empty name means memory.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Storage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("storage")

	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStorage(), nil

	case BackendFile:
		s, err := OpenFileStorage(cfg.Path, cfg.Secret)
		if err != nil {
			return nil, err
		}
		logger.Info("using file storage", zap.String("path", cfg.Path), zap.Bool("encrypted", cfg.Secret != ""))
		return s, nil

	case BackendPostgres:
		db, err := ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s := NewPostgresStorage(db)
		if err := s.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info("using postgres storage")
		return s, nil

	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		logger.Info("using redis storage", zap.String("addr", cfg.RedisAddr))
		return NewRedisStorage(client, cfg.KeyPrefix), nil

	case BackendDynamo:
		s, err := OpenDynamoStorage(ctx, cfg.DynamoTable)
		if err != nil {
			return nil, err
		}
		logger.Info("using dynamodb storage", zap.String("table", cfg.DynamoTable))
		return s, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
}
