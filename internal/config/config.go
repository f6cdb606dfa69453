// Package config reads the storefront client's settings from the environment,
// with an optional .env file for local runs.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/example/ec-storefront-client/internal/storage"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Analytics sink names.
const (
	SinkHTTP  = "http"
	SinkKafka = "kafka"
	SinkNone  = "none"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	APIBaseURL  string        `env:"API_BASE_URL,default=http://localhost:8000"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT,default=30s"`
	UserAgent   string        `env:"USER_AGENT,default=storefront-cli"`

	LogLevel       string `env:"LOG_LEVEL,default=info"`
	LogDevelopment bool   `env:"LOG_DEVELOPMENT,default=false"`

	StorageBackend string `env:"STORAGE_BACKEND,default=file"`
	StoragePath    string `env:"STORAGE_PATH,default=.storefront.json"`
	StorageSecret  string `env:"STORAGE_SECRET"`
	DatabaseURL    string `env:"DATABASE_URL"`
	RedisAddr      string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	KeyPrefix      string `env:"KEY_PREFIX,default=storefront:"`
	DynamoTable    string `env:"DYNAMO_TABLE"`

	AnalyticsSink string `env:"ANALYTICS_SINK,default=http"`
	KafkaBrokers  string `env:"KAFKA_BROKERS,default=localhost:9092"`
	KafkaTopic    string `env:"KAFKA_TOPIC,default=clickstream"`

	CartStaleGuard bool `env:"CART_STALE_GUARD,default=false"`
}

// Load reads envFiles (a missing file is not an error) and then the process
// environment. Variables already set win over the files.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: API_BASE_URL %q is not an absolute URL", ErrInvalidConfig, c.APIBaseURL)
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("%w: HTTP_TIMEOUT must not be negative", ErrInvalidConfig)
	}

	switch c.StorageBackend {
	case storage.BackendMemory:
	case storage.BackendFile:
		if c.StoragePath == "" {
			return fmt.Errorf("%w: STORAGE_PATH is required for file storage", ErrInvalidConfig)
		}
	case storage.BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: DATABASE_URL is required for postgres storage", ErrInvalidConfig)
		}
	case storage.BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: REDIS_ADDR is required for redis storage", ErrInvalidConfig)
		}
	case storage.BackendDynamo:
		if c.DynamoTable == "" {
			return fmt.Errorf("%w: DYNAMO_TABLE is required for dynamodb storage", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown STORAGE_BACKEND %q", ErrInvalidConfig, c.StorageBackend)
	}

	switch c.AnalyticsSink {
	case SinkHTTP, SinkNone:
	case SinkKafka:
		if len(c.Brokers()) == 0 || c.KafkaTopic == "" {
			return fmt.Errorf("%w: KAFKA_BROKERS and KAFKA_TOPIC are required for the kafka sink", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown ANALYTICS_SINK %q", ErrInvalidConfig, c.AnalyticsSink)
	}
	return nil
}

// Brokers splits KAFKA_BROKERS on commas.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func (c *Config) Storage() storage.Config {
	return storage.Config{
		Backend:       c.StorageBackend,
		Path:          c.StoragePath,
		Secret:        c.StorageSecret,
		DatabaseURL:   c.DatabaseURL,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		KeyPrefix:     c.KeyPrefix,
		DynamoTable:   c.DynamoTable,
	}
}
