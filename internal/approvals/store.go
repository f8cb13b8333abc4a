package approvals

import (
	"context"
	"fmt"
	"strings"
	"time"

	"corporatepay-reconciliation/pkg/errors"
	"corporatepay-reconciliation/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// Backend names a Store implementation
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
	BackendRedis  Backend = "redis"
)

// StoreConfig selects and configures the approvals backend
type StoreConfig struct {
	Backend Backend `mapstructure:"backend"`

	// Path is the JSON document of the file backend
	Path string `mapstructure:"path"`

	// DSN is the sqlite database path
	DSN string `mapstructure:"dsn"`

	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	RedisKey      string        `mapstructure:"redis_key"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
}

// DefaultStoreConfig returns the in-memory configuration
func DefaultStoreConfig() *StoreConfig {
	return &StoreConfig{
		Backend:     BackendMemory,
		Path:        "approvals.json",
		DSN:         "approvals.db",
		RedisAddr:   "localhost:6379",
		RedisKey:    DefaultRedisKey,
		DialTimeout: 5 * time.Second,
	}
}

// Validate checks that the selected backend has what it needs
func (c *StoreConfig) Validate() error {
	switch Backend(strings.ToLower(string(c.Backend))) {
	case BackendMemory:
	case BackendFile:
		if c.Path == "" {
			return fmt.Errorf("file backend requires a path")
		}
	case BackendSQLite:
		if c.DSN == "" {
			return fmt.Errorf("sqlite backend requires a dsn")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis backend requires an address")
		}
		if c.RedisDB < 0 {
			return fmt.Errorf("redis db must be non-negative, got %d", c.RedisDB)
		}
	default:
		return fmt.Errorf("unknown approvals backend: %s (valid: memory, file, sqlite, redis)", c.Backend)
	}
	return nil
}

// OpenStore opens the backend named by config
func OpenStore(ctx context.Context, config *StoreConfig) (Store, error) {
	if config == nil {
		config = DefaultStoreConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "approvals.backend", config.Backend, err)
	}

	logger.GetGlobalLogger().WithComponent("approvals").
		WithField("backend", config.Backend).
		Debug("Opening approvals store")

	var (
		store Store
		err   error
	)
	switch Backend(strings.ToLower(string(config.Backend))) {
	case BackendFile:
		store, err = openFile(config.Path)
	case BackendSQLite:
		store, err = openSQLite(ctx, config.DSN)
	case BackendRedis:
		timeout := config.DialTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		dialCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		store, err = openRedis(dialCtx, &redis.Options{
			Addr:        config.RedisAddr,
			Password:    config.RedisPassword,
			DB:          config.RedisDB,
			DialTimeout: timeout,
		}, config.RedisKey)
	default:
		store = NewMemoryStore()
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// open helpers return a nil Store on error

func openFile(path string) (Store, error) {
	s, err := NewFileStore(path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openSQLite(ctx context.Context, dsn string) (Store, error) {
	s, err := NewSQLiteStore(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openRedis(ctx context.Context, opts *redis.Options, key string) (Store, error) {
	s, err := DialRedis(ctx, opts, key)
	if err != nil {
		return nil, err
	}
	return s, nil
}
