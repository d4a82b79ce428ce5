package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hello-drektopia/redditbot-go/internal/config"
	"github.com/hello-drektopia/redditbot-go/internal/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// ErrConflict is returned when an optimistic update keeps losing the race
var ErrConflict = errors.New("storage: concurrent update conflict")

// UpdateFunc receives the current value of a key and returns the value to write
type UpdateFunc func(current string, exists bool) (string, error)

// Storage is a string-keyed store with no expiry
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// IncrBy atomically adds delta to every key, treating missing keys as 0
	IncrBy(ctx context.Context, delta int64, keys ...string) ([]int64, error)
	// Update performs an atomic read-modify-write of one key
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Close() error
}

// Manager wraps a storage backend with logging and metrics
type Manager struct {
	storage Storage
	logger  *logrus.Logger
	metrics *middleware.Metrics
}

// NewManager creates a new storage manager
func NewManager(cfg *config.Config, logger *logrus.Logger, metrics *middleware.Metrics) (*Manager, error) {
	var storage Storage

	switch cfg.Storage.Type {
	case "redis":
		redisStorage, err := NewRedisStorage(cfg, logger)
		if err != nil {
			return nil, err
		}
		storage = redisStorage
	case "memory":
		storage = NewMemoryStorage(cfg.Storage.Memory.CleanupInterval)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}

	logger.WithField("type", cfg.Storage.Type).Info("Storage initialized")
	return NewManagerWith(storage, logger, metrics), nil
}

// NewManagerWith wraps an existing backend
func NewManagerWith(storage Storage, logger *logrus.Logger, metrics *middleware.Metrics) *Manager {
	return &Manager{
		storage: storage,
		logger:  logger,
		metrics: metrics,
	}
}

func (m *Manager) record(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
		m.logger.WithError(err).WithField("operation", op).Error("Storage operation failed")
	}
	m.metrics.RecordStorageOperation(op, status, time.Since(start))
}

func (m *Manager) Get(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	v, ok, err := m.storage.Get(ctx, key)
	m.record("get", start, err)
	return v, ok, err
}

func (m *Manager) Set(ctx context.Context, key, value string) error {
	start := time.Now()
	err := m.storage.Set(ctx, key, value)
	m.record("set", start, err)
	return err
}

func (m *Manager) IncrBy(ctx context.Context, delta int64, keys ...string) ([]int64, error) {
	start := time.Now()
	vals, err := m.storage.IncrBy(ctx, delta, keys...)
	m.record("incr", start, err)
	return vals, err
}

func (m *Manager) Update(ctx context.Context, key string, fn UpdateFunc) error {
	start := time.Now()
	err := m.storage.Update(ctx, key, fn)
	m.record("update", start, err)
	return err
}

// GetInt reads an integer counter, defaulting missing keys to 0
func (m *Manager) GetInt(ctx context.Context, key string) (int, error) {
	v, ok, err := m.Get(ctx, key)
	if err != nil || !ok || v == "" {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("counter %s holds non-integer %q: %w", key, v, err)
	}
	return n, nil
}

func (m *Manager) Close() error {
	return m.storage.Close()
}

// RedisStorage implements storage using Redis
type RedisStorage struct {
	client     *redis.Client
	logger     *logrus.Logger
	maxRetries int
}

func NewRedisStorage(cfg *config.Config, logger *logrus.Logger) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Addr,
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStorage{
		client:     client,
		logger:     logger,
		maxRetries: 5,
	}, nil
}

func (r *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	data, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return data, true, nil
}

func (r *RedisStorage) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, key, value, 0).Err()
}

func (r *RedisStorage) IncrBy(ctx context.Context, delta int64, keys ...string) ([]int64, error) {
	// one MULTI/EXEC round-trip for all counters
	cmds := make([]*redis.IntCmd, len(keys))
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.IncrBy(ctx, key, delta)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	vals := make([]int64, len(keys))
	for i, cmd := range cmds {
		vals[i] = cmd.Val()
	}
	return vals, nil
}

func (r *RedisStorage) Update(ctx context.Context, key string, fn UpdateFunc) error {
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		exists := true
		if err == redis.Nil {
			exists = false
		} else if err != nil {
			return err
		}

		next, err := fn(current, exists)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}

	for i := 0; i < r.maxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if err != redis.TxFailedErr {
			return err
		}
		r.logger.WithFields(logrus.Fields{
			"key":     key,
			"attempt": i + 1,
		}).Debug("Optimistic update lost race, retrying")
	}
	return ErrConflict
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}

// MemoryStorage implements storage using an in-memory cache.
// The mutex makes IncrBy and Update atomic.
type MemoryStorage struct {
	mu    sync.Mutex
	items *cache.Cache
}

func NewMemoryStorage(cleanupInterval time.Duration) *MemoryStorage {
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	return &MemoryStorage{
		items: cache.New(cache.NoExpiration, cleanupInterval),
	}
}

func (m *MemoryStorage) get(key string) (string, bool) {
	if val, found := m.items.Get(key); found {
		return val.(string), true
	}
	return "", false
}

func (m *MemoryStorage) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.get(key)
	return v, ok, nil
}

func (m *MemoryStorage) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items.Set(key, value, cache.NoExpiration)
	return nil
}

func (m *MemoryStorage) IncrBy(ctx context.Context, delta int64, keys ...string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	vals := make([]int64, len(keys))
	for i, key := range keys {
		if v, ok := m.get(key); ok && v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("value for key %s is not an integer: %w", key, err)
			}
			vals[i] = n
		}
	}
	for i, key := range keys {
		vals[i] += delta
		m.items.Set(key, strconv.FormatInt(vals[i], 10), cache.NoExpiration)
	}
	return vals, nil
}

func (m *MemoryStorage) Update(ctx context.Context, key string, fn UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.get(key)
	next, err := fn(current, exists)
	if err != nil {
		return err
	}
	m.items.Set(key, next, cache.NoExpiration)
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
