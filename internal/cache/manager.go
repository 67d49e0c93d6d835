// Package cache provides internal cache management.
// This package is internal and should not be imported by external projects.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/crmflow/internal/metrics"
)

var (
	// ErrCacheMiss 键不存在或已过期
	ErrCacheMiss = errors.New("cache miss")

	// ErrClosed Close 之后的所有操作
	ErrClosed = errors.New("cache manager is closed")
)

// IsCacheMiss 判断是否为未命中
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

const metricsBackend = "redis"

// Config Redis 连接与键空间设置
type Config struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`

	// 0 表示不过期
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`
	KeyPrefix  string        `yaml:"key_prefix" json:"key_prefix"`

	MaxRetries   int `yaml:"max_retries" json:"max_retries"`
	PoolSize     int `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns"`

	// 0 关闭后台探活
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultConfig 远程 OpenAPI 文档缓存一天
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		DefaultTTL:          24 * time.Hour,
		KeyPrefix:           "crmflow:openapi:",
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// =============================================================================
// 💾 Manager
// =============================================================================

// Manager 在统一的键前缀下存取字节值，命中与未命中计入 metrics.Collector
type Manager struct {
	client  *redis.Client
	config  Config
	metrics *metrics.Collector
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
}

// NewManager 连接 Redis，5 秒内 Ping 不通即失败。collector 可以为 nil。
func NewManager(config Config, collector *metrics.Collector, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", config.Addr, err)
	}

	m := &Manager{
		client:  client,
		config:  config,
		metrics: collector,
		logger:  logger.With(zap.String("component", "cache")),
		stop:    make(chan struct{}),
	}
	if config.HealthCheckInterval > 0 {
		go m.probe(config.HealthCheckInterval)
	}
	m.logger.Info("redis cache connected", zap.String("addr", config.Addr), zap.String("prefix", config.KeyPrefix))
	return m, nil
}

// use 在读锁内把客户端交给 fn；已关闭时返回 ErrClosed
func (m *Manager) use(fn func(*redis.Client) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return fn(m.client)
}

func (m *Manager) key(k string) string {
	return m.config.KeyPrefix + k
}

// Get 读取 key；不存在时返回 ErrCacheMiss
func (m *Manager) Get(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	err := m.use(func(c *redis.Client) error {
		b, err := c.Get(ctx, m.key(key)).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			m.metrics.RecordCacheMiss(metricsBackend)
			return ErrCacheMiss
		case err != nil:
			return fmt.Errorf("redis get %s: %w", key, err)
		}
		m.metrics.RecordCacheHit(metricsBackend)
		val = b
		return nil
	})
	return val, err
}

// Set 写入 key。ttl 为 0 时使用 DefaultTTL。
func (m *Manager) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}
	return m.use(func(c *redis.Client) error {
		if err := c.Set(ctx, m.key(key), value, ttl).Err(); err != nil {
			return fmt.Errorf("redis set %s: %w", key, err)
		}
		return nil
	})
}

// Delete 删除若干键，不存在的键忽略
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	return m.use(func(c *redis.Client) error {
		if len(keys) == 0 {
			return nil
		}
		full := make([]string, len(keys))
		for i, k := range keys {
			full[i] = m.key(k)
		}
		if err := c.Del(ctx, full...).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
		return nil
	})
}

func (m *Manager) Ping(ctx context.Context) error {
	return m.use(func(c *redis.Client) error {
		return c.Ping(ctx).Err()
	})
}

// Close 停止探活并断开连接。重复调用返回 nil。
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.stop)
	m.logger.Info("redis cache closed")
	return m.client.Close()
}

func (m *Manager) probe(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.Ping(ctx); err != nil && !errors.Is(err, ErrClosed) {
			m.logger.Warn("redis ping failed", zap.Error(err))
		}
		cancel()
	}
}
