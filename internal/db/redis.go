package db

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig describes the registry connection. Zero values fall back to
// DefaultRedisConfig.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig targets a local Redis
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func (c RedisConfig) withDefaults() RedisConfig {
	def := DefaultRedisConfig()
	if c.Host == "" {
		c.Host = def.Host
	}
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.PoolSize == 0 {
		c.PoolSize = def.PoolSize
	}
	if c.MinIdleConns == 0 {
		c.MinIdleConns = def.MinIdleConns
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	return c
}

func (c RedisConfig) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// RedisClient owns the pooled connection shared by the repositories
type RedisClient struct {
	client *redis.Client
	config RedisConfig
}

// NewRedisClient creates a pooled client. No connection is made until the
// first command. Client-side retries are disabled so a failed command
// surfaces to the caller.
func NewRedisClient(config RedisConfig) *RedisClient {
	config = config.withDefaults()
	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr:         config.addr(),
			Password:     config.Password,
			DB:           config.DB,
			PoolSize:     config.PoolSize,
			MinIdleConns: config.MinIdleConns,
			MaxRetries:   -1,
			DialTimeout:  config.DialTimeout,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
		}),
		config: config,
	}
}

func (r *RedisClient) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s: %w", r.Addr(), err)
	}
	return nil
}

// Addr is the host:port this client talks to
func (r *RedisClient) Addr() string {
	return r.config.addr()
}

func (r *RedisClient) PoolStats() *redis.PoolStats {
	return r.client.PoolStats()
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

// GetClient returns the underlying client for the repositories
func (r *RedisClient) GetClient() *redis.Client {
	return r.client
}
