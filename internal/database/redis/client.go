// Package redis caches the miner's live state: the current target, running
// submission counters and recent per-thread hashrates.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a cached entry is absent
var ErrNotFound = errors.New("redis: not found")

// Client wraps Redis operations for the miner
type Client struct {
	rdb    *redis.Client
	prefix string
}

// Config holds Redis connection configuration
type Config struct {
	// URL is a redis:// connection URL
	URL string
	// KeyPrefix namespaces every key, usually by miner address and id
	KeyPrefix    string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewClient creates a new Redis client and pings it
func NewClient(cfg *Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "noso2m"
	}
	return &Client{rdb: rdb, prefix: prefix}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks Redis connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) key(parts ...string) string {
	k := c.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// Target

// SetCurrentTarget stores the target workers are mining on
func (c *Client) SetCurrentTarget(ctx context.Context, target any, expiration time.Duration) error {
	jsonData, err := json.Marshal(target)
	if err != nil {
		return fmt.Errorf("failed to marshal target: %w", err)
	}

	if err := c.rdb.Set(ctx, c.key("target"), jsonData, expiration).Err(); err != nil {
		return fmt.Errorf("failed to set current target: %w", err)
	}

	return nil
}

// GetCurrentTarget retrieves the target stored by SetCurrentTarget
func (c *Client) GetCurrentTarget(ctx context.Context, dest any) error {
	jsonData, err := c.rdb.Get(ctx, c.key("target")).Result()
	if err != nil {
		if err == redis.Nil {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get current target: %w", err)
	}

	if err := json.Unmarshal([]byte(jsonData), dest); err != nil {
		return fmt.Errorf("failed to unmarshal target: %w", err)
	}

	return nil
}

// Counters

// IncrementCounter increments a named counter with expiration
func (c *Client) IncrementCounter(ctx context.Context, name string, expiration time.Duration) (int64, error) {
	key := c.key("counter", name)
	pipe := c.rdb.Pipeline()
	incrCmd := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiration)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}

	return incrCmd.Val(), nil
}

// GetCounter retrieves a counter value
func (c *Client) GetCounter(ctx context.Context, name string) (int64, error) {
	val, err := c.rdb.Get(ctx, c.key("counter", name)).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get counter: %w", err)
	}
	return val, nil
}

// Hashrate

// AddHashrate records a thread's hashrate sample, keeping a sliding window
func (c *Client) AddHashrate(ctx context.Context, threadID uint32, hashrate float64, at time.Time, window time.Duration) error {
	key := c.key("hashrate", strconv.FormatUint(uint64(threadID), 10))
	timestamp := at.Unix()

	member := redis.Z{
		Score:  float64(timestamp),
		Member: strconv.FormatInt(timestamp, 10) + ":" + strconv.FormatFloat(hashrate, 'f', 2, 64),
	}

	pipe := c.rdb.Pipeline()
	pipe.ZAdd(ctx, key, member)
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(timestamp-int64(window.Seconds()), 10))
	pipe.Expire(ctx, key, window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add hashrate: %w", err)
	}

	return nil
}

// GetAverageHashrate averages a thread's samples over the window
func (c *Client) GetAverageHashrate(ctx context.Context, threadID uint32, window time.Duration) (float64, error) {
	key := c.key("hashrate", strconv.FormatUint(uint64(threadID), 10))
	minScore := time.Now().Add(-window).Unix()

	values, err := c.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: strconv.FormatInt(minScore, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get hashrate values: %w", err)
	}

	return averageSamples(values), nil
}

// averageSamples averages "timestamp:rate" members, skipping malformed ones
func averageSamples(values []string) float64 {
	var total float64
	var n int
	for _, val := range values {
		_, rate, ok := strings.Cut(val, ":")
		if !ok {
			continue
		}
		if r, err := strconv.ParseFloat(rate, 64); err == nil {
			total += r
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}
