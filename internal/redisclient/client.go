package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"retail-pipeline/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

//go:embed scripts/push_recent.lua
var pushRecentScript string

const (
	recentRunsKey = "pipeline:runs:recent"
	runSummaryTTL = 7 * 24 * time.Hour
)

// ErrLockHeld is returned when another process already owns the lock
var ErrLockHeld = errors.New("lock already held")

type Client struct {
	rdb         *redis.Client
	releaseLock *redis.Script
	pushRecent  *redis.Script
	recentLimit int
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db, recentLimit int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newClient(rdb, recentLimit), nil
}

func newClient(rdb *redis.Client, recentLimit int) *Client {
	if recentLimit <= 0 {
		recentLimit = 50
	}
	return &Client{
		rdb:         rdb,
		releaseLock: redis.NewScript(releaseLockScript),
		pushRecent:  redis.NewScript(pushRecentScript),
		recentLimit: recentLimit,
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Ping checks the connection is alive
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AcquireLock takes a distributed lock owned by token. It returns ErrLockHeld when
// another owner holds it.
func (c *Client) AcquireLock(ctx context.Context, lockKey, token string, ttl time.Duration) error {
	ok, err := c.rdb.SetNX(ctx, lockName(lockKey), token, ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lock failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLockHeld, lockKey)
	}
	return nil
}

// ReleaseLock atomically releases the lock if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) (bool, error) {
	result, err := c.releaseLock.Run(ctx, c.rdb, []string{lockName(lockKey)}, token).Result()
	if err != nil {
		return false, fmt.Errorf("release lock script failed: %w", err)
	}

	released, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}

	return released == 1, nil
}

// SaveRunSummary caches a run summary and records it in the capped recent-runs list
func (c *Client) SaveRunSummary(ctx context.Context, run *models.RunSummary) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	if err := c.rdb.Set(ctx, runKey(run.RunID), data, runSummaryTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache run summary: %w", err)
	}

	if _, err := c.pushRecent.Run(ctx, c.rdb, []string{recentRunsKey}, run.RunID, c.recentLimit).Result(); err != nil {
		return fmt.Errorf("push recent script failed: %w", err)
	}
	return nil
}

// GetRunSummary retrieves a cached run summary. It returns nil, nil on a cache miss.
func (c *Client) GetRunSummary(ctx context.Context, runID string) (*models.RunSummary, error) {
	data, err := c.rdb.Get(ctx, runKey(runID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var run models.RunSummary
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run summary: %w", err)
	}
	return &run, nil
}

// ListRecentRuns returns up to limit cached summaries, newest first. Expired entries are skipped.
func (c *Client) ListRecentRuns(ctx context.Context, limit int) ([]models.RunSummary, error) {
	if limit <= 0 || limit > c.recentLimit {
		limit = c.recentLimit
	}

	ids, err := c.rdb.LRange(ctx, recentRunsKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.RunSummary{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = runKey(id)
	}
	values, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	runs := make([]models.RunSummary, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var run models.RunSummary
		if err := json.Unmarshal([]byte(s), &run); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run summary: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func lockName(key string) string {
	return fmt.Sprintf("lock:%s", key)
}

func runKey(runID string) string {
	return fmt.Sprintf("pipeline:run:%s", runID)
}
