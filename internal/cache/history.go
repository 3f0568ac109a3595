// Package cache keeps recently listed chat sessions in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eunoia-health/eunoia/backend/internal/model/chat"
)

// Config describes the Redis connection.
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int
	TTL      time.Duration
}

// History caches the per-user session list served by the history endpoint.
type History struct {
	rdb *redis.Client
	ttl time.Duration
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, cfg Config) (*History, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, cfg.TTL), nil
}

// New wraps an existing client.
func New(rdb *redis.Client, ttl time.Duration) *History {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &History{rdb: rdb, ttl: ttl}
}

// Key returns the cache key for a user's session list at a generation.
func Key(userID, gen int64) string {
	return fmt.Sprintf("chat:history:%d:%d", userID, gen)
}

// GenerationKey returns the key of a user's generation counter.
func GenerationKey(userID int64) string {
	return fmt.Sprintf("chat:history:gen:%d", userID)
}

// Generation returns the user's current generation, zero if never bumped.
func (h *History) Generation(ctx context.Context, userID int64) (int64, error) {
	gen, err := h.rdb.Get(ctx, GenerationKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// GetSessions returns the list cached at gen. The bool is false on a miss.
func (h *History) GetSessions(ctx context.Context, userID, gen int64) ([]chat.Session, bool, error) {
	raw, err := h.rdb.Get(ctx, Key(userID, gen)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var sessions []chat.Session
	if err := json.Unmarshal(raw, &sessions); err != nil {
		return nil, false, err
	}
	return sessions, true, nil
}

// SetSessions stores the list under gen with the configured TTL. A list
// written after the generation moved on lands on a key no reader asks for.
func (h *History) SetSessions(ctx context.Context, userID, gen int64, sessions []chat.Session) error {
	data, err := json.Marshal(sessions)
	if err != nil {
		return err
	}
	return h.rdb.Set(ctx, Key(userID, gen), data, h.ttl).Err()
}

// Invalidate advances the user's generation.
func (h *History) Invalidate(ctx context.Context, userID int64) error {
	return h.rdb.Incr(ctx, GenerationKey(userID)).Err()
}

// Close closes the client.
func (h *History) Close() error {
	return h.rdb.Close()
}
