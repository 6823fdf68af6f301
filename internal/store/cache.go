package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jamesbeebe/320-Team-1/internal/app"
)

// MessageCache keeps the default-window history response for a chat in Redis
// so the REST endpoint doesn't hit Postgres on every poll. Entries are
// short-lived and dropped whenever a new message lands in the chat.
type MessageCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *slog.Logger
}

// NewMessageCache connects to redis and verifies connectivity
func NewMessageCache(ctx context.Context, cfg app.Config, log *slog.Logger) (*MessageCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &MessageCache{rdb: rdb, ttl: cfg.HistoryTTL, log: log}, nil
}

// GetRecent returns the cached history for a chat, reporting a miss for
// absent keys. Redis errors surface as misses so the caller falls through
// to Postgres.
func (c *MessageCache) GetRecent(ctx context.Context, chatID string) ([]Message, bool) {
	raw, err := c.rdb.Get(ctx, historyKey(chatID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("cache.get", "chat", chatID, "err", err)
		}
		return nil, false
	}
	var out []Message
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}

// SetRecent stores a history response with the configured TTL.
func (c *MessageCache) SetRecent(ctx context.Context, chatID string, msgs []Message) error {
	raw, err := json.Marshal(msgs)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, historyKey(chatID), raw, c.ttl).Err()
}

// Invalidate drops the cached history for a chat. Called by the hub after
// every successful insert so pollers never see a stale tail for long.
func (c *MessageCache) Invalidate(ctx context.Context, chatID string) error {
	return c.rdb.Del(ctx, historyKey(chatID)).Err()
}

// Ping reports whether redis is reachable (readiness probe)
func (c *MessageCache) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

// Close shuts down the redis connection
func (c *MessageCache) Close() { _ = c.rdb.Close() }

// key namespacing for per-chat history entries
func historyKey(chatID string) string { return "chat:history:" + chatID }
