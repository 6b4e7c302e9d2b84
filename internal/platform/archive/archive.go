// Package archive persists support-chat sessions so a session can be
// replayed after reconnects. Messages live in a redis list per session and
// expire with the session.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionArchive stores and replays the message history of a chat session.
type SessionArchive interface {
	Append(ctx context.Context, sessionID string, message []byte) error
	History(ctx context.Context, sessionID string) ([][]byte, error)
}

// RedisArchive implements SessionArchive on a redis list per session.
type RedisArchive struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisArchive connects to redis at url (redis:// form) and retains each
// session for ttl past its last message.
func NewRedisArchive(url string, ttl time.Duration) (*RedisArchive, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisArchive{client: redis.NewClient(opts), ttl: ttl}, nil
}

func sessionKey(sessionID string) string {
	return "support:" + sessionID
}

// Append pushes a message onto the session's list and refreshes its TTL.
func (a *RedisArchive) Append(ctx context.Context, sessionID string, message []byte) error {
	key := sessionKey(sessionID)
	if err := a.client.RPush(ctx, key, message).Err(); err != nil {
		return fmt.Errorf("archive message for %s: %w", sessionID, err)
	}
	if err := a.client.Expire(ctx, key, a.ttl).Err(); err != nil {
		return fmt.Errorf("refresh ttl for %s: %w", sessionID, err)
	}
	return nil
}

// History returns the full message list for a session in send order.
func (a *RedisArchive) History(ctx context.Context, sessionID string) ([][]byte, error) {
	values, err := a.client.LRange(ctx, sessionKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", sessionID, err)
	}
	messages := make([][]byte, len(values))
	for i, v := range values {
		messages[i] = []byte(v)
	}
	return messages, nil
}

// Ping verifies the redis connection, for startup checks.
func (a *RedisArchive) Ping(ctx context.Context) error {
	return a.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (a *RedisArchive) Close() error {
	return a.client.Close()
}
