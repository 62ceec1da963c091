package session

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKim531/Em-Guide-backend/internal/domain"
	"github.com/go-redis/redis/v8"
)

// Key prefixes mirror the layout the bot has always used in Redis, so a
// deployed instance can be restarted against live state.
const (
	statePrefix     = "user_state:"
	threadPrefix    = "thread_id:"
	assistantPrefix = "assistant_id:"
	processedPrefix = "processed:"
	lockPrefix      = "lock:"
)

// RedisStore implements Store on Redis with per-key TTLs.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

func (s *RedisStore) set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// GetState returns the conversation state for a user key.
func (s *RedisStore) GetState(ctx context.Context, userID string) (domain.ConversationState, error) {
	val, err := s.get(ctx, statePrefix+userID)
	return domain.ConversationState(val), err
}

// SetState stores the conversation state for a user key.
func (s *RedisStore) SetState(ctx context.Context, userID string, state domain.ConversationState) error {
	return s.set(ctx, statePrefix+userID, string(state))
}

// GetThread returns the dialogue thread handle for a user key.
func (s *RedisStore) GetThread(ctx context.Context, userID string) (string, error) {
	return s.get(ctx, threadPrefix+userID)
}

// SetThread stores the dialogue thread handle for a user key.
func (s *RedisStore) SetThread(ctx context.Context, userID, threadID string) error {
	return s.set(ctx, threadPrefix+userID, threadID)
}

// GetAssistant returns the assistant persona handle for a user key.
func (s *RedisStore) GetAssistant(ctx context.Context, userID string) (string, error) {
	return s.get(ctx, assistantPrefix+userID)
}

// SetAssistant stores the assistant persona handle for a user key.
func (s *RedisStore) SetAssistant(ctx context.Context, userID, assistantID string) error {
	return s.set(ctx, assistantPrefix+userID, assistantID)
}

// MarkProcessed records a delivery message id as handled.
func (s *RedisStore) MarkProcessed(ctx context.Context, userID, messageID string) error {
	key := processedPrefix + userID
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, key, messageID)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis sadd %s: %w", key, err)
	}
	return nil
}

// IsProcessed reports whether a delivery message id was already handled.
func (s *RedisStore) IsProcessed(ctx context.Context, userID, messageID string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, processedPrefix+userID, messageID).Result()
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("redis sismember: %w", err)
	}
	return ok, nil
}

// Clear atomically removes all session state for a user key.
func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	err := s.client.Del(ctx,
		statePrefix+userID,
		threadPrefix+userID,
		assistantPrefix+userID,
		processedPrefix+userID,
	).Err()
	if err != nil {
		return fmt.Errorf("redis del session keys: %w", err)
	}
	return nil
}

// AcquireLock takes the per-user turn lease via SETNX.
func (s *RedisStore) AcquireLock(ctx context.Context, userID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, lockPrefix+userID, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx lock: %w", err)
	}
	return ok, nil
}

// ReleaseLock releases the per-user turn lease.
func (s *RedisStore) ReleaseLock(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, lockPrefix+userID).Err(); err != nil {
		return fmt.Errorf("redis del lock: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
