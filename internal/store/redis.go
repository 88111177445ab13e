package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/deskhub/staffchat/internal/models"
)

const (
	heartbeatSet = "presence:heartbeats"
	profileTTL   = 24 * time.Hour
)

// HeartbeatStore tracks last-activity timestamps per identity. It backs
// the pull side of availability: identities active within a trailing
// window are reported reachable even when their live connection died
// without a clean close.
type HeartbeatStore interface {
	Touch(ctx context.Context, identity models.Identity) error
	ActiveSince(ctx context.Context, window time.Duration) ([]models.PeerStatus, error)
	Ping(ctx context.Context) error
	Close() error
}

// RedisStore implements HeartbeatStore on redis plus per-identity send
// rate limit counters.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying redis client.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// profileKey returns the key for an identity's cached profile.
func profileKey(id string) string {
	return fmt.Sprintf("presence:profile:%s", id)
}

// rateLimitKey returns the key for an identity's send counter.
func rateLimitKey(id string) string {
	return fmt.Sprintf("ratelimit:send:%s", id)
}

// Touch records activity for an identity and refreshes the cached profile.
func (s *RedisStore) Touch(ctx context.Context, identity models.Identity) error {
	now := time.Now().UTC()

	profile, err := json.Marshal(identity)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, heartbeatSet, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: identity.ID,
	})
	pipe.Set(ctx, profileKey(identity.ID), profile, profileTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// ActiveSince lists identities with a heartbeat inside the trailing window,
// annotated with their last-activity time.
func (s *RedisStore) ActiveSince(ctx context.Context, window time.Duration) ([]models.PeerStatus, error) {
	cutoff := time.Now().UTC().Add(-window).UnixMilli()

	entries, err := s.client.ZRangeByScoreWithScores(ctx, heartbeatSet, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", cutoff),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}

	statuses := make([]models.PeerStatus, 0, len(entries))
	for _, entry := range entries {
		id, ok := entry.Member.(string)
		if !ok {
			continue
		}

		status := models.PeerStatus{Identity: models.Identity{ID: id}}
		lastSeen := time.UnixMilli(int64(entry.Score)).UTC()
		status.LastSeen = &lastSeen

		// Profile is best-effort: a missing key still yields the id
		if raw, err := s.client.Get(ctx, profileKey(id)).Result(); err == nil {
			_ = json.Unmarshal([]byte(raw), &status.Identity)
		}

		statuses = append(statuses, status)
	}

	return statuses, nil
}

// CheckRateLimit reports whether an identity is under its send limit.
func (s *RedisStore) CheckRateLimit(ctx context.Context, id string, limit int) (bool, error) {
	count, err := s.client.Get(ctx, rateLimitKey(id)).Int()
	if err != nil && err != redis.Nil {
		return false, err
	}
	return count < limit, nil
}

// IncrementRateLimit increments the send counter for an identity.
func (s *RedisStore) IncrementRateLimit(ctx context.Context, id string, window time.Duration) error {
	key := rateLimitKey(id)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	_, err := pipe.Exec(ctx)
	return err
}
