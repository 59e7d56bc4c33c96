package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/practice-chat/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	preferenceCachePrefix = "chat:preference:"
	preferenceCacheTTL    = 10 * time.Minute
)

// PreferenceCache is a write-through cache in front of a PreferenceRepository.
// The repository stays the source of truth; cache failures fall back to it.
type PreferenceCache struct {
	client *Client
	next   domain.PreferenceRepository
	ttl    time.Duration
}

// NewPreferenceCache wraps next with a Redis cache
func NewPreferenceCache(client *Client, next domain.PreferenceRepository) *PreferenceCache {
	return &PreferenceCache{client: client, next: next, ttl: preferenceCacheTTL}
}

func preferenceKey(userID string) string {
	return preferenceCachePrefix + userID
}

func (c *PreferenceCache) Get(ctx context.Context, userID string) (*domain.UserPreference, error) {
	data, err := c.client.rdb.Get(ctx, preferenceKey(userID)).Bytes()
	if err == nil {
		var p domain.UserPreference
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		log.Warn().Err(err).Str("user_id", userID).Msg("Preference cache read failed")
	}

	p, err := c.next.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, p)
	return p, nil
}

func (c *PreferenceCache) Upsert(ctx context.Context, userID string, period domain.RetentionPeriod) (*domain.UserPreference, error) {
	// invalidate before writing: a failed write must not leave a stale entry
	if err := c.Invalidate(ctx, userID); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Preference cache invalidation failed")
	}

	p, err := c.next.Upsert(ctx, userID, period)
	if err != nil {
		return nil, err
	}
	c.store(ctx, p)
	return p, nil
}

// Invalidate removes the cached preference for userID
func (c *PreferenceCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.rdb.Del(ctx, preferenceKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate preference: %w", err)
	}
	return nil
}

func (c *PreferenceCache) store(ctx context.Context, p *domain.UserPreference) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.client.rdb.Set(ctx, preferenceKey(p.UserID), data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("user_id", p.UserID).Msg("Preference cache write failed")
	}
}
