package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"pawgram/domain"
)

const timelineKeyPrefix = "timeline:user:"

// TimelineCache holds rendered timelines for a short TTL so repeated
// scrolls do not re-score the candidate set. Reload flushes it.
type TimelineCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewTimelineCache(client *redis.Client, ttl time.Duration) *TimelineCache {
	return &TimelineCache{
		client: client,
		ttl:    ttl,
	}
}

// Get returns the cached timeline for a user, or (nil, false) on a miss.
func (r *TimelineCache) Get(ctx context.Context, userID uuid.UUID) ([]domain.TimelinePost, bool, error) {
	key := timelineKeyPrefix + userID.String()

	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get timeline from Redis: %w", err)
	}

	var posts []domain.TimelinePost
	if err := json.Unmarshal([]byte(val), &posts); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached timeline: %w", err)
	}

	return posts, true, nil
}

// Set stores a rendered timeline under the cache TTL.
func (r *TimelineCache) Set(ctx context.Context, userID uuid.UUID, posts []domain.TimelinePost) error {
	key := timelineKeyPrefix + userID.String()

	jsonData, err := json.Marshal(posts)
	if err != nil {
		return fmt.Errorf("failed to marshal timeline: %w", err)
	}

	if err := r.client.Set(ctx, key, jsonData, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store timeline in Redis: %w", err)
	}

	return nil
}

// Flush drops every cached timeline. Called after a model swap so stale
// rankings never outlive the model that produced them.
func (r *TimelineCache) Flush(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, timelineKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete cache key %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan timeline keys: %w", err)
	}

	return nil
}
