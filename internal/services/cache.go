package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisSessionCache caches "which session is running" per class. It never
// stores secrets.
type RedisSessionCache struct {
	redis *redis.Client
}

func NewRedisSessionCache(redisClient *redis.Client) *RedisSessionCache {
	return &RedisSessionCache{redis: redisClient}
}

type cachedSession struct {
	SessionID uuid.UUID `json:"session_id"`
	Start     int64     `json:"start"`
	End       int64     `json:"end"`
}

func activeSessionKey(classID string) string {
	return "active_session:" + classID
}

func (c *RedisSessionCache) Get(ctx context.Context, classID string) (*ActiveSession, bool) {
	raw, err := c.redis.Get(ctx, activeSessionKey(classID)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("locator cache: get %s failed: %v", classID, err)
		}
		return nil, false
	}

	var cs cachedSession
	if err := json.Unmarshal([]byte(raw), &cs); err != nil {
		return nil, false
	}

	return &ActiveSession{
		Active:    true,
		SessionID: cs.SessionID,
		Start:     time.UnixMilli(cs.Start),
		End:       time.UnixMilli(cs.End),
	}, true
}

func (c *RedisSessionCache) Set(ctx context.Context, classID string, s *ActiveSession, ttl time.Duration) {
	data, err := json.Marshal(cachedSession{
		SessionID: s.SessionID,
		Start:     s.Start.UnixMilli(),
		End:       s.End.UnixMilli(),
	})
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, activeSessionKey(classID), data, ttl).Err(); err != nil {
		log.Printf("locator cache: set %s failed: %v", classID, err)
	}
}

func (c *RedisSessionCache) Delete(ctx context.Context, classID string) {
	if err := c.redis.Del(ctx, activeSessionKey(classID)).Err(); err != nil {
		log.Printf("locator cache: delete %s failed: %v", classID, err)
	}
}
