package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClients holds the two connections the attendance service needs.
//
// Cache carries short commands: the per-class active-session lookup keys
// (active_session:<classId>) and PUBLISH of rotation events.
// PubSub is reserved for the websocket hub's SUBSCRIBE on
// session_updates:<sessionId>, which holds a connection for as long as a
// display is attached.
type RedisClients struct {
	Cache  *redis.Client
	PubSub *redis.Client
}

func NewRedisClients(redisURL string) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cacheOpt, pubsubOpt := roleOptions(opt)
	cacheClient, err := connectRedis(ctx, cacheOpt, "cache")
	if err != nil {
		return nil, err
	}

	pubsubClient, err := connectRedis(ctx, pubsubOpt, "pubsub")
	if err != nil {
		cacheClient.Close()
		return nil, err
	}

	return &RedisClients{Cache: cacheClient, PubSub: pubsubClient}, nil
}

// roleOptions derives the per-role options from the parsed URL.
func roleOptions(base *redis.Options) (cache, pubsub *redis.Options) {
	// Cache lookups sit on the submit path; fail fast and fall back to Postgres.
	c := *base
	c.ReadTimeout = 500 * time.Millisecond
	c.WriteTimeout = 500 * time.Millisecond

	// Subscriptions block on reads indefinitely.
	p := *base
	p.ReadTimeout = -1

	return &c, &p
}

func connectRedis(ctx context.Context, opt *redis.Options, role string) (*redis.Client, error) {
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis (%s): %w", role, err)
	}
	return client, nil
}

func (r *RedisClients) Close() {
	r.Cache.Close()
	r.PubSub.Close()
}
