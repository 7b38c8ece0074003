package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/sakif/snuffspec/internal/apperror"
)

const redisKeyPrefix = "snuffspec:flow:"

// RedisStore keeps flows in Redis as JSON with a TTL, so any instance
// behind the load balancer can continue a sign-in.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ FlowStore = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// DialRedis parses a redis:// URL and pings the server.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("otp: parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("otp: pinging redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) Load(ctx context.Context, id string) (*Flow, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperror.NotFound("sign-in flow", id)
	}
	if err != nil {
		return nil, fmt.Errorf("otp: loading flow: %w", err)
	}

	var flow Flow
	if err := json.Unmarshal(raw, &flow); err != nil {
		return nil, fmt.Errorf("otp: decoding flow: %w", err)
	}
	return &flow, nil
}

func (s *RedisStore) Save(ctx context.Context, id string, flow *Flow) error {
	raw, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("otp: encoding flow: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+id, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("otp: saving flow: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("otp: deleting flow: %w", err)
	}
	return nil
}
