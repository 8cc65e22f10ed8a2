package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedDecision is a previously computed permission decision, stored keyed
// by the hash of the presented credential.
type CachedDecision struct {
	Allow   bool   `json:"allow"`
	Subject string `json:"subject,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type DecisionCache interface {
	Get(ctx context.Context, tokenHash string) (*CachedDecision, error)
	Set(ctx context.Context, tokenHash string, value *CachedDecision, ttl time.Duration) error
}

type redisCache struct {
	client *redis.Client
}

func NewRedisClient(url string, poolSize int) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	opt.PoolSize = poolSize

	client := redis.NewClient(opt)

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

func NewDecisionCache(client *redis.Client) DecisionCache {
	return &redisCache{client: client}
}

func decisionKey(tokenHash string) string {
	return fmt.Sprintf("perms:token:%s", tokenHash)
}

func (r *redisCache) Get(ctx context.Context, tokenHash string) (*CachedDecision, error) {
	val, err := r.client.Get(ctx, decisionKey(tokenHash)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var decision CachedDecision
	if err := json.Unmarshal([]byte(val), &decision); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached decision: %w", err)
	}

	return &decision, nil
}

func (r *redisCache) Set(ctx context.Context, tokenHash string, value *CachedDecision, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cached decision: %w", err)
	}

	if err := r.client.Set(ctx, decisionKey(tokenHash), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set redis cache: %w", err)
	}

	return nil
}
