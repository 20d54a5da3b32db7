package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/korjavin/commitquizbot/models"
)

// RedisStore keeps questions as JSON strings with a key TTL:
//
//	SET quiz:contrib:{userID} {json} EX ttl
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Put(ctx context.Context, userID int64, q models.ContributionQuestion) error {
	data, err := json.Marshal(q)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key(userID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, userID int64) (models.ContributionQuestion, bool, error) {
	data, err := s.client.Get(ctx, key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.ContributionQuestion{}, false, nil
	}
	if err != nil {
		return models.ContributionQuestion{}, false, fmt.Errorf("redis get: %w", err)
	}
	var q models.ContributionQuestion
	if err := json.Unmarshal(data, &q); err != nil {
		return models.ContributionQuestion{}, false, fmt.Errorf("decode session: %w", err)
	}
	return q, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func key(userID int64) string {
	return "quiz:contrib:" + strconv.FormatInt(userID, 10)
}
