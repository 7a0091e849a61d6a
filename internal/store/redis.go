package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"push-vault-go/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	usersKey     = "push:users"     // set of user ids with at least one row
	endpointsKey = "push:endpoints" // hash endpoint -> user id
	blobsKey     = "push:blobs"     // hash user hash -> JSON blob
)

func subsKey(userID string) string {
	return "push:subs:" + userID // hash endpoint -> JSON row
}

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(opts *redis.Options) *RedisStore {
	rdb := redis.NewClient(opts)
	return &RedisStore{client: rdb}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Plaintext subscriptions

func (s *RedisStore) UpsertSubscription(ctx context.Context, userID string, sub models.Subscription) error {
	data, err := json.Marshal(models.SubscriptionRecord{UserID: userID, Subscription: sub})
	if err != nil {
		return fmt.Errorf("marshal subscription: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, subsKey(userID), sub.Endpoint, data)
	pipe.HSet(ctx, endpointsKey, sub.Endpoint, userID)
	pipe.SAdd(ctx, usersKey, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteSubscription(ctx context.Context, userID, endpoint string) error {
	owner, err := s.client.HGet(ctx, endpointsKey, endpoint).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("lookup endpoint owner: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.HDel(ctx, subsKey(userID), endpoint)
	if owner == userID {
		pipe.HDel(ctx, endpointsKey, endpoint)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return s.pruneUser(ctx, userID)
}

func (s *RedisStore) DeleteUserSubscriptions(ctx context.Context, userID string) error {
	endpoints, err := s.client.HKeys(ctx, subsKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("list user endpoints: %w", err)
	}

	owners := make([]string, 0, len(endpoints))
	if len(endpoints) > 0 {
		vals, err := s.client.HMGet(ctx, endpointsKey, endpoints...).Result()
		if err != nil {
			return fmt.Errorf("lookup endpoint owners: %w", err)
		}
		for i, v := range vals {
			if owner, ok := v.(string); ok && owner == userID {
				owners = append(owners, endpoints[i])
			}
		}
	}

	pipe := s.client.TxPipeline()
	if len(owners) > 0 {
		pipe.HDel(ctx, endpointsKey, owners...)
	}
	pipe.Del(ctx, subsKey(userID))
	pipe.SRem(ctx, usersKey, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete user subscriptions: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteSubscriptionByEndpoint(ctx context.Context, endpoint string) ([]string, error) {
	owner, err := s.client.HGet(ctx, endpointsKey, endpoint).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("lookup endpoint owner: %w", err)
	}

	pipe := s.client.TxPipeline()
	removed := pipe.HDel(ctx, subsKey(owner), endpoint)
	pipe.HDel(ctx, endpointsKey, endpoint)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("delete subscription by endpoint: %w", err)
	}
	if err := s.pruneUser(ctx, owner); err != nil {
		return nil, err
	}

	if removed.Val() == 0 {
		return nil, nil
	}
	return []string{owner}, nil
}

// pruneUser drops userID from the user set once it has no rows left.
func (s *RedisStore) pruneUser(ctx context.Context, userID string) error {
	n, err := s.client.HLen(ctx, subsKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("count user subscriptions: %w", err)
	}
	if n == 0 {
		if err := s.client.SRem(ctx, usersKey, userID).Err(); err != nil {
			return fmt.Errorf("remove user: %w", err)
		}
	}
	return nil
}

func (s *RedisStore) ListSubscriptions(ctx context.Context) ([]models.SubscriptionRecord, error) {
	userIDs, err := s.ListUserIDs(ctx)
	if err != nil {
		return nil, err
	}

	var records []models.SubscriptionRecord
	for _, userID := range userIDs {
		subs, err := s.ListUserSubscriptions(ctx, userID)
		if err != nil {
			return nil, err
		}
		for _, sub := range subs {
			records = append(records, models.SubscriptionRecord{UserID: userID, Subscription: sub})
		}
	}
	return records, nil
}

func (s *RedisStore) ListUserSubscriptions(ctx context.Context, userID string) ([]models.Subscription, error) {
	vals, err := s.client.HVals(ctx, subsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("query user subscriptions: %w", err)
	}

	subs := make([]models.Subscription, 0, len(vals))
	for _, val := range vals {
		var rec models.SubscriptionRecord
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal subscription: %w", err)
		}
		subs = append(subs, rec.Subscription)
	}

	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].CreatedAt.Before(subs[j].CreatedAt)
		}
		return subs[i].ID < subs[j].ID
	})
	return subs, nil
}

func (s *RedisStore) ListUserIDs(ctx context.Context) ([]string, error) {
	userIDs, err := s.client.SMembers(ctx, usersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("query user ids: %w", err)
	}
	sort.Strings(userIDs)
	return userIDs, nil
}

// Encrypted blobs

func (s *RedisStore) UpsertBlob(ctx context.Context, blob models.EncryptedBlob) error {
	data, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("marshal blob: %w", err)
	}
	if err := s.client.HSet(ctx, blobsKey, blob.UserHash, data).Err(); err != nil {
		return fmt.Errorf("upsert blob: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteBlob(ctx context.Context, userHash string) error {
	if err := s.client.HDel(ctx, blobsKey, userHash).Err(); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

func (s *RedisStore) ListBlobs(ctx context.Context) ([]models.EncryptedBlob, error) {
	vals, err := s.client.HGetAll(ctx, blobsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("query blobs: %w", err)
	}

	blobs := make([]models.EncryptedBlob, 0, len(vals))
	for _, val := range vals {
		var blob models.EncryptedBlob
		if err := json.Unmarshal([]byte(val), &blob); err != nil {
			return nil, fmt.Errorf("unmarshal blob: %w", err)
		}
		blobs = append(blobs, blob)
	}

	sort.Slice(blobs, func(i, j int) bool { return blobs[i].UserHash < blobs[j].UserHash })
	return blobs, nil
}

func (s *RedisStore) CountBlobs(ctx context.Context) (int, error) {
	n, err := s.client.HLen(ctx, blobsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count blobs: %w", err)
	}
	return int(n), nil
}
