package store

import (
	"context"

	"push-vault-go/internal/models"
)

// SubscriptionStore is the plaintext subscriptions table. It is written on
// every mutation, encrypted or not, and is the only place a user id can be
// matched back to its blob hash.
type SubscriptionStore interface {
	UpsertSubscription(ctx context.Context, userID string, sub models.Subscription) error
	DeleteSubscription(ctx context.Context, userID, endpoint string) error
	DeleteUserSubscriptions(ctx context.Context, userID string) error
	// DeleteSubscriptionByEndpoint returns the ids of the users whose rows
	// were removed.
	DeleteSubscriptionByEndpoint(ctx context.Context, endpoint string) ([]string, error)
	ListSubscriptions(ctx context.Context) ([]models.SubscriptionRecord, error)
	ListUserSubscriptions(ctx context.Context, userID string) ([]models.Subscription, error)
	ListUserIDs(ctx context.Context) ([]string, error)
}

// BlobStore is the encrypted table, one row per user hash.
type BlobStore interface {
	UpsertBlob(ctx context.Context, blob models.EncryptedBlob) error
	DeleteBlob(ctx context.Context, userHash string) error
	ListBlobs(ctx context.Context) ([]models.EncryptedBlob, error)
	CountBlobs(ctx context.Context) (int, error)
}

type Store interface {
	SubscriptionStore
	BlobStore
	Close() error
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*RedisStore)(nil)
)
