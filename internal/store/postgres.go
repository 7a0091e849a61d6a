package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"push-vault-go/internal/models"

	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// RunMigrations creates tables if they don't exist and applies schema updates
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return err
	}

	migrations := []string{
		`CREATE INDEX IF NOT EXISTS idx_push_subscriptions_endpoint ON push_subscriptions (endpoint);`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Plaintext subscriptions

func (s *PostgresStore) UpsertSubscription(ctx context.Context, userID string, sub models.Subscription) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_subscriptions (id, user_id, endpoint, keys_p256dh, keys_auth, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, endpoint) DO UPDATE SET
			id = EXCLUDED.id,
			keys_p256dh = EXCLUDED.keys_p256dh,
			keys_auth = EXCLUDED.keys_auth,
			created_at = EXCLUDED.created_at`,
		sub.ID, userID, sub.Endpoint, sub.Keys.P256dh, sub.Keys.Auth, sub.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteSubscription(ctx context.Context, userID, endpoint string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE user_id = $1 AND endpoint = $2`,
		userID, endpoint,
	)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteUserSubscriptions(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete user subscriptions: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteSubscriptionByEndpoint(ctx context.Context, endpoint string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`DELETE FROM push_subscriptions WHERE endpoint = $1 RETURNING user_id`,
		endpoint,
	)
	if err != nil {
		return nil, fmt.Errorf("delete subscription by endpoint: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		userIDs = append(userIDs, userID)
	}
	return userIDs, rows.Err()
}

func (s *PostgresStore) ListSubscriptions(ctx context.Context) ([]models.SubscriptionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, endpoint, keys_p256dh, keys_auth, created_at
		 FROM push_subscriptions ORDER BY user_id, created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var records []models.SubscriptionRecord
	for rows.Next() {
		var rec models.SubscriptionRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Endpoint, &rec.Keys.P256dh, &rec.Keys.Auth, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) ListUserSubscriptions(ctx context.Context, userID string) ([]models.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, endpoint, keys_p256dh, keys_auth, created_at
		 FROM push_subscriptions WHERE user_id = $1 ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query user subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []models.Subscription{}
	for rows.Next() {
		var sub models.Subscription
		if err := rows.Scan(&sub.ID, &sub.Endpoint, &sub.Keys.P256dh, &sub.Keys.Auth, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *PostgresStore) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM push_subscriptions ORDER BY user_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query user ids: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		userIDs = append(userIDs, userID)
	}
	return userIDs, rows.Err()
}

// Encrypted blobs

func (s *PostgresStore) UpsertBlob(ctx context.Context, blob models.EncryptedBlob) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_subscription_blobs (user_hash, ciphertext, nonce, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_hash) DO UPDATE SET
			ciphertext = EXCLUDED.ciphertext,
			nonce = EXCLUDED.nonce,
			updated_at = EXCLUDED.updated_at`,
		blob.UserHash, blob.Ciphertext, blob.Nonce, blob.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert blob: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteBlob(ctx context.Context, userHash string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM push_subscription_blobs WHERE user_hash = $1`, userHash)
	if err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBlobs(ctx context.Context) ([]models.EncryptedBlob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_hash, ciphertext, nonce, updated_at FROM push_subscription_blobs ORDER BY user_hash`,
	)
	if err != nil {
		return nil, fmt.Errorf("query blobs: %w", err)
	}
	defer rows.Close()

	var blobs []models.EncryptedBlob
	for rows.Next() {
		var blob models.EncryptedBlob
		if err := rows.Scan(&blob.UserHash, &blob.Ciphertext, &blob.Nonce, &blob.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan blob: %w", err)
		}
		blobs = append(blobs, blob)
	}
	return blobs, rows.Err()
}

func (s *PostgresStore) CountBlobs(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM push_subscription_blobs`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count blobs: %w", err)
	}
	return count, nil
}
