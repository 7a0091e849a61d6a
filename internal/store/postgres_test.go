package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"push-vault-go/internal/models"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &PostgresStore{db: db}, mock
}

func TestPostgresRunMigrations(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS push_subscriptions")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS idx_push_subscriptions_endpoint")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.RunMigrations(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertSubscription(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sub := testSub("id-1", "https://push.example/a", created)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO push_subscriptions")).
		WithArgs("id-1", "u1", "https://push.example/a", "p-id-1", "a-id-1", created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.UpsertSubscription(context.Background(), "u1", sub))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteSubscriptionByEndpoint(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM push_subscriptions WHERE endpoint = $1 RETURNING user_id")).
		WithArgs("https://push.example/a").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1"))
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM push_subscriptions WHERE endpoint = $1 RETURNING user_id")).
		WithArgs("https://push.example/a").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	owners, err := s.DeleteSubscriptionByEndpoint(context.Background(), "https://push.example/a")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, owners)

	owners, err = s.DeleteSubscriptionByEndpoint(context.Background(), "https://push.example/a")
	require.NoError(t, err)
	assert.Empty(t, owners)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListSubscriptions(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, endpoint, keys_p256dh, keys_auth, created_at")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "endpoint", "keys_p256dh", "keys_auth", "created_at"}).
			AddRow("1", "u1", "https://push.example/a", "X", "Y", created).
			AddRow("2", "u2", "https://push.example/b", "X2", "Y2", created))

	records, err := s.ListSubscriptions(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "u1", records[0].UserID)
	assert.Equal(t, "https://push.example/a", records[0].Endpoint)
	assert.Equal(t, "X", records[0].Keys.P256dh)
	assert.Equal(t, "Y2", records[1].Keys.Auth)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListUserSubscriptionsEmpty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM push_subscriptions WHERE user_id = $1")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "endpoint", "keys_p256dh", "keys_auth", "created_at"}))

	subs, err := s.ListUserSubscriptions(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotNil(t, subs)
	assert.Empty(t, subs)
}

func TestPostgresBlobs(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	blob := models.EncryptedBlob{UserHash: "abc", Ciphertext: []byte{1, 2}, Nonce: []byte{3}, UpdatedAt: now}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO push_subscription_blobs")).
		WithArgs("abc", []byte{1, 2}, []byte{3}, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM push_subscription_blobs")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_hash, ciphertext, nonce, updated_at FROM push_subscription_blobs")).
		WillReturnRows(sqlmock.NewRows([]string{"user_hash", "ciphertext", "nonce", "updated_at"}).
			AddRow("abc", []byte{1, 2}, []byte{3}, now))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM push_subscription_blobs WHERE user_hash = $1")).
		WithArgs("abc").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	require.NoError(t, s.UpsertBlob(ctx, blob))

	count, err := s.CountBlobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	blobs, err := s.ListBlobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.EncryptedBlob{blob}, blobs)

	require.NoError(t, s.DeleteBlob(ctx, "abc"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCountBlobsMissingTable(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM push_subscription_blobs")).
		WillReturnError(errors.New(`relation "push_subscription_blobs" does not exist`))

	_, err := s.CountBlobs(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count blobs")
}
