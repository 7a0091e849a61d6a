package subscriptions

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"push-vault-go/internal/crypto"
	"push-vault-go/internal/models"
)

// MigrateToEncrypted writes an encrypted blob for every user in the plaintext
// table. Blobs are upserted by user hash so repeated runs converge on the
// same rows. A failing user is logged and skipped. Plaintext rows are never
// deleted.
//
// On a ready service each user's plaintext rows are merged into the cache
// first and the cache's list is sealed, so the blob matches the cache.
func (s *Service) MigrateToEncrypted(ctx context.Context) (models.MigrationResult, error) {
	var res models.MigrationResult
	if !s.codec.Enabled() {
		return res, ErrEncryptionDisabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	userIDs, err := s.store.ListUserIDs(ctx)
	if err != nil {
		return res, fmt.Errorf("list user ids: %w", err)
	}

	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		n, err := s.migrateUser(ctx, userID)
		if err != nil {
			res.FailedUsers++
			s.metrics.MigrationFailures.Inc()
			s.log.Error("failed to migrate push subscriptions",
				zap.String("user_hash", crypto.HashUserID(userID)), zap.Error(err))
			continue
		}
		if n == 0 {
			continue
		}
		res.MigratedUsers++
		res.MigratedSubscriptions += n
		s.metrics.MigratedUsers.Inc()
	}

	if s.state == StateReady {
		s.updateGauges()
	}

	s.log.Info("push subscription migration finished",
		zap.Int("migrated_users", res.MigratedUsers),
		zap.Int("migrated_subscriptions", res.MigratedSubscriptions),
		zap.Int("failed_users", res.FailedUsers),
	)
	return res, nil
}

func (s *Service) migrateUser(ctx context.Context, userID string) (int, error) {
	subs, err := s.store.ListUserSubscriptions(ctx, userID)
	if err != nil {
		return 0, err
	}
	if s.state == StateReady {
		s.loadUser(userID, subs)
		subs = s.cache.Get(userID)
	}
	if len(subs) == 0 {
		return 0, nil
	}

	sealed, err := s.codec.Encrypt(subs)
	if err != nil {
		return 0, fmt.Errorf("encrypt subscriptions: %w", err)
	}

	err = s.store.UpsertBlob(ctx, models.EncryptedBlob{
		UserHash:   crypto.HashUserID(userID),
		Ciphertext: sealed.Ciphertext,
		Nonce:      sealed.Nonce,
		UpdatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return 0, err
	}
	return len(subs), nil
}
