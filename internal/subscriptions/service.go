package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"push-vault-go/internal/crypto"
	"push-vault-go/internal/models"
	"push-vault-go/internal/store"
)

var (
	ErrNotReady            = errors.New("subscription store not initialized")
	ErrEncryptionDisabled  = errors.New("encryption is not enabled")
	ErrInvalidSubscription = errors.New("invalid subscription")
)

const (
	tablePlaintext = "plaintext"
	tableBlob      = "blob"
)

type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Service keeps the subscription cache, the plaintext table and the
// encrypted blob table in step. Every mutation runs cache update, plaintext
// write and blob re-encryption under one lock.
type Service struct {
	mu      sync.RWMutex
	state   State
	cache   *Cache
	store   store.Store
	codec   *crypto.Codec
	log     *zap.Logger
	metrics *Metrics
}

func New(st store.Store, codec *crypto.Codec, log *zap.Logger, metrics *Metrics) *Service {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Service{
		cache:   NewCache(),
		store:   st,
		codec:   codec,
		log:     log,
		metrics: metrics,
	}
}

func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Service) IsEncryptionEnabled() bool {
	return s.codec.Enabled()
}

// Initialize bulk loads the cache. The encrypted table is used when it has
// rows and a key is configured; otherwise the plaintext table is read.
func (s *Service) Initialize(ctx context.Context) (models.LoadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateLoading
	s.cache.Reset()

	var (
		res models.LoadResult
		err error
	)
	if s.useEncryptedPath(ctx) {
		res, err = s.loadEncrypted(ctx)
	} else {
		res, err = s.loadPlaintext(ctx)
	}
	if err != nil {
		s.cache.Reset()
		s.state = StateUninitialized
		return res, err
	}

	res.Users, res.Subscriptions = s.cache.Counts()
	s.state = StateReady
	s.updateGauges()

	s.log.Info("push subscriptions loaded",
		zap.String("source", res.Source),
		zap.Int("users", res.Users),
		zap.Int("subscriptions", res.Subscriptions),
		zap.Int("orphans", res.Orphans),
		zap.Int("decrypt_failures", res.DecryptFailures),
		zap.Int("duplicate_endpoints", res.DuplicateEndpoints),
	)
	return res, nil
}

func (s *Service) useEncryptedPath(ctx context.Context) bool {
	if !s.codec.Enabled() {
		return false
	}
	count, err := s.store.CountBlobs(ctx)
	if err != nil {
		s.log.Warn("encrypted subscription table unavailable, loading plaintext", zap.Error(err))
		return false
	}
	return count > 0
}

func (s *Service) loadEncrypted(ctx context.Context) (models.LoadResult, error) {
	res := models.LoadResult{Source: models.LoadSourceEncrypted}

	userIDs, err := s.store.ListUserIDs(ctx)
	if err != nil {
		return res, fmt.Errorf("list user ids: %w", err)
	}
	byHash := make(map[string]string, len(userIDs))
	for _, userID := range userIDs {
		byHash[crypto.HashUserID(userID)] = userID
	}

	blobs, err := s.store.ListBlobs(ctx)
	if err != nil {
		return res, fmt.Errorf("list blobs: %w", err)
	}

	withBlob := make(map[string]struct{}, len(blobs))
	for _, blob := range blobs {
		userID, ok := byHash[blob.UserHash]
		if !ok {
			res.Orphans++
			s.metrics.OrphanedBlobs.Inc()
			s.log.Debug("skipping orphaned subscription blob", zap.String("user_hash", blob.UserHash))
			continue
		}
		withBlob[userID] = struct{}{}

		subs, err := s.codec.Decrypt(blob.Ciphertext, blob.Nonce)
		if err != nil {
			res.DecryptFailures++
			s.metrics.DecryptFailures.Inc()
			s.log.Error("failed to decrypt subscription blob",
				zap.String("user_hash", blob.UserHash), zap.Error(err))
			continue
		}
		res.DuplicateEndpoints += s.loadUser(userID, subs)
	}

	// Users with plaintext rows but no blob predate the migration; their
	// rows are still the only copy.
	for _, userID := range userIDs {
		if _, ok := withBlob[userID]; ok {
			continue
		}
		subs, err := s.store.ListUserSubscriptions(ctx, userID)
		if err != nil {
			return res, fmt.Errorf("list user subscriptions: %w", err)
		}
		res.MissingBlobs++
		res.DuplicateEndpoints += s.loadUser(userID, subs)
	}
	if res.MissingBlobs > 0 {
		s.log.Warn("plaintext subscriptions without an encrypted blob; run the migration to encrypt them",
			zap.Int("users", res.MissingBlobs))
	}
	return res, nil
}

// loadUser adds subs to the cache during a load and reports how many were
// skipped because another user already holds the endpoint.
func (s *Service) loadUser(userID string, subs []models.Subscription) int {
	conflicts := s.cache.Load(userID, subs)
	for _, owner := range conflicts {
		s.log.Warn("push endpoint stored for more than one user; keeping the first owner",
			zap.String("user_hash", crypto.HashUserID(userID)),
			zap.String("owner_user_hash", crypto.HashUserID(owner)),
		)
	}
	return len(conflicts)
}

func (s *Service) loadPlaintext(ctx context.Context) (models.LoadResult, error) {
	res := models.LoadResult{Source: models.LoadSourcePlaintext}

	records, err := s.store.ListSubscriptions(ctx)
	if err != nil {
		return res, fmt.Errorf("list subscriptions: %w", err)
	}
	for _, rec := range records {
		res.DuplicateEndpoints += s.loadUser(rec.UserID, []models.Subscription{rec.Subscription})
	}
	return res, nil
}

// GetSubscriptions returns a copy of the user's subscriptions. It is empty
// before the service is ready.
func (s *Service) GetSubscriptions(userID string) []models.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != StateReady {
		return []models.Subscription{}
	}
	return s.cache.Get(userID)
}

func (s *Service) GetStats() models.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users, subs := s.cache.Counts()
	return models.Stats{
		UserCount:         users,
		SubscriptionCount: subs,
		EncryptionEnabled: s.codec.Enabled(),
	}
}

// AddSubscription stores sub for userID, replacing any entry with the same
// endpoint. An endpoint held by another user is evicted from that user first.
// The returned error joins every failed write; the cache keeps the new state
// regardless.
func (s *Service) AddSubscription(ctx context.Context, userID string, sub models.Subscription) (models.Subscription, error) {
	if err := validate(userID, sub); err != nil {
		return models.Subscription{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return models.Subscription{}, ErrNotReady
	}

	stored, previousOwner := s.cache.Put(userID, sub)

	var errs []error
	if previousOwner != "" {
		s.metrics.Evictions.Inc()
		s.log.Warn("push endpoint re-registered by another user; evicting previous owner",
			zap.String("user_hash", crypto.HashUserID(userID)),
			zap.String("previous_user_hash", crypto.HashUserID(previousOwner)),
		)
		if err := s.store.DeleteSubscription(ctx, previousOwner, sub.Endpoint); err != nil {
			errs = append(errs, s.writeFailed(tablePlaintext, previousOwner, err))
		}
		errs = append(errs, s.syncBlob(ctx, previousOwner))
	}

	if err := s.store.UpsertSubscription(ctx, userID, stored); err != nil {
		errs = append(errs, s.writeFailed(tablePlaintext, userID, err))
	}
	errs = append(errs, s.syncBlob(ctx, userID))

	s.updateGauges()
	return stored, errors.Join(errs...)
}

// RemoveSubscription deletes one endpoint of the user. The bool reports
// whether the cache held it.
func (s *Service) RemoveSubscription(ctx context.Context, userID, endpoint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return false, ErrNotReady
	}
	return s.remove(ctx, userID, endpoint)
}

func (s *Service) remove(ctx context.Context, userID, endpoint string) (bool, error) {
	removed := s.cache.Remove(userID, endpoint)

	var errs []error
	if err := s.store.DeleteSubscription(ctx, userID, endpoint); err != nil {
		errs = append(errs, s.writeFailed(tablePlaintext, userID, err))
	}
	errs = append(errs, s.syncBlob(ctx, userID))

	s.updateGauges()
	return removed, errors.Join(errs...)
}

func (s *Service) RemoveAllSubscriptions(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return false, ErrNotReady
	}

	removed := len(s.cache.RemoveAll(userID)) > 0

	var errs []error
	if err := s.store.DeleteUserSubscriptions(ctx, userID); err != nil {
		errs = append(errs, s.writeFailed(tablePlaintext, userID, err))
	}
	errs = append(errs, s.syncBlob(ctx, userID))

	s.updateGauges()
	return removed, errors.Join(errs...)
}

// RemoveByEndpoint deletes an endpoint without knowing its owner, as done
// when a push service reports it gone. Endpoints unknown to the cache are
// still deleted from the plaintext table, and any owner reported there has
// its blob rewritten. Removing an absent endpoint is not an error.
func (s *Service) RemoveByEndpoint(ctx context.Context, endpoint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return false, ErrNotReady
	}

	if owner, ok := s.cache.Owner(endpoint); ok {
		return s.remove(ctx, owner, endpoint)
	}

	owners, err := s.store.DeleteSubscriptionByEndpoint(ctx, endpoint)
	if err != nil {
		return false, s.writeFailed(tablePlaintext, "", err)
	}

	var errs []error
	for _, owner := range owners {
		errs = append(errs, s.syncBlob(ctx, owner))
	}
	if len(owners) > 0 {
		s.log.Info("removed uncached push endpoint from storage", zap.Int("rows", len(owners)))
	}
	return len(owners) > 0, errors.Join(errs...)
}

// syncBlob rewrites the user's blob from the cache, or deletes it when the
// user has no subscriptions left. No-op without a key.
func (s *Service) syncBlob(ctx context.Context, userID string) error {
	if !s.codec.Enabled() {
		return nil
	}

	hash := crypto.HashUserID(userID)
	subs := s.cache.Get(userID)
	if len(subs) == 0 {
		if err := s.store.DeleteBlob(ctx, hash); err != nil {
			return s.writeFailed(tableBlob, userID, err)
		}
		return nil
	}

	sealed, err := s.codec.Encrypt(subs)
	if err != nil {
		return s.writeFailed(tableBlob, userID, fmt.Errorf("encrypt subscriptions: %w", err))
	}

	err = s.store.UpsertBlob(ctx, models.EncryptedBlob{
		UserHash:   hash,
		Ciphertext: sealed.Ciphertext,
		Nonce:      sealed.Nonce,
		UpdatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return s.writeFailed(tableBlob, userID, err)
	}
	return nil
}

func (s *Service) writeFailed(table, userID string, err error) error {
	s.metrics.WriteFailures.WithLabelValues(table).Inc()
	fields := []zap.Field{zap.String("table", table), zap.Error(err)}
	if userID != "" {
		fields = append(fields, zap.String("user_hash", crypto.HashUserID(userID)))
	}
	s.log.Error("failed to persist push subscriptions", fields...)
	return err
}

func (s *Service) updateGauges() {
	users, subs := s.cache.Counts()
	s.metrics.Users.Set(float64(users))
	s.metrics.Subscriptions.Set(float64(subs))
}

func validate(userID string, sub models.Subscription) error {
	if userID == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidSubscription)
	}
	u, err := url.Parse(sub.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: endpoint must be an absolute URL", ErrInvalidSubscription)
	}
	return nil
}
