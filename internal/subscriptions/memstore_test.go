package subscriptions

import (
	"context"
	"errors"
	"sort"
	"sync"

	"push-vault-go/internal/models"
)

var errStoreDown = errors.New("store unavailable")

// memStore is an in-memory store.Store with switchable failures.
type memStore struct {
	mu    sync.Mutex
	rows  map[string]map[string]models.Subscription
	blobs map[string]models.EncryptedBlob

	failPlaintext bool
	failBlobs     bool
	failCount     bool
	failListUsers bool
	failUserSubs  map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		rows:         make(map[string]map[string]models.Subscription),
		blobs:        make(map[string]models.EncryptedBlob),
		failUserSubs: make(map[string]bool),
	}
}

func (m *memStore) UpsertSubscription(_ context.Context, userID string, sub models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPlaintext {
		return errStoreDown
	}
	if m.rows[userID] == nil {
		m.rows[userID] = make(map[string]models.Subscription)
	}
	m.rows[userID][sub.Endpoint] = sub
	return nil
}

func (m *memStore) DeleteSubscription(_ context.Context, userID, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPlaintext {
		return errStoreDown
	}
	delete(m.rows[userID], endpoint)
	if len(m.rows[userID]) == 0 {
		delete(m.rows, userID)
	}
	return nil
}

func (m *memStore) DeleteUserSubscriptions(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPlaintext {
		return errStoreDown
	}
	delete(m.rows, userID)
	return nil
}

func (m *memStore) DeleteSubscriptionByEndpoint(_ context.Context, endpoint string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPlaintext {
		return nil, errStoreDown
	}
	var owners []string
	for userID, subs := range m.rows {
		if _, ok := subs[endpoint]; !ok {
			continue
		}
		delete(subs, endpoint)
		if len(subs) == 0 {
			delete(m.rows, userID)
		}
		owners = append(owners, userID)
	}
	sort.Strings(owners)
	return owners, nil
}

func (m *memStore) ListSubscriptions(ctx context.Context) ([]models.SubscriptionRecord, error) {
	userIDs, err := m.ListUserIDs(ctx)
	if err != nil {
		return nil, err
	}
	var records []models.SubscriptionRecord
	for _, userID := range userIDs {
		subs, err := m.ListUserSubscriptions(ctx, userID)
		if err != nil {
			return nil, err
		}
		for _, sub := range subs {
			records = append(records, models.SubscriptionRecord{UserID: userID, Subscription: sub})
		}
	}
	return records, nil
}

func (m *memStore) ListUserSubscriptions(_ context.Context, userID string) ([]models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPlaintext || m.failUserSubs[userID] {
		return nil, errStoreDown
	}
	subs := []models.Subscription{}
	for _, sub := range m.rows[userID] {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].CreatedAt.Before(subs[j].CreatedAt)
		}
		return subs[i].ID < subs[j].ID
	})
	return subs, nil
}

func (m *memStore) ListUserIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPlaintext || m.failListUsers {
		return nil, errStoreDown
	}
	userIDs := make([]string, 0, len(m.rows))
	for userID := range m.rows {
		userIDs = append(userIDs, userID)
	}
	sort.Strings(userIDs)
	return userIDs, nil
}

func (m *memStore) UpsertBlob(_ context.Context, blob models.EncryptedBlob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failBlobs {
		return errStoreDown
	}
	m.blobs[blob.UserHash] = blob
	return nil
}

func (m *memStore) DeleteBlob(_ context.Context, userHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failBlobs {
		return errStoreDown
	}
	delete(m.blobs, userHash)
	return nil
}

func (m *memStore) ListBlobs(_ context.Context) ([]models.EncryptedBlob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failBlobs {
		return nil, errStoreDown
	}
	blobs := make([]models.EncryptedBlob, 0, len(m.blobs))
	for _, blob := range m.blobs {
		blobs = append(blobs, blob)
	}
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].UserHash < blobs[j].UserHash })
	return blobs, nil
}

func (m *memStore) CountBlobs(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCount {
		return 0, errStoreDown
	}
	return len(m.blobs), nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) blob(userHash string) (models.EncryptedBlob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.blobs[userHash]
	return blob, ok
}

func (m *memStore) blobCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}

func (m *memStore) rowCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows[userID])
}
