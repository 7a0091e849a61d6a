package subscriptions

import (
	"time"

	"github.com/google/uuid"

	"push-vault-go/internal/models"
)

// Cache is the in-memory index of subscriptions. It keeps a forward index
// (user -> ordered list, unique by endpoint) and a reverse index
// (endpoint -> user). Cache is not safe for concurrent use; Service owns the
// lock.
type Cache struct {
	byUser     map[string][]models.Subscription
	byEndpoint map[string]string
}

func NewCache() *Cache {
	return &Cache{
		byUser:     make(map[string][]models.Subscription),
		byEndpoint: make(map[string]string),
	}
}

// Get returns a copy of the user's list. The result is never nil.
func (c *Cache) Get(userID string) []models.Subscription {
	subs := c.byUser[userID]
	out := make([]models.Subscription, len(subs))
	copy(out, subs)
	return out
}

// Put inserts sub for userID, replacing an entry with the same endpoint.
// A replaced entry keeps its ID and CreatedAt unless sub carries new ones.
// If the endpoint belonged to another user it is removed from that user's
// list and the previous owner is returned.
func (c *Cache) Put(userID string, sub models.Subscription) (models.Subscription, string) {
	var previousOwner string
	if owner, ok := c.byEndpoint[sub.Endpoint]; ok && owner != userID {
		c.Remove(owner, sub.Endpoint)
		previousOwner = owner
	}

	subs := c.byUser[userID]
	for i, existing := range subs {
		if existing.Endpoint != sub.Endpoint {
			continue
		}
		if sub.ID == "" {
			sub.ID = existing.ID
		}
		if sub.CreatedAt.IsZero() {
			sub.CreatedAt = existing.CreatedAt
		}
		subs[i] = sub
		c.byEndpoint[sub.Endpoint] = userID
		return sub, previousOwner
	}

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	c.byUser[userID] = append(subs, sub)
	c.byEndpoint[sub.Endpoint] = userID
	return sub, previousOwner
}

// Remove drops the user's entry for endpoint and reports whether one existed.
// The reverse mapping is cleared only while it still points at userID.
func (c *Cache) Remove(userID, endpoint string) bool {
	if owner, ok := c.byEndpoint[endpoint]; ok && owner == userID {
		delete(c.byEndpoint, endpoint)
	}

	subs := c.byUser[userID]
	for i, sub := range subs {
		if sub.Endpoint != endpoint {
			continue
		}
		subs = append(subs[:i:i], subs[i+1:]...)
		if len(subs) == 0 {
			delete(c.byUser, userID)
		} else {
			c.byUser[userID] = subs
		}
		return true
	}
	return false
}

// RemoveAll drops every subscription of the user and returns them.
func (c *Cache) RemoveAll(userID string) []models.Subscription {
	subs := c.byUser[userID]
	for _, sub := range subs {
		if owner := c.byEndpoint[sub.Endpoint]; owner == userID {
			delete(c.byEndpoint, sub.Endpoint)
		}
	}
	delete(c.byUser, userID)
	return subs
}

func (c *Cache) Owner(endpoint string) (string, bool) {
	userID, ok := c.byEndpoint[endpoint]
	return userID, ok
}

// Counts returns the number of users and subscriptions held.
func (c *Cache) Counts() (users, subs int) {
	for _, list := range c.byUser {
		subs += len(list)
	}
	return len(c.byUser), subs
}

// Load appends subs to the user's list with Put semantics, used while bulk
// loading. An endpoint already held by another user is skipped rather than
// moved; the owners of skipped endpoints are returned.
func (c *Cache) Load(userID string, subs []models.Subscription) []string {
	var conflicts []string
	for _, sub := range subs {
		if owner, ok := c.byEndpoint[sub.Endpoint]; ok && owner != userID {
			conflicts = append(conflicts, owner)
			continue
		}
		c.Put(userID, sub)
	}
	return conflicts
}

func (c *Cache) Reset() {
	c.byUser = make(map[string][]models.Subscription)
	c.byEndpoint = make(map[string]string)
}
