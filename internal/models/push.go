package models

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
)

// Subscription is one push endpoint registration. Keys are forwarded to the
// push service untouched.
type Subscription struct {
	ID        string       `json:"id"`
	Endpoint  string       `json:"endpoint"`
	Keys      webpush.Keys `json:"keys"`
	CreatedAt time.Time    `json:"created_at"`
}

// SubscriptionRecord is a row of the plaintext subscriptions table.
type SubscriptionRecord struct {
	UserID string `json:"user_id"`
	Subscription
}

// WebPush converts the subscription into the form webpush-go sends to.
func (s Subscription) WebPush() *webpush.Subscription {
	return &webpush.Subscription{
		Endpoint: s.Endpoint,
		Keys:     s.Keys,
	}
}

// EncryptedBlob is the sealed snapshot of one user's whole subscription list,
// keyed by the hash of the user id.
type EncryptedBlob struct {
	UserHash   string    `json:"user_hash"`
	Ciphertext []byte    `json:"ciphertext"` // Poly1305 tag appended
	Nonce      []byte    `json:"nonce"`
	UpdatedAt  time.Time `json:"updated_at"`
}
