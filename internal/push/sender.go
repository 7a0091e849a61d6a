package push

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"push-vault-go/internal/config"
	"push-vault-go/internal/crypto"
	"push-vault-go/internal/models"
)

// Subscriptions is the part of the subscription service the sender needs.
type Subscriptions interface {
	GetSubscriptions(userID string) []models.Subscription
	RemoveByEndpoint(ctx context.Context, endpoint string) (bool, error)
}

type SendResult struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Removed int `json:"removed"`
}

type Sender struct {
	subs   Subscriptions
	vapid  config.VAPIDConfig
	client webpush.HTTPClient
	log    *zap.Logger
}

// NewSender returns a Sender signing with vapid. A nil client uses
// webpush-go's default.
func NewSender(subs Subscriptions, vapid config.VAPIDConfig, client webpush.HTTPClient, log *zap.Logger) *Sender {
	return &Sender{
		subs:   subs,
		vapid:  vapid,
		client: client,
		log:    log,
	}
}

// SendToUser delivers payload to every subscription of the user. Endpoints
// the push service reports as gone (404, 410) are removed.
func (s *Sender) SendToUser(ctx context.Context, userID string, payload []byte) (SendResult, error) {
	var (
		res  SendResult
		errs []error
	)

	for _, sub := range s.subs.GetSubscriptions(userID) {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		resp, err := webpush.SendNotificationWithContext(ctx, payload, sub.WebPush(), &webpush.Options{
			HTTPClient:      s.client,
			Subscriber:      s.vapid.Subscriber,
			VAPIDPublicKey:  s.vapid.PublicKey,
			VAPIDPrivateKey: s.vapid.PrivateKey,
			TTL:             s.vapid.TTL,
		})
		if err != nil {
			res.Failed++
			s.log.Warn("failed to send push notification",
				zap.String("user_hash", crypto.HashUserID(userID)), zap.Error(err))
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
			s.log.Info("removing expired push subscription", zap.Int("status", resp.StatusCode))
			if _, err := s.subs.RemoveByEndpoint(ctx, sub.Endpoint); err != nil {
				errs = append(errs, err)
			}
			res.Removed++
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			res.Sent++
		default:
			res.Failed++
			s.log.Warn("unexpected push service response",
				zap.String("user_hash", crypto.HashUserID(userID)), zap.Int("status", resp.StatusCode))
		}
	}

	return res, errors.Join(errs...)
}
