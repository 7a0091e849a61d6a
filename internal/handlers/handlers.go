package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"push-vault-go/internal/models"
	"push-vault-go/internal/push"
	"push-vault-go/internal/subscriptions"
)

// SubscriptionService is the subscription store as seen by the API.
type SubscriptionService interface {
	State() subscriptions.State
	GetSubscriptions(userID string) []models.Subscription
	AddSubscription(ctx context.Context, userID string, sub models.Subscription) (models.Subscription, error)
	RemoveSubscription(ctx context.Context, userID, endpoint string) (bool, error)
	RemoveAllSubscriptions(ctx context.Context, userID string) (bool, error)
	GetStats() models.Stats
	MigrateToEncrypted(ctx context.Context) (models.MigrationResult, error)
}

type Notifier interface {
	SendToUser(ctx context.Context, userID string, payload []byte) (push.SendResult, error)
}

// Options carries the per-deployment values of the API.
type Options struct {
	// SessionName is the cookie shared with the host application, which
	// owns login and writes the user_id and role values.
	SessionName    string
	VAPIDPublicKey string
	WebhookSecret  string
}

type Handler struct {
	Subs     SubscriptionService
	Notifier Notifier
	Sessions sessions.Store
	Options
	log *zap.Logger
}

func NewHandler(subs SubscriptionService, notifier Notifier, sessionStore sessions.Store, opts Options, log *zap.Logger) *Handler {
	return &Handler{
		Subs:     subs,
		Notifier: notifier,
		Sessions: sessionStore,
		Options:  opts,
		log:      log,
	}
}

// Routes builds the router. metrics is mounted at /metrics when non-nil.
func (h *Handler) Routes(metrics http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.HealthHandler)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Route("/api/push", func(r chi.Router) {
		r.Get("/vapid-key", h.GetVAPIDKeyHandler)

		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)
			r.Get("/subscriptions", h.ListSubscriptionsHandler)
			r.Post("/subscribe", h.SubscribePushHandler)
			r.Post("/unsubscribe", h.UnsubscribePushHandler)
			r.Delete("/subscriptions", h.DeleteSubscriptionsHandler)
		})
	})

	r.Route("/api/admin/push", func(r chi.Router) {
		r.Use(h.AuthMiddleware)
		r.Use(h.AdminMiddleware)
		r.Get("/stats", h.StatsHandler)
		r.Post("/migrate", h.MigrateHandler)
		r.Post("/send", h.SendHandler)
		r.Delete("/users/{userID}/subscriptions", h.PurgeUserSubscriptionsHandler)
	})

	// Server-to-server delivery trigger for the host application.
	r.Post("/internal/push/send", h.SignedSendHandler)

	return r
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	state := h.Subs.State()
	status := http.StatusOK
	if state != subscriptions.StateReady {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"status": state.String()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// serviceError maps service errors to a status and a client-safe message.
// The cause is logged.
func (h *Handler) serviceError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, subscriptions.ErrInvalidSubscription):
		http.Error(w, "Invalid subscription", http.StatusBadRequest)
	case errors.Is(err, subscriptions.ErrNotReady):
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, subscriptions.ErrEncryptionDisabled):
		http.Error(w, "Encryption is not enabled", http.StatusConflict)
	default:
		h.log.Error(msg, zap.Error(err))
		http.Error(w, msg, http.StatusInternalServerError)
	}
}
