package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"push-vault-go/internal/models"
)

// GetVAPIDKeyHandler returns the public VAPID key
func (h *Handler) GetVAPIDKeyHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"publicKey": h.VAPIDPublicKey,
	})
}

func (h *Handler) ListSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	subs := h.Subs.GetSubscriptions(currentUser(r).ID)
	writeJSON(w, http.StatusOK, map[string]any{"subscriptions": subs})
}

// SubscribePushHandler saves the browser's push subscription for the
// current user.
func (h *Handler) SubscribePushHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint string       `json:"endpoint"`
		Keys     webpush.Keys `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	sub, err := h.Subs.AddSubscription(r.Context(), currentUser(r).ID, models.Subscription{
		Endpoint: req.Endpoint,
		Keys:     req.Keys,
	})
	if err != nil {
		h.serviceError(w, err, "Failed to save subscription")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "subscription": sub})
}

func (h *Handler) UnsubscribePushHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	removed, err := h.Subs.RemoveSubscription(r.Context(), currentUser(r).ID, req.Endpoint)
	if err != nil {
		h.serviceError(w, err, "Failed to remove subscription")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true, "removed": removed})
}

func (h *Handler) DeleteSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	removed, err := h.Subs.RemoveAllSubscriptions(r.Context(), currentUser(r).ID)
	if err != nil {
		h.serviceError(w, err, "Failed to remove subscriptions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true, "removed": removed})
}
