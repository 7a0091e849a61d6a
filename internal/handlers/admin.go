package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// === Admin push management ===

func (h *Handler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Subs.GetStats())
}

func (h *Handler) MigrateHandler(w http.ResponseWriter, r *http.Request) {
	res, err := h.Subs.MigrateToEncrypted(r.Context())
	if err != nil {
		h.serviceError(w, err, "Failed to migrate subscriptions")
		return
	}

	h.log.Info("push subscription migration triggered by admin",
		zap.String("admin", currentUser(r).ID), zap.Int("migrated_users", res.MigratedUsers))
	writeJSON(w, http.StatusOK, res)
}

type sendRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

func (h *Handler) SendHandler(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Message == "" {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	h.send(w, r, req)
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request, req sendRequest) {
	res, err := h.Notifier.SendToUser(r.Context(), req.UserID, []byte(req.Message))
	if err != nil {
		h.log.Error("push delivery finished with errors", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, res)
}

// PurgeUserSubscriptionsHandler drops every subscription of the user in the
// path, e.g. when the account is deleted by the host application.
func (h *Handler) PurgeUserSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	removed, err := h.Subs.RemoveAllSubscriptions(r.Context(), userID)
	if err != nil {
		h.serviceError(w, err, "Failed to purge subscriptions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true, "removed": removed})
}
