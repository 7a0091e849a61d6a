package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
)

const signatureHeader = "X-Push-Signature"

// validSignature checks X-Push-Signature against HMAC-SHA256(body, secret)
// and restores the body for the caller.
func validSignature(r *http.Request, secret string) bool {
	sig := r.Header.Get(signatureHeader)
	if secret == "" || sig == "" {
		return false
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return false
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(sig), []byte(expected))
}

// SignedSendHandler lets the host application's backend trigger delivery
// without a browser session. It is disabled when no WEBHOOK_SECRET is set.
func (h *Handler) SignedSendHandler(w http.ResponseWriter, r *http.Request) {
	if h.WebhookSecret == "" {
		http.NotFound(w, r)
		return
	}
	if !validSignature(r, h.WebhookSecret) {
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Message == "" {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	h.send(w, r, req)
}
