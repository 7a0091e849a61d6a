package handlers

import (
	"context"
	"net/http"
	"strconv"
)

type ctxKey int

const userKey ctxKey = iota

type sessionUser struct {
	ID   string
	Role string
}

// AuthMiddleware rejects requests without a logged-in session user.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, _ := h.Sessions.Get(r, h.SessionName)

		var userID string
		switch v := session.Values["user_id"].(type) {
		case string:
			userID = v
		case int:
			if v != 0 {
				userID = strconv.Itoa(v)
			}
		}
		if userID == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		role, _ := session.Values["role"].(string)
		ctx := context.WithValue(r.Context(), userKey, sessionUser{ID: userID, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminMiddleware checks if user is admin. It must run after AuthMiddleware.
func (h *Handler) AdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if currentUser(r).Role != "admin" {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func currentUser(r *http.Request) sessionUser {
	user, _ := r.Context().Value(userKey).(sessionUser)
	return user
}
