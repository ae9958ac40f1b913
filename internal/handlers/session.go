package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/google/uuid"
)

const (
	sessionCookieName = "legalreview_session"
	sessionMaxAge     = 7 * 24 * 60 * 60
)

type sessionKey struct{}

// withSession assigns every browser a workspace id and records activity on it.
func (h *Handler) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if cookie, err := r.Cookie(sessionCookieName); err == nil {
			if parsed, err := uuid.Parse(cookie.Value); err == nil {
				id = parsed.String()
			}
		}
		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookieName,
				Value:    id,
				Path:     "/",
				MaxAge:   sessionMaxAge,
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		if err := h.deepScan.Touch(id); err != nil {
			log.Printf("handlers: session %s: %v", id, err)
			http.Error(w, "Session unavailable", http.StatusInternalServerError)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, id)))
	})
}

// sessionID returns the workspace id set by withSession
func sessionID(r *http.Request) string {
	id, _ := r.Context().Value(sessionKey{}).(string)
	return id
}
