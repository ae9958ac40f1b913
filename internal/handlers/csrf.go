package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"mime"
	"net/http"
	"sync"
	"time"
)

const (
	csrfCookieName = "csrf_token"
	csrfFormField  = "csrf_token"
	csrfHeader     = "X-CSRF-Token"
	csrfTokenLen   = 32
	csrfMaxAge     = 12 * time.Hour
)

// csrfToken is an issued token, valid only for the session it was issued to
type csrfToken struct {
	session string
	expires time.Time
}

// csrfStore keeps the issued tokens of every session
type csrfStore struct {
	mu     sync.Mutex
	tokens map[string]csrfToken
}

var csrfTokens = &csrfStore{
	tokens: make(map[string]csrfToken),
}

func (s *csrfStore) issue(session string) (string, error) {
	raw := make([]byte, csrfTokenLen)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	s.mu.Lock()
	s.tokens[token] = csrfToken{session: session, expires: time.Now().Add(csrfMaxAge)}
	s.mu.Unlock()

	return token, nil
}

func (s *csrfStore) valid(token, session string) bool {
	if token == "" {
		return false
	}

	s.mu.Lock()
	t, ok := s.tokens[token]
	s.mu.Unlock()

	return ok && t.session == session && time.Now().Before(t.expires)
}

// purge drops tokens expired at now and returns how many were dropped
func (s *csrfStore) purge(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for token, t := range s.tokens {
		if !now.Before(t.expires) {
			delete(s.tokens, token)
			n++
		}
	}
	return n
}

// CleanupCSRFTokens drops expired tokens. It is run by the scheduler.
func CleanupCSRFTokens() int {
	return csrfTokens.purge(time.Now())
}

// csrfToken returns the session's token from its cookie, issuing a fresh
// one when the cookie is missing, expired or belongs to another session.
func (h *Handler) csrfToken(w http.ResponseWriter, r *http.Request) string {
	if h.disableCSRF {
		return ""
	}

	session := sessionID(r)
	if cookie, err := r.Cookie(csrfCookieName); err == nil && csrfTokens.valid(cookie.Value, session) {
		return cookie.Value
	}

	token, err := csrfTokens.issue(session)
	if err != nil {
		return ""
	}
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(csrfMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	return token
}

// csrfProtect rejects state-changing requests without a valid token. It
// must run after withSession.
func (h *Handler) csrfProtect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.disableCSRF || isSafeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(csrfCookieName)
		if err != nil || requestCSRFToken(r) != cookie.Value || !csrfTokens.valid(cookie.Value, sessionID(r)) {
			http.Error(w, "Invalid CSRF token", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// requestCSRFToken finds the submitted token in the header, the query string
// or an urlencoded form. Multipart bodies are left unread so uploads stream.
func requestCSRFToken(r *http.Request) string {
	if token := r.Header.Get(csrfHeader); token != "" {
		return token
	}
	if token := r.URL.Query().Get(csrfFormField); token != "" {
		return token
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/x-www-form-urlencoded" {
		return ""
	}
	if err := r.ParseForm(); err != nil {
		return ""
	}
	return r.PostForm.Get(csrfFormField)
}
