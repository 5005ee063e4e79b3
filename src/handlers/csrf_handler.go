package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/username/capsim/backend/src/logger"
)

const csrfCookieName = "_gorilla_csrf"

// GetCSRFToken issues a fresh token as both a cookie and a response header so
// the frontend can replay it on state-changing requests.
func GetCSRFToken(w http.ResponseWriter, r *http.Request) {
	token := newCSRFToken()

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		MaxAge:   3600,
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-CSRF-Token", token)
	json.NewEncoder(w).Encode(map[string]string{"csrfToken": token})
}

func newCSRFToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		logger.L.Error("Failed to read random bytes for CSRF token", "error", err)
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return base64.StdEncoding.EncodeToString(b)
}

// CSRFMiddleware enforces the double-submit pattern: the X-CSRF-Token header
// must match the CSRF cookie on every state-changing request. Safe methods
// pass through untouched.
func CSRFMiddleware(csrfKey []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			headerToken := r.Header.Get("X-CSRF-Token")
			cookie, cookieErr := r.Cookie(csrfCookieName)
			if headerToken != "" && cookieErr == nil && headerToken == cookie.Value {
				next.ServeHTTP(w, r)
				return
			}

			logger.FromContext(r.Context()).Warn("CSRF validation failed",
				"method", r.Method,
				"url", r.URL.String(),
				"headerTokenPresent", headerToken != "",
				"cookiePresent", cookieErr == nil,
				"origin", r.Header.Get("Origin"),
			)
			http.Error(w, "CSRF token validation failed", http.StatusForbidden)
		})
	}
}
