package server

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/flowweave/flowweave-web/internal/logger"
)

const (
	csrfCookieName = "csrf_token"
	csrfFieldName  = "csrf_token"
	csrfHeaderName = "X-CSRF-Token"
	// rand.Text yields 26 base32 characters
	csrfTokenLength = 26
)

type csrfContextKey struct{}

// requireCSRF pins a random token to the browser in an HttpOnly cookie and
// rejects unsafe requests that do not echo it back, either in the
// X-CSRF-Token header (htmx) or in the csrf_token form field.
func requireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := csrfCookieToken(r)
		if !ok {
			token = rand.Text()
			http.SetCookie(w, &http.Cookie{
				Name:     csrfCookieName,
				Value:    token,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
				Secure:   r.TLS != nil,
			})
		}
		r = r.WithContext(context.WithValue(r.Context(), csrfContextKey{}, token))

		if !isSafeMethod(r.Method) && !ok {
			rejectCSRF(w, r, "missing cookie")
			return
		}
		if !isSafeMethod(r.Method) && !sameToken(token, submittedCSRFToken(r)) {
			rejectCSRF(w, r, "token mismatch")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func rejectCSRF(w http.ResponseWriter, r *http.Request, reason string) {
	logger.FromContext(r.Context(), nil).Info("csrf check failed",
		zap.String("path", r.URL.Path),
		zap.String("reason", reason),
	)
	http.Error(w, "invalid csrf token", http.StatusForbidden)
}

func csrfTokenFromContext(r *http.Request) string {
	token, _ := r.Context().Value(csrfContextKey{}).(string)
	return token
}

// csrfCookieToken returns the browser's token when it is well formed.
func csrfCookieToken(r *http.Request) (string, bool) {
	c, err := r.Cookie(csrfCookieName)
	if err != nil || len(c.Value) != csrfTokenLength {
		return "", false
	}
	return c.Value, true
}

func submittedCSRFToken(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(csrfHeaderName)); v != "" {
		return v
	}
	return strings.TrimSpace(r.PostFormValue(csrfFieldName))
}

func sameToken(want, got string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
