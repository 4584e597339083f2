package server

import (
	"net/http"
	"strings"
	"time"
)

// modalSessionID returns the modal session id for the request. A visitor
// without a usable cookie gets a fresh id; the cookie is only written when
// persist is set, so plain page views stay cookie-free.
func (h handler) modalSessionID(w http.ResponseWriter, r *http.Request, persist bool) string {
	id, _ := h.signup.SessionID(h.modalCookieValue(r))
	if persist {
		h.setModalCookie(w, r, id)
	}
	return id
}

func (h handler) modalCookieValue(r *http.Request) string {
	if c, err := r.Cookie(h.cookieName); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

// setModalCookie writes the cookie on every modal action so its lifetime
// slides with the stored session.
func (h handler) setModalCookie(w http.ResponseWriter, r *http.Request, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.modalCookieSecure(r),
		Expires:  time.Now().Add(h.cookieTTL),
		MaxAge:   int(h.cookieTTL.Seconds()),
	})
}

func (h handler) modalCookieSecure(r *http.Request) bool {
	if h.cookieForceSecure {
		return true
	}
	if strings.EqualFold(h.appEnv, "production") {
		return true
	}
	if r != nil && r.TLS != nil {
		return true
	}
	return r != nil && strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}
