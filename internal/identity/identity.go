// Package identity resolves the interview session token carried by a request.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	SessionHeaderName = "X-Intake-Session-ID"
	SessionQueryParam = "session_id"
	SessionCookieName = "intake_session"
)

type contextKey int

const sessionIDKey contextKey = iota

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// SessionIDFromContext extracts the session token from the request context.
// It is empty when the request carried none.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// WithSessionID returns a copy of ctx carrying id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SanitizeSessionID trims id and returns it if it is a well-formed token,
// otherwise the empty string.
func SanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if !sessionIDPattern.MatchString(id) {
		return ""
	}
	return id
}

// SessionIDFromRequest reads the token from the header, then the query
// string, then the cookie. Malformed tokens are ignored.
func SessionIDFromRequest(r *http.Request) string {
	if sid := SanitizeSessionID(r.Header.Get(SessionHeaderName)); sid != "" {
		return sid
	}
	if sid := SanitizeSessionID(r.URL.Query().Get(SessionQueryParam)); sid != "" {
		return sid
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return SanitizeSessionID(c.Value)
	}
	return ""
}

// Middleware injects the request's session token into its context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithSessionID(r.Context(), SessionIDFromRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetSessionCookie stores the token in an HttpOnly cookie that lives as long
// as the session.
func SetSessionCookie(w http.ResponseWriter, id string, ttl time.Duration, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

// IPFromRequest returns a normalized remote IP.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
