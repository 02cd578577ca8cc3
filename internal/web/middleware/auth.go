package middleware

import (
	"context"
	"net/http"
	"net/url"

	apimw "github.com/apexfest/checkin/internal/api/middleware"
	"github.com/apexfest/checkin/internal/services/auth"
)

type contextKey string

const (
	sessionContextKey contextKey = "session"
)

// GetSession retrieves the signed-in session from the request context
// Returns nil if no one is signed in
func GetSession(ctx context.Context) *auth.Session {
	session, _ := ctx.Value(sessionContextKey).(*auth.Session)
	return session
}

// RequireSubject returns middleware that requires a signed-in subject.
// Everyone else is sent to the login page, which returns them here afterwards.
func RequireSubject(authService *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := sessionFromCookie(r, authService)
			if session == nil || session.Role != auth.RoleSubject {
				// Store original URL to redirect back after sign in
				loginURL := "/login?redirect=" + url.QueryEscape(r.URL.RequestURI())
				http.Redirect(w, r, loginURL, http.StatusSeeOther)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth returns middleware that attempts authentication but doesn't require it
// Sets the session in context if signed in, nil otherwise
func OptionalAuth(authService *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := sessionFromCookie(r, authService)
			ctx := context.WithValue(r.Context(), sessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionFromCookie(r *http.Request, authService *auth.Service) *auth.Session {
	cookie, err := r.Cookie(apimw.SessionCookie)
	if err != nil {
		return nil
	}

	session, err := authService.ValidateSession(cookie.Value)
	if err != nil {
		return nil
	}

	return session
}
