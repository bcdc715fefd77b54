package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	lockstep "github.com/lockstep-auth/lockstep"
	"github.com/lockstep-auth/lockstep/jwt"
)

// SessionCookie is the cookie name carrying the opaque session ID.
const SessionCookie = "lockstep_session"

type authStatusContextKey struct{}
type claimsContextKey struct{}
type sessionIDContextKey struct{}

// StatusFromContext returns the auth status attached by [RequireSession].
func StatusFromContext(ctx context.Context) (*lockstep.AuthStatus, bool) {
	status, ok := ctx.Value(authStatusContextKey{}).(*lockstep.AuthStatus)
	return status, ok
}

// ClaimsFromContext returns the token claims attached by [RequireToken].
func ClaimsFromContext(ctx context.Context) (*jwt.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*jwt.AccessClaims)
	return claims, ok
}

// SessionIDFromContext returns the session ID attached by [RequireSession].
func SessionIDFromContext(ctx context.Context) (string, bool) {
	sid, ok := ctx.Value(sessionIDContextKey{}).(string)
	return sid, ok
}

// RequireSession returns middleware that resolves the session cookie and
// rejects requests without a live session. The resolved status and session
// ID are attached to the request context.
func RequireSession(engine *lockstep.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			cookie, err := r.Cookie(SessionCookie)
			if err != nil || cookie.Value == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			status, err := engine.Status(r.Context(), cookie.Value)
			if err != nil {
				// A backend failure is not the caller's fault; only a dead
				// or missing session earns a 401.
				if errors.Is(err, lockstep.ErrUnauthorized) {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), authStatusContextKey{}, status)
			ctx = context.WithValue(ctx, sessionIDContextKey{}, cookie.Value)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireToken returns middleware that validates a bearer access token,
// skipping the session store entirely. Use it on routes that accept the
// signed proof of full password-plus-TOTP authentication.
func RequireToken(engine *lockstep.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := engine.ValidateAccessToken(token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
