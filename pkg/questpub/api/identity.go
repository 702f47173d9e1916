package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/jwtauth"
)

// Context keys for middleware
type contextKey string

const (
	UserIDKey contextKey = "user_id"
)

// UserIDHeader carries the caller id when a trusted proxy has authenticated it
const UserIDHeader = "X-User-ID"

// IdentityConfig selects how the caller's user id is resolved. Both sources
// may be enabled; a valid bearer token wins over the header.
type IdentityConfig struct {
	// JWTAuth verifies bearer tokens and reads the "sub" claim. Nil disables tokens.
	JWTAuth *jwtauth.JWTAuth
	// TrustHeader accepts X-User-ID as-is.
	TrustHeader bool
}

// NewJWTAuth returns an HS256 verifier, or nil when secret is empty
func NewJWTAuth(secret string) *jwtauth.JWTAuth {
	if secret == "" {
		return nil
	}
	return jwtauth.New("HS256", []byte(secret), nil)
}

// IdentityMiddleware stores the caller's user id in the request context.
// Requests without credentials pass through anonymously; a token that is
// present but fails verification is rejected with 401.
func IdentityMiddleware(cfg IdentityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := ""

			if cfg.JWTAuth != nil {
				token, err := jwtauth.VerifyRequest(cfg.JWTAuth, r, jwtauth.TokenFromHeader, jwtauth.TokenFromCookie)
				switch {
				case errors.Is(err, jwtauth.ErrNoTokenFound):
				case err != nil:
					slog.Debug("Rejected bearer token", "err", err)
					writeError(w, r, http.StatusUnauthorized, "invalid token", nil)
					return
				default:
					userID = token.Subject()
				}
			}

			if userID == "" && cfg.TrustHeader {
				userID = r.Header.Get(UserIDHeader)
			}

			if userID != "" {
				r = r.WithContext(context.WithValue(r.Context(), UserIDKey, userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext returns the caller id, or "" for anonymous requests
func UserIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}

// RequireUser rejects anonymous requests with 401
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserIDFromContext(r.Context()) == "" {
			writeError(w, r, http.StatusUnauthorized, "authentication required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
