package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityRouter(cfg IdentityConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(IdentityMiddleware(cfg))
	r.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(UserIDFromContext(r.Context())))
	})
	r.With(RequireUser).Get("/private", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func bearer(t *testing.T, secret, subject string) string {
	t.Helper()
	_, token, err := NewJWTAuth(secret).Encode(map[string]interface{}{"sub": subject})
	require.NoError(t, err)
	return "Bearer " + token
}

func TestIdentityMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		cfg        IdentityConfig
		authHeader string
		userHeader string
		wantStatus int
		wantUser   string
	}{
		{
			name:       "anonymous",
			cfg:        IdentityConfig{JWTAuth: NewJWTAuth(testSecret)},
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid token",
			cfg:        IdentityConfig{JWTAuth: NewJWTAuth(testSecret)},
			authHeader: bearer(t, testSecret, "alice"),
			wantStatus: http.StatusOK,
			wantUser:   "alice",
		},
		{
			name:       "token signed with another secret",
			cfg:        IdentityConfig{JWTAuth: NewJWTAuth(testSecret)},
			authHeader: bearer(t, "other-secret", "mallory"),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "header ignored when untrusted",
			cfg:        IdentityConfig{JWTAuth: NewJWTAuth(testSecret)},
			userHeader: "bob",
			wantStatus: http.StatusOK,
		},
		{
			name:       "trusted header",
			cfg:        IdentityConfig{TrustHeader: true},
			userHeader: "bob",
			wantStatus: http.StatusOK,
			wantUser:   "bob",
		},
		{
			name:       "token wins over header",
			cfg:        IdentityConfig{JWTAuth: NewJWTAuth(testSecret), TrustHeader: true},
			authHeader: bearer(t, testSecret, "alice"),
			userHeader: "bob",
			wantStatus: http.StatusOK,
			wantUser:   "alice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			if tt.userHeader != "" {
				req.Header.Set(UserIDHeader, tt.userHeader)
			}
			w := httptest.NewRecorder()
			identityRouter(tt.cfg).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantUser, w.Body.String())
			}
		})
	}
}

func TestRequireUser(t *testing.T) {
	router := identityRouter(IdentityConfig{TrustHeader: true})

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set(UserIDHeader, "u1")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestNewJWTAuthDisabled(t *testing.T) {
	assert.Nil(t, NewJWTAuth(""))
}
