package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/questlore/questpub/pkg/questpub"
	"github.com/questlore/questpub/pkg/questpub/api"
	"github.com/questlore/questpub/pkg/questpub/config"
)

// HTTPServer wraps the quest service for HTTP access
type HTTPServer struct {
	service        questpub.Service
	config         *config.ServerConfig
	metricsHandler http.Handler
}

// NewHTTPServer creates a new HTTP server wrapper. metricsHandler may be nil.
func NewHTTPServer(service questpub.Service, serverConfig *config.ServerConfig, metricsHandler http.Handler) *HTTPServer {
	return &HTTPServer{
		service:        service,
		config:         serverConfig,
		metricsHandler: metricsHandler,
	}
}

// Routes sets up the HTTP routes
func (s *HTTPServer) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS for development
	if s.config.Environment == "development" {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Access-Control-Allow-Origin", "*")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+api.UserIDHeader)

				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusOK)
					return
				}

				next.ServeHTTP(w, r)
			})
		})
	}

	r.Get("/health", s.handleHealth)
	if s.metricsHandler != nil {
		r.Handle("/metrics", s.metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(api.IdentityMiddleware(api.IdentityConfig{
			JWTAuth:     api.NewJWTAuth(s.config.JWTSecret),
			TrustHeader: s.config.TrustIdentityHeader,
		}))
		r.Mount("/", api.NewQuestHandler(s.service).Routes())
	})

	return r
}

// HealthResponse is the body of /health
type HealthResponse struct {
	Status       string `json:"status"`
	Environment  string `json:"environment"`
	Database     string `json:"database"`
	Storage      string `json:"storage"`
	UploadPolicy string `json:"upload_policy"`
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HealthResponse{
		Status:       "healthy",
		Environment:  s.config.Environment,
		Database:     s.config.DatabaseType,
		Storage:      s.config.Storage.Type,
		UploadPolicy: s.config.UploadPolicy,
	})
}
