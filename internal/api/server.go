// Package api provides the HTTP API server and handlers for offline downloads and reading progress.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/booksyapp/booksy-server/internal/auth"
	"github.com/booksyapp/booksy-server/internal/http/response"
	"github.com/booksyapp/booksy-server/internal/ratelimit"
	"github.com/booksyapp/booksy-server/internal/sse"
	"github.com/booksyapp/booksy-server/internal/store"
)

// Config holds HTTP-layer settings.
type Config struct {
	CORSAllowedOrigins []string
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store      store.Store
	services   *Services
	sseManager *sse.Manager
	router     *chi.Mux
	api        huma.API
	logger     *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(
	cfg Config,
	st store.Store,
	services *Services,
	tokens *auth.TokenService,
	limiter *ratelimit.KeyedRateLimiter,
	sseManager *sse.Manager,
	logger *slog.Logger,
) *Server {
	router := chi.NewRouter()

	// Middleware must be registered before humachi mounts its routes.
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Last-Event-ID"},
		ExposedHeaders:   []string{"Content-Disposition", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	router.Use(middleware.Compress(5))
	router.Use(authMiddleware(tokens))
	if limiter != nil {
		router.Use(RateLimitMiddleware(limiter, logger))
	}

	router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.NotFound(w, "route not found", logger)
	})

	s := &Server{
		store:      st,
		services:   services,
		sseManager: sseManager,
		router:     router,
		api:        humachi.New(router, newHumaConfig()),
		logger:     logger,
	}
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerDownloadRoutes()
	s.registerSourceRoutes()
	s.registerProgressRoutes()
	s.registerAnnotationRoutes()

	// Raw byte and event streams bypass huma's JSON serialization.
	router.Get("/api/v1/books/{bookId}/file", s.handleStreamBookFile)
	router.Get("/api/v1/events", sse.NewHandler(sseManager, requestUser, logger).ServeHTTP)

	return s
}

func newHumaConfig() huma.Config {
	humaConfig := huma.DefaultConfig("Booksy Sync API", "1.0.0")
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	// No $schema links: bodies are wrapped in the envelope.
	humaConfig.CreateHooks = nil
	humaConfig.Transformers = []huma.Transformer{EnvelopeTransformer}
	return humaConfig
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API exposes the huma API, mainly for tests.
func (s *Server) API() huma.API {
	return s.api
}

var bearerSecurity = []map[string][]string{{"bearer": {}}}
