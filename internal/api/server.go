// Package api provides the HTTP API of the NeoBackup scheduler: commands,
// schedules, blocklists, package extras, backups, batches, exports and the
// event stream.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/neobackupapp/neobackup-server/internal/auth"
	"github.com/neobackupapp/neobackup-server/internal/ratelimit"
	"github.com/neobackupapp/neobackup-server/internal/sse"
)

const (
	apiTitle       = "NeoBackup Scheduler API"
	commandsPrefix = "/api/v1/commands"
)

// Options configures the cross-cutting behavior of the server.
type Options struct {
	Version        string
	AuthRequired   bool
	Tokens         TokenVerifier
	CommandLimiter *ratelimit.KeyedRateLimiter
	CORSOrigins    []string
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	services     *Services
	authRequired bool
	sseManager   *sse.Manager
	sseHandler   *sse.Handler
	router       *chi.Mux
	api          huma.API
	logger       *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(services *Services, sseManager *sse.Manager, opts Options, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins(opts.CORSOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	router.Use(authMiddleware(opts.Tokens))
	router.Use(RateLimitMiddleware(opts.CommandLimiter, commandsPrefix, logger))

	version := opts.Version
	if version == "" {
		version = "dev"
	}
	humaConfig := huma.DefaultConfig(apiTitle, version)
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	api := humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s := &Server{
		services:     services,
		authRequired: opts.AuthRequired,
		sseManager:   sseManager,
		router:       router,
		api:          api,
		logger:       logger,
	}
	if sseManager != nil {
		s.sseHandler = sse.NewHandler(sseManager, logger)
	}

	s.registerHealthRoutes()
	s.registerInstanceRoutes()
	s.registerCommandRoutes()
	s.registerScheduleRoutes()
	s.registerBlocklistRoutes()
	s.registerExtrasRoutes()
	s.registerBackupRoutes()
	s.registerSearchRoutes()
	s.registerBatchRoutes()
	s.registerExportRoutes()
	s.registerStatusRoutes()
	s.registerEventRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API, for OpenAPI export and tests.
func (s *Server) API() huma.API {
	return s.api
}

// registerEventRoutes mounts the SSE stream. It streams outside huma.
func (s *Server) registerEventRoutes() {
	if s.sseHandler == nil {
		return
	}
	s.router.Get("/api/v1/events", func(w http.ResponseWriter, r *http.Request) {
		if err := s.requireScope(r.Context(), auth.ScopeRead); err != nil {
			if apiErr, ok := err.(*APIError); ok {
				writeError(w, apiErr)
				return
			}
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		s.sseHandler.ServeHTTP(w, r)
	})
}

func corsOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
