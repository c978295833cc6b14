package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/opportunity-scanner/internal/circuitbreaker"
	"github.com/opportunity-scanner/internal/config"
	"github.com/opportunity-scanner/internal/logging"
	"github.com/opportunity-scanner/internal/models"
	"github.com/opportunity-scanner/internal/service"
	"github.com/opportunity-scanner/internal/types"
)

// ScanService starts scans and reads scan state.
type ScanService interface {
	StartScan(ctx context.Context, userID string, nicheNames []string) (*models.Scan, error)
	GetScan(ctx context.Context, userID, scanID string) (*models.Scan, error)
	History(ctx context.Context, userID string, limit int) ([]*models.Scan, error)
}

// OpportunityService reads and flags a user's stored opportunities.
type OpportunityService interface {
	List(ctx context.Context, userID string, filter models.OpportunityFilter) (*models.OpportunityPage, error)
	Get(ctx context.Context, userID, opportunityID string) (*models.Opportunity, error)
	SetSaved(ctx context.Context, userID, opportunityID string, saved bool) error
	MarkApplied(ctx context.Context, userID, opportunityID string) error
}

// CreditService exposes the caller's credit balance.
type CreditService interface {
	Balance(ctx context.Context, userID string, tier types.UserTier) (*models.CreditBalance, error)
}

// NicheService manages a user's scan niches.
type NicheService interface {
	Create(ctx context.Context, userID string, input *service.CreateNicheInput) (*models.Niche, error)
	List(ctx context.Context, userID string, activeOnly bool) ([]*models.Niche, error)
	Update(ctx context.Context, userID, nicheID string, input *service.UpdateNicheInput) (*models.Niche, error)
	Delete(ctx context.Context, userID, nicheID string) error
}

// UserService manages user accounts.
type UserService interface {
	Create(ctx context.Context, input *service.CreateUserInput) (*models.User, error)
	Get(ctx context.Context, userID string) (*models.User, error)
	UpdateTier(ctx context.Context, userID string, tier types.UserTier) error
}

// AnalyticsService reads aggregated scan analytics.
type AnalyticsService interface {
	Summary(ctx context.Context, userID string, days int) (*models.AnalyticsSummary, error)
}

// SourceHealth reports per-source circuit breaker state.
type SourceHealth interface {
	AllStats() []*circuitbreaker.Stats
}

// Server is the HTTP API server
type Server struct {
	router        *mux.Router
	httpServer    *http.Server
	logger        *logging.Logger
	scans         ScanService
	opportunities OpportunityService
	credits       CreditService
	niches        NicheService
	users         UserService
	analytics     AnalyticsService
	sourceHealth  SourceHealth
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimit       config.RateLimitConfig
}

// DefaultServerConfig returns sensible defaults
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            "8080",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RateLimit: config.RateLimitConfig{
			FreeTier:    60,
			ProTier:     300,
			PremiumTier: 1200,
		},
	}
}

// NewServer creates a new API server
func NewServer(
	cfg ServerConfig,
	scans ScanService,
	opportunities OpportunityService,
	credits CreditService,
	niches NicheService,
	users UserService,
	analytics AnalyticsService,
	logger *logging.Logger,
) *Server {
	s := &Server{
		router:        mux.NewRouter(),
		logger:        logger,
		scans:         scans,
		opportunities: opportunities,
		credits:       credits,
		niches:        niches,
		users:         users,
		analytics:     analytics,
	}

	s.setupRouter(cfg)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

func (s *Server) setupRouter(cfg ServerConfig) {
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(cfg.RateLimit))
	s.router.Use(CompressionMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET", "OPTIONS")

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/users", s.handleCreateUser).Methods("POST", "OPTIONS")
	api.HandleFunc("/users/{id}", s.handleGetUser).Methods("GET", "OPTIONS")
	api.HandleFunc("/users/{id}/tier", s.handleUpdateTier).Methods("PUT", "OPTIONS")

	api.HandleFunc("/scans", s.handleStartScan).Methods("POST", "OPTIONS")
	api.HandleFunc("/scans", s.handleScanHistory).Methods("GET", "OPTIONS")
	api.HandleFunc("/scans/{id}", s.handleGetScan).Methods("GET", "OPTIONS")

	api.HandleFunc("/opportunities", s.handleListOpportunities).Methods("GET", "OPTIONS")
	api.HandleFunc("/opportunities/{id}", s.handleGetOpportunity).Methods("GET", "OPTIONS")
	api.HandleFunc("/opportunities/{id}", s.handleUpdateOpportunity).Methods("PATCH", "OPTIONS")

	api.HandleFunc("/credits/balance", s.handleCreditBalance).Methods("GET", "OPTIONS")

	api.HandleFunc("/niches", s.handleCreateNiche).Methods("POST", "OPTIONS")
	api.HandleFunc("/niches", s.handleListNiches).Methods("GET", "OPTIONS")
	api.HandleFunc("/niches/{id}", s.handleUpdateNiche).Methods("PUT", "OPTIONS")
	api.HandleFunc("/niches/{id}", s.handleDeleteNiche).Methods("DELETE", "OPTIONS")

	api.HandleFunc("/analytics/summary", s.handleAnalyticsSummary).Methods("GET", "OPTIONS")

	api.HandleFunc("/sources/health", s.handleSourceHealth).Methods("GET", "OPTIONS")
}

// SetSourceHealth installs the breaker registry behind /api/sources/health.
// Call before Start; without one the endpoint reports an empty source list.
func (s *Server) SetSourceHealth(health SourceHealth) {
	s.sourceHealth = health
}

func (s *Server) handleSourceHealth(w http.ResponseWriter, r *http.Request) {
	stats := []*circuitbreaker.Stats{}
	if s.sourceHealth != nil {
		stats = s.sourceHealth.AllStats()
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sources": stats,
	})
}

// Handler returns the underlying router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
