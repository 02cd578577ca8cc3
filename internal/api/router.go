package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/apexfest/checkin/internal/api/handler"
	"github.com/apexfest/checkin/internal/api/middleware"
	"github.com/apexfest/checkin/internal/live"
	"github.com/apexfest/checkin/internal/metrics"
	rootmw "github.com/apexfest/checkin/internal/middleware"
	"github.com/apexfest/checkin/internal/services/auth"
	"github.com/apexfest/checkin/internal/services/directory"
	"github.com/apexfest/checkin/internal/services/leaderboard"
	"github.com/apexfest/checkin/internal/services/ledger"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger             *slog.Logger
	Storage            handler.Pinger
	AuthService        *auth.Service
	DirectoryService   *directory.Service
	LedgerService      *ledger.Service
	LeaderboardService *leaderboard.Service
	Broadcaster        *live.Broadcaster
	Metrics            *metrics.Manager
	PublicBaseURL      string
	SecureCookies      bool
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	authHandler := handler.NewAuthHandler(cfg.AuthService, cfg.SecureCookies)
	checkInHandler := handler.NewCheckInHandler(cfg.LedgerService)
	hostHandler := handler.NewHostHandler(cfg.DirectoryService, cfg.LedgerService)
	leaderboardHandler := handler.NewLeaderboardHandler(cfg.LeaderboardService, cfg.Broadcaster)
	adminHandler := handler.NewAdminHandler(cfg.DirectoryService, cfg.PublicBaseURL)

	// Create middleware
	anyRole := middleware.Auth(cfg.AuthService)
	subjectOnly := middleware.Auth(cfg.AuthService, auth.RoleSubject)
	hostOnly := middleware.Auth(cfg.AuthService, auth.RoleHost)
	adminOnly := middleware.Auth(cfg.AuthService, auth.RoleAdmin)
	optionalAuth := middleware.OptionalAuth(cfg.AuthService)

	r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Recovery(cfg.Logger))
	api.Use(rootmw.Logging(cfg.Logger))
	api.Use(cfg.Metrics.Middleware)

	// Sign-in routes (no auth required)
	api.HandleFunc("/auth/register", authHandler.Register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", authHandler.Login).Methods(http.MethodPost)
	api.HandleFunc("/auth/host-login", authHandler.HostLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/admin-login", authHandler.AdminLogin).Methods(http.MethodPost)

	session := api.PathPrefix("/auth").Subrouter()
	session.Use(anyRole)
	session.HandleFunc("/session", authHandler.Session).Methods(http.MethodGet)
	session.HandleFunc("/logout", authHandler.Logout).Methods(http.MethodPost)

	// Subject routes
	subject := api.NewRoute().Subrouter()
	subject.Use(subjectOnly)
	subject.HandleFunc("/checkins", checkInHandler.CheckIn).Methods(http.MethodPost)
	subject.HandleFunc("/me/participation", checkInHandler.History).Methods(http.MethodGet)
	subject.HandleFunc("/me/cooldown/{event_id}", checkInHandler.Cooldown).Methods(http.MethodGet)

	// Host routes
	host := api.NewRoute().Subrouter()
	host.Use(hostOnly)
	host.HandleFunc("/subjects/{short_id}", hostHandler.ResolveSubject).Methods(http.MethodGet)
	host.HandleFunc("/host/events", hostHandler.Events).Methods(http.MethodGet)
	host.HandleFunc("/submissions", hostHandler.Submit).Methods(http.MethodPost)

	// Leaderboards are public
	board := api.PathPrefix("/leaderboard").Subrouter()
	board.Use(optionalAuth)
	board.HandleFunc("/subjects", leaderboardHandler.Subjects).Methods(http.MethodGet)
	board.HandleFunc("/hosts", leaderboardHandler.Hosts).Methods(http.MethodGet)
	board.HandleFunc("/stream", leaderboardHandler.Stream).Methods(http.MethodGet)

	// Admin routes
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(adminOnly)
	admin.HandleFunc("/hosts", adminHandler.CreateHost).Methods(http.MethodPost)
	admin.HandleFunc("/hosts", adminHandler.ListHosts).Methods(http.MethodGet)
	admin.HandleFunc("/events", adminHandler.CreateEvent).Methods(http.MethodPost)
	admin.HandleFunc("/events", adminHandler.ListEvents).Methods(http.MethodGet)
	admin.HandleFunc("/events/{id}/qr", adminHandler.EventQR).Methods(http.MethodGet)
	admin.HandleFunc("/subjects/{short_id}/qr", adminHandler.SubjectQR).Methods(http.MethodGet)
	admin.HandleFunc("/leaderboard/audit", leaderboardHandler.Audit).Methods(http.MethodGet)

	// Health check endpoint (no auth)
	api.HandleFunc("/health", handler.Health(cfg.Storage)).Methods(http.MethodGet)

	return r
}
