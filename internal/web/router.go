package web

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/apexfest/checkin/internal/services/auth"
	"github.com/apexfest/checkin/internal/services/leaderboard"
	"github.com/apexfest/checkin/internal/services/ledger"
	"github.com/apexfest/checkin/internal/web/handler"
	"github.com/apexfest/checkin/internal/web/middleware"
)

// RouterConfig holds configuration for the web router
type RouterConfig struct {
	Logger             *slog.Logger
	AuthService        *auth.Service
	LedgerService      *ledger.Service
	LeaderboardService *leaderboard.Service
}

// NewRouter creates a new web router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create middleware
	loggingMiddleware := middleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)
	flashMiddleware := middleware.Flash()
	subjectMiddleware := middleware.RequireSubject(cfg.AuthService)
	optionalAuthMiddleware := middleware.OptionalAuth(cfg.AuthService)

	// Apply global middleware to all routes
	r.Use(recoveryMiddleware)
	r.Use(loggingMiddleware)

	// Create handlers
	homeHandler := handler.NewHomeHandler(cfg.LeaderboardService)
	authHandler := handler.NewAuthHandler(cfg.AuthService)
	scanHandler := handler.NewScanHandler(cfg.LedgerService, cfg.Logger)
	leaderboardHandler := handler.NewLeaderboardHandler(cfg.LeaderboardService)

	// Public routes (optional auth for showing the subject in nav)
	public := r.NewRoute().Subrouter()
	public.Use(flashMiddleware)
	public.Use(optionalAuthMiddleware)
	public.HandleFunc("/", homeHandler.Home).Methods(http.MethodGet)
	public.HandleFunc("/leaderboard", leaderboardHandler.Leaderboard).Methods(http.MethodGet)
	public.HandleFunc("/login", authHandler.LoginPage).Methods(http.MethodGet)
	public.HandleFunc("/login", authHandler.Login).Methods(http.MethodPost)
	public.HandleFunc("/logout", authHandler.Logout).Methods(http.MethodPost)

	// QR target (requires a signed-in subject)
	protected := r.NewRoute().Subrouter()
	protected.Use(flashMiddleware)
	protected.Use(subjectMiddleware)
	protected.HandleFunc("/scan", scanHandler.Scan).Methods(http.MethodGet)

	return r
}
