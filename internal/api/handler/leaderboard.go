package handler

import (
	"net/http"

	"github.com/apexfest/checkin/internal/api/middleware"
	"github.com/apexfest/checkin/internal/api/response"
	"github.com/apexfest/checkin/internal/live"
	"github.com/apexfest/checkin/internal/services/leaderboard"
)

const defaultLeaderboardLimit = 20

// LeaderboardHandler serves rankings
type LeaderboardHandler struct {
	leaderboard *leaderboard.Service
	broadcaster *live.Broadcaster
}

// NewLeaderboardHandler creates a new leaderboard handler
func NewLeaderboardHandler(leaderboard *leaderboard.Service, broadcaster *live.Broadcaster) *LeaderboardHandler {
	return &LeaderboardHandler{leaderboard: leaderboard, broadcaster: broadcaster}
}

// Subjects handles GET /api/v1/leaderboard/subjects
func (h *LeaderboardHandler) Subjects(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r, defaultLeaderboardLimit)
	if err != nil {
		WriteError(w, err)
		return
	}

	rows, err := h.leaderboard.Subjects(r.Context(), limit)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.SubjectStandings(rows))
}

// Hosts handles GET /api/v1/leaderboard/hosts
func (h *LeaderboardHandler) Hosts(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r, defaultLeaderboardLimit)
	if err != nil {
		WriteError(w, err)
		return
	}
	metric, err := leaderboard.ParseHostMetric(r.URL.Query().Get("metric"))
	if err != nil {
		WriteError(w, err)
		return
	}

	rows, err := h.leaderboard.Hosts(r.Context(), metric, limit)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.HostStandings(rows))
}

// Stream handles GET /api/v1/leaderboard/stream
func (h *LeaderboardHandler) Stream(w http.ResponseWriter, r *http.Request) {
	viewer := "anonymous"
	if session := middleware.GetSession(r.Context()); session != nil {
		viewer = string(session.Role) + ":" + session.DisplayName
	}
	h.broadcaster.ServeLeaderboard(w, r, viewer)
}

// Audit handles GET /api/v1/admin/leaderboard/audit
func (h *LeaderboardHandler) Audit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.leaderboard.Recompute(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.AuditFromLeaderboard(entries))
}
