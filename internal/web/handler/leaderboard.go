package handler

import (
	"net/http"

	"github.com/apexfest/checkin/internal/services/leaderboard"
	"github.com/apexfest/checkin/internal/web/templates/pages"
)

const leaderboardPageSize = 50

// LeaderboardHandler renders the rankings page
type LeaderboardHandler struct {
	leaderboard *leaderboard.Service
}

// NewLeaderboardHandler creates a new LeaderboardHandler
func NewLeaderboardHandler(leaderboard *leaderboard.Service) *LeaderboardHandler {
	return &LeaderboardHandler{leaderboard: leaderboard}
}

// Leaderboard renders subject and host rankings, hosts ranked by ?metric=
func (h *LeaderboardHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	metric, err := leaderboard.ParseHostMetric(r.URL.Query().Get("metric"))
	if err != nil {
		renderError(w, r, http.StatusBadRequest, "Unknown ranking. Use participations or points.")
		return
	}

	subjects, err := h.leaderboard.Subjects(r.Context(), leaderboardPageSize)
	if err != nil {
		renderError(w, r, http.StatusServiceUnavailable, "The leaderboard is unavailable right now.")
		return
	}
	hosts, err := h.leaderboard.Hosts(r.Context(), metric, leaderboardPageSize)
	if err != nil {
		renderError(w, r, http.StatusServiceUnavailable, "The leaderboard is unavailable right now.")
		return
	}

	render(w, r, http.StatusOK, pages.Leaderboard(pages.LeaderboardData{
		PageData: pageData(r, "Leaderboard"),
		Subjects: subjects,
		Hosts:    hosts,
		Metric:   metric,
	}))
}
