package handler

import (
	"net/http"

	"github.com/apexfest/checkin/internal/services/leaderboard"
	"github.com/apexfest/checkin/internal/web/templates/pages"
)

const homeTopSize = 5

// HomeHandler handles the home page
type HomeHandler struct {
	leaderboard *leaderboard.Service
}

// NewHomeHandler creates a new HomeHandler
func NewHomeHandler(leaderboard *leaderboard.Service) *HomeHandler {
	return &HomeHandler{leaderboard: leaderboard}
}

// Home renders the home page
func (h *HomeHandler) Home(w http.ResponseWriter, r *http.Request) {
	top, err := h.leaderboard.Subjects(r.Context(), homeTopSize)
	if err != nil {
		renderError(w, r, http.StatusServiceUnavailable, "The leaderboard is unavailable right now.")
		return
	}

	render(w, r, http.StatusOK, pages.Home(pages.HomeData{
		PageData: pageData(r, "Home"),
		Top:      top,
	}))
}
