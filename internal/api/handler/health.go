package handler

import (
	"context"
	"net/http"

	"github.com/apexfest/checkin/internal/api/response"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health returns GET /api/v1/health, which fails with 503 while storage is down
func Health(storage Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := storage.Ping(r.Context()); err != nil {
			response.JSON(w, http.StatusServiceUnavailable, response.Health{Status: "degraded", Storage: "unreachable"})
			return
		}
		response.JSON(w, http.StatusOK, response.Health{Status: "ok", Storage: "ok"})
	}
}
