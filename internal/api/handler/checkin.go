package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/apexfest/checkin/internal/api/middleware"
	"github.com/apexfest/checkin/internal/api/request"
	"github.com/apexfest/checkin/internal/api/response"
	"github.com/apexfest/checkin/internal/model"
	"github.com/apexfest/checkin/internal/qrpayload"
	"github.com/apexfest/checkin/internal/services/ledger"
)

// CheckInHandler handles the subject side of the ledger
type CheckInHandler struct {
	ledger *ledger.Service
}

// NewCheckInHandler creates a new check-in handler
func NewCheckInHandler(ledger *ledger.Service) *CheckInHandler {
	return &CheckInHandler{ledger: ledger}
}

// CheckIn handles POST /api/v1/checkins
func (h *CheckInHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req request.CheckInRequest
	if !decode(w, r, &req) {
		return
	}

	var (
		eventID model.EventID
		err     error
	)
	switch {
	case req.QR != "":
		eventID, err = qrpayload.ParseEvent(req.QR)
	case req.EventID != "":
		eventID, err = qrpayload.ValidateEventID(req.EventID)
	default:
		err = NewInvalidRequestError("event_id or qr is required")
	}
	if err != nil {
		WriteError(w, err)
		return
	}

	session := middleware.MustGetSession(r.Context())
	checkIn, err := h.ledger.RecordParticipation(r.Context(), session.SubjectID, eventID)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, response.CheckInFromLedger(checkIn))
}

// History handles GET /api/v1/me/participation
func (h *CheckInHandler) History(w http.ResponseWriter, r *http.Request) {
	session := middleware.MustGetSession(r.Context())
	entries, err := h.ledger.History(r.Context(), session.SubjectID)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.HistoryFromLedger(entries))
}

// Cooldown handles GET /api/v1/me/cooldown/{event_id}
func (h *CheckInHandler) Cooldown(w http.ResponseWriter, r *http.Request) {
	session := middleware.MustGetSession(r.Context())
	eventID := model.EventID(mux.Vars(r)["event_id"])

	pending, err := h.ledger.CooldownRemaining(r.Context(), session.SubjectID, eventID)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.CooldownStatusFrom(pending))
}
