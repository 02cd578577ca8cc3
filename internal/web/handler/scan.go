package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/apexfest/checkin/internal/model"
	"github.com/apexfest/checkin/internal/qrpayload"
	"github.com/apexfest/checkin/internal/services/ledger"
	"github.com/apexfest/checkin/internal/web/middleware"
	"github.com/apexfest/checkin/internal/web/templates/pages"
)

// ScanHandler is the target of event QR codes
type ScanHandler struct {
	ledger *ledger.Service
	logger *slog.Logger
}

// NewScanHandler creates a new ScanHandler
func NewScanHandler(ledger *ledger.Service, logger *slog.Logger) *ScanHandler {
	return &ScanHandler{ledger: ledger, logger: logger}
}

// Scan records a check-in for the signed-in subject to ?event=
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())
	data := pages.ScanData{PageData: pageData(r, "Check-in")}

	eventID, err := qrpayload.ValidateEventID(r.URL.Query().Get(qrpayload.EventParam))
	if err != nil {
		data.Result = pages.ScanInvalid
		data.Message = "This QR code is not a valid event code."
		render(w, r, http.StatusBadRequest, pages.Scan(data))
		return
	}

	checkIn, err := h.ledger.RecordParticipation(r.Context(), session.SubjectID, eventID)
	var cooldown *model.CooldownError
	switch {
	case err == nil:
		data.Result = pages.ScanRecorded
		data.EventName = checkIn.Event.Name
		render(w, r, http.StatusCreated, pages.Scan(data))
	case errors.As(err, &cooldown):
		data.Result = pages.ScanCooldown
		data.Message = cooldown.UserMessage()
		data.RemainingSeconds = cooldown.RemainingSeconds
		render(w, r, http.StatusTooManyRequests, pages.Scan(data))
	case model.KindOf(err) == model.KindNotFound:
		data.Result = pages.ScanInvalid
		data.Message = "Invalid event."
		render(w, r, http.StatusNotFound, pages.Scan(data))
	default:
		h.logger.Error("scan check-in failed",
			slog.String("subject_id", string(session.SubjectID)),
			slog.String("event_id", string(eventID)),
			slog.Any("error", err),
		)
		renderError(w, r, http.StatusInternalServerError, "Check-in is unavailable right now. Please try again.")
	}
}
