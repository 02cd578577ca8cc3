package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/apexfest/checkin/internal/api/middleware"
	"github.com/apexfest/checkin/internal/api/request"
	"github.com/apexfest/checkin/internal/api/response"
	"github.com/apexfest/checkin/internal/model"
	"github.com/apexfest/checkin/internal/qrpayload"
	"github.com/apexfest/checkin/internal/services/directory"
	"github.com/apexfest/checkin/internal/services/ledger"
)

// HostHandler serves the endpoints a host's intake queue talks to
type HostHandler struct {
	directory *directory.Service
	ledger    *ledger.Service
}

// NewHostHandler creates a new host handler
func NewHostHandler(directory *directory.Service, ledger *ledger.Service) *HostHandler {
	return &HostHandler{directory: directory, ledger: ledger}
}

// ResolveSubject handles GET /api/v1/subjects/{short_id}
func (h *HostHandler) ResolveSubject(w http.ResponseWriter, r *http.Request) {
	short, err := qrpayload.ParseSubject(mux.Vars(r)["short_id"])
	if err != nil {
		WriteError(w, err)
		return
	}

	subject, err := h.directory.ResolveSubject(r.Context(), short)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.SubjectFromModel(subject))
}

// Events handles GET /api/v1/host/events
func (h *HostHandler) Events(w http.ResponseWriter, r *http.Request) {
	session := middleware.MustGetSession(r.Context())
	events, err := h.directory.ListEvents(r.Context(), session.HostID)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.EventsFromModel(events))
}

// Submit handles POST /api/v1/submissions
func (h *HostHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req request.SubmissionRequest
	if !decode(w, r, &req) {
		return
	}

	var candidates []ledger.Candidate
	for _, entry := range req.Entries {
		if entry.SubjectID == "" {
			WriteError(w, NewInvalidRequestError("subject_id is required"))
			return
		}
		outcome, err := model.ParseOutcome(entry.Outcome)
		if err != nil {
			WriteError(w, err)
			return
		}
		for _, eventID := range entry.EventIDs {
			candidates = append(candidates, ledger.Candidate{
				SubjectID: model.SubjectID(entry.SubjectID),
				EventID:   model.EventID(eventID),
				Outcome:   outcome,
			})
		}
	}

	session := middleware.MustGetSession(r.Context())
	result, err := h.ledger.SubmitBatch(r.Context(), session.HostID, model.BatchID(req.BatchID), candidates)
	if err != nil {
		WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	response.JSON(w, status, response.SubmissionFromLedger(result))
}
