package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/apexfest/checkin/internal/api/request"
	"github.com/apexfest/checkin/internal/api/response"
	"github.com/apexfest/checkin/internal/model"
	"github.com/apexfest/checkin/internal/qrpayload"
	"github.com/apexfest/checkin/internal/services/directory"
)

// AdminHandler manages hosts and events
type AdminHandler struct {
	directory     *directory.Service
	publicBaseURL string
}

// NewAdminHandler creates a new admin handler. publicBaseURL prefixes the
// URLs encoded in event and badge QR codes.
func NewAdminHandler(directory *directory.Service, publicBaseURL string) *AdminHandler {
	return &AdminHandler{directory: directory, publicBaseURL: publicBaseURL}
}

// CreateHost handles POST /api/v1/admin/hosts
func (h *AdminHandler) CreateHost(w http.ResponseWriter, r *http.Request) {
	var req request.CreateHostRequest
	if !decode(w, r, &req) {
		return
	}

	host, err := h.directory.CreateHost(r.Context(), req.DisplayName)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, response.HostFromModel(host))
}

// ListHosts handles GET /api/v1/admin/hosts
func (h *AdminHandler) ListHosts(w http.ResponseWriter, r *http.Request) {
	hosts, err := h.directory.ListHosts(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	out := make([]response.Host, 0, len(hosts))
	for _, host := range hosts {
		out = append(out, response.HostFromModel(host))
	}
	response.JSON(w, http.StatusOK, out)
}

// CreateEvent handles POST /api/v1/admin/events
func (h *AdminHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req request.CreateEventRequest
	if !decode(w, r, &req) {
		return
	}

	event, err := h.directory.CreateEvent(r.Context(), model.HostID(req.HostID), req.Name, req.Description)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, response.EventFromModel(event))
}

// ListEvents handles GET /api/v1/admin/events, optionally filtered by ?host_id=
func (h *AdminHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.directory.ListEvents(r.Context(), model.HostID(r.URL.Query().Get("host_id")))
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.EventsFromModel(events))
}

// EventQR handles GET /api/v1/admin/events/{id}/qr
func (h *AdminHandler) EventQR(w http.ResponseWriter, r *http.Request) {
	eventID, err := qrpayload.ValidateEventID(mux.Vars(r)["id"])
	if err != nil {
		WriteError(w, err)
		return
	}
	event, err := h.directory.GetEvent(r.Context(), eventID)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.QRTarget{
		EventID: string(event.ID),
		URL:     qrpayload.EventURL(h.publicBaseURL, event.ID),
	})
}

// SubjectQR handles GET /api/v1/admin/subjects/{short_id}/qr. The URL is what
// a subject's printed badge encodes for hosts to scan.
func (h *AdminHandler) SubjectQR(w http.ResponseWriter, r *http.Request) {
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
	response.JSON(w, http.StatusOK, response.BadgeTarget{
		SubjectID:   string(subject.ID),
		ShortID:     subject.ShortID(),
		DisplayName: subject.DisplayName,
		URL:         qrpayload.SubjectURL(h.publicBaseURL, subject.ShortID()),
	})
}
