package response

import (
	"time"

	"github.com/apexfest/checkin/internal/model"
	"github.com/apexfest/checkin/internal/services/auth"
	"github.com/apexfest/checkin/internal/services/leaderboard"
	"github.com/apexfest/checkin/internal/services/ledger"
)

// Subject represents a subject in API responses
type Subject struct {
	ID          string            `json:"id"`
	ShortID     string            `json:"short_id"`
	DisplayName string            `json:"display_name"`
	Affiliation string            `json:"affiliation"`
	Category    string            `json:"category"`
	Profile     map[string]string `json:"profile,omitempty"`
	Points      int               `json:"points"`
	CreatedAt   time.Time         `json:"created_at"`
}

// SubjectFromModel converts a model.Subject to a response Subject
func SubjectFromModel(s *model.Subject) Subject {
	return Subject{
		ID:          string(s.ID),
		ShortID:     s.ShortID(),
		DisplayName: s.DisplayName,
		Affiliation: s.Affiliation,
		Category:    string(s.Category),
		Profile:     s.Profile,
		Points:      s.Points,
		CreatedAt:   s.CreatedAt,
	}
}

// Host represents a host in API responses
type Host struct {
	ID          string `json:"id"`
	ShortID     string `json:"short_id"`
	DisplayName string `json:"display_name"`
}

// HostFromModel converts a model.Host
func HostFromModel(h *model.Host) Host {
	return Host{
		ID:          string(h.ID),
		ShortID:     h.ShortID(),
		DisplayName: h.DisplayName,
	}
}

// Event represents an event in API responses
type Event struct {
	ID          string `json:"id"`
	HostID      string `json:"host_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// EventFromModel converts a model.Event
func EventFromModel(e *model.Event) Event {
	return Event{
		ID:          string(e.ID),
		HostID:      string(e.HostID),
		Name:        e.Name,
		Description: e.Description,
	}
}

// EventsFromModel converts a list of events
func EventsFromModel(events []*model.Event) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		out = append(out, EventFromModel(e))
	}
	return out
}

// Session describes who a token belongs to
type Session struct {
	Role        string    `json:"role"`
	SubjectID   string    `json:"subject_id,omitempty"`
	HostID      string    `json:"host_id,omitempty"`
	DisplayName string    `json:"display_name"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SessionFromAuth converts an auth.Session
func SessionFromAuth(s *auth.Session) Session {
	return Session{
		Role:        string(s.Role),
		SubjectID:   string(s.SubjectID),
		HostID:      string(s.HostID),
		DisplayName: s.DisplayName,
		ExpiresAt:   s.ExpiresAt,
	}
}

// AuthResponse is the response for authentication endpoints
type AuthResponse struct {
	Session      Session  `json:"session"`
	SessionToken string   `json:"session_token"`
	Subject      *Subject `json:"subject,omitempty"`
}

// AuthResponseFromSession creates an AuthResponse from a session
func AuthResponseFromSession(s *auth.Session) AuthResponse {
	return AuthResponse{
		Session:      SessionFromAuth(s),
		SessionToken: s.Token,
	}
}

// Record represents a participation record. Outcome is null for self check-ins.
type Record struct {
	ID         string    `json:"id"`
	SubjectID  string    `json:"subject_id"`
	EventID    string    `json:"event_id"`
	Outcome    *string   `json:"outcome"`
	BatchID    string    `json:"batch_id,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// RecordFromModel converts a model.ParticipationRecord
func RecordFromModel(r *model.ParticipationRecord) Record {
	rec := Record{
		ID:         string(r.ID),
		SubjectID:  string(r.SubjectID),
		EventID:    string(r.EventID),
		BatchID:    string(r.BatchID),
		RecordedAt: r.RecordedAt,
	}
	if r.Outcome != model.OutcomeNone {
		outcome := string(r.Outcome)
		rec.Outcome = &outcome
	}
	return rec
}

// CheckInResponse is returned for a successful check-in
type CheckInResponse struct {
	Record Record `json:"record"`
	Event  Event  `json:"event"`
}

// CheckInFromLedger converts a ledger.CheckIn
func CheckInFromLedger(c *ledger.CheckIn) CheckInResponse {
	return CheckInResponse{
		Record: RecordFromModel(c.Record),
		Event:  EventFromModel(c.Event),
	}
}

// HistoryEntry is one participation with its event
type HistoryEntry struct {
	Record
	EventName        string `json:"event_name"`
	EventDescription string `json:"event_description"`
}

// HistoryFromLedger converts ledger history entries
func HistoryFromLedger(entries []ledger.HistoryEntry) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntry{
			Record:           RecordFromModel(e.Record),
			EventName:        e.Event.Name,
			EventDescription: e.Event.Description,
		})
	}
	return out
}

// CooldownStatus reports whether a check-in would be accepted now
type CooldownStatus struct {
	Allowed          bool       `json:"allowed"`
	RemainingSeconds int64      `json:"remaining_seconds"`
	NextAllowedAt    *time.Time `json:"next_allowed_at,omitempty"`
}

// CooldownStatusFrom converts a pending cooldown; nil means allowed
func CooldownStatusFrom(c *model.CooldownError) CooldownStatus {
	if c == nil {
		return CooldownStatus{Allowed: true}
	}
	next := c.NextAllowedAt
	return CooldownStatus{RemainingSeconds: c.RemainingSeconds, NextAllowedAt: &next}
}

// SubmissionResponse is returned for a host submission
type SubmissionResponse struct {
	BatchID   string `json:"batch_id"`
	Records   int    `json:"records"`
	Duplicate bool   `json:"duplicate"`
}

// SubmissionFromLedger converts a ledger.SubmissionResult
func SubmissionFromLedger(r *ledger.SubmissionResult) SubmissionResponse {
	return SubmissionResponse{
		BatchID:   string(r.BatchID),
		Records:   len(r.Records),
		Duplicate: r.Duplicate,
	}
}

// SubjectStanding is one row of the subject leaderboard
type SubjectStanding struct {
	Rank        int    `json:"rank"`
	SubjectID   string `json:"subject_id"`
	ShortID     string `json:"short_id"`
	DisplayName string `json:"display_name"`
	Affiliation string `json:"affiliation"`
	Category    string `json:"category"`
	Points      int    `json:"points"`
}

// SubjectStandings converts leaderboard rows
func SubjectStandings(rows []leaderboard.SubjectStanding) []SubjectStanding {
	out := make([]SubjectStanding, 0, len(rows))
	for _, r := range rows {
		out = append(out, SubjectStanding{
			Rank:        r.Rank,
			SubjectID:   string(r.SubjectID),
			ShortID:     r.ShortID,
			DisplayName: r.DisplayName,
			Affiliation: r.Affiliation,
			Category:    string(r.Category),
			Points:      r.Points,
		})
	}
	return out
}

// HostStanding is one row of the host leaderboard
type HostStanding struct {
	Rank           int    `json:"rank"`
	HostID         string `json:"host_id"`
	DisplayName    string `json:"display_name"`
	Participations int    `json:"participations"`
	PointsGiven    int    `json:"points_given"`
}

// HostStandings converts leaderboard rows
func HostStandings(rows []leaderboard.HostStanding) []HostStanding {
	out := make([]HostStanding, 0, len(rows))
	for _, r := range rows {
		out = append(out, HostStanding{
			Rank:           r.Rank,
			HostID:         string(r.HostID),
			DisplayName:    r.DisplayName,
			Participations: r.Participations,
			PointsGiven:    r.PointsGiven,
		})
	}
	return out
}

// Leaderboard is the payload of leaderboard-update stream events
type Leaderboard struct {
	Subjects  []SubjectStanding `json:"subjects"`
	Hosts     []HostStanding    `json:"hosts"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// AuditEntry compares stored and recomputed points
type AuditEntry struct {
	SubjectID  string `json:"subject_id"`
	Stored     int    `json:"stored"`
	Computed   int    `json:"computed"`
	Consistent bool   `json:"consistent"`
}

// Audit is the response of the points audit
type Audit struct {
	Consistent bool         `json:"consistent"`
	Entries    []AuditEntry `json:"entries"`
}

// AuditFromLeaderboard converts audit entries
func AuditFromLeaderboard(entries []leaderboard.AuditEntry) Audit {
	audit := Audit{Consistent: true, Entries: make([]AuditEntry, 0, len(entries))}
	for _, e := range entries {
		audit.Entries = append(audit.Entries, AuditEntry{
			SubjectID:  string(e.SubjectID),
			Stored:     e.Stored,
			Computed:   e.Computed,
			Consistent: e.Consistent(),
		})
		audit.Consistent = audit.Consistent && e.Consistent()
	}
	return audit
}

// QRTarget is the URL an event QR code encodes
type QRTarget struct {
	EventID string `json:"event_id"`
	URL     string `json:"url"`
}

// BadgeTarget is the URL a subject's badge QR code encodes
type BadgeTarget struct {
	SubjectID   string `json:"subject_id"`
	ShortID     string `json:"short_id"`
	DisplayName string `json:"display_name"`
	URL         string `json:"url"`
}

// Health is the health check response
type Health struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}
