package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/apexfest/checkin/internal/api/response"
	"github.com/apexfest/checkin/internal/intake"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter
func NewOutput(format string, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		_, _ = fmt.Fprintln(o.w, string(data))
	} else {
		_, _ = fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printJSONLine(data any) {
	_ = json.NewEncoder(o.w).Encode(data)
}

func (o *Output) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(o.w, format, args...)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case response.Health:
		o.printf("Status: %s\nStorage: %s\n", v.Status, v.Storage)
	case response.AuthResponse:
		o.printSession(v.Session)
		if v.Subject != nil {
			o.printf("Badge: %s\n", v.Subject.ShortID)
		}
	case response.Session:
		o.printSession(v)
	case response.Subject:
		o.printSubject(v)
	case response.CheckInResponse:
		o.printf("Checked in to %s\n", v.Event.Name)
		o.printf("Recorded: %s\n", v.Record.RecordedAt.Format("2006-01-02 15:04:05"))
	case []response.HistoryEntry:
		o.printHistory(v)
	case []response.Event:
		o.printEvents(v)
	case response.Event:
		o.printf("Event: %s (%s)\nHost: %s\n", v.Name, v.ID, v.HostID)
	case []response.Host:
		for _, h := range v {
			o.printf("  %s  %s (%s)\n", h.ShortID, h.DisplayName, h.ID)
		}
	case response.Host:
		o.printf("Host: %s (%s)\nBadge: %s\n", v.DisplayName, v.ID, v.ShortID)
	case response.QRTarget:
		o.printf("%s\n", v.URL)
	case response.BadgeTarget:
		o.printf("%s (%s)\n%s\n", v.DisplayName, v.ShortID, v.URL)
	case []response.SubjectStanding:
		o.printSubjectStandings(v)
	case []response.HostStanding:
		o.printHostStandings(v)
	case response.Audit:
		o.printAudit(v)
	case []intake.Entry:
		o.printQueue(v)
	case *intake.Entry:
		o.printEntry(*v)
	case *intake.SubmitResult:
		o.printSubmitResult(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

func (o *Output) printSession(s response.Session) {
	o.printf("Signed in as %s (%s)\n", s.DisplayName, s.Role)
	o.printf("Expires: %s\n", s.ExpiresAt.Format("2006-01-02 15:04:05"))
}

func (o *Output) printSubject(s response.Subject) {
	o.printf("Subject: %s (%s)\n", s.DisplayName, s.ShortID)
	if s.Affiliation != "" {
		o.printf("Affiliation: %s\n", s.Affiliation)
	}
	o.printf("Category: %s\nPoints: %d\n", s.Category, s.Points)
}

func (o *Output) printHistory(entries []response.HistoryEntry) {
	if len(entries) == 0 {
		o.printf("No participation yet\n")
		return
	}
	for _, e := range entries {
		outcome := "check-in"
		if e.Outcome != nil {
			outcome = *e.Outcome
		}
		o.printf("  %s  %-24s %s\n", e.RecordedAt.Format("2006-01-02 15:04"), e.EventName, outcome)
	}
}

func (o *Output) printEvents(events []response.Event) {
	if len(events) == 0 {
		o.printf("No events\n")
		return
	}
	for _, e := range events {
		o.printf("  %s  %s\n", e.ID, e.Name)
	}
}

func (o *Output) printSubjectStandings(rows []response.SubjectStanding) {
	for _, r := range rows {
		o.printf("%3d. %-24s %-8s %5d pts\n", r.Rank, r.DisplayName, r.ShortID, r.Points)
	}
}

func (o *Output) printHostStandings(rows []response.HostStanding) {
	for _, r := range rows {
		o.printf("%3d. %-24s %4d participations %5d pts given\n", r.Rank, r.DisplayName, r.Participations, r.PointsGiven)
	}
}

func (o *Output) printAudit(a response.Audit) {
	for _, e := range a.Entries {
		if !e.Consistent {
			o.printf("  %s stored %d, computed %d\n", e.SubjectID, e.Stored, e.Computed)
		}
	}
	if a.Consistent {
		o.printf("All %d subjects consistent\n", len(a.Entries))
	}
}

func (o *Output) printQueue(entries []intake.Entry) {
	if len(entries) == 0 {
		o.printf("Queue is empty\n")
		return
	}
	o.printf("Queue (%d):\n", len(entries))
	for _, e := range entries {
		o.printEntry(e)
	}
}

func (o *Output) printEntry(e intake.Entry) {
	selected := make([]string, 0, len(e.Selected))
	for _, id := range e.Selected {
		selected = append(selected, string(id))
	}
	events := "none"
	if len(selected) > 0 {
		events = strings.Join(selected, ", ")
	}
	o.printf("  %s  %-24s %-11s events: %s\n", e.ShortID, e.Name, e.Outcome, events)
}

func (o *Output) printSubmitResult(r *intake.SubmitResult) {
	if r.Receipt.Duplicate {
		o.printf("Batch %s was already submitted\n", r.BatchID)
	} else {
		o.printf("Submitted %d participation records\n", r.Receipt.Records)
	}
	if len(r.Skipped) > 0 {
		o.printf("Skipped (no events): %s\n", strings.Join(r.Skipped, ", "))
	}
}
