package model

import (
	"fmt"
	"strings"
	"time"
)

// RecordID identifies a single ledger entry
type RecordID string

// BatchID is the client-generated idempotency key of a host submission
type BatchID string

// DefaultCooldown is the minimum gap between two check-ins of one subject at one event
const DefaultCooldown = 5 * time.Minute

// Outcome is the host-assigned result of a participation.
// The zero value means no outcome (a self-service check-in).
type Outcome string

const (
	OutcomeNone        Outcome = ""
	OutcomeWin         Outcome = "win"
	OutcomeParticipate Outcome = "participate"
	OutcomeSkipped     Outcome = "skipped"
)

// Point values awarded per outcome
const (
	WinPoints         = 20
	ParticipatePoints = 10
	SkippedPoints     = 10
)

// Valid reports whether o may be assigned by a host
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeWin, OutcomeParticipate, OutcomeSkipped:
		return true
	}
	return false
}

// Score returns the leaderboard points for an outcome.
// Skipped scores the same as participate.
func (o Outcome) Score() int {
	switch o {
	case OutcomeWin:
		return WinPoints
	case OutcomeParticipate:
		return ParticipatePoints
	case OutcomeSkipped:
		return SkippedPoints
	default:
		return 0
	}
}

// HostScore returns the points an outcome counts toward the host that ran
// the event. A self check-in carries no outcome and still counts as
// participate.
func (o Outcome) HostScore() int {
	if o == OutcomeNone {
		return ParticipatePoints
	}
	return o.Score()
}

// ParseOutcome converts user input to a host-assignable Outcome
func ParseOutcome(s string) (Outcome, error) {
	o := Outcome(strings.ToLower(strings.TrimSpace(s)))
	if !o.Valid() {
		return OutcomeNone, fmt.Errorf("%w: %q", ErrInvalidOutcome, s)
	}
	return o, nil
}

// ParticipationRecord is an immutable ledger entry
type ParticipationRecord struct {
	ID         RecordID
	SubjectID  SubjectID
	EventID    EventID
	Outcome    Outcome
	BatchID    BatchID // empty for self-service check-ins
	RecordedAt time.Time
}

// NextAllowedAt is the earliest time the same pair may be recorded again
func (r *ParticipationRecord) NextAllowedAt(cooldown time.Duration) time.Time {
	return r.RecordedAt.Add(cooldown)
}

// MaxQueueEntries caps the number of subjects a host can hold in one intake queue
const MaxQueueEntries = 15
