package model

import "time"

// HostID identifies a club account that runs events
type HostID string

// EventID identifies an event; always a full UUID
type EventID string

// HostShortIDLength is the number of leading characters of a HostID used at login
const HostShortIDLength = 4

// Host is a club that owns events and scans attendee badges
type Host struct {
	ID          HostID
	DisplayName string
	CreatedAt   time.Time
}

// ShortID returns the login form of the host's id
func (h *Host) ShortID() string {
	return shortForm(string(h.ID), HostShortIDLength)
}

// Event is a single activity run by a host
type Event struct {
	ID          EventID
	HostID      HostID
	Name        string
	Description string
	CreatedAt   time.Time
}
