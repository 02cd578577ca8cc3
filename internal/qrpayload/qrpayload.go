// Package qrpayload decodes the text carried by badge and event QR codes
// and builds the URLs printed on them.
package qrpayload

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/apexfest/checkin/internal/model"
	"github.com/apexfest/checkin/internal/shortid"
)

// Query parameters carried by QR URLs
const (
	SubjectParam = "student_id"
	EventParam   = "event"
)

// ParseSubject extracts a subject short id from a badge payload.
// The payload is either the bare id or a URL with a student_id parameter.
func ParseSubject(payload string) (string, error) {
	raw, err := extract(payload, SubjectParam)
	if err != nil {
		return "", err
	}
	if !shortid.ValidSubject(raw) {
		return "", fmt.Errorf("%w: %q", model.ErrInvalidShortID, raw)
	}
	return shortid.Normalize(raw), nil
}

// ParseEvent extracts a full event id from an event payload.
// Event ids are never matched by prefix, so anything but a UUID is rejected.
func ParseEvent(payload string) (model.EventID, error) {
	raw, err := extract(payload, EventParam)
	if err != nil {
		return "", err
	}
	return ValidateEventID(raw)
}

// ValidateEventID checks that s is a UUID in its canonical dashed form
func ValidateEventID(s string) (model.EventID, error) {
	s = strings.TrimSpace(s)
	if len(s) != 36 {
		return "", fmt.Errorf("%w: %q", model.ErrInvalidEventID, s)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", model.ErrInvalidEventID, s)
	}
	return model.EventID(id.String()), nil
}

// SubjectURL is the badge QR target for a subject
func SubjectURL(baseURL, shortID string) string {
	return buildURL(baseURL, "/clubdashboard", SubjectParam, shortID)
}

// EventURL is the QR target attendees scan at an event
func EventURL(baseURL string, eventID model.EventID) string {
	return buildURL(baseURL, "/scan", EventParam, string(eventID))
}

func extract(payload, param string) (string, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return "", model.ErrInvalidQRPayload
	}
	if !strings.Contains(payload, "?") && !strings.Contains(payload, "://") {
		return payload, nil
	}

	u, err := url.Parse(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrInvalidQRPayload, err)
	}
	value := strings.TrimSpace(u.Query().Get(param))
	if value == "" {
		return "", fmt.Errorf("%w: missing %s parameter", model.ErrInvalidQRPayload, param)
	}
	return value, nil
}

func buildURL(baseURL, path, param, value string) string {
	base := strings.TrimSuffix(baseURL, "/")
	q := url.Values{}
	q.Set(param, value)
	return base + path + "?" + q.Encode()
}
