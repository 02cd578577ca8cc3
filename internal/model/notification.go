package model

import "time"

// NotificationType names a domain event emitted after a successful write
type NotificationType string

const (
	NotificationSubjectRegistered   NotificationType = "subject.registered"
	NotificationParticipationRecord NotificationType = "participation.recorded"
	NotificationBatchSubmitted      NotificationType = "batch.submitted"
)

// Notification is published to external consumers (mailers, live views)
type Notification struct {
	Type       NotificationType  `json:"type"`
	OccurredAt time.Time         `json:"occurred_at"`
	SubjectID  SubjectID         `json:"subject_id,omitempty"`
	HostID     HostID            `json:"host_id,omitempty"`
	EventID    EventID           `json:"event_id,omitempty"`
	BatchID    BatchID           `json:"batch_id,omitempty"`
	Records    int               `json:"records,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}
