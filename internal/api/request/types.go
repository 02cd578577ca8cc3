package request

// RegisterRequest is the request body for registering a subject
type RegisterRequest struct {
	DisplayName string            `json:"display_name"`
	Affiliation string            `json:"affiliation"`
	Email       string            `json:"email"`
	Category    string            `json:"category"`
	Profile     map[string]string `json:"profile,omitempty"`
}

// LoginRequest is the request body for subject and host login
type LoginRequest struct {
	ShortID string `json:"short_id"`
}

// AdminLoginRequest is the request body for admin login
type AdminLoginRequest struct {
	Password string `json:"password"`
}

// CheckInRequest is the request body for a self check-in.
// Either EventID or the raw scanned QR text is given.
type CheckInRequest struct {
	EventID string `json:"event_id,omitempty"`
	QR      string `json:"qr,omitempty"`
}

// SubmissionEntry is one subject's share of a submission
type SubmissionEntry struct {
	SubjectID string   `json:"subject_id"`
	EventIDs  []string `json:"event_ids"`
	Outcome   string   `json:"outcome"`
}

// SubmissionRequest is the request body for a host submission
type SubmissionRequest struct {
	BatchID string            `json:"batch_id"`
	Entries []SubmissionEntry `json:"entries"`
}

// CreateHostRequest is the request body for creating a host
type CreateHostRequest struct {
	DisplayName string `json:"display_name"`
}

// CreateEventRequest is the request body for creating an event
type CreateEventRequest struct {
	HostID      string `json:"host_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}
