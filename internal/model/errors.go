package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Kind classifies an error so callers can render a distinct state for each
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindCooldown
	KindConflict
	KindStore
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindCooldown:
		return "cooldown"
	case KindConflict:
		return "conflict"
	case KindStore:
		return "store"
	case KindAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Response categories reported to API clients next to the specific code
const (
	CategoryInvalidFormat = "invalid-format"
	CategoryNotFound      = "not-found"
	CategoryCooldown      = "cooldown"
	CategoryConflict      = "conflict"
	CategoryUnauthorized  = "unauthorized"
	CategoryServerError   = "server-error"
)

// Category returns the response category clients branch on. Unknown and
// store failures are both server errors.
func (k Kind) Category() string {
	switch k {
	case KindValidation:
		return CategoryInvalidFormat
	case KindNotFound:
		return CategoryNotFound
	case KindCooldown:
		return CategoryCooldown
	case KindConflict:
		return CategoryConflict
	case KindAuth:
		return CategoryUnauthorized
	default:
		return CategoryServerError
	}
}

// Error is a classified application error.
// The package-level sentinels are matched with errors.Is.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Common errors used across the application
var (
	// Validation errors
	ErrInvalidShortID   = newError(KindValidation, "INVALID_FORMAT", "invalid short id format")
	ErrInvalidEventID   = newError(KindValidation, "INVALID_EVENT_ID", "event id must be a full UUID")
	ErrInvalidQRPayload = newError(KindValidation, "INVALID_QR", "unrecognised QR payload")
	ErrInvalidOutcome   = newError(KindValidation, "INVALID_OUTCOME", "outcome must be win, participate or skipped")
	ErrInvalidCategory  = newError(KindValidation, "INVALID_CATEGORY", "category must be primary or secondary")
	ErrInvalidBatchID   = newError(KindValidation, "INVALID_BATCH_ID", "batch id must be a UUID")
	ErrMissingField     = newError(KindValidation, "MISSING_FIELD", "missing required field")
	ErrInvalidEmail     = newError(KindValidation, "INVALID_EMAIL", "email is not a valid address")
	ErrInvalidProfile   = newError(KindValidation, "INVALID_PROFILE", "profile field not accepted for this category")
	ErrEmptyQueue       = newError(KindValidation, "EMPTY_QUEUE", "queue is empty")
	ErrNothingToSubmit  = newError(KindValidation, "NOTHING_TO_SUBMIT", "no events selected for any queued subject")
	ErrNothingToApply   = newError(KindValidation, "NOTHING_TO_APPLY", "select some events first")

	// Not found errors
	ErrSubjectNotFound = newError(KindNotFound, "SUBJECT_NOT_FOUND", "subject not found")
	ErrHostNotFound    = newError(KindNotFound, "HOST_NOT_FOUND", "host not found")
	ErrEventNotFound   = newError(KindNotFound, "EVENT_NOT_FOUND", "invalid event")
	ErrEntryNotFound   = newError(KindNotFound, "ENTRY_NOT_FOUND", "subject is not in the queue")

	// Cooldown; carried by *CooldownError
	ErrCooldown = newError(KindCooldown, "COOLDOWN", "participation cooldown active")

	// Conflict errors
	ErrQueueFull       = newError(KindConflict, "QUEUE_FULL", "queue is full")
	ErrDuplicateEntry  = newError(KindConflict, "DUPLICATE_ENTRY", "already in queue")
	ErrDuplicateBatch  = newError(KindConflict, "DUPLICATE_BATCH", "batch already submitted")
	ErrPrefixCollision = newError(KindConflict, "PREFIX_COLLISION", "could not allocate a unique short id")
	ErrQueueOwner      = newError(KindConflict, "QUEUE_OWNER", "queue belongs to another host")

	// Store errors
	ErrStore = newError(KindStore, "STORE_ERROR", "store unavailable")

	// Auth errors
	ErrUnauthenticated    = newError(KindAuth, "UNAUTHORIZED", "authentication required")
	ErrInvalidSession     = newError(KindAuth, "UNAUTHORIZED", "invalid or expired session")
	ErrInvalidCredentials = newError(KindAuth, "INVALID_CREDENTIALS", "invalid credentials")
	ErrForbidden          = newError(KindAuth, "FORBIDDEN", "not allowed for this role")
	ErrEventNotOwned      = newError(KindAuth, "EVENT_NOT_OWNED", "event does not belong to this host")
)

// CooldownError is returned when a subject checks into the same event too soon
type CooldownError struct {
	NextAllowedAt    time.Time
	RemainingSeconds int64
}

// NewCooldownError computes the remaining wait, rounded up to whole seconds
func NewCooldownError(nextAllowedAt, now time.Time) *CooldownError {
	remaining := int64(math.Ceil(nextAllowedAt.Sub(now).Seconds()))
	if remaining < 1 {
		remaining = 1
	}
	return &CooldownError{
		NextAllowedAt:    nextAllowedAt,
		RemainingSeconds: remaining,
	}
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: retry in %ds", ErrCooldown.Message, e.RemainingSeconds)
}

// Is makes errors.Is(err, ErrCooldown) match
func (e *CooldownError) Is(target error) bool {
	return target == ErrCooldown
}

// RemainingMinutes rounds the wait up to whole minutes
func (e *CooldownError) RemainingMinutes() int64 {
	return (e.RemainingSeconds + 59) / 60
}

// UserMessage is the text shown to the attendee
func (e *CooldownError) UserMessage() string {
	minutes := e.RemainingMinutes()
	unit := "minute"
	if minutes > 1 {
		unit = "minutes"
	}
	return fmt.Sprintf("You participated in this event recently. Please wait %d %s.", minutes, unit)
}

// KindOf classifies err. Unclassified errors report KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ce *CooldownError
	if errors.As(err, &ce) {
		return KindCooldown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the machine-readable code for err
func CodeOf(err error) string {
	var ce *CooldownError
	if errors.As(err, &ce) {
		return ErrCooldown.Code
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL_ERROR"
}

// StoreFailure classifies an unclassified backend error as ErrStore.
// Errors that already carry a Kind pass through unchanged.
func StoreFailure(err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnknown {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStore, err)
}
