// Package directory owns subjects, hosts and events: registration, creation
// and short id resolution.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/apexfest/checkin/internal/dependencies/clock"
	"github.com/apexfest/checkin/internal/dependencies/random"
	"github.com/apexfest/checkin/internal/metrics"
	"github.com/apexfest/checkin/internal/model"
	"github.com/apexfest/checkin/internal/notify"
	"github.com/apexfest/checkin/internal/shortid"
	"github.com/apexfest/checkin/internal/storage"
)

// maxIDAttempts bounds retries when a generated id collides on its short form
const maxIDAttempts = 8

// resolveLimit is enough candidates to tell unique from ambiguous
const resolveLimit = 2

// RegisterInput is the data an attendee supplies at registration
type RegisterInput struct {
	DisplayName string
	Affiliation string
	Email       string
	Category    string
	Profile     map[string]string
}

// Service manages the identity store
type Service struct {
	storage   storage.Storage
	clock     clock.Clock
	random    random.Random
	publisher notify.Publisher
	metrics   *metrics.Manager
	logger    *slog.Logger
}

// New creates a new directory service
func New(
	storage storage.Storage,
	clock clock.Clock,
	random random.Random,
	publisher notify.Publisher,
	metrics *metrics.Manager,
	logger *slog.Logger,
) *Service {
	if publisher == nil {
		publisher = notify.Nop{}
	}
	return &Service{
		storage:   storage,
		clock:     clock,
		random:    random,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
}

// RegisterSubject creates a subject whose 8-character short id is unique
func (s *Service) RegisterSubject(ctx context.Context, in RegisterInput) (*model.Subject, error) {
	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		return nil, fmt.Errorf("%w: display name", model.ErrMissingField)
	}
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: email", model.ErrMissingField)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidEmail, email)
	}
	category, err := model.ParseCategory(in.Category)
	if err != nil {
		return nil, err
	}
	profile, err := category.NormalizeProfile(in.Profile)
	if err != nil {
		return nil, err
	}

	subject := &model.Subject{
		DisplayName: name,
		Affiliation: strings.TrimSpace(in.Affiliation),
		Email:       email,
		Category:    category,
		Profile:     profile,
		CreatedAt:   s.clock.Now(),
	}

	err = s.withUniqueID(func(id string) error {
		subject.ID = model.SubjectID(id)
		return s.storage.CreateSubject(ctx, subject)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("subject registered",
		slog.String("subject_id", string(subject.ID)),
		slog.String("category", string(subject.Category)),
	)
	s.metrics.Registration()
	notify.Send(ctx, s.publisher, s.logger, model.Notification{
		Type:       model.NotificationSubjectRegistered,
		OccurredAt: subject.CreatedAt,
		SubjectID:  subject.ID,
		Attributes: map[string]string{
			"short_id":     subject.ShortID(),
			"display_name": subject.DisplayName,
			"email":        subject.Email,
		},
	})

	return subject, nil
}

// CreateHost creates a host whose 4-character short id is unique
func (s *Service) CreateHost(ctx context.Context, displayName string) (*model.Host, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return nil, fmt.Errorf("%w: display name", model.ErrMissingField)
	}

	host := &model.Host{DisplayName: name, CreatedAt: s.clock.Now()}
	err := s.withUniqueID(func(id string) error {
		host.ID = model.HostID(id)
		return s.storage.CreateHost(ctx, host)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("host created",
		slog.String("host_id", string(host.ID)),
		slog.String("short_id", host.ShortID()),
	)
	return host, nil
}

// CreateEvent creates an event owned by hostID
func (s *Service) CreateEvent(ctx context.Context, hostID model.HostID, name, description string) (*model.Event, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: event name", model.ErrMissingField)
	}

	event := &model.Event{
		ID:          model.EventID(s.random.UUID()),
		HostID:      hostID,
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   s.clock.Now(),
	}
	if err := s.storage.CreateEvent(ctx, event); err != nil {
		return nil, err
	}

	s.logger.Info("event created",
		slog.String("event_id", string(event.ID)),
		slog.String("host_id", string(hostID)),
	)
	return event, nil
}

// ResolveSubject finds the one subject whose id starts with short.
// Unknown and ambiguous short ids are both reported as not found.
func (s *Service) ResolveSubject(ctx context.Context, short string) (*model.Subject, error) {
	if !shortid.ValidSubject(short) {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidShortID, short)
	}
	candidates, err := s.storage.FindSubjectsByPrefix(ctx, shortid.Normalize(short), resolveLimit)
	if err != nil {
		return nil, err
	}
	return shortid.Resolve(candidates, short, func(c *model.Subject) string { return string(c.ID) }, model.ErrSubjectNotFound)
}

// ResolveHost finds the one host whose id starts with the 4-character short id
func (s *Service) ResolveHost(ctx context.Context, short string) (*model.Host, error) {
	if !shortid.ValidHost(short) {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidShortID, short)
	}
	candidates, err := s.storage.FindHostsByPrefix(ctx, shortid.Normalize(short), resolveLimit)
	if err != nil {
		return nil, err
	}
	return shortid.Resolve(candidates, short, func(c *model.Host) string { return string(c.ID) }, model.ErrHostNotFound)
}

// GetSubject retrieves a subject by full id
func (s *Service) GetSubject(ctx context.Context, id model.SubjectID) (*model.Subject, error) {
	return s.storage.GetSubject(ctx, id)
}

// GetHost retrieves a host by full id
func (s *Service) GetHost(ctx context.Context, id model.HostID) (*model.Host, error) {
	return s.storage.GetHost(ctx, id)
}

// GetEvent retrieves an event by full id
func (s *Service) GetEvent(ctx context.Context, id model.EventID) (*model.Event, error) {
	return s.storage.GetEvent(ctx, id)
}

// ListHosts returns all hosts in creation order
func (s *Service) ListHosts(ctx context.Context) ([]*model.Host, error) {
	return s.storage.ListHosts(ctx)
}

// ListEvents returns every event, or only hostID's when it is set
func (s *Service) ListEvents(ctx context.Context, hostID model.HostID) ([]*model.Event, error) {
	if hostID == "" {
		return s.storage.ListEvents(ctx)
	}
	return s.storage.ListEventsByHost(ctx, hostID)
}

// withUniqueID retries create with fresh ids while the short form collides
func (s *Service) withUniqueID(create func(id string) error) error {
	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		err := create(s.random.UUID())
		if !errors.Is(err, model.ErrPrefixCollision) {
			return err
		}
		s.logger.Debug("short id collision, regenerating", slog.Int("attempt", attempt))
	}
	return model.ErrPrefixCollision
}
