package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/apexfest/checkin/internal/model"
	"github.com/apexfest/checkin/internal/storage"
)

// HostMetric selects the value hosts are ranked by
type HostMetric string

const (
	MetricParticipations HostMetric = "participations"
	MetricPoints         HostMetric = "points"
)

// ErrInvalidMetric is returned for an unknown host metric
var ErrInvalidMetric = &model.Error{Kind: model.KindValidation, Code: "INVALID_METRIC", Message: "metric must be participations or points"}

// ParseHostMetric converts user input to a HostMetric. Empty input selects participations.
func ParseHostMetric(s string) (HostMetric, error) {
	switch m := HostMetric(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MetricParticipations, nil
	case MetricParticipations, MetricPoints:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMetric, s)
	}
}

// SubjectStanding is one row of the subject leaderboard
type SubjectStanding struct {
	Rank        int
	SubjectID   model.SubjectID
	ShortID     string
	DisplayName string
	Affiliation string
	Category    model.Category
	Points      int
}

// HostStanding is one row of the host leaderboard
type HostStanding struct {
	Rank           int
	HostID         model.HostID
	DisplayName    string
	Participations int
	PointsGiven    int
}

// AuditEntry compares a subject's stored points with the sum of its record scores
type AuditEntry struct {
	SubjectID model.SubjectID
	Stored    int
	Computed  int
}

// Consistent reports whether the stored accumulator matches the ledger
func (e AuditEntry) Consistent() bool {
	return e.Stored == e.Computed
}

// Service derives rankings from the ledger. It never writes.
type Service struct {
	storage storage.Storage
}

// New creates a new leaderboard service
func New(storage storage.Storage) *Service {
	return &Service{storage: storage}
}

// Subjects ranks subjects by stored points. Ties keep registration order.
// A limit of zero or less returns every subject.
func (s *Service) Subjects(ctx context.Context, limit int) ([]SubjectStanding, error) {
	subjects, err := s.storage.ListSubjects(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(subjects, func(i, j int) bool {
		return subjects[i].Points > subjects[j].Points
	})

	standings := make([]SubjectStanding, 0, len(subjects))
	for i, subject := range truncate(subjects, limit) {
		standings = append(standings, SubjectStanding{
			Rank:        i + 1,
			SubjectID:   subject.ID,
			ShortID:     subject.ShortID(),
			DisplayName: subject.DisplayName,
			Affiliation: subject.Affiliation,
			Category:    subject.Category,
			Points:      subject.Points,
		})
	}
	return standings, nil
}

// Hosts ranks hosts by participations recorded at their events or by
// points given. Ties keep host creation order.
func (s *Service) Hosts(ctx context.Context, metric HostMetric, limit int) ([]HostStanding, error) {
	if metric != MetricParticipations && metric != MetricPoints {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMetric, metric)
	}

	hosts, err := s.storage.ListHosts(ctx)
	if err != nil {
		return nil, err
	}
	events, err := s.storage.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	records, err := s.storage.ListParticipation(ctx)
	if err != nil {
		return nil, err
	}

	owner := make(map[model.EventID]model.HostID, len(events))
	for _, event := range events {
		owner[event.ID] = event.HostID
	}

	standings := make([]HostStanding, len(hosts))
	index := make(map[model.HostID]int, len(hosts))
	for i, host := range hosts {
		standings[i] = HostStanding{HostID: host.ID, DisplayName: host.DisplayName}
		index[host.ID] = i
	}
	for _, rec := range records {
		i, ok := index[owner[rec.EventID]]
		if !ok {
			continue
		}
		standings[i].Participations++
		standings[i].PointsGiven += rec.Outcome.HostScore()
	}

	value := func(h HostStanding) int {
		if metric == MetricPoints {
			return h.PointsGiven
		}
		return h.Participations
	}
	sort.SliceStable(standings, func(i, j int) bool {
		return value(standings[i]) > value(standings[j])
	})

	standings = truncate(standings, limit)
	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings, nil
}

// Recompute sums every subject's record scores and returns them next to the
// stored points, in registration order.
func (s *Service) Recompute(ctx context.Context) ([]AuditEntry, error) {
	subjects, err := s.storage.ListSubjects(ctx)
	if err != nil {
		return nil, err
	}
	records, err := s.storage.ListParticipation(ctx)
	if err != nil {
		return nil, err
	}

	computed := make(map[model.SubjectID]int, len(subjects))
	for _, rec := range records {
		computed[rec.SubjectID] += rec.Outcome.Score()
	}

	entries := make([]AuditEntry, 0, len(subjects))
	for _, subject := range subjects {
		entries = append(entries, AuditEntry{
			SubjectID: subject.ID,
			Stored:    subject.Points,
			Computed:  computed[subject.ID],
		})
	}
	return entries, nil
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
