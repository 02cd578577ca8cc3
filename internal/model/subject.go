package model

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
)

// SubjectID uniquely identifies an attendee
type SubjectID string

// SubjectShortIDLength is the number of leading characters of a SubjectID
// used on badges and for manual entry
const SubjectShortIDLength = 8

// Category distinguishes the two attendee registration tracks
type Category string

const (
	CategoryPrimary   Category = "primary"
	CategorySecondary Category = "secondary"
)

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	return c == CategoryPrimary || c == CategorySecondary
}

// ParseCategory converts user input to a Category
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
	return c, nil
}

// Optional registration details. Primary attendees give their class, roll
// number, age and gender; secondary attendees give a college registration
// number. Affiliation holds the school or college name.
const (
	ProfileClass      = "class"
	ProfileRollNumber = "roll_number"
	ProfileAge        = "age"
	ProfileGender     = "gender"
	ProfileCRN        = "crn"
)

// ProfileFields lists the profile keys a category accepts
func (c Category) ProfileFields() []string {
	switch c {
	case CategoryPrimary:
		return []string{ProfileClass, ProfileRollNumber, ProfileAge, ProfileGender}
	case CategorySecondary:
		return []string{ProfileCRN}
	}
	return nil
}

// NormalizeProfile trims values, drops empty ones and rejects keys the
// category does not accept. It returns nil when nothing is left.
func (c Category) NormalizeProfile(profile map[string]string) (map[string]string, error) {
	allowed := c.ProfileFields()
	out := make(map[string]string, len(profile))
	for _, key := range slices.Sorted(maps.Keys(profile)) {
		k := strings.ToLower(strings.TrimSpace(key))
		v := strings.TrimSpace(profile[key])
		if !slices.Contains(allowed, k) {
			return nil, fmt.Errorf("%w: %q for %s", ErrInvalidProfile, key, c)
		}
		if v == "" {
			continue
		}
		if k == ProfileAge {
			if age, err := strconv.Atoi(v); err != nil || age < 1 || age > 150 {
				return nil, fmt.Errorf("%w: age %q", ErrInvalidProfile, v)
			}
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// Subject is a registered festival attendee
type Subject struct {
	ID          SubjectID
	DisplayName string
	Affiliation string
	Email       string
	Category    Category
	Profile     map[string]string `json:",omitempty"`
	Points      int               // mutated only by ledger submissions
	CreatedAt   time.Time
}

// ShortID returns the badge form of the subject's id
func (s *Subject) ShortID() string {
	return shortForm(string(s.ID), SubjectShortIDLength)
}

func shortForm(id string, n int) string {
	if len(id) <= n {
		return id
	}
	return id[:n]
}
