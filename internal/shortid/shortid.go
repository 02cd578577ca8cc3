// Package shortid handles the truncated identifiers printed on badges and
// typed in at login. A short id is a case-insensitive prefix of a full id.
package shortid

import (
	"strings"

	"github.com/apexfest/checkin/internal/model"
)

// Normalize trims whitespace and lower-cases a short id
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Of returns the first n characters of a full id, lower-cased
func Of(fullID string, n int) string {
	id := Normalize(fullID)
	if len(id) <= n {
		return id
	}
	return id[:n]
}

// ValidSubject reports whether s has an accepted subject short id length.
// Badges carry 8 characters; 4 is accepted from older QR codes.
func ValidSubject(s string) bool {
	n := len(Normalize(s))
	return n == model.SubjectShortIDLength || n == model.HostShortIDLength
}

// ValidSubjectLogin reports whether s is a full-length subject short id
func ValidSubjectLogin(s string) bool {
	return len(Normalize(s)) == model.SubjectShortIDLength
}

// ValidHost reports whether s is a host short id
func ValidHost(s string) bool {
	return len(Normalize(s)) == model.HostShortIDLength
}

// Matches reports whether prefix is a case-insensitive prefix of fullID
func Matches(fullID, prefix string) bool {
	p := Normalize(prefix)
	if p == "" {
		return false
	}
	return strings.HasPrefix(strings.ToLower(fullID), p)
}

// Overlaps reports whether either short id is a prefix of the other.
// Used to detect the same subject entered with different lengths.
func Overlaps(a, b string) bool {
	a, b = Normalize(a), Normalize(b)
	if a == "" || b == "" {
		return false
	}
	return strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}

// Resolve picks the single candidate whose id starts with prefix.
// No match and more than one match both return notFound.
func Resolve[T any](candidates []T, prefix string, id func(T) string, notFound error) (T, error) {
	var (
		match T
		count int
	)
	for _, c := range candidates {
		if Matches(id(c), prefix) {
			match = c
			count++
			if count > 1 {
				break
			}
		}
	}
	if count != 1 {
		var zero T
		return zero, notFound
	}
	return match, nil
}
