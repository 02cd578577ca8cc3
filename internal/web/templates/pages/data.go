// Package pages holds the server-rendered HTML pages.
package pages

import (
	"github.com/apexfest/checkin/internal/services/leaderboard"
	"github.com/apexfest/checkin/internal/web/templates/layout"
)

// HomeData is the landing page: the top of the subject leaderboard
type HomeData struct {
	layout.PageData
	Top []leaderboard.SubjectStanding
}

// LeaderboardData is the full leaderboard page
type LeaderboardData struct {
	layout.PageData
	Subjects []leaderboard.SubjectStanding
	Hosts    []leaderboard.HostStanding
	Metric   leaderboard.HostMetric
}

// LoginData is the subject sign-in form
type LoginData struct {
	layout.PageData
	ShortID  string
	Redirect string
	Error    string
}

// ScanResult is the outcome shown after a QR scan
type ScanResult string

const (
	ScanRecorded ScanResult = "recorded"
	ScanCooldown ScanResult = "cooldown"
	ScanInvalid  ScanResult = "invalid"
)

// ScanData is the check-in result page
type ScanData struct {
	layout.PageData
	Result           ScanResult
	EventName        string
	Message          string
	RemainingSeconds int64
}

// ErrorData describes a failed page request
type ErrorData struct {
	layout.PageData
	Status  int
	Message string
}
