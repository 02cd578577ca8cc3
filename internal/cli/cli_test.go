package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexfest/checkin/internal/api"
	"github.com/apexfest/checkin/internal/api/response"
	"github.com/apexfest/checkin/internal/factory"
	"github.com/apexfest/checkin/internal/intake"
	"github.com/apexfest/checkin/internal/live"
	"github.com/apexfest/checkin/internal/model"
	"github.com/apexfest/checkin/internal/testutil"
)

// harness runs CLI commands in-process against a test server
type harness struct {
	t         *testing.T
	app       *factory.TestApp
	server    *httptest.Server
	tokenFile string
	stateDir  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("CHECKIN_TOKEN", "")
	t.Setenv("CHECKIN_ADMIN_PASSWORD", "")

	app := factory.NewTestApp()
	server := httptest.NewServer(api.NewRouter(api.RouterConfig{
		Logger:             testutil.NopLogger(),
		Storage:            app.Storage,
		AuthService:        app.AuthService,
		DirectoryService:   app.DirectoryService,
		LedgerService:      app.LedgerService,
		LeaderboardService: app.LeaderboardService,
		Broadcaster:        app.Broadcaster,
		Metrics:            app.Metrics,
		PublicBaseURL:      "https://fest.example",
	}))
	t.Cleanup(func() {
		_ = app.Close()
		server.Close()
	})

	dir := t.TempDir()
	return &harness{
		t:         t,
		app:       app,
		server:    server,
		tokenFile: filepath.Join(dir, "token"),
		stateDir:  filepath.Join(dir, "state"),
	}
}

// run executes the CLI with JSON output and the harness token file
func (h *harness) run(args ...string) (string, error) {
	return h.runWithInput("", args...)
}

func (h *harness) runWithInput(input string, args ...string) (string, error) {
	full := append([]string{
		"--server", h.server.URL,
		"--token-file", h.tokenFile,
		"--state-dir", h.stateDir,
		"--output", "json",
	}, args...)

	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(input))
	cmd.SetArgs(full)
	err := cmd.Execute()
	return stdout.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, "output: %s", out)
	return out
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

// setupHost creates a host with two events as admin and signs in as the host
func (h *harness) setupHost(name string) (response.Host, []response.Event) {
	h.t.Helper()
	h.mustRun("admin", "login", "--password", factory.TestAdminPassword)
	host := decode[response.Host](h.t, h.mustRun("admin", "host", "create", "--name", name))

	var events []response.Event
	for _, title := range []string{"Blitz", "Puzzles"} {
		out := h.mustRun("admin", "event", "create", "--host", host.ID, "--name", title)
		events = append(events, decode[response.Event](h.t, out))
	}

	h.mustRun("host", "login", host.ShortID)
	return host, events
}

// registerSubject registers through the API without touching the token file
func (h *harness) registerSubject(name string) response.Subject {
	h.t.Helper()
	body, _ := json.Marshal(map[string]string{
		"display_name": name,
		"email":        strings.ToLower(name) + "@example.com",
		"category":     "primary",
	})
	resp, err := http.Post(h.server.URL+"/api/v1/auth/register", "application/json", bytes.NewReader(body))
	require.NoError(h.t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(h.t, http.StatusCreated, resp.StatusCode)

	var auth response.AuthResponse
	require.NoError(h.t, json.NewDecoder(resp.Body).Decode(&auth))
	require.NotNil(h.t, auth.Subject)
	return *auth.Subject
}

func TestCLI_Health(t *testing.T) {
	h := newHarness(t)

	result := decode[response.Health](t, h.mustRun("health"))
	assert.Equal(t, "ok", result.Status)
	assert.Equal(t, "ok", result.Storage)
}

func TestCLI_TextOutput(t *testing.T) {
	h := newHarness(t)

	cmd := NewRootCmd()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"--server", h.server.URL, "--token-file", h.tokenFile, "health"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "Status: ok\nStorage: ok\n", stdout.String())
}

func TestCLI_RegisterLoginWhoami(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("register", "--name", "Alice", "--email", "alice@example.com", "--affiliation", "Chess Club")
	reg := decode[response.AuthResponse](t, out)
	require.NotNil(t, reg.Subject)
	assert.Len(t, reg.Subject.ShortID, model.SubjectShortIDLength)
	assert.Equal(t, "primary", reg.Subject.Category)

	// token is saved and reused
	session := decode[response.Session](t, h.mustRun("whoami"))
	assert.Equal(t, "subject", session.Role)
	assert.Equal(t, "Alice", session.DisplayName)

	h.mustRun("logout")
	_, err := h.run("whoami")
	assert.ErrorIs(t, err, model.ErrUnauthenticated)

	// sign back in with the badge id in either case
	out = h.mustRun("login", strings.ToUpper(reg.Subject.ShortID))
	assert.Equal(t, reg.Subject.ID, decode[response.AuthResponse](t, out).Session.SubjectID)
}

func TestCLI_RegisterWithProfile(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("register", "--name", "Ravi", "--email", "ravi@example.com",
		"--category", "secondary", "--affiliation", "City College", "--profile", "crn=CS-2231")
	reg := decode[response.AuthResponse](t, out)
	require.NotNil(t, reg.Subject)
	assert.Equal(t, map[string]string{"crn": "CS-2231"}, reg.Subject.Profile)

	_, err := h.run("register", "--name", "Mira", "--email", "mira@example.com", "--profile", "crn=CS-1")
	assert.ErrorIs(t, err, model.ErrInvalidProfile)
}

func TestCLI_LoginErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("login", "abc")
	assert.ErrorIs(t, err, model.ErrInvalidShortID)

	_, err = h.run("login", "deadbeef")
	assert.ErrorIs(t, err, model.ErrSubjectNotFound)

	_, err = h.run("admin", "login", "--password", "nope")
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)

	_, err = h.run("admin", "login")
	assert.Error(t, err)
}

func TestCLI_ScanAndHistory(t *testing.T) {
	h := newHarness(t)
	_, events := h.setupHost("Chess Club")
	h.mustRun("register", "--name", "Alice", "--email", "alice@example.com")

	// the subject session cannot use admin commands
	_, err := h.run("admin", "qr", events[0].ID)
	require.ErrorIs(t, err, model.ErrForbidden)

	out := h.mustRun("scan", "https://fest.example/scan?event="+events[0].ID)
	checkIn := decode[response.CheckInResponse](t, out)
	assert.Equal(t, "Blitz", checkIn.Event.Name)
	assert.Nil(t, checkIn.Record.Outcome)

	// second scan within the cooldown is refused with the remaining wait
	h.app.MockClock.Advance(2 * time.Minute)
	_, err = h.run("scan", events[0].ID)
	require.ErrorIs(t, err, model.ErrCooldown)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	require.NotNil(t, apiErr.RemainingSeconds)
	assert.Equal(t, int64(180), *apiErr.RemainingSeconds)

	// a different event is not affected
	h.mustRun("scan", events[1].ID)

	history := decode[[]response.HistoryEntry](t, h.mustRun("history"))
	require.Len(t, history, 2)

	_, err = h.run("scan", "not-a-code")
	assert.ErrorIs(t, err, model.ErrInvalidEventID)

	_, err = h.run("scan", "https://fest.example/scan")
	assert.ErrorIs(t, err, model.ErrInvalidQRPayload)
}

func TestCLI_AdminCommands(t *testing.T) {
	h := newHarness(t)
	host, events := h.setupHost("Chess Club")

	h.mustRun("admin", "login", "--password", factory.TestAdminPassword)

	hosts := decode[[]response.Host](t, h.mustRun("admin", "host", "list"))
	require.Len(t, hosts, 1)
	assert.Equal(t, host.ID, hosts[0].ID)

	listed := decode[[]response.Event](t, h.mustRun("admin", "event", "list", "--host", host.ID))
	assert.Len(t, listed, 2)

	qr := decode[response.QRTarget](t, h.mustRun("admin", "qr", events[0].ID))
	assert.Equal(t, "https://fest.example/scan?event="+events[0].ID, qr.URL)

	dana := h.registerSubject("Dana")
	badge := decode[response.BadgeTarget](t, h.mustRun("admin", "badge", dana.ShortID))
	assert.Equal(t, "https://fest.example/clubdashboard?student_id="+dana.ShortID, badge.URL)
	assert.Equal(t, dana.ID, badge.SubjectID)

	audit := decode[response.Audit](t, h.mustRun("admin", "audit"))
	assert.True(t, audit.Consistent)
}

func TestCLI_QueueFlow(t *testing.T) {
	h := newHarness(t)
	_, events := h.setupHost("Chess Club")
	alice := h.registerSubject("Alice")
	bob := h.registerSubject("Bob")

	hostEvents := decode[[]response.Event](t, h.mustRun("events"))
	require.Len(t, hostEvents, 2)

	entry := decode[intake.Entry](t, h.mustRun("queue", "add", "https://fest.example/clubdashboard?student_id="+alice.ShortID))
	assert.Equal(t, model.SubjectID(alice.ID), entry.SubjectID)
	assert.Equal(t, model.OutcomeParticipate, entry.Outcome)
	h.mustRun("queue", "add", bob.ShortID)

	_, err := h.run("queue", "add", alice.ShortID)
	assert.ErrorIs(t, err, model.ErrDuplicateEntry)

	h.mustRun("queue", "select", alice.ShortID, events[0].ID, events[1].ID)
	h.mustRun("queue", "outcome", alice.ShortID, "win")

	// declined confirmation leaves bob without events
	out, err := h.runWithInput("n\n", "queue", "apply-all", alice.ShortID)
	require.NoError(t, err, out)
	entries := decode[[]intake.Entry](t, h.mustRun("queue", "list"))
	require.Len(t, entries, 2)
	assert.Empty(t, entries[1].Selected)

	h.mustRun("queue", "apply-all", alice.ShortID, "--yes")
	entries = decode[[]intake.Entry](t, h.mustRun("queue", "list"))
	assert.Len(t, entries[1].Selected, 2)

	result := decode[intake.SubmitResult](t, h.mustRun("queue", "submit"))
	assert.Equal(t, 4, result.Receipt.Records)
	assert.False(t, result.Receipt.Duplicate)

	assert.Empty(t, decode[[]intake.Entry](t, h.mustRun("queue", "list")))

	standings := decode[[]response.SubjectStanding](t, h.mustRun("leaderboard", "subjects"))
	require.Len(t, standings, 2)
	assert.Equal(t, "Alice", standings[0].DisplayName)
	assert.Equal(t, 40, standings[0].Points)
	assert.Equal(t, 20, standings[1].Points)

	hostStandings := decode[[]response.HostStanding](t, h.mustRun("leaderboard", "hosts", "--metric", "points"))
	require.Len(t, hostStandings, 1)
	assert.Equal(t, 60, hostStandings[0].PointsGiven)
	assert.Equal(t, 4, hostStandings[0].Participations)
}

func TestCLI_QueueSurvivesFailedSubmit(t *testing.T) {
	h := newHarness(t)
	h.setupHost("Chess Club")
	alice := h.registerSubject("Alice")

	h.mustRun("queue", "add", alice.ShortID)
	_, err := h.run("queue", "submit")
	assert.ErrorIs(t, err, model.ErrNothingToSubmit)

	entries := decode[[]intake.Entry](t, h.mustRun("queue", "list"))
	assert.Len(t, entries, 1)

	h.mustRun("queue", "clear")
	assert.Empty(t, decode[[]intake.Entry](t, h.mustRun("queue", "list")))
}

func TestCLI_QueueFull(t *testing.T) {
	h := newHarness(t)
	h.setupHost("Chess Club")

	for i := range model.MaxQueueEntries {
		s := h.registerSubject(fmt.Sprintf("Subject%02d", i))
		h.mustRun("queue", "add", s.ShortID)
	}
	extra := h.registerSubject("Extra")
	_, err := h.run("queue", "add", extra.ShortID)
	assert.ErrorIs(t, err, model.ErrQueueFull)
}

func TestCLI_QueueNeedsHost(t *testing.T) {
	h := newHarness(t)
	h.mustRun("register", "--name", "Alice", "--email", "alice@example.com")

	_, err := h.run("queue", "list")
	assert.ErrorIs(t, err, model.ErrForbidden)
}

func TestCLI_LeaderboardWatch(t *testing.T) {
	h := newHarness(t)

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := h.run("leaderboard", "watch", "--count", "2")
		done <- result{out, err}
	}()

	require.Eventually(t, func() bool {
		hub := h.app.HubManager.GetHub(live.StreamLeaderboard)
		return hub != nil && hub.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	h.registerSubject("Alice")

	select {
	case r := <-done:
		require.NoError(t, r.err, r.out)
		lines := strings.Split(strings.TrimSpace(r.out), "\n")
		require.Len(t, lines, 3)

		var last SSEEvent
		require.NoError(t, json.Unmarshal([]byte(lines[2]), &last))
		assert.Equal(t, live.EventLeaderboardUpdate, last.Event)

		var board response.Leaderboard
		require.NoError(t, json.Unmarshal(last.Data, &board))
		require.Len(t, board.Subjects, 1)
		assert.Equal(t, "Alice", board.Subjects[0].DisplayName)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not finish")
	}
}
