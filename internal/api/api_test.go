package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexfest/checkin/internal/api"
	"github.com/apexfest/checkin/internal/api/apierr"
	"github.com/apexfest/checkin/internal/api/response"
	"github.com/apexfest/checkin/internal/factory"
	"github.com/apexfest/checkin/internal/model"
	"github.com/apexfest/checkin/internal/qrpayload"
	"github.com/apexfest/checkin/internal/testutil"
)

const baseURL = "https://fest.example"

// testServer creates a test server with all dependencies
type testServer struct {
	handler http.Handler
	app     *factory.TestApp
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	app := factory.NewTestApp()
	router := api.NewRouter(api.RouterConfig{
		Logger:             testutil.NopLogger(),
		Storage:            app.Storage,
		AuthService:        app.AuthService,
		DirectoryService:   app.DirectoryService,
		LedgerService:      app.LedgerService,
		LeaderboardService: app.LeaderboardService,
		Broadcaster:        app.Broadcaster,
		Metrics:            app.Metrics,
		PublicBaseURL:      baseURL,
	})
	t.Cleanup(func() { _ = app.Close() })

	return &testServer{handler: router, app: app}
}

func (ts *testServer) request(method, path string, body any, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) apierr.APIError {
	t.Helper()
	return decodeBody[apierr.ErrorResponse](t, rr).Error
}

func (ts *testServer) adminToken(t *testing.T) string {
	t.Helper()
	rr := ts.request(http.MethodPost, "/api/v1/auth/admin-login", map[string]string{"password": factory.TestAdminPassword}, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return decodeBody[response.AuthResponse](t, rr).SessionToken
}

// fixture is a host with one event and its session
type fixture struct {
	host      response.Host
	event     response.Event
	hostToken string
}

func (ts *testServer) setupHost(t *testing.T, name string) fixture {
	t.Helper()
	admin := ts.adminToken(t)

	rr := ts.request(http.MethodPost, "/api/v1/admin/hosts", map[string]string{"display_name": name}, admin)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	host := decodeBody[response.Host](t, rr)

	rr = ts.request(http.MethodPost, "/api/v1/admin/events", map[string]string{
		"host_id": host.ID, "name": name + " Open", "description": "drop-in",
	}, admin)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	event := decodeBody[response.Event](t, rr)

	rr = ts.request(http.MethodPost, "/api/v1/auth/host-login", map[string]string{"short_id": host.ShortID}, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	return fixture{host: host, event: event, hostToken: decodeBody[response.AuthResponse](t, rr).SessionToken}
}

func (ts *testServer) registerSubject(t *testing.T, name string) response.AuthResponse {
	t.Helper()
	rr := ts.request(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"display_name": name,
		"affiliation":  "Year 9",
		"email":        name + "@example.com",
		"category":     "secondary",
	}, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decodeBody[response.AuthResponse](t, rr)
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decodeBody[response.Health](t, rr).Status)
}

func TestRegisterAndLogin(t *testing.T) {
	ts := newTestServer(t)

	registered := ts.registerSubject(t, "alice")
	require.NotNil(t, registered.Subject)
	assert.Len(t, registered.Subject.ShortID, 8)
	assert.Equal(t, "subject", registered.Session.Role)
	assert.NotEmpty(t, registered.SessionToken)

	rr := ts.request(http.MethodPost, "/api/v1/auth/login", map[string]string{"short_id": registered.Subject.ShortID}, "")
	require.Equal(t, http.StatusOK, rr.Code)
	login := decodeBody[response.AuthResponse](t, rr)
	assert.Equal(t, registered.Subject.ID, login.Session.SubjectID)

	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == "session" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	rr = ts.request(http.MethodGet, "/api/v1/auth/session", nil, login.SessionToken)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "alice", decodeBody[response.Session](t, rr).DisplayName)
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"display_name": "bob", "email": "not-an-email", "category": "primary",
	}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "INVALID_EMAIL", errorCode(t, rr).Code)

	rr = ts.request(http.MethodPost, "/api/v1/auth/register", "{", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRegisterWithProfile(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodPost, "/api/v1/auth/register", map[string]any{
		"display_name": "Ravi",
		"affiliation":  "City College",
		"email":        "ravi@example.com",
		"category":     "secondary",
		"profile":      map[string]string{"crn": "CS-2231"},
	}, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	registered := decodeBody[response.AuthResponse](t, rr)
	require.NotNil(t, registered.Subject)
	assert.Equal(t, map[string]string{"crn": "CS-2231"}, registered.Subject.Profile)

	rr = ts.request(http.MethodPost, "/api/v1/auth/register", map[string]any{
		"display_name": "Mira",
		"email":        "mira@example.com",
		"category":     "secondary",
		"profile":      map[string]string{"roll_number": "4"},
	}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	apiErr := errorCode(t, rr)
	assert.Equal(t, "INVALID_PROFILE", apiErr.Code)
	assert.Equal(t, "invalid-format", apiErr.Kind)
}

func TestLoginErrors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		short  string
		status int
		code   string
	}{
		{"subject wrong length", "/api/v1/auth/login", "abcd", http.StatusBadRequest, "INVALID_FORMAT"},
		{"subject unknown", "/api/v1/auth/login", "deadbeef", http.StatusNotFound, "SUBJECT_NOT_FOUND"},
		{"host wrong length", "/api/v1/auth/host-login", "abcdef12", http.StatusBadRequest, "INVALID_FORMAT"},
		{"host unknown", "/api/v1/auth/host-login", "beef", http.StatusNotFound, "HOST_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.request(http.MethodPost, tt.path, map[string]string{"short_id": tt.short}, "")
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.code, errorCode(t, rr).Code)
		})
	}
}

func TestAdminLoginRejectsWrongPassword(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodPost, "/api/v1/auth/admin-login", map[string]string{"password": "guess"}, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLogoutRevokesSession(t *testing.T) {
	ts := newTestServer(t)
	subject := ts.registerSubject(t, "carol")

	rr := ts.request(http.MethodPost, "/api/v1/auth/logout", nil, subject.SessionToken)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/auth/session", nil, subject.SessionToken)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCheckInCooldown(t *testing.T) {
	ts := newTestServer(t)
	fx := ts.setupHost(t, "Robotics")
	subject := ts.registerSubject(t, "dana")
	body := map[string]string{"event_id": fx.event.ID}

	rr := ts.request(http.MethodPost, "/api/v1/checkins", body, subject.SessionToken)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	checkIn := decodeBody[response.CheckInResponse](t, rr)
	assert.Equal(t, fx.event.ID, checkIn.Record.EventID)
	assert.Nil(t, checkIn.Record.Outcome)

	ts.app.MockClock.Advance(120 * time.Second)
	rr = ts.request(http.MethodPost, "/api/v1/checkins", body, subject.SessionToken)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "180", rr.Header().Get("Retry-After"))
	apiErr := errorCode(t, rr)
	assert.Equal(t, "COOLDOWN", apiErr.Code)
	require.NotNil(t, apiErr.RemainingSeconds)
	assert.Equal(t, int64(180), *apiErr.RemainingSeconds)
	assert.Contains(t, apiErr.Message, "Please wait 3 minutes")

	rr = ts.request(http.MethodGet, "/api/v1/me/cooldown/"+fx.event.ID, nil, subject.SessionToken)
	require.Equal(t, http.StatusOK, rr.Code)
	status := decodeBody[response.CooldownStatus](t, rr)
	assert.False(t, status.Allowed)
	assert.Equal(t, int64(180), status.RemainingSeconds)

	ts.app.MockClock.Advance(181 * time.Second)
	rr = ts.request(http.MethodPost, "/api/v1/checkins", body, subject.SessionToken)
	assert.Equal(t, http.StatusCreated, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/me/participation", nil, subject.SessionToken)
	require.Equal(t, http.StatusOK, rr.Code)
	history := decodeBody[[]response.HistoryEntry](t, rr)
	require.Len(t, history, 2)
	assert.Equal(t, "Robotics Open", history[0].EventName)
}

func TestCheckInByQRCode(t *testing.T) {
	ts := newTestServer(t)
	fx := ts.setupHost(t, "Drama")
	subject := ts.registerSubject(t, "erin")

	rr := ts.request(http.MethodGet, "/api/v1/admin/events/"+fx.event.ID+"/qr", nil, ts.adminToken(t))
	require.Equal(t, http.StatusOK, rr.Code)
	target := decodeBody[response.QRTarget](t, rr)
	assert.Equal(t, baseURL+"/scan?event="+fx.event.ID, target.URL)

	rr = ts.request(http.MethodPost, "/api/v1/checkins", map[string]string{"qr": target.URL}, subject.SessionToken)
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}

func TestSubjectBadgeQR(t *testing.T) {
	ts := newTestServer(t)
	fx := ts.setupHost(t, "Drama")
	subject := ts.registerSubject(t, "gwen")

	rr := ts.request(http.MethodGet, "/api/v1/admin/subjects/"+strings.ToUpper(subject.Subject.ShortID)+"/qr", nil, ts.adminToken(t))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	badge := decodeBody[response.BadgeTarget](t, rr)
	assert.Equal(t, subject.Subject.ID, badge.SubjectID)
	assert.Equal(t, "gwen", badge.DisplayName)
	assert.Equal(t, baseURL+"/clubdashboard?student_id="+subject.Subject.ShortID, badge.URL)

	short, err := qrpayload.ParseSubject(badge.URL)
	require.NoError(t, err)
	rr = ts.request(http.MethodGet, "/api/v1/subjects/"+short, nil, fx.hostToken)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, subject.Subject.ID, decodeBody[response.Subject](t, rr).ID)

	rr = ts.request(http.MethodGet, "/api/v1/admin/subjects/00000000/qr", nil, ts.adminToken(t))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/admin/subjects/"+subject.Subject.ShortID+"/qr", nil, fx.hostToken)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestCheckInErrors(t *testing.T) {
	ts := newTestServer(t)
	subject := ts.registerSubject(t, "finn")

	tests := []struct {
		name   string
		body   map[string]string
		status int
		kind   string
		code   string
	}{
		{"missing target", map[string]string{}, http.StatusBadRequest, "invalid-format", apierr.CodeInvalidRequest},
		{"not a uuid", map[string]string{"event_id": "abc"}, http.StatusBadRequest, "invalid-format", "INVALID_EVENT_ID"},
		{"unknown event", map[string]string{"event_id": "0f8fad5b-d9cb-469f-a165-70867728950e"}, http.StatusNotFound, "not-found", "EVENT_NOT_FOUND"},
		{"bad qr", map[string]string{"qr": "https://elsewhere.example/"}, http.StatusBadRequest, "invalid-format", "INVALID_QR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.request(http.MethodPost, "/api/v1/checkins", tt.body, subject.SessionToken)
			assert.Equal(t, tt.status, rr.Code)
			apiErr := errorCode(t, rr)
			assert.Equal(t, tt.kind, apiErr.Kind)
			assert.Equal(t, tt.code, apiErr.Code)
		})
	}
}

func TestRoleEnforcement(t *testing.T) {
	ts := newTestServer(t)
	fx := ts.setupHost(t, "Art")
	subject := ts.registerSubject(t, "gail")

	rr := ts.request(http.MethodPost, "/api/v1/checkins", map[string]string{"event_id": fx.event.ID}, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ts.request(http.MethodPost, "/api/v1/checkins", map[string]string{"event_id": fx.event.ID}, fx.hostToken)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/host/events", nil, subject.SessionToken)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/admin/hosts", nil, fx.hostToken)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestHostSubmission(t *testing.T) {
	ts := newTestServer(t)
	fx := ts.setupHost(t, "Chess")
	subject := ts.registerSubject(t, "hana")

	rr := ts.request(http.MethodGet, "/api/v1/subjects/"+subject.Subject.ShortID, nil, fx.hostToken)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, subject.Subject.ID, decodeBody[response.Subject](t, rr).ID)

	rr = ts.request(http.MethodGet, "/api/v1/subjects/"+strings.ToUpper(subject.Subject.ShortID[:4]), nil, fx.hostToken)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = ts.request(http.MethodGet, "/api/v1/host/events", nil, fx.hostToken)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]response.Event](t, rr), 1)

	body := map[string]any{
		"batch_id": "6f1c2b8e-3d2a-4c1b-9e8f-7a6b5c4d3e2f",
		"entries": []map[string]any{
			{"subject_id": subject.Subject.ID, "event_ids": []string{fx.event.ID}, "outcome": "win"},
		},
	}
	rr = ts.request(http.MethodPost, "/api/v1/submissions", body, fx.hostToken)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	result := decodeBody[response.SubmissionResponse](t, rr)
	assert.Equal(t, 1, result.Records)
	assert.False(t, result.Duplicate)

	rr = ts.request(http.MethodPost, "/api/v1/submissions", body, fx.hostToken)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decodeBody[response.SubmissionResponse](t, rr).Duplicate)

	rr = ts.request(http.MethodGet, "/api/v1/leaderboard/subjects?limit=5", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	standings := decodeBody[[]response.SubjectStanding](t, rr)
	require.Len(t, standings, 1)
	assert.Equal(t, 20, standings[0].Points)
	assert.Equal(t, 1, standings[0].Rank)

	rr = ts.request(http.MethodGet, "/api/v1/leaderboard/hosts?metric=points", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	hosts := decodeBody[[]response.HostStanding](t, rr)
	require.Len(t, hosts, 1)
	assert.Equal(t, 20, hosts[0].PointsGiven)
}

func TestSubmissionErrors(t *testing.T) {
	ts := newTestServer(t)
	chess := ts.setupHost(t, "Chess")
	music := ts.setupHost(t, "Music")
	subject := ts.registerSubject(t, "ivan")

	entry := func(eventID, outcome string) map[string]any {
		return map[string]any{"subject_id": subject.Subject.ID, "event_ids": []string{eventID}, "outcome": outcome}
	}
	tests := []struct {
		name    string
		batchID string
		entries []map[string]any
		status  int
		code    string
	}{
		{"foreign event", "11111111-2222-4333-8444-555555555555", []map[string]any{entry(music.event.ID, "win")}, http.StatusForbidden, "EVENT_NOT_OWNED"},
		{"bad outcome", "11111111-2222-4333-8444-555555555556", []map[string]any{entry(chess.event.ID, "draw")}, http.StatusBadRequest, "INVALID_OUTCOME"},
		{"bad batch id", "batch-1", []map[string]any{entry(chess.event.ID, "win")}, http.StatusBadRequest, "INVALID_BATCH_ID"},
		{"no entries", "11111111-2222-4333-8444-555555555557", nil, http.StatusBadRequest, "NOTHING_TO_SUBMIT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := map[string]any{"batch_id": tt.batchID, "entries": tt.entries}
			rr := ts.request(http.MethodPost, "/api/v1/submissions", body, chess.hostToken)
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.code, errorCode(t, rr).Code)
		})
	}

	stored, err := ts.app.DirectoryService.GetSubject(t.Context(), model.SubjectID(subject.Subject.ID))
	require.NoError(t, err)
	assert.Zero(t, stored.Points)
}

func TestLeaderboardParams(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/leaderboard/hosts?metric=popularity", nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "INVALID_METRIC", errorCode(t, rr).Code)

	rr = ts.request(http.MethodGet, "/api/v1/leaderboard/subjects?limit=zero", nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAdminListsAndAudit(t *testing.T) {
	ts := newTestServer(t)
	fx := ts.setupHost(t, "Science")
	admin := ts.adminToken(t)

	rr := ts.request(http.MethodGet, "/api/v1/admin/hosts", nil, admin)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]response.Host](t, rr), 1)

	rr = ts.request(http.MethodGet, "/api/v1/admin/events?host_id="+fx.host.ID, nil, admin)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]response.Event](t, rr), 1)

	rr = ts.request(http.MethodPost, "/api/v1/admin/events", map[string]string{
		"host_id": "00000000-0000-4000-8000-00000000ffff", "name": "Orphan",
	}, admin)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/admin/leaderboard/audit", nil, admin)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decodeBody[response.Audit](t, rr).Consistent)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.request(http.MethodGet, "/api/v1/health", nil, "")

	rr := ts.request(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `checkin_http_requests_total{method="GET",route="/api/v1/health",status="200"} 1`)
}
