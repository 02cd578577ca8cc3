package web_test

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanRequiresSignIn(t *testing.T) {
	ts := newWebTestServer(t)
	event := ts.createEvent("Robotics", "Line follower")

	rr := ts.get("/scan?event=" + string(event.ID))

	// Should redirect to login, remembering the QR target
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login?redirect="+url.QueryEscape("/scan?event="+string(event.ID)), rr.Header().Get("Location"))
}

func TestScanAfterSignIn(t *testing.T) {
	ts := newWebTestServer(t)
	event := ts.createEvent("Robotics", "Line follower")
	subject := ts.registerSubject("Eve")

	// Scan first, get sent to the login page
	rr := ts.followRedirect(ts.get("/scan?event=" + string(event.ID)))
	require.Equal(t, http.StatusOK, rr.Code)
	redirect, _ := parseHTML(rr.Body).Find("input[name='redirect']").Attr("value")

	// Sign in and land back on the QR target
	rr = ts.post("/login", url.Values{"short_id": {subject.ShortID()}, "redirect": {redirect}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/scan?event="+string(event.ID), rr.Header().Get("Location"))

	rr = ts.followRedirect(rr)
	assert.Equal(t, http.StatusCreated, rr.Code)
	doc := parseHTML(rr.Body)
	assertContainsElement(t, doc, ".scan-recorded")
	assertContainsText(t, doc, ".event", "Line follower")

	history, err := ts.app.LedgerService.History(t.Context(), subject.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestScanCooldown(t *testing.T) {
	ts := newWebTestServer(t)
	event := ts.createEvent("Chess", "Blitz")
	ts.signIn(ts.registerSubject("Finn"))
	path := "/scan?event=" + string(event.ID)

	rr := ts.get(path)
	require.Equal(t, http.StatusCreated, rr.Code)

	ts.app.MockClock.Advance(120 * time.Second)
	rr = ts.get(path)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	doc := parseHTML(rr.Body)
	assertContainsElement(t, doc, ".scan-cooldown")
	assertContainsText(t, doc, ".message", "Please wait 3 minutes.")
	seconds, _ := doc.Find(".remaining").Attr("data-seconds")
	assert.Equal(t, "180", seconds)

	ts.app.MockClock.Advance(181 * time.Second)
	rr = ts.get(path)
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestScanInvalidEvent(t *testing.T) {
	ts := newWebTestServer(t)
	ts.signIn(ts.registerSubject("Gus"))

	tests := []struct {
		name   string
		event  string
		status int
	}{
		{"not a uuid", "club-fair", http.StatusBadRequest},
		{"missing", "", http.StatusBadRequest},
		{"unknown event", "0f8fad5b-d9cb-469f-a165-70867728950e", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.get("/scan?event=" + tt.event)
			assert.Equal(t, tt.status, rr.Code)
			assertContainsElement(t, parseHTML(rr.Body), ".scan-invalid")
		})
	}
}
