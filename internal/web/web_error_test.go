package web_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFlashMessageShownOnce(t *testing.T) {
	ts := newWebTestServer(t)
	ts.signIn(ts.registerSubject("Jo"))

	rr := ts.get("/")
	assertContainsText(t, parseHTML(rr.Body), ".flash", "Welcome, Jo!")

	// Flash cookie is cleared after display
	rr = ts.get("/")
	assertNotContainsElement(t, parseHTML(rr.Body), ".flash")
}

func TestExpiredSessionTreatedAsSignedOut(t *testing.T) {
	ts := newWebTestServer(t)
	ts.signIn(ts.registerSubject("Kai"))

	ts.app.MockClock.Advance(9 * time.Hour)
	rr := ts.get("/scan?event=0f8fad5b-d9cb-469f-a165-70867728950e")

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Contains(t, rr.Header().Get("Location"), "/login")
}

func TestUnknownPage(t *testing.T) {
	ts := newWebTestServer(t)

	rr := ts.get("/lobby/ABC123")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
