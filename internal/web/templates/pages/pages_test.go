package pages_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/a-h/templ"
	"github.com/stretchr/testify/require"

	"github.com/apexfest/checkin/internal/web/templates/layout"
	"github.com/apexfest/checkin/internal/web/templates/pages"
)

func render(t *testing.T, c templ.Component) (string, *goquery.Document) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Render(context.Background(), &buf))
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	return buf.String(), doc
}

func TestScanCooldownPage(t *testing.T) {
	html, doc := render(t, pages.Scan(pages.ScanData{
		PageData:         layout.PageData{Title: "Check-in"},
		Result:           pages.ScanCooldown,
		Message:          "checked in recently",
		RemainingSeconds: 42,
	}))

	require.Contains(t, html, "<!doctype html>")
	require.Equal(t, 1, doc.Find("section.scan.scan-cooldown").Length())
	require.Equal(t, "42", doc.Find(".remaining").AttrOr("data-seconds", ""))
	require.Equal(t, "42", doc.Find(".remaining").Text())
	require.Equal(t, "checked in recently", doc.Find(".message").Text())
}

func TestScanPageEscapesEventName(t *testing.T) {
	html, doc := render(t, pages.Scan(pages.ScanData{
		Result:    pages.ScanRecorded,
		EventName: "<script>alert(1)</script>",
	}))

	require.NotContains(t, html, "<script>alert(1)</script>")
	require.Equal(t, "<script>alert(1)</script>", doc.Find("strong.event").Text())
}

func TestFlashRendersInLayout(t *testing.T) {
	_, doc := render(t, pages.Error(pages.ErrorData{
		PageData: layout.PageData{
			Title: "Not found",
			Flash: &layout.FlashMessage{Type: "success", Message: "Signed out"},
		},
		Status:  404,
		Message: "page not found",
	}))

	require.Equal(t, "Signed out", doc.Find(".flash.flash-success").Text())
	require.Contains(t, doc.Find("title").Text(), "Not found")
}
