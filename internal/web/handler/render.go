package handler

import (
	"net/http"

	"github.com/a-h/templ"

	"github.com/apexfest/checkin/internal/web/middleware"
	"github.com/apexfest/checkin/internal/web/templates/layout"
	"github.com/apexfest/checkin/internal/web/templates/pages"
)

func render(w http.ResponseWriter, r *http.Request, status int, page templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	// headers are already sent
	_ = page.Render(r.Context(), w)
}

func pageData(r *http.Request, title string) layout.PageData {
	return layout.PageData{
		Title:   title,
		Session: middleware.GetSession(r.Context()),
		Flash:   middleware.GetFlash(r.Context()),
	}
}

func renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render(w, r, status, pages.Error(pages.ErrorData{
		PageData: pageData(r, "Error"),
		Status:   status,
		Message:  message,
	}))
}
