package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	apimw "github.com/apexfest/checkin/internal/api/middleware"
	"github.com/apexfest/checkin/internal/model"
	"github.com/apexfest/checkin/internal/services/auth"
	"github.com/apexfest/checkin/internal/web/middleware"
	"github.com/apexfest/checkin/internal/web/templates/pages"
)

// AuthHandler handles authentication pages and actions
type AuthHandler struct {
	authService *auth.Service
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService *auth.Service) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// LoginPage renders the login page
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	redirect := safeRedirect(r.URL.Query().Get("redirect"))

	session := middleware.GetSession(r.Context())
	if session != nil && session.Role == auth.RoleSubject {
		// Already signed in
		http.Redirect(w, r, redirect, http.StatusSeeOther)
		return
	}

	render(w, r, http.StatusOK, pages.Login(pages.LoginData{
		PageData: pageData(r, "Sign in"),
		Redirect: redirect,
	}))
}

// Login handles login form submission
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderLoginError(w, r, http.StatusBadRequest, "Invalid form data", "", "/")
		return
	}

	short := strings.TrimSpace(r.FormValue("short_id"))
	redirect := safeRedirect(r.FormValue("redirect"))

	session, err := h.authService.LoginSubject(r.Context(), short)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrInvalidShortID):
		h.renderLoginError(w, r, http.StatusBadRequest, "Your badge id is 8 characters long.", short, redirect)
		return
	case model.KindOf(err) == model.KindNotFound:
		h.renderLoginError(w, r, http.StatusNotFound, "We couldn't find that badge id.", short, redirect)
		return
	default:
		h.renderLoginError(w, r, http.StatusInternalServerError, "Sign in is unavailable right now.", short, redirect)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     apimw.SessionCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	middleware.SetFlash(w, "success", "Welcome, "+session.DisplayName+"!")
	http.Redirect(w, r, redirect, http.StatusSeeOther)
}

// Logout handles logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if session := middleware.GetSession(r.Context()); session != nil {
		h.authService.InvalidateSession(session.Token)
	}

	// Clear session cookie
	http.SetCookie(w, &http.Cookie{
		Name:     apimw.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	middleware.SetFlash(w, "info", "You have been signed out")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) renderLoginError(w http.ResponseWriter, r *http.Request, status int, message, short, redirect string) {
	render(w, r, status, pages.Login(pages.LoginData{
		PageData: pageData(r, "Sign in"),
		ShortID:  short,
		Redirect: redirect,
		Error:    message,
	}))
}

// safeRedirect only allows local paths, so the login form cannot bounce
// a subject to another site
func safeRedirect(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	return target
}
