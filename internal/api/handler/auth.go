package handler

import (
	"net/http"

	"github.com/apexfest/checkin/internal/api/middleware"
	"github.com/apexfest/checkin/internal/api/request"
	"github.com/apexfest/checkin/internal/api/response"
	"github.com/apexfest/checkin/internal/services/auth"
	"github.com/apexfest/checkin/internal/services/directory"
)

// AuthHandler handles sign-in for subjects, hosts and admins
type AuthHandler struct {
	authService  *auth.Service
	secureCookie bool
}

// NewAuthHandler creates a new auth handler. secureCookie marks the session
// cookie Secure, for deployments behind HTTPS.
func NewAuthHandler(authService *auth.Service, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		secureCookie: secureCookie,
	}
}

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req request.RegisterRequest
	if !decode(w, r, &req) {
		return
	}

	subject, session, err := h.authService.Register(r.Context(), directory.RegisterInput{
		DisplayName: req.DisplayName,
		Affiliation: req.Affiliation,
		Email:       req.Email,
		Category:    req.Category,
		Profile:     req.Profile,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	resp := response.AuthResponseFromSession(session)
	s := response.SubjectFromModel(subject)
	resp.Subject = &s
	h.setCookie(w, session)
	response.JSON(w, http.StatusCreated, resp)
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req request.LoginRequest
	if !decode(w, r, &req) {
		return
	}

	session, err := h.authService.LoginSubject(r.Context(), req.ShortID)
	if err != nil {
		WriteError(w, err)
		return
	}
	h.setCookie(w, session)
	response.JSON(w, http.StatusOK, response.AuthResponseFromSession(session))
}

// HostLogin handles POST /api/v1/auth/host-login
func (h *AuthHandler) HostLogin(w http.ResponseWriter, r *http.Request) {
	var req request.LoginRequest
	if !decode(w, r, &req) {
		return
	}

	session, err := h.authService.LoginHost(r.Context(), req.ShortID)
	if err != nil {
		WriteError(w, err)
		return
	}
	h.setCookie(w, session)
	response.JSON(w, http.StatusOK, response.AuthResponseFromSession(session))
}

// AdminLogin handles POST /api/v1/auth/admin-login
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req request.AdminLoginRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Password == "" {
		WriteError(w, NewInvalidRequestError("password is required"))
		return
	}

	session, err := h.authService.LoginAdmin(req.Password)
	if err != nil {
		WriteError(w, err)
		return
	}
	h.setCookie(w, session)
	response.JSON(w, http.StatusOK, response.AuthResponseFromSession(session))
}

// Session handles GET /api/v1/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	session := middleware.MustGetSession(r.Context())
	response.JSON(w, http.StatusOK, response.SessionFromAuth(session))
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session := middleware.MustGetSession(r.Context())
	h.authService.InvalidateSession(session.Token)
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	response.NoContent(w)
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, session *auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
