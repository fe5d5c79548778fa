package api

import (
	"log/slog"
	"net/http"
	"opshop/internal/csrf"
	"opshop/internal/governance"
	"opshop/internal/models"
	"opshop/internal/session"
	"strings"

	"github.com/google/uuid"
)

// userKey holds the logged-in user in the session.
const userKey = "user_id"

// userNamespace derives stable demo user ids from email addresses.
var userNamespace = uuid.MustParse("6f1c2d5e-8a57-4c1b-9a54-0e7f3b2a9c11")

// requireSession returns the request's session or answers 500 SESSION_UNAVAILABLE.
func (h *Handlers) requireSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, ok := session.FromContext(r.Context())
	if !ok {
		slog.Error("Handler needs a session but none is attached", "path", r.URL.Path)
		governance.WriteError(w, r, governance.NewSessionUnavailableError(nil))
		return nil, false
	}
	return s, true
}

// Login handles POST /api/auth/login. Credentials are not checked against a
// user directory; the session is bound to a user id derived from the email.
// The CSRF token is rotated so a token issued before login cannot be reused.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	var req models.LoginRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, http.StatusUnprocessableEntity, models.ErrorCodeValidation, err.Error())
		return
	}

	token, err := csrf.NewToken()
	if err != nil {
		slog.Error("Failed to rotate CSRF token", "error", err)
		governance.WriteError(w, r, governance.NewSessionUnavailableError(err))
		return
	}

	userID := uuid.NewSHA1(userNamespace, []byte(strings.ToLower(req.Email))).String()
	s.Set(userKey, userID)
	s.Set(csrf.SessionKey, token)

	slog.Info("User logged in", "user_id", userID, "session_id", s.ID)
	h.writeJSONResponse(w, http.StatusOK, models.SessionResponse{
		UserID:    userID,
		CSRFToken: token,
		Message:   "Logged in",
	})
}

// Logout handles POST /api/auth/logout
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		governance.WriteError(w, r, governance.NewSessionUnavailableError(nil))
		return
	}
	if err := h.sessions.Destroy(w, r); err != nil {
		slog.Error("Failed to destroy session", "error", err)
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to log out")
		return
	}
	h.writeJSONResponse(w, http.StatusOK, models.SessionResponse{Message: "Logged out"})
}

// currentUser returns the logged-in user, answering 401 when there is none.
func (h *Handlers) currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return "", false
	}
	userID, ok := s.Get(userKey)
	if !ok || userID == "" {
		h.writeErrorResponse(w, http.StatusUnauthorized, models.ErrorCodeUnauthorized, "Login required")
		return "", false
	}
	return userID, true
}
