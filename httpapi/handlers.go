package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrEthical07/deviceauth"
	"github.com/MrEthical07/deviceauth/middleware"
)

const maxBodyBytes = 1 << 16

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
}

type meResponse struct {
	Email  string `json:"email"`
	Login  string `json:"login"`
	UserID string `json:"userId"`
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest)
		return
	}
	req.Login = strings.TrimSpace(req.Login)
	if req.Login == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest)
		return
	}

	pair, err := s.manager.Login(r.Context(), req.Login, req.Password, deviceauth.ClientFromContext(r.Context()))
	if err != nil {
		s.fail(w, r, "login", err)
		return
	}
	s.setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken})
}

func (s *server) refresh(w http.ResponseWriter, r *http.Request) {
	pair, err := s.manager.Refresh(r.Context(), s.refreshToken(r), deviceauth.ClientFromContext(r.Context()))
	if err != nil {
		s.fail(w, r, "refresh", err)
		return
	}
	s.setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken})
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	err := s.manager.Logout(r.Context(), s.refreshToken(r))
	s.clearRefreshCookie(w)
	if err != nil {
		s.fail(w, r, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{Email: id.Email, Login: id.Login, UserID: id.UserID})
}

func (s *server) listDevices(w http.ResponseWriter, r *http.Request) {
	views, err := s.manager.ListSessions(r.Context(), s.refreshToken(r))
	if err != nil {
		s.fail(w, r, "list_devices", err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *server) revokeOthers(w http.ResponseWriter, r *http.Request) {
	if _, err := s.manager.RevokeAllOtherDevices(r.Context(), s.refreshToken(r)); err != nil {
		s.fail(w, r, "revoke_others", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) revokeDevice(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "deviceId")
	outcome, err := s.manager.RevokeDevice(r.Context(), s.refreshToken(r), target)
	if err != nil {
		s.fail(w, r, "revoke_device", err)
		return
	}
	status := outcome.HTTPStatus()
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	writeError(w, status)
}

func (s *server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) readyz(w http.ResponseWriter, r *http.Request) {
	latency, err := s.manager.Ping(r.Context())
	if err != nil {
		s.log.WarnContext(r.Context(), "readiness check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "store_latency": latency.String()})
}

// fail writes the mapped status. Faults the client cannot cause are logged.
func (s *server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.ErrorContext(r.Context(), "operation failed", "op", op, "error", err)
	}
	writeError(w, status)
}
