package server

import (
	"encoding/json"
	"net/http"
	"time"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id"`
	Role      string    `json:"role"`
	Name      string    `json:"name"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "email and password are required")
		return
	}

	result, err := s.deps.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.log.Warn().Str("email", req.Email).Err(err).Msg("login rejected")
		respondError(w, err)
		return
	}

	writeData(w, http.StatusOK, loginResponse{
		Token:     result.Token,
		ExpiresAt: result.Session.ExpiresAt,
		UserID:    result.User.ID,
		TenantID:  result.User.TenantID,
		Role:      string(result.User.Role),
		Name:      result.User.Name,
	})
}

// handleLogout sits outside RequireAuth on purpose: only the signature is
// verified, so members of a deactivated organization can still log out.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	tokenString, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "TOKEN_INVALID", "missing bearer token")
		return
	}

	if err := s.deps.Auth.Logout(r.Context(), tokenString); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "TOKEN_INVALID", "missing identity")
		return
	}
	writeData(w, http.StatusOK, identity)
}
