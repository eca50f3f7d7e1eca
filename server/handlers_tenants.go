package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/attendly/go-attendance-server/sessions"
	"github.com/attendly/go-attendance-server/tenants"
	"github.com/attendly/go-attendance-server/users"
)

type invalidationResponse struct {
	TenantID            string `json:"tenant_id"`
	SessionsInvalidated int    `json:"sessions_invalidated"`
}

type deletePreviewResponse struct {
	TenantID        string `json:"tenant_id"`
	ActiveSessions  int    `json:"active_sessions"`
	ConfirmRequired bool   `json:"confirm_required"`
}

// handleListTenants pages through every organization. The listing crosses
// tenant boundaries; the route is gated to super admins.
func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)
	list, err := s.deps.Tenants.List(r.Context(), offset, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	if list == nil {
		list = []*tenants.Tenant{}
	}
	writeData(w, http.StatusOK, list)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func (s *Server) handleDeactivateTenant(w http.ResponseWriter, r *http.Request) {
	identity, tenantID, ok := s.authorizeTenantAdmin(w, r)
	if !ok {
		return
	}

	if err := s.deps.Tenants.SetActive(r.Context(), tenantID, false); err != nil {
		respondError(w, err)
		return
	}

	count, err := s.deps.Coordinator.InvalidateTenant(r.Context(), tenantID, sessions.ReasonTenantDeactivated)
	if err != nil {
		respondError(w, err)
		return
	}

	s.log.Info().Str("tenant_id", tenantID).Str("by", identity.UserID).Msg("tenant deactivated")
	writeData(w, http.StatusOK, invalidationResponse{TenantID: tenantID, SessionsInvalidated: count})
}

// handleDeleteTenant implements the two-phase flow: without ?confirm=true it
// only reports how many sessions deletion would revoke; with it, sessions are
// invalidated and the tenant removed. No state is held between the calls.
func (s *Server) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	identity, tenantID, ok := s.authorizeTenantAdmin(w, r)
	if !ok {
		return
	}

	if _, err := s.deps.Tenants.Get(r.Context(), tenantID); err != nil {
		respondError(w, err)
		return
	}

	if r.URL.Query().Get("confirm") != "true" {
		count, err := s.deps.Coordinator.Preview(r.Context(), tenantID)
		if err != nil {
			respondError(w, err)
			return
		}
		writeData(w, http.StatusOK, deletePreviewResponse{
			TenantID:        tenantID,
			ActiveSessions:  count,
			ConfirmRequired: true,
		})
		return
	}

	count, err := s.deps.Coordinator.InvalidateTenant(r.Context(), tenantID, sessions.ReasonTenantDeleted)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := s.deps.Tenants.Delete(r.Context(), tenantID); err != nil {
		respondError(w, err)
		return
	}

	s.log.Info().Str("tenant_id", tenantID).Str("by", identity.UserID).Int("sessions", count).Msg("tenant deleted")
	writeData(w, http.StatusOK, invalidationResponse{TenantID: tenantID, SessionsInvalidated: count})
}

func (s *Server) authorizeTenantAdmin(w http.ResponseWriter, r *http.Request) (users.Identity, string, bool) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "TOKEN_INVALID", "missing identity")
		return identity, "", false
	}

	tenantID := chi.URLParam(r, "tenantID")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "tenant id is required")
		return identity, "", false
	}

	if err := s.deps.Guard.Authorize(identity, tenantID, users.RoleAdmin); err != nil {
		respondError(w, err)
		return identity, "", false
	}
	return identity, tenantID, true
}
