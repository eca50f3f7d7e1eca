package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/attendly/go-attendance-server/attendance"
	"github.com/attendly/go-attendance-server/geo"
	"github.com/attendly/go-attendance-server/internal/utils"
	"github.com/attendly/go-attendance-server/users"
)

const defaultHistoryLimit = 50

// checkInRequest accepts lat/lon as number or numeric string; geo.Degree
// normalizes both before the core sees them.
type checkInRequest struct {
	PeriodID string     `json:"period_id"`
	Lat      geo.Degree `json:"lat"`
	Lon      geo.Degree `json:"lon"`
	Force    bool       `json:"force,omitempty"`
}

func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "TOKEN_INVALID", "missing identity")
		return
	}

	var req checkInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PeriodID == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "period_id, lat and lon are required")
		return
	}

	// Window override is an admin capability, never honored for students.
	force := req.Force && identity.Role != users.RoleStudent

	record, err := s.deps.Ledger.RecordAttempt(r.Context(), identity, attendance.AttemptRequest{
		PeriodID: req.PeriodID,
		Claimed:  geo.Coordinate{Lat: float64(req.Lat), Lon: float64(req.Lon)},
		Force:    force,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	body := envelope{Success: true, Data: record}
	if record.Status == attendance.StatusAbsent && record.DistanceM != nil {
		maxAllowed := s.config.GetDefaultRadiusM()
		if period, err := s.deps.Periods.Get(r.Context(), record.PeriodID); err == nil && period.Target != nil {
			maxAllowed = period.Target.RadiusM
		}
		body.Message = "location out of range, attempt recorded"
		body.ErrorCode = "LOCATION_TOO_FAR"
		body.Details = map[string]any{
			"distance":    utils.Value(record.DistanceM),
			"max_allowed": maxAllowed,
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// checkOutRequest takes an optional location; check-out never reclassifies,
// it only stamps when and where the user left.
type checkOutRequest struct {
	PeriodID string      `json:"period_id"`
	Lat      *geo.Degree `json:"lat,omitempty"`
	Lon      *geo.Degree `json:"lon,omitempty"`
}

func (s *Server) handleCheckOut(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "TOKEN_INVALID", "missing identity")
		return
	}

	var req checkOutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PeriodID == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "period_id is required")
		return
	}

	var claimed *geo.Coordinate
	if req.Lat != nil && req.Lon != nil {
		claimed = &geo.Coordinate{Lat: float64(*req.Lat), Lon: float64(*req.Lon)}
	}

	record, err := s.deps.Ledger.RecordCheckOut(r.Context(), identity, attendance.CheckOutRequest{
		PeriodID: req.PeriodID,
		Claimed:  claimed,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	writeData(w, http.StatusOK, record)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "TOKEN_INVALID", "missing identity")
		return
	}

	since := time.Time{}
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "since must be RFC3339")
			return
		}
		since = parsed
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := s.deps.Ledger.History(r.Context(), identity, since, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	if records == nil {
		records = []*attendance.Record{}
	}
	writeData(w, http.StatusOK, records)
}

type createPeriodRequest struct {
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Location  *struct {
		Lat     geo.Degree `json:"lat"`
		Lon     geo.Degree `json:"lon"`
		RadiusM *float64   `json:"radius_m"`
	} `json:"target_location,omitempty"`
}

func (s *Server) handleCreatePeriod(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "TOKEN_INVALID", "missing identity")
		return
	}
	if err := s.deps.Guard.Authorize(identity, identity.TenantID, users.RoleTeacher, users.RoleAdmin); err != nil {
		respondError(w, err)
		return
	}

	var req createPeriodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "name, start_time and end_time are required")
		return
	}

	period := &attendance.Period{
		TenantID:  identity.TenantID,
		Name:      req.Name,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		CreatedBy: identity.UserID,
		IsActive:  true,
	}
	if req.Location != nil {
		radius := s.config.GetDefaultRadiusM()
		if req.Location.RadiusM != nil {
			radius = *req.Location.RadiusM
		}
		period.Target = &attendance.Geofence{
			Center:  geo.Coordinate{Lat: float64(req.Location.Lat), Lon: float64(req.Location.Lon)},
			RadiusM: radius,
		}
	}

	if err := period.ValidateWindow(); err != nil {
		respondError(w, err)
		return
	}
	if err := s.deps.Periods.Upsert(r.Context(), period); err != nil {
		respondError(w, err)
		return
	}
	writeData(w, http.StatusCreated, period)
}

func (s *Server) handleListPeriods(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "TOKEN_INVALID", "missing identity")
		return
	}

	activeOnly := r.URL.Query().Get("active") == "true"
	periods, err := s.deps.Periods.ListByTenant(r.Context(), identity.TenantID, activeOnly)
	if err != nil {
		respondError(w, err)
		return
	}
	if periods == nil {
		periods = []*attendance.Period{}
	}
	writeData(w, http.StatusOK, periods)
}
