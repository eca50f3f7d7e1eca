package attendance

import (
	"time"

	"github.com/google/uuid"

	"github.com/attendly/go-attendance-server/geo"
)

// Status is the classification of an attendance record.
type Status string

const (
	StatusPresent Status = "present"
	StatusLate    Status = "late"
	StatusAbsent  Status = "absent"
)

// RejectedAttempt is one out-of-range submission made after a successful
// check-in. Kept in submission order.
type RejectedAttempt struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Timestamp time.Time `json:"timestamp"`
}

// Record is the single attendance row for a (user, period) pair. Exactly one
// exists per pair; resubmissions mutate it rather than creating duplicates.
type Record struct {
	ID               string            `json:"record_id"`
	UserID           string            `json:"user_id"`
	TenantID         string            `json:"tenant_id"`
	PeriodID         string            `json:"period_id"`
	Status           Status            `json:"status"`
	Claimed          geo.Coordinate    `json:"claimed_location"`
	DistanceM        *float64          `json:"distance_m,omitempty"`
	LocationVerified bool              `json:"location_verified"`
	CheckedAt        time.Time         `json:"checked_at"`
	CheckOutAt       *time.Time        `json:"check_out_time,omitempty"`
	CheckOutLocation *geo.Coordinate   `json:"check_out_location,omitempty"`
	UpdatedAt        time.Time         `json:"updated_at"`
	RejectedAttempts []RejectedAttempt `json:"rejected_attempts"`
}

// Attempt is one classified submission, ready to be merged into the stored
// record for its (user, period) pair.
type Attempt struct {
	UserID           string
	TenantID         string
	PeriodID         string
	Status           Status
	Claimed          geo.Coordinate
	DistanceM        *float64
	LocationVerified bool
	At               time.Time
}

// ApplyAttempt merges an attempt into the existing record and returns the
// state to persist. existing is nil on first submission. Both store
// implementations run this inside their per-key serialization so concurrent
// submissions cannot produce divergent latest states.
//
// The rules: most recent successful submission wins, and a stored present or
// late status is never downgraded by a later out-of-range attempt, which is
// appended to RejectedAttempts instead.
func ApplyAttempt(existing *Record, attempt Attempt) *Record {
	if existing == nil {
		return &Record{
			ID:               uuid.New().String(),
			UserID:           attempt.UserID,
			TenantID:         attempt.TenantID,
			PeriodID:         attempt.PeriodID,
			Status:           attempt.Status,
			Claimed:          attempt.Claimed,
			DistanceM:        attempt.DistanceM,
			LocationVerified: attempt.LocationVerified,
			CheckedAt:        attempt.At,
			UpdatedAt:        attempt.At,
			RejectedAttempts: []RejectedAttempt{},
		}
	}

	merged := *existing
	merged.UpdatedAt = attempt.At

	if attempt.Status == StatusAbsent && existing.Succeeded() {
		merged.RejectedAttempts = append(merged.RejectedAttempts, RejectedAttempt{
			Lat:       attempt.Claimed.Lat,
			Lon:       attempt.Claimed.Lon,
			Timestamp: attempt.At,
		})
		return &merged
	}

	merged.Status = attempt.Status
	merged.Claimed = attempt.Claimed
	merged.DistanceM = attempt.DistanceM
	merged.LocationVerified = attempt.LocationVerified
	merged.CheckedAt = attempt.At
	return &merged
}

// Succeeded reports whether the record holds a non-absent status.
func (r *Record) Succeeded() bool {
	return r.Status == StatusPresent || r.Status == StatusLate
}
