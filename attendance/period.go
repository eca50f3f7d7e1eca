// Package attendance implements geofenced attendance classification and the
// idempotent per-user, per-period record ledger.
package attendance

import (
	"time"

	"github.com/pkg/errors"

	"github.com/attendly/go-attendance-server/geo"
)

const (
	// DefaultRadiusM is applied when a period is created with a target
	// location but no radius.
	DefaultRadiusM = 100.0

	// MaxRadiusM caps how wide a geofence may be drawn.
	MaxRadiusM = 1000.0
)

var (
	ErrInvalidWindow = errors.New("period start must precede end")
	ErrInvalidRadius = errors.New("geofence radius out of range")
)

// Geofence is a circular boundary around a target location. Distance checks
// against it are boundary inclusive.
type Geofence struct {
	Center  geo.Coordinate `json:"center"`
	RadiusM float64        `json:"radius_m"`
}

// Contains reports whether the claimed coordinate falls within the fence and
// returns the computed distance.
func (g Geofence) Contains(claimed geo.Coordinate) (bool, float64, error) {
	d, err := geo.Distance(claimed, g.Center)
	if err != nil {
		return false, 0, err
	}
	return d <= g.RadiusM, d, nil
}

// Period is one window of time attendance can be submitted against. Target is
// optional: without it, location verification is skipped, not assumed.
type Period struct {
	ID        string    `json:"period_id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Target    *Geofence `json:"target_location,omitempty"`
	CreatedBy string    `json:"created_by,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidateWindow enforces the invariants a period must satisfy before it is
// persisted: start before end, and a sane geofence when one is set.
func (p *Period) ValidateWindow() error {
	if !p.StartTime.Before(p.EndTime) {
		return ErrInvalidWindow
	}
	if p.Target == nil {
		return nil
	}
	if err := p.Target.Center.Validate(); err != nil {
		return err
	}
	if p.Target.RadiusM <= 0 || p.Target.RadiusM > MaxRadiusM {
		return ErrInvalidRadius
	}
	return nil
}

// Open reports whether at falls inside the period's submission window.
func (p *Period) Open(at time.Time) bool {
	return p.IsActive && !at.Before(p.StartTime) && !at.After(p.EndTime)
}
