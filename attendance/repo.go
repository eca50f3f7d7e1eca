package attendance

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/attendly/go-attendance-server/geo"
)

var (
	ErrPeriodNotFound = errors.New("period not found")
	ErrRecordNotFound = errors.New("attendance record not found")
)

type PeriodRepo interface {
	Upsert(ctx context.Context, period *Period) error
	Get(ctx context.Context, periodID string) (*Period, error)
	ListByTenant(ctx context.Context, tenantID string, activeOnly bool) ([]*Period, error)
	SetActive(ctx context.Context, periodID string, active bool) error
}

// RecordRepo persists attendance records. UpsertAttempt must serialize
// concurrent attempts for the same (user, period) key and apply the
// ApplyAttempt merge atomically.
type RecordRepo interface {
	UpsertAttempt(ctx context.Context, attempt Attempt) (*Record, error)
	Get(ctx context.Context, userID, periodID string) (*Record, error)
	History(ctx context.Context, userID, tenantID string, since time.Time, limit int) ([]*Record, error)

	// SetCheckOut stamps the check-out time and optional location on the
	// existing (user, period) record. ErrRecordNotFound when no check-in
	// preceded it.
	SetCheckOut(ctx context.Context, userID, periodID string, at time.Time, claimed *geo.Coordinate) (*Record, error)
}
