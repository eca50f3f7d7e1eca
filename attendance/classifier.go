package attendance

import (
	"time"

	"github.com/pkg/errors"

	"github.com/attendly/go-attendance-server/geo"
	"github.com/attendly/go-attendance-server/internal/utils"
)

// DefaultGraceWindow is how long after a period starts a check-in still
// counts as present rather than late.
const DefaultGraceWindow = 15 * time.Minute

var ErrPeriodNotActive = errors.New("period not active")

// Classification is the pure decision a submission resolves to. DistanceM is
// nil and LocationVerified false when the period has no target location.
type Classification struct {
	Status           Status
	DistanceM        *float64
	LocationVerified bool
}

// Classifier decides present/late/absent from a claimed location and a
// period. It is pure: persistence belongs to the Ledger.
type Classifier struct {
	grace time.Duration
}

type ClassifierOption func(*Classifier)

// WithGraceWindow overrides the default late threshold.
func WithGraceWindow(grace time.Duration) ClassifierOption {
	return func(c *Classifier) {
		c.grace = grace
	}
}

func NewClassifier(options ...ClassifierOption) *Classifier {
	c := &Classifier{grace: DefaultGraceWindow}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Classify resolves one submission. Distance takes precedence over timing: a
// late arrival outside the radius is absent, not late. force skips the
// window check for admin overrides.
func (c *Classifier) Classify(period *Period, claimed geo.Coordinate, at time.Time, force bool) (*Classification, error) {
	if err := claimed.Validate(); err != nil {
		return nil, err
	}
	if !force && !period.Open(at) {
		return nil, ErrPeriodNotActive
	}

	if period.Target == nil {
		// Verification skipped, not assumed-zero.
		return &Classification{Status: StatusPresent}, nil
	}

	inside, d, err := period.Target.Contains(claimed)
	if err != nil {
		return nil, err
	}
	if !inside {
		return &Classification{Status: StatusAbsent, DistanceM: utils.Ptr(d)}, nil
	}

	status := StatusPresent
	if at.After(period.StartTime.Add(c.grace)) {
		status = StatusLate
	}
	return &Classification{Status: status, DistanceM: utils.Ptr(d), LocationVerified: true}, nil
}
