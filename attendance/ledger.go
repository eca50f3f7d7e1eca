package attendance

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-retry"

	"github.com/attendly/go-attendance-server/geo"
	"github.com/attendly/go-attendance-server/users"
)

const defaultRetryBackoff = 100 * time.Millisecond

// Repos holds all repository dependencies for the Ledger.
type Repos struct {
	Periods PeriodRepo
	Records RecordRepo
}

// Ledger is the write and read path for attendance records. Writes are never
// auto-retried: the upsert is idempotent, so a failed submission is safe for
// the client to resubmit. History, a pure read, retries once.
type Ledger struct {
	repos        Repos
	classifier   *Classifier
	retryBackoff time.Duration
	nowFunc      func() time.Time
}

type LedgerOption func(*Ledger)

// WithNowFunc sets the now time function (primarily for testing).
func WithNowFunc(nowFunc func() time.Time) LedgerOption {
	return func(l *Ledger) {
		l.nowFunc = nowFunc
	}
}

// WithRetryBackoff sets the delay before the single retry of a transient
// history-read failure.
func WithRetryBackoff(backoff time.Duration) LedgerOption {
	return func(l *Ledger) {
		l.retryBackoff = backoff
	}
}

func NewLedger(repos Repos, classifier *Classifier, options ...LedgerOption) (*Ledger, error) {
	if repos.Periods == nil {
		return nil, errors.New("[NewLedger] Periods repo is required")
	}
	if repos.Records == nil {
		return nil, errors.New("[NewLedger] Records repo is required")
	}
	if classifier == nil {
		return nil, errors.New("[NewLedger] classifier is required")
	}

	l := &Ledger{
		repos:        repos,
		classifier:   classifier,
		retryBackoff: defaultRetryBackoff,
		nowFunc:      time.Now,
	}
	for _, opt := range options {
		opt(l)
	}
	return l, nil
}

// AttemptRequest is one inbound submission. A zero At means now. Force skips
// the period-window check for admin overrides.
type AttemptRequest struct {
	PeriodID string
	Claimed  geo.Coordinate
	At       time.Time
	Force    bool
}

// RecordAttempt classifies and persists one submission. The period's tenant
// is re-checked against the caller's identity here even though the guard
// already ran upstream; a cross-tenant period ID reads as not found.
func (l *Ledger) RecordAttempt(ctx context.Context, identity users.Identity, req AttemptRequest) (*Record, error) {
	period, err := l.repos.Periods.Get(ctx, req.PeriodID)
	if err != nil {
		if errors.Is(err, ErrPeriodNotFound) {
			return nil, ErrPeriodNotFound
		}
		return nil, errors.Wrap(err, "[Ledger.RecordAttempt] Periods.Get")
	}
	if period.TenantID != identity.TenantID {
		return nil, ErrPeriodNotFound
	}

	at := req.At
	if at.IsZero() {
		at = l.nowFunc()
	}

	classification, err := l.classifier.Classify(period, req.Claimed, at, req.Force)
	if err != nil {
		return nil, err
	}

	record, err := l.repos.Records.UpsertAttempt(ctx, Attempt{
		UserID:           identity.UserID,
		TenantID:         identity.TenantID,
		PeriodID:         period.ID,
		Status:           classification.Status,
		Claimed:          req.Claimed,
		DistanceM:        classification.DistanceM,
		LocationVerified: classification.LocationVerified,
		At:               at,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Ledger.RecordAttempt] Records.UpsertAttempt")
	}
	return record, nil
}

// CheckOutRequest is one inbound check-out. The location is optional; when
// present it is validated but never reclassified, a check-out cannot change
// the record's status. A zero At means now.
type CheckOutRequest struct {
	PeriodID string
	Claimed  *geo.Coordinate
	At       time.Time
}

// RecordCheckOut stamps the check-out time and location on the caller's
// record for the period. The record must already exist from a check-in or
// rejected attempt; a repeated check-out overwrites the stamp, latest wins.
func (l *Ledger) RecordCheckOut(ctx context.Context, identity users.Identity, req CheckOutRequest) (*Record, error) {
	period, err := l.repos.Periods.Get(ctx, req.PeriodID)
	if err != nil {
		if errors.Is(err, ErrPeriodNotFound) {
			return nil, ErrPeriodNotFound
		}
		return nil, errors.Wrap(err, "[Ledger.RecordCheckOut] Periods.Get")
	}
	if period.TenantID != identity.TenantID {
		return nil, ErrPeriodNotFound
	}

	if req.Claimed != nil {
		if err := req.Claimed.Validate(); err != nil {
			return nil, err
		}
	}

	at := req.At
	if at.IsZero() {
		at = l.nowFunc()
	}

	record, err := l.repos.Records.SetCheckOut(ctx, identity.UserID, period.ID, at, req.Claimed)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, errors.Wrap(err, "[Ledger.RecordCheckOut] Records.SetCheckOut")
	}
	return record, nil
}

// History returns the caller's records, newest first, bounded by limit. A
// transient store failure is retried once; a fresh call re-executes the
// query.
func (l *Ledger) History(ctx context.Context, identity users.Identity, since time.Time, limit int) ([]*Record, error) {
	var records []*Record

	backoff := retry.WithMaxRetries(1, retry.NewConstant(l.retryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		result, err := l.repos.Records.History(ctx, identity.UserID, identity.TenantID, since, limit)
		if err != nil {
			return retry.RetryableError(err)
		}
		records = result
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Ledger.History] Records.History")
	}
	return records, nil
}
