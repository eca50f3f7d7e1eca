package fakeattendancerepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/attendly/go-attendance-server/attendance"
	"github.com/attendly/go-attendance-server/geo"
)

var _ attendance.PeriodRepo = (*FakePeriodRepo)(nil)

type FakePeriodRepo struct {
	periods map[string]*attendance.Period
	lock    sync.RWMutex
}

func NewFakePeriodRepo() *FakePeriodRepo {
	return &FakePeriodRepo{
		periods: make(map[string]*attendance.Period),
	}
}

func (r *FakePeriodRepo) Upsert(_ context.Context, period *attendance.Period) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if period.ID == "" {
		period.ID = uuid.New().String()
	}
	if period.CreatedAt.IsZero() {
		period.CreatedAt = time.Now()
	}
	cp := *period
	r.periods[period.ID] = &cp
	return nil
}

func (r *FakePeriodRepo) Get(_ context.Context, periodID string) (*attendance.Period, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	p, ok := r.periods[periodID]
	if !ok {
		return nil, attendance.ErrPeriodNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *FakePeriodRepo) ListByTenant(_ context.Context, tenantID string, activeOnly bool) ([]*attendance.Period, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	var result []*attendance.Period
	for _, p := range r.periods {
		if p.TenantID != tenantID {
			continue
		}
		if activeOnly && !p.IsActive {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartTime.After(result[j].StartTime)
	})
	return result, nil
}

func (r *FakePeriodRepo) SetActive(_ context.Context, periodID string, active bool) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	p, ok := r.periods[periodID]
	if !ok {
		return attendance.ErrPeriodNotFound
	}
	p.IsActive = active
	return nil
}

var _ attendance.RecordRepo = (*FakeRecordRepo)(nil)

// FakeRecordRepo keeps records keyed by (user, period). The single lock gives
// UpsertAttempt the per-key serialization the database's row lock provides.
type FakeRecordRepo struct {
	records map[recordKey]*attendance.Record
	lock    sync.RWMutex

	// FailNext makes the next call return this error, for store-failure
	// and retry tests.
	FailNext error
}

type recordKey struct {
	userID   string
	periodID string
}

func NewFakeRecordRepo() *FakeRecordRepo {
	return &FakeRecordRepo{
		records: make(map[recordKey]*attendance.Record),
	}
}

func (r *FakeRecordRepo) failNext() error {
	if r.FailNext != nil {
		err := r.FailNext
		r.FailNext = nil
		return err
	}
	return nil
}

func (r *FakeRecordRepo) UpsertAttempt(_ context.Context, attempt attendance.Attempt) (*attendance.Record, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if err := r.failNext(); err != nil {
		return nil, err
	}
	key := recordKey{userID: attempt.UserID, periodID: attempt.PeriodID}
	merged := attendance.ApplyAttempt(r.records[key], attempt)
	r.records[key] = merged
	cp := *merged
	return &cp, nil
}

func (r *FakeRecordRepo) Get(_ context.Context, userID, periodID string) (*attendance.Record, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	rec, ok := r.records[recordKey{userID: userID, periodID: periodID}]
	if !ok {
		return nil, attendance.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *FakeRecordRepo) SetCheckOut(_ context.Context, userID, periodID string, at time.Time, claimed *geo.Coordinate) (*attendance.Record, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if err := r.failNext(); err != nil {
		return nil, err
	}
	rec, ok := r.records[recordKey{userID: userID, periodID: periodID}]
	if !ok {
		return nil, attendance.ErrRecordNotFound
	}
	rec.CheckOutAt = &at
	rec.CheckOutLocation = claimed
	rec.UpdatedAt = at
	cp := *rec
	return &cp, nil
}

func (r *FakeRecordRepo) History(_ context.Context, userID, tenantID string, since time.Time, limit int) ([]*attendance.Record, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if err := r.failNext(); err != nil {
		return nil, err
	}
	var result []*attendance.Record
	for _, rec := range r.records {
		if rec.UserID != userID || rec.TenantID != tenantID {
			continue
		}
		if rec.CheckedAt.Before(since) {
			continue
		}
		cp := *rec
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CheckedAt.After(result[j].CheckedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Count reports how many records exist, across all keys.
func (r *FakeRecordRepo) Count() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.records)
}
