package fakesessionstore

import (
	"context"
	"sync"
	"time"

	"github.com/attendly/go-attendance-server/sessions"
	"github.com/google/uuid"
)

var (
	_ sessions.Store  = (*FakeSessionStore)(nil)
	_ sessions.Ledger = (*FakeSessionStore)(nil)
)

// FakeSessionStore is an in-memory Store + Ledger for tests. Mutations hold a
// single lock, giving the same per-key serialization the database provides.
type FakeSessionStore struct {
	sessions map[string]*sessions.Session            // by session ID
	ledger   map[string]*sessions.InvalidationRecord // by token
	lock     sync.RWMutex

	// FailNext makes the next call return this error, for store-failure
	// and retry tests.
	FailNext error
}

func NewFakeSessionStore() *FakeSessionStore {
	return &FakeSessionStore{
		sessions: make(map[string]*sessions.Session),
		ledger:   make(map[string]*sessions.InvalidationRecord),
	}
}

func (f *FakeSessionStore) failNext() error {
	if f.FailNext != nil {
		err := f.FailNext
		f.FailNext = nil
		return err
	}
	return nil
}

func (f *FakeSessionStore) Create(_ context.Context, session *sessions.Session) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err := f.failNext(); err != nil {
		return err
	}
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	session.IsActive = true
	cp := *session
	f.sessions[session.ID] = &cp
	return nil
}

func (f *FakeSessionStore) Get(_ context.Context, sessionID string) (*sessions.Session, error) {
	f.lock.RLock()
	defer f.lock.RUnlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, sessions.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *FakeSessionStore) CountActiveByTenant(_ context.Context, tenantID string) (int, error) {
	f.lock.RLock()
	defer f.lock.RUnlock()
	count := 0
	for _, s := range f.sessions {
		if s.TenantID == tenantID && s.IsActive {
			count++
		}
	}
	return count, nil
}

func (f *FakeSessionStore) Invalidate(_ context.Context, sessionID string, reason sessions.InvalidationReason) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err := f.failNext(); err != nil {
		return err
	}
	s, ok := f.sessions[sessionID]
	if !ok {
		return sessions.ErrNotFound
	}
	if !s.IsActive {
		return nil
	}
	s.IsActive = false
	f.appendLocked(s, reason)
	return nil
}

func (f *FakeSessionStore) InvalidateTenant(_ context.Context, tenantID string, reason sessions.InvalidationReason) (int, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err := f.failNext(); err != nil {
		return 0, err
	}
	count := 0
	for _, s := range f.sessions {
		if s.TenantID == tenantID && s.IsActive {
			s.IsActive = false
			f.appendLocked(s, reason)
			count++
		}
	}
	return count, nil
}

func (f *FakeSessionStore) appendLocked(s *sessions.Session, reason sessions.InvalidationReason) {
	if _, exists := f.ledger[s.Token]; exists {
		return
	}
	f.ledger[s.Token] = &sessions.InvalidationRecord{
		SessionID:     s.ID,
		UserID:        s.UserID,
		TenantID:      s.TenantID,
		Token:         s.Token,
		InvalidatedAt: time.Now(),
		Reason:        reason,
	}
}

func (f *FakeSessionStore) FindByToken(_ context.Context, token string) (*sessions.InvalidationRecord, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err := f.failNext(); err != nil {
		return nil, err
	}
	rec, ok := f.ledger[token]
	if !ok {
		return nil, sessions.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *FakeSessionStore) ListByTenant(_ context.Context, tenantID string, limit int) ([]*sessions.InvalidationRecord, error) {
	f.lock.RLock()
	defer f.lock.RUnlock()
	var result []*sessions.InvalidationRecord
	for _, rec := range f.ledger {
		if rec.TenantID == tenantID {
			cp := *rec
			result = append(result, &cp)
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}
