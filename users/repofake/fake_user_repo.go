package fakeuserrepo

import (
	"context"
	"sync"
	"time"

	"github.com/attendly/go-attendance-server/users"
	"github.com/google/uuid"
)

var _ users.Repo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users map[string]*users.User // keyed by ID
	lock  sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users: make(map[string]*users.User),
	}
}

func (r *FakeUserRepo) Upsert(_ context.Context, user *users.User) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *FakeUserRepo) GetByEmail(_ context.Context, email string) (*users.User, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, users.ErrNotFound
}

func (r *FakeUserRepo) GetByID(_ context.Context, id string) (*users.User, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *FakeUserRepo) SetLastLogin(_ context.Context, id string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	u, ok := r.users[id]
	if !ok {
		return users.ErrNotFound
	}
	u.LastLogin = time.Now()
	return nil
}
