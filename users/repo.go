package users

import (
	"context"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("user not found")

type Repo interface {
	Upsert(ctx context.Context, user *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	SetLastLogin(ctx context.Context, id string) error
}
