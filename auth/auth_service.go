// Package auth implements login, logout, and per-request credential checks on
// top of the token manager and the session stores.
package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-retry"

	"github.com/attendly/go-attendance-server/sessions"
	"github.com/attendly/go-attendance-server/tenants"
	"github.com/attendly/go-attendance-server/token"
	"github.com/attendly/go-attendance-server/users"
)

const defaultRetryBackoff = 100 * time.Millisecond

// Repos holds all repository dependencies for the Service.
type Repos struct {
	Users    users.Repo
	Tenants  tenants.Repo
	Sessions sessions.Store
}

// Service authenticates users and manages their sessions. Validate retries a
// transient store failure once; ledger writes (logout, invalidation) are
// never retried here because the store already makes them idempotent.
type Service struct {
	repos        Repos
	tokens       *token.Manager
	retryBackoff time.Duration
	nowFunc      func() time.Time
}

type ServiceOption func(*Service)

// WithNowFunc sets the now time function (primarily for testing).
func WithNowFunc(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowFunc = nowFunc
	}
}

// WithRetryBackoff sets the delay before the single retry of a transient
// validation failure.
func WithRetryBackoff(backoff time.Duration) ServiceOption {
	return func(s *Service) {
		s.retryBackoff = backoff
	}
}

func NewService(repos Repos, tokens *token.Manager, options ...ServiceOption) (*Service, error) {
	if repos.Users == nil {
		return nil, errors.New("[NewService] Users repo is required")
	}
	if repos.Tenants == nil {
		return nil, errors.New("[NewService] Tenants repo is required")
	}
	if repos.Sessions == nil {
		return nil, errors.New("[NewService] Sessions store is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewService] token manager is required")
	}

	s := &Service{
		repos:        repos,
		tokens:       tokens,
		retryBackoff: defaultRetryBackoff,
		nowFunc:      time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Token   string
	Session *sessions.Session
	User    *users.User
}

// Login verifies the credentials, checks that both the user and their tenant
// are active, then issues a token and persists its session row.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.repos.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, UserNotFoundErr
		}
		return nil, errors.Wrap(err, "[Service.Login] Users.GetByEmail")
	}
	if !user.IsActive {
		return nil, UserBlockedErr
	}

	tenant, err := s.repos.Tenants.Get(ctx, user.TenantID)
	if err != nil {
		if errors.Is(err, tenants.ErrNotFound) {
			return nil, TenantNotFoundErr
		}
		return nil, errors.Wrap(err, "[Service.Login] Tenants.Get")
	}
	if !tenant.IsActive {
		return nil, TenantDeactivatedErr
	}

	if !users.CheckPasswordHash(password, user.PasswordHash) {
		return nil, PasswordMismatchErr
	}

	session, err := s.tokens.Issue(user.Identity())
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Login] tokens.Issue")
	}
	if err := s.repos.Sessions.Create(ctx, session); err != nil {
		return nil, errors.Wrap(err, "[Service.Login] Sessions.Create")
	}

	if err := s.repos.Users.SetLastLogin(ctx, user.ID); err != nil {
		return nil, errors.Wrap(err, "[Service.Login] Users.SetLastLogin")
	}
	user.LastLogin = s.nowFunc()

	return &LoginResult{
		Token:   session.Token,
		Session: session,
		User:    user,
	}, nil
}

// Logout invalidates the session behind the token. Only the signature is
// checked, not the tenant or blacklist, so a user can always log out, and
// logging out twice is a no-op.
func (s *Service) Logout(ctx context.Context, tokenString string) error {
	sessionID, err := s.tokens.SessionID(tokenString)
	if err != nil {
		return err
	}

	err = s.repos.Sessions.Invalidate(ctx, sessionID, sessions.ReasonUserLogout)
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			return SessionNotFoundErr
		}
		return errors.Wrap(err, "[Service.Logout] Sessions.Invalidate")
	}
	return nil
}

// Validate resolves a bearer token to an identity. A transient store failure
// is retried once after a short backoff; a definitive rejection (bad
// signature, expiry, revocation, tenant state) is returned immediately.
func (s *Service) Validate(ctx context.Context, tokenString string) (*users.Identity, error) {
	var identity *users.Identity

	backoff := retry.WithMaxRetries(1, retry.NewConstant(s.retryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		id, err := s.tokens.Validate(ctx, tokenString)
		if err != nil {
			if isTokenRejection(err) {
				return err
			}
			return retry.RetryableError(err)
		}
		identity = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	return identity, nil
}

func isTokenRejection(err error) bool {
	for _, rejection := range []error{
		token.ErrTokenExpired,
		token.ErrTokenInvalid,
		token.ErrSessionRevoked,
		token.ErrTenantNotFound,
		token.ErrTenantDeactivated,
	} {
		if errors.Is(err, rejection) {
			return true
		}
	}
	return false
}
