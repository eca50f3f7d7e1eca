package token

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/attendly/go-attendance-server/sessions"
	"github.com/attendly/go-attendance-server/tenants"
	"github.com/attendly/go-attendance-server/users"
)

const defaultTokenTTL = 24 * time.Hour

// Manager signs and validates bearer tokens with a single HMAC-SHA256 secret
// shared across tenants. Validation consults the tenant repo and the
// invalidation ledger on every call, so a revocation takes effect on the next
// request without any cache warm-up.
type Manager struct {
	secret     []byte
	tenantRepo tenants.Repo
	ledger     sessions.Ledger
	issuer     string
	tokenTTL   time.Duration
	nowFunc    func() time.Time
}

type ManagerOption func(*Manager)

func WithTokenTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.tokenTTL = ttl
	}
}

func WithIssuer(issuer string) ManagerOption {
	return func(m *Manager) {
		m.issuer = issuer
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func New(secret []byte, tenantRepo tenants.Repo, ledger sessions.Ledger, options ...ManagerOption) (*Manager, error) {
	if len(secret) == 0 {
		return nil, errors.New("[token.New] signing secret is required")
	}
	if tenantRepo == nil {
		return nil, errors.New("[token.New] tenant repo is required")
	}
	if ledger == nil {
		return nil, errors.New("[token.New] invalidation ledger is required")
	}

	m := &Manager{
		secret:     secret,
		tenantRepo: tenantRepo,
		ledger:     ledger,
		tokenTTL:   defaultTokenTTL,
		nowFunc:    time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Issue signs a token for the identity and returns the session record it
// belongs to. The caller persists the session; the returned Session carries
// the signed token in its Token field.
func (m *Manager) Issue(identity users.Identity) (*sessions.Session, error) {
	now := m.nowFunc()
	sessionID := uuid.New().String()
	expiresAt := now.Add(m.tokenTTL)

	claims := Claims{
		TenantID: identity.TenantID,
		Role:     string(identity.Role),
		Email:    identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        sessionID,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Issue] SignedString")
	}

	return &sessions.Session{
		ID:        sessionID,
		UserID:    identity.UserID,
		TenantID:  identity.TenantID,
		Token:     signed,
		CreatedAt: now,
		ExpiresAt: expiresAt,
		IsActive:  true,
	}, nil
}

// Validate runs the three checks every authenticated request goes through, in
// order: signature and expiry, then tenant existence and active status, then
// the blacklist lookup. The first failure wins; a revoked token that has also
// expired reports expiry.
func (m *Manager) Validate(ctx context.Context, tokenString string) (*users.Identity, error) {
	claims, err := m.parse(tokenString)
	if err != nil {
		return nil, err
	}

	tenant, err := m.tenantRepo.Get(ctx, claims.TenantID)
	if err != nil {
		if errors.Is(err, tenants.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, errors.Wrap(err, "[Manager.Validate] tenantRepo.Get")
	}
	if !tenant.IsActive {
		return nil, ErrTenantDeactivated
	}

	_, err = m.ledger.FindByToken(ctx, tokenString)
	if err == nil {
		return nil, ErrSessionRevoked
	}
	if !errors.Is(err, sessions.ErrNotFound) {
		return nil, errors.Wrap(err, "[Manager.Validate] ledger.FindByToken")
	}

	return &users.Identity{
		UserID:   claims.Subject,
		TenantID: claims.TenantID,
		Role:     users.RoleType(claims.Role),
		Email:    claims.Email,
	}, nil
}

// SessionID extracts the jti from a token without the tenant or blacklist
// checks. Used by logout, which must succeed even for a tenant mid-deletion.
func (m *Manager) SessionID(tokenString string) (string, error) {
	claims, err := m.parse(tokenString)
	if err != nil {
		return "", err
	}
	return claims.ID, nil
}

func (m *Manager) parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.nowFunc))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if claims.TenantID == "" || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	if !users.ValidRole(users.RoleType(claims.Role)) {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
