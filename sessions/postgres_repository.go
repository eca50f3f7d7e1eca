package sessions

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	_ Store  = (*PostgresStore)(nil)
	_ Ledger = (*PostgresStore)(nil)
)

// PostgresStore implements both Store and Ledger against the user_sessions
// and invalidated_sessions tables. It holds *sql.DB rather than a DBTX
// because bulk invalidation opens its own transaction.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, session *Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}

	query := `INSERT INTO user_sessions (session_id, user_id, tenant_id, session_token, created_at, expires_at, is_active)
	          VALUES ($1, $2, $3, $4, $5, $6, TRUE)`

	_, err := s.db.ExecContext(ctx, query,
		session.ID, session.UserID, session.TenantID, session.Token, session.CreatedAt, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	session.IsActive = true
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	query := `SELECT session_id, user_id, tenant_id, session_token, created_at, expires_at, is_active
	          FROM user_sessions WHERE session_id = $1`

	sess := &Session{}
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(
		&sess.ID, &sess.UserID, &sess.TenantID, &sess.Token, &sess.CreatedAt, &sess.ExpiresAt, &sess.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) CountActiveByTenant(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_sessions WHERE tenant_id = $1 AND is_active`, tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) Invalidate(ctx context.Context, sessionID string, reason InvalidationReason) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// The is_active filter makes re-invalidation a no-op.
	query := `UPDATE user_sessions SET is_active = FALSE
	          WHERE session_id = $1 AND is_active
	          RETURNING user_id, tenant_id, session_token`

	var userID, tenantID, token string
	err = tx.QueryRowContext(ctx, query, sessionID).Scan(&userID, &tenantID, &token)
	if errors.Is(err, sql.ErrNoRows) {
		// Already invalidated or unknown; distinguish for the caller.
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM user_sessions WHERE session_id = $1)`, sessionID).Scan(&exists); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return tx.Commit()
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	if err := appendLedger(ctx, tx, sessionID, userID, tenantID, token, reason); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *PostgresStore) InvalidateTenant(ctx context.Context, tenantID string, reason InvalidationReason) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `UPDATE user_sessions SET is_active = FALSE
	          WHERE tenant_id = $1 AND is_active
	          RETURNING session_id, user_id, session_token`

	rows, err := tx.QueryContext(ctx, query, tenantID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	type revoked struct{ sessionID, userID, token string }
	var invalidated []revoked
	for rows.Next() {
		var r revoked
		if err := rows.Scan(&r.sessionID, &r.userID, &r.token); err != nil {
			rows.Close()
			return 0, fmt.Errorf("db error: %w", err)
		}
		invalidated = append(invalidated, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("db error: %w", err)
	}
	rows.Close()

	for _, r := range invalidated {
		if err := appendLedger(ctx, tx, r.sessionID, r.userID, tenantID, r.token, reason); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return len(invalidated), nil
}

// appendLedger inserts one invalidation record. ON CONFLICT DO NOTHING keeps
// a retried invalidation from violating the append-only primary key.
func appendLedger(ctx context.Context, tx *sql.Tx, sessionID, userID, tenantID, token string, reason InvalidationReason) error {
	query := `INSERT INTO invalidated_sessions (session_id, user_id, tenant_id, session_token, reason)
	          VALUES ($1, $2, $3, $4, $5)
	          ON CONFLICT (session_id) DO NOTHING`

	if _, err := tx.ExecContext(ctx, query, sessionID, userID, tenantID, token, string(reason)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByToken(ctx context.Context, token string) (*InvalidationRecord, error) {
	query := `SELECT session_id, user_id, tenant_id, session_token, invalidated_at, reason
	          FROM invalidated_sessions WHERE session_token = $1`

	rec := &InvalidationRecord{}
	var reason string
	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&rec.SessionID, &rec.UserID, &rec.TenantID, &rec.Token, &rec.InvalidatedAt, &reason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	rec.Reason = InvalidationReason(reason)
	return rec, nil
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*InvalidationRecord, error) {
	query := `SELECT session_id, user_id, tenant_id, session_token, invalidated_at, reason
	          FROM invalidated_sessions WHERE tenant_id = $1
	          ORDER BY invalidated_at DESC
	          LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*InvalidationRecord
	for rows.Next() {
		rec := &InvalidationRecord{}
		var reason string
		if err := rows.Scan(&rec.SessionID, &rec.UserID, &rec.TenantID, &rec.Token,
			&rec.InvalidatedAt, &reason); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		rec.Reason = InvalidationReason(reason)
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
