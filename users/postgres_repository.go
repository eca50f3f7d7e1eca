package users

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/attendly/go-attendance-server/postgres"
)

var _ Repo = (*PostgresRepository)(nil)

type PostgresRepository struct {
	db postgres.DBTX
}

func NewPostgresRepository(db postgres.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	query := `INSERT INTO users (user_id, tenant_id, email, name, password_hash, role, is_active)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          ON CONFLICT (user_id) DO UPDATE
	          SET email = EXCLUDED.email, name = EXCLUDED.name,
	              password_hash = EXCLUDED.password_hash, role = EXCLUDED.role,
	              is_active = EXCLUDED.is_active
	          RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.TenantID, user.Email, user.Name, user.PasswordHash,
		string(user.Role), user.IsActive).Scan(&user.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.get(ctx, `WHERE email = $1`, email)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.get(ctx, `WHERE user_id = $1`, id)
}

func (r *PostgresRepository) get(ctx context.Context, where string, arg any) (*User, error) {
	query := `SELECT user_id, tenant_id, email, name, password_hash, role, is_active, created_at, last_login
	          FROM users ` + where

	user := &User{}
	var role string
	var lastLogin sql.NullTime
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.TenantID, &user.Email, &user.Name, &user.PasswordHash,
		&role, &user.IsActive, &user.CreatedAt, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	user.Role = RoleType(role)
	if lastLogin.Valid {
		user.LastLogin = lastLogin.Time
	}
	return user, nil
}

func (r *PostgresRepository) SetLastLogin(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE users SET last_login = NOW() WHERE user_id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
