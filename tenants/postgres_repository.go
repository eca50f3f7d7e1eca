package tenants

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/attendly/go-attendance-server/postgres"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var _ Repo = (*PostgresRepository)(nil)

type PostgresRepository struct {
	db postgres.DBTX
}

func NewPostgresRepository(db postgres.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, tenant *Tenant) error {
	if tenant.ID == "" {
		tenant.ID = uuid.New().String()
	}

	query := `INSERT INTO tenants (tenant_id, name, is_active)
	          VALUES ($1, $2, $3)
	          ON CONFLICT (tenant_id) DO UPDATE SET name = EXCLUDED.name, is_active = EXCLUDED.is_active
	          RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query, tenant.ID, tenant.Name, tenant.IsActive).Scan(&tenant.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, tenantID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tenants WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, tenantID string) (*Tenant, error) {
	query := `SELECT tenant_id, name, is_active, created_at FROM tenants WHERE tenant_id = $1`

	t := &Tenant{}
	err := r.db.QueryRowContext(ctx, query, tenantID).Scan(&t.ID, &t.Name, &t.IsActive, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) SetActive(ctx context.Context, tenantID string, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE tenants SET is_active = $2 WHERE tenant_id = $1`, tenantID, active)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, offset, limit int) ([]*Tenant, error) {
	query := `SELECT tenant_id, name, is_active, created_at FROM tenants
	          ORDER BY tenant_id
	          OFFSET $1 LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*Tenant
	for rows.Next() {
		t := &Tenant{}
		if err := rows.Scan(&t.ID, &t.Name, &t.IsActive, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
