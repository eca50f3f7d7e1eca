package attendance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/attendly/go-attendance-server/geo"
	"github.com/attendly/go-attendance-server/postgres"
)

var _ PeriodRepo = (*PostgresPeriodRepo)(nil)

type PostgresPeriodRepo struct {
	db postgres.DBTX
}

func NewPostgresPeriodRepo(db postgres.DBTX) *PostgresPeriodRepo {
	return &PostgresPeriodRepo{db: db}
}

func (r *PostgresPeriodRepo) Upsert(ctx context.Context, period *Period) error {
	if period.ID == "" {
		period.ID = uuid.New().String()
	}

	var lat, lon, radius *float64
	if period.Target != nil {
		lat, lon, radius = &period.Target.Center.Lat, &period.Target.Center.Lon, &period.Target.RadiusM
	}

	query := `INSERT INTO attendance_periods
	          (period_id, tenant_id, name, start_time, end_time, location_lat, location_lon, location_radius, created_by, is_active)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	          ON CONFLICT (period_id) DO UPDATE
	          SET name = EXCLUDED.name, start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time,
	              location_lat = EXCLUDED.location_lat, location_lon = EXCLUDED.location_lon,
	              location_radius = EXCLUDED.location_radius, is_active = EXCLUDED.is_active
	          RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		period.ID, period.TenantID, period.Name, period.StartTime, period.EndTime,
		lat, lon, radius, period.CreatedBy, period.IsActive).Scan(&period.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresPeriodRepo) Get(ctx context.Context, periodID string) (*Period, error) {
	query := `SELECT period_id, tenant_id, name, start_time, end_time,
	                 location_lat, location_lon, location_radius, created_by, is_active, created_at
	          FROM attendance_periods WHERE period_id = $1`

	period, err := scanPeriod(r.db.QueryRowContext(ctx, query, periodID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPeriodNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return period, nil
}

func (r *PostgresPeriodRepo) ListByTenant(ctx context.Context, tenantID string, activeOnly bool) ([]*Period, error) {
	query := `SELECT period_id, tenant_id, name, start_time, end_time,
	                 location_lat, location_lon, location_radius, created_by, is_active, created_at
	          FROM attendance_periods WHERE tenant_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY start_time DESC`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*Period
	for rows.Next() {
		period, err := scanPeriod(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, period)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresPeriodRepo) SetActive(ctx context.Context, periodID string, active bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE attendance_periods SET is_active = $2 WHERE period_id = $1`, periodID, active)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPeriod(row rowScanner) (*Period, error) {
	period := &Period{}
	var lat, lon, radius sql.NullFloat64
	var createdBy sql.NullString
	err := row.Scan(&period.ID, &period.TenantID, &period.Name, &period.StartTime, &period.EndTime,
		&lat, &lon, &radius, &createdBy, &period.IsActive, &period.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lat.Valid && lon.Valid {
		period.Target = &Geofence{
			Center:  geo.Coordinate{Lat: lat.Float64, Lon: lon.Float64},
			RadiusM: DefaultRadiusM,
		}
		if radius.Valid {
			period.Target.RadiusM = radius.Float64
		}
	}
	period.CreatedBy = createdBy.String
	return period, nil
}

var _ RecordRepo = (*PostgresRecordRepo)(nil)

// PostgresRecordRepo holds *sql.DB rather than a DBTX because UpsertAttempt
// opens its own transaction with a row lock on the (user, period) key.
type PostgresRecordRepo struct {
	db *sql.DB
}

func NewPostgresRecordRepo(db *sql.DB) *PostgresRecordRepo {
	return &PostgresRecordRepo{db: db}
}

const recordColumns = `record_id, user_id, tenant_id, period_id, status, claimed_lat, claimed_lon,
	                   distance_m, location_verified, checked_at, updated_at, rejected_attempts,
	                   check_out_time, check_out_lat, check_out_lon`

func (r *PostgresRecordRepo) UpsertAttempt(ctx context.Context, attempt Attempt) (*Record, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// FOR UPDATE serializes concurrent attempts for the same key.
	query := `SELECT ` + recordColumns + `
	          FROM attendance_records WHERE user_id = $1 AND period_id = $2 FOR UPDATE`

	existing, err := scanRecord(tx.QueryRowContext(ctx, query, attempt.UserID, attempt.PeriodID))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("db error: %w", err)
	}

	merged := ApplyAttempt(existing, attempt)
	rejected, err := json.Marshal(merged.RejectedAttempts)
	if err != nil {
		return nil, errors.Wrap(err, "[PostgresRecordRepo.UpsertAttempt] marshal rejected attempts")
	}

	if existing == nil {
		var outLat, outLon *float64
		if merged.CheckOutLocation != nil {
			outLat, outLon = &merged.CheckOutLocation.Lat, &merged.CheckOutLocation.Lon
		}
		insert := `INSERT INTO attendance_records (` + recordColumns + `)
		           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
		_, err = tx.ExecContext(ctx, insert,
			merged.ID, merged.UserID, merged.TenantID, merged.PeriodID, string(merged.Status),
			merged.Claimed.Lat, merged.Claimed.Lon, merged.DistanceM, merged.LocationVerified,
			merged.CheckedAt, merged.UpdatedAt, rejected, merged.CheckOutAt, outLat, outLon)
	} else {
		update := `UPDATE attendance_records
		           SET status = $2, claimed_lat = $3, claimed_lon = $4, distance_m = $5,
		               location_verified = $6, checked_at = $7, updated_at = $8, rejected_attempts = $9
		           WHERE record_id = $1`
		_, err = tx.ExecContext(ctx, update,
			merged.ID, string(merged.Status), merged.Claimed.Lat, merged.Claimed.Lon, merged.DistanceM,
			merged.LocationVerified, merged.CheckedAt, merged.UpdatedAt, rejected)
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return merged, nil
}

func (r *PostgresRecordRepo) Get(ctx context.Context, userID, periodID string) (*Record, error) {
	query := `SELECT ` + recordColumns + `
	          FROM attendance_records WHERE user_id = $1 AND period_id = $2`

	record, err := scanRecord(r.db.QueryRowContext(ctx, query, userID, periodID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return record, nil
}

func (r *PostgresRecordRepo) SetCheckOut(ctx context.Context, userID, periodID string, at time.Time, claimed *geo.Coordinate) (*Record, error) {
	var lat, lon *float64
	if claimed != nil {
		lat, lon = &claimed.Lat, &claimed.Lon
	}

	query := `UPDATE attendance_records
	          SET check_out_time = $3, check_out_lat = $4, check_out_lon = $5, updated_at = $3
	          WHERE user_id = $1 AND period_id = $2
	          RETURNING ` + recordColumns

	record, err := scanRecord(r.db.QueryRowContext(ctx, query, userID, periodID, at, lat, lon))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return record, nil
}

func (r *PostgresRecordRepo) History(ctx context.Context, userID, tenantID string, since time.Time, limit int) ([]*Record, error) {
	query := `SELECT ` + recordColumns + `
	          FROM attendance_records
	          WHERE user_id = $1 AND tenant_id = $2 AND checked_at >= $3
	          ORDER BY checked_at DESC
	          LIMIT $4`

	rows, err := r.db.QueryContext(ctx, query, userID, tenantID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func scanRecord(row rowScanner) (*Record, error) {
	record := &Record{}
	var status string
	var distance, outLat, outLon sql.NullFloat64
	var checkOut sql.NullTime
	var rejected []byte
	err := row.Scan(&record.ID, &record.UserID, &record.TenantID, &record.PeriodID, &status,
		&record.Claimed.Lat, &record.Claimed.Lon, &distance, &record.LocationVerified,
		&record.CheckedAt, &record.UpdatedAt, &rejected, &checkOut, &outLat, &outLon)
	if err != nil {
		return nil, err
	}
	record.Status = Status(status)
	if distance.Valid {
		record.DistanceM = &distance.Float64
	}
	if checkOut.Valid {
		record.CheckOutAt = &checkOut.Time
	}
	if outLat.Valid && outLon.Valid {
		record.CheckOutLocation = &geo.Coordinate{Lat: outLat.Float64, Lon: outLon.Float64}
	}
	if err := json.Unmarshal(rejected, &record.RejectedAttempts); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return record, nil
}
