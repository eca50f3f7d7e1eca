package attendance_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/attendly/go-attendance-server/attendance"
	"github.com/attendly/go-attendance-server/internal/utils"
)

var recordCols = []string{
	"record_id", "user_id", "tenant_id", "period_id", "status", "claimed_lat", "claimed_lon",
	"distance_m", "location_verified", "checked_at", "updated_at", "rejected_attempts",
	"check_out_time", "check_out_lat", "check_out_lon",
}

// TestPostgresPeriodRepoGetNotFound checks the sentinel mapping for a missing
// period.
func TestPostgresPeriodRepoGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM attendance_periods").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"period_id"}))

	_, err = attendance.NewPostgresPeriodRepo(db).Get(context.Background(), "missing")
	require.ErrorIs(t, err, attendance.ErrPeriodNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestPostgresRecordRepoFirstAttemptInserts checks the upsert's insert path:
// the row lock query finds nothing, so a fresh record is inserted inside the
// transaction.
func TestPostgresRecordRepoFirstAttemptInserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM attendance_records (.+) FOR UPDATE").
		WithArgs("user-1", "period-1").
		WillReturnRows(sqlmock.NewRows(recordCols))
	mock.ExpectExec("INSERT INTO attendance_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	at := time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC)
	record, err := attendance.NewPostgresRecordRepo(db).UpsertAttempt(context.Background(), attendance.Attempt{
		UserID:           "user-1",
		TenantID:         "tenant-1",
		PeriodID:         "period-1",
		Status:           attendance.StatusPresent,
		Claimed:          campusGate,
		DistanceM:        utils.Ptr(0.0),
		LocationVerified: true,
		At:               at,
	})
	require.NoError(t, err)
	require.Equal(t, attendance.StatusPresent, record.Status)
	require.Equal(t, at, record.CheckedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestPostgresRecordRepoRejectedRetryUpdates checks the upsert's update path:
// an absent attempt against a stored present record keeps the status and
// appends to rejected_attempts.
func TestPostgresRecordRepoRejectedRetryUpdates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	checkedAt := time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("FROM attendance_records (.+) FOR UPDATE").
		WithArgs("user-1", "period-1").
		WillReturnRows(sqlmock.NewRows(recordCols).AddRow(
			"rec-1", "user-1", "tenant-1", "period-1", "present", campusGate.Lat, campusGate.Lon,
			0.0, true, checkedAt, checkedAt, []byte("[]"), nil, nil, nil))
	mock.ExpectExec("UPDATE attendance_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	record, err := attendance.NewPostgresRecordRepo(db).UpsertAttempt(context.Background(), attendance.Attempt{
		UserID:    "user-1",
		TenantID:  "tenant-1",
		PeriodID:  "period-1",
		Status:    attendance.StatusAbsent,
		Claimed:   delhi,
		DistanceM: utils.Ptr(1.3e6),
		At:        checkedAt.Add(10 * time.Minute),
	})
	require.NoError(t, err)
	require.Equal(t, attendance.StatusPresent, record.Status)
	require.Len(t, record.RejectedAttempts, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestPostgresRecordRepoHistory checks the scan of a history page including a
// nullable distance and serialized rejected attempts.
func TestPostgresRecordRepoHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	checkedAt := time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC)
	mock.ExpectQuery("ORDER BY checked_at DESC").
		WithArgs("user-1", "tenant-1", sqlmock.AnyArg(), 10).
		WillReturnRows(sqlmock.NewRows(recordCols).
			AddRow("rec-2", "user-1", "tenant-1", "period-2", "present", 22.65, 88.36,
				nil, false, checkedAt.Add(time.Hour), checkedAt.Add(time.Hour), []byte("[]"),
				nil, nil, nil).
			AddRow("rec-1", "user-1", "tenant-1", "period-1", "late", 22.65, 88.36,
				12.5, true, checkedAt, checkedAt,
				[]byte(`[{"lat":28.6139,"lon":77.209,"timestamp":"2025-03-10T09:20:00Z"}]`),
				checkedAt.Add(50*time.Minute), 22.65, 88.36))

	records, err := attendance.NewPostgresRecordRepo(db).History(context.Background(), "user-1", "tenant-1", time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Nil(t, records[0].DistanceM)
	require.Equal(t, attendance.StatusLate, records[1].Status)
	require.Equal(t, 12.5, *records[1].DistanceM)
	require.Len(t, records[1].RejectedAttempts, 1)
	require.Nil(t, records[0].CheckOutAt)
	require.NotNil(t, records[1].CheckOutAt)
	require.Equal(t, 22.65, records[1].CheckOutLocation.Lat)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestPostgresRecordRepoSetCheckOut checks the check-out stamp: an update
// returning the full row, and the not-found mapping when no record exists.
func TestPostgresRecordRepoSetCheckOut(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	checkedAt := time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC)
	outAt := checkedAt.Add(50 * time.Minute)
	mock.ExpectQuery("SET check_out_time").
		WithArgs("user-1", "period-1", outAt, campusGate.Lat, campusGate.Lon).
		WillReturnRows(sqlmock.NewRows(recordCols).AddRow(
			"rec-1", "user-1", "tenant-1", "period-1", "present", campusGate.Lat, campusGate.Lon,
			0.0, true, checkedAt, outAt, []byte("[]"), outAt, campusGate.Lat, campusGate.Lon))

	record, err := attendance.NewPostgresRecordRepo(db).SetCheckOut(
		context.Background(), "user-1", "period-1", outAt, &campusGate)
	require.NoError(t, err)
	require.Equal(t, outAt, *record.CheckOutAt)
	require.Equal(t, campusGate, *record.CheckOutLocation)

	mock.ExpectQuery("SET check_out_time").
		WithArgs("user-1", "period-x", outAt, nil, nil).
		WillReturnRows(sqlmock.NewRows(recordCols))

	_, err = attendance.NewPostgresRecordRepo(db).SetCheckOut(
		context.Background(), "user-1", "period-x", outAt, nil)
	require.ErrorIs(t, err, attendance.ErrRecordNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
