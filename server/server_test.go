package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/attendly/go-attendance-server/attendance"
	fakeattendancerepo "github.com/attendly/go-attendance-server/attendance/repofakes"
	"github.com/attendly/go-attendance-server/auth"
	"github.com/attendly/go-attendance-server/geo"
	"github.com/attendly/go-attendance-server/sessions"
	fakesessionstore "github.com/attendly/go-attendance-server/sessions/repofakes"
	"github.com/attendly/go-attendance-server/server"
	"github.com/attendly/go-attendance-server/tenants"
	tenantrepofakes "github.com/attendly/go-attendance-server/tenants/repofakes"
	"github.com/attendly/go-attendance-server/token"
	"github.com/attendly/go-attendance-server/users"
	fakeuserrepo "github.com/attendly/go-attendance-server/users/repofake"
)

const testPassword = "correct horse battery staple"

var campusGate = geo.Coordinate{Lat: 22.6499919, Lon: 88.3640317}

type testConfig struct{}

func (testConfig) GetPort() string                { return ":0" }
func (testConfig) GetAppName() string             { return "test" }
func (testConfig) GetEnv() string                 { return "TEST" }
func (testConfig) GetDatabaseDSN() string         { return "" }
func (testConfig) GetStoreTimeout() time.Duration { return 5 * time.Second }
func (testConfig) GetTokenSecret() []byte         { return []byte("0123456789abcdef0123456789abcdef") }
func (testConfig) GetTokenTTL() time.Duration     { return 24 * time.Hour }
func (testConfig) GetIssuer() string              { return "test" }
func (testConfig) SuperAdminBypassAllowed() bool  { return false }
func (testConfig) GetGraceWindow() time.Duration  { return 15 * time.Minute }
func (testConfig) GetDefaultRadiusM() float64     { return 100 }

type serverFixture struct {
	ts         *httptest.Server
	userRepo   *fakeuserrepo.FakeUserRepo
	tenantRepo *tenantrepofakes.FakeTenantRepo
	store      *fakesessionstore.FakeSessionStore
	periods    *fakeattendancerepo.FakePeriodRepo
	records    *fakeattendancerepo.FakeRecordRepo
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	f := &serverFixture{
		userRepo:   fakeuserrepo.NewFakeUserRepo(),
		tenantRepo: tenantrepofakes.NewFakeTenantRepo(),
		store:      fakesessionstore.NewFakeSessionStore(),
		periods:    fakeattendancerepo.NewFakePeriodRepo(),
		records:    fakeattendancerepo.NewFakeRecordRepo(),
	}

	for _, tenant := range []*tenants.Tenant{
		{ID: "tenant-1", Name: "Springfield High", IsActive: true},
		{ID: "tenant-2", Name: "Shelbyville High", IsActive: true},
	} {
		require.NoError(t, f.tenantRepo.Upsert(context.Background(), tenant))
	}

	hash, err := users.HashPassword(testPassword)
	require.NoError(t, err)
	for _, u := range []*users.User{
		{ID: "student-1", TenantID: "tenant-1", Email: "student@springfield.edu", PasswordHash: hash, Role: users.RoleStudent, IsActive: true},
		{ID: "admin-1", TenantID: "tenant-1", Email: "admin@springfield.edu", PasswordHash: hash, Role: users.RoleAdmin, IsActive: true},
		{ID: "student-2", TenantID: "tenant-2", Email: "student@shelbyville.edu", PasswordHash: hash, Role: users.RoleStudent, IsActive: true},
		{ID: "root-1", TenantID: "tenant-1", Email: "root@attendly.io", PasswordHash: hash, Role: users.RoleSuperAdmin, IsActive: true},
	} {
		require.NoError(t, f.userRepo.Upsert(context.Background(), u))
	}

	manager, err := token.New(testConfig{}.GetTokenSecret(), f.tenantRepo, f.store)
	require.NoError(t, err)
	authService, err := auth.NewService(auth.Repos{
		Users:    f.userRepo,
		Tenants:  f.tenantRepo,
		Sessions: f.store,
	}, manager, auth.WithRetryBackoff(time.Millisecond))
	require.NoError(t, err)
	ledger, err := attendance.NewLedger(attendance.Repos{
		Periods: f.periods,
		Records: f.records,
	}, attendance.NewClassifier(), attendance.WithRetryBackoff(time.Millisecond))
	require.NoError(t, err)
	coordinator, err := sessions.NewCoordinator(f.store, zerolog.Nop())
	require.NoError(t, err)

	srv, err := server.New(testConfig{}, server.Deps{
		Auth:        authService,
		Guard:       auth.NewGuard(),
		Ledger:      ledger,
		Coordinator: coordinator,
		Periods:     f.periods,
		Tenants:     f.tenantRepo,
	}, zerolog.Nop())
	require.NoError(t, err)

	f.ts = httptest.NewServer(srv)
	t.Cleanup(f.ts.Close)
	return f
}

func (f *serverFixture) seedOpenPeriod(t *testing.T, id, tenantID string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, f.periods.Upsert(context.Background(), &attendance.Period{
		ID:        id,
		TenantID:  tenantID,
		Name:      "Morning Lecture",
		StartTime: now.Add(-10 * time.Minute),
		EndTime:   now.Add(time.Hour),
		Target:    &attendance.Geofence{Center: campusGate, RadiusM: 100},
		IsActive:  true,
	}))
}

func (f *serverFixture) do(t *testing.T, method, path, bearer string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, f.ts.URL+path, reader)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var fields map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fields))
	return resp, fields
}

func (f *serverFixture) login(t *testing.T, email string) string {
	t.Helper()
	resp, fields := f.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    email,
		"password": testPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(fields["data"], &data))
	require.NotEmpty(t, data.Token)
	return data.Token
}

func errorCode(t *testing.T, fields map[string]json.RawMessage) string {
	t.Helper()
	var code string
	require.NoError(t, json.Unmarshal(fields["error_code"], &code))
	return code
}

// TestLoginAndMe checks the login flow end to end: credentials in, token
// out, and the token resolving back to the caller's identity.
func TestLoginAndMe(t *testing.T) {
	f := newServerFixture(t)
	bearer := f.login(t, "student@springfield.edu")

	resp, fields := f.do(t, http.MethodGet, "/api/auth/me", bearer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var identity users.Identity
	require.NoError(t, json.Unmarshal(fields["data"], &identity))
	require.Equal(t, "student-1", identity.UserID)
	require.Equal(t, "tenant-1", identity.TenantID)
}

// TestLoginRejectsBadPassword checks the generic invalid-credentials answer.
func TestLoginRejectsBadPassword(t *testing.T) {
	f := newServerFixture(t)

	resp, fields := f.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "student@springfield.edu",
		"password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "INVALID_CREDENTIALS", errorCode(t, fields))
}

// TestRequestsWithoutTokenRejected checks that protected routes demand a
// bearer token.
func TestRequestsWithoutTokenRejected(t *testing.T) {
	f := newServerFixture(t)

	resp, fields := f.do(t, http.MethodGet, "/api/attendance/history", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "TOKEN_INVALID", errorCode(t, fields))
}

// TestCheckInPresentAndStringCoordinates checks a successful check-in,
// including coordinates arriving as numeric strings.
func TestCheckInPresentAndStringCoordinates(t *testing.T) {
	f := newServerFixture(t)
	f.seedOpenPeriod(t, "period-1", "tenant-1")
	bearer := f.login(t, "student@springfield.edu")

	resp, fields := f.do(t, http.MethodPost, "/api/attendance/check-in", bearer, map[string]any{
		"period_id": "period-1",
		"lat":       "22.6499919",
		"lon":       "88.3640317",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var record attendance.Record
	require.NoError(t, json.Unmarshal(fields["data"], &record))
	require.Equal(t, attendance.StatusPresent, record.Status)
	require.True(t, record.LocationVerified)
}

// TestCheckInTooFarReportsAndPersists checks that an out-of-range submission
// is persisted as absent and the response carries LOCATION_TOO_FAR details
// with the period's own geofence radius, not a global cap.
func TestCheckInTooFarReportsAndPersists(t *testing.T) {
	f := newServerFixture(t)
	now := time.Now()
	require.NoError(t, f.periods.Upsert(context.Background(), &attendance.Period{
		ID:        "period-1",
		TenantID:  "tenant-1",
		Name:      "Morning Lecture",
		StartTime: now.Add(-10 * time.Minute),
		EndTime:   now.Add(time.Hour),
		Target:    &attendance.Geofence{Center: campusGate, RadiusM: 250},
		IsActive:  true,
	}))
	bearer := f.login(t, "student@springfield.edu")

	resp, fields := f.do(t, http.MethodPost, "/api/attendance/check-in", bearer, map[string]any{
		"period_id": "period-1",
		"lat":       28.6139,
		"lon":       77.2090,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "LOCATION_TOO_FAR", errorCode(t, fields))

	var details struct {
		Distance   float64 `json:"distance"`
		MaxAllowed float64 `json:"max_allowed"`
	}
	require.NoError(t, json.Unmarshal(fields["details"], &details))
	require.Greater(t, details.Distance, 1.2e6)
	require.Equal(t, 250.0, details.MaxAllowed)

	var record attendance.Record
	require.NoError(t, json.Unmarshal(fields["data"], &record))
	require.Equal(t, attendance.StatusAbsent, record.Status)

	stored, err := f.records.Get(context.Background(), "student-1", "period-1")
	require.NoError(t, err)
	require.Equal(t, attendance.StatusAbsent, stored.Status)
}

// TestCheckOutStampsDeparture checks the check-out flow: it requires a prior
// check-in, stamps the departure time and location, and leaves the status
// untouched.
func TestCheckOutStampsDeparture(t *testing.T) {
	f := newServerFixture(t)
	f.seedOpenPeriod(t, "period-1", "tenant-1")
	bearer := f.login(t, "student@springfield.edu")

	resp, fields := f.do(t, http.MethodPost, "/api/attendance/check-out", bearer, map[string]any{
		"period_id": "period-1",
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "RECORD_NOT_FOUND", errorCode(t, fields))

	resp, _ = f.do(t, http.MethodPost, "/api/attendance/check-in", bearer, map[string]any{
		"period_id": "period-1",
		"lat":       22.6499919,
		"lon":       88.3640317,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, fields = f.do(t, http.MethodPost, "/api/attendance/check-out", bearer, map[string]any{
		"period_id": "period-1",
		"lat":       "22.6499919",
		"lon":       "88.3640317",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var record attendance.Record
	require.NoError(t, json.Unmarshal(fields["data"], &record))
	require.Equal(t, attendance.StatusPresent, record.Status)
	require.NotNil(t, record.CheckOutAt)
	require.NotNil(t, record.CheckOutLocation)
	require.Equal(t, campusGate, *record.CheckOutLocation)
}

// TestCheckInInvalidCoordinate checks the input-error mapping.
func TestCheckInInvalidCoordinate(t *testing.T) {
	f := newServerFixture(t)
	f.seedOpenPeriod(t, "period-1", "tenant-1")
	bearer := f.login(t, "student@springfield.edu")

	resp, fields := f.do(t, http.MethodPost, "/api/attendance/check-in", bearer, map[string]any{
		"period_id": "period-1",
		"lat":       95.0,
		"lon":       0.0,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "INVALID_COORDINATE", errorCode(t, fields))
}

// TestHistoryScopedToCaller checks the history endpoint returns the caller's
// records only.
func TestHistoryScopedToCaller(t *testing.T) {
	f := newServerFixture(t)
	f.seedOpenPeriod(t, "period-1", "tenant-1")
	f.seedOpenPeriod(t, "period-2", "tenant-2")

	bearer1 := f.login(t, "student@springfield.edu")
	bearer2 := f.login(t, "student@shelbyville.edu")

	for bearer, periodID := range map[string]string{bearer1: "period-1", bearer2: "period-2"} {
		resp, _ := f.do(t, http.MethodPost, "/api/attendance/check-in", bearer, map[string]any{
			"period_id": periodID,
			"lat":       22.6499919,
			"lon":       88.3640317,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, fields := f.do(t, http.MethodGet, "/api/attendance/history", bearer1, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var records []attendance.Record
	require.NoError(t, json.Unmarshal(fields["data"], &records))
	require.Len(t, records, 1)
	require.Equal(t, "tenant-1", records[0].TenantID)
	require.Equal(t, "period-1", records[0].PeriodID)
}

// TestCreatePeriodRequiresElevatedRole checks that students cannot create
// periods while admins can, and that window validation runs.
func TestCreatePeriodRequiresElevatedRole(t *testing.T) {
	f := newServerFixture(t)
	studentBearer := f.login(t, "student@springfield.edu")
	adminBearer := f.login(t, "admin@springfield.edu")

	body := map[string]any{
		"name":       "Evening Lab",
		"start_time": time.Now().Format(time.RFC3339),
		"end_time":   time.Now().Add(time.Hour).Format(time.RFC3339),
	}

	resp, fields := f.do(t, http.MethodPost, "/api/periods", studentBearer, body)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "UNAUTHORIZED_ROLE", errorCode(t, fields))

	resp, fields = f.do(t, http.MethodPost, "/api/periods", adminBearer, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var period attendance.Period
	require.NoError(t, json.Unmarshal(fields["data"], &period))
	require.Equal(t, "tenant-1", period.TenantID)
	require.Equal(t, "admin-1", period.CreatedBy)

	inverted := map[string]any{
		"name":       "Backwards",
		"start_time": time.Now().Add(time.Hour).Format(time.RFC3339),
		"end_time":   time.Now().Format(time.RFC3339),
	}
	resp, fields = f.do(t, http.MethodPost, "/api/periods", adminBearer, inverted)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "VALIDATION_ERROR", errorCode(t, fields))
}

// TestLogoutRevokesToken checks that a logged-out token fails the next
// request with SESSION_REVOKED.
func TestLogoutRevokesToken(t *testing.T) {
	f := newServerFixture(t)
	bearer := f.login(t, "student@springfield.edu")

	resp, _ := f.do(t, http.MethodPost, "/api/auth/logout", bearer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, fields := f.do(t, http.MethodGet, "/api/auth/me", bearer, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "SESSION_REVOKED", errorCode(t, fields))
}

// TestTenantDeleteTwoPhase checks the preview/confirm flow: the preview
// reports the revocation count without touching sessions, the confirm revokes
// them and removes the tenant, and a bystander tenant's token stays valid.
func TestTenantDeleteTwoPhase(t *testing.T) {
	f := newServerFixture(t)
	adminBearer := f.login(t, "admin@springfield.edu")
	studentBearer := f.login(t, "student@springfield.edu")
	bystanderBearer := f.login(t, "student@shelbyville.edu")

	resp, fields := f.do(t, http.MethodDelete, "/api/tenants/tenant-1", adminBearer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var preview struct {
		ActiveSessions  int  `json:"active_sessions"`
		ConfirmRequired bool `json:"confirm_required"`
	}
	require.NoError(t, json.Unmarshal(fields["data"], &preview))
	require.Equal(t, 2, preview.ActiveSessions)
	require.True(t, preview.ConfirmRequired)

	// The preview must not revoke anything.
	resp, _ = f.do(t, http.MethodGet, "/api/auth/me", studentBearer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, fields = f.do(t, http.MethodDelete, "/api/tenants/tenant-1?confirm=true", adminBearer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result struct {
		SessionsInvalidated int `json:"sessions_invalidated"`
	}
	require.NoError(t, json.Unmarshal(fields["data"], &result))
	require.Equal(t, 2, result.SessionsInvalidated)

	// Tenant existence is checked before the blacklist, so members of the
	// deleted organization see TENANT_NOT_FOUND; the session is revoked
	// underneath regardless.
	resp, fields = f.do(t, http.MethodGet, "/api/auth/me", studentBearer, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "TENANT_NOT_FOUND", errorCode(t, fields))

	resp, _ = f.do(t, http.MethodGet, "/api/auth/me", bystanderBearer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// TestTenantListSuperAdminOnly checks that listing organizations is reserved
// for super admins and pages across every tenant.
func TestTenantListSuperAdminOnly(t *testing.T) {
	f := newServerFixture(t)
	adminBearer := f.login(t, "admin@springfield.edu")
	rootBearer := f.login(t, "root@attendly.io")

	resp, fields := f.do(t, http.MethodGet, "/api/tenants", adminBearer, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "UNAUTHORIZED_ROLE", errorCode(t, fields))

	resp, fields = f.do(t, http.MethodGet, "/api/tenants", rootBearer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []tenants.Tenant
	require.NoError(t, json.Unmarshal(fields["data"], &list))
	require.Len(t, list, 2)
	require.Equal(t, "tenant-1", list[0].ID)

	resp, fields = f.do(t, http.MethodGet, "/api/tenants?offset=1&limit=1", rootBearer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(fields["data"], &list))
	require.Len(t, list, 1)
	require.Equal(t, "tenant-2", list[0].ID)
}

// TestTenantDeleteCrossTenantForbidden checks that an admin cannot delete
// another organization.
func TestTenantDeleteCrossTenantForbidden(t *testing.T) {
	f := newServerFixture(t)
	adminBearer := f.login(t, "admin@springfield.edu")

	resp, fields := f.do(t, http.MethodDelete, "/api/tenants/tenant-2?confirm=true", adminBearer, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "TENANT_MISMATCH", errorCode(t, fields))
}

// TestTenantDeactivateLocksMembersOut checks deactivation: member tokens die
// with a revocation error and subsequent logins are refused.
func TestTenantDeactivateLocksMembersOut(t *testing.T) {
	f := newServerFixture(t)
	adminBearer := f.login(t, "admin@springfield.edu")
	studentBearer := f.login(t, "student@springfield.edu")

	resp, fields := f.do(t, http.MethodPost, "/api/tenants/tenant-1/deactivate", adminBearer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result struct {
		SessionsInvalidated int `json:"sessions_invalidated"`
	}
	require.NoError(t, json.Unmarshal(fields["data"], &result))
	require.Equal(t, 2, result.SessionsInvalidated)

	resp, _ = f.do(t, http.MethodGet, "/api/auth/me", studentBearer, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, fields = f.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "student@springfield.edu",
		"password": testPassword,
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "TENANT_DEACTIVATED", errorCode(t, fields))
}
