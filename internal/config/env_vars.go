package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const minSecretLen = 32

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv("PORT", "8080")
	if port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv("APP_NAME", "Attendance Server")
}

func (EnvVars) GetEnv() string {
	return GetEnv("ENV", "DEV")
}

func (EnvVars) GetDatabaseDSN() string {
	return GetEnv("DATABASE_DSN", "")
}

func (EnvVars) GetStoreTimeout() time.Duration {
	return getDuration("STORE_TIMEOUT", 5*time.Second)
}

type Auth struct{}

var _ AuthConfig = Auth{}

func (Auth) GetTokenSecret() []byte {
	return []byte(GetEnv("TOKEN_SECRET", ""))
}

func (Auth) GetTokenTTL() time.Duration {
	return getDuration("TOKEN_TTL", 24*time.Hour)
}

func (Auth) GetIssuer() string {
	return GetEnv("TOKEN_ISSUER", "attendance-server")
}

// SuperAdminBypassAllowed gates cross-tenant access for super admins. Strict
// tenant scoping is the default; enabling this is a deliberate deployment
// decision.
func (Auth) SuperAdminBypassAllowed() bool {
	v, err := strconv.ParseBool(GetEnv("ALLOW_SUPER_ADMIN_BYPASS", "false"))
	if err != nil {
		return false
	}
	return v
}

type Attendance struct{}

var _ AttendanceConfig = Attendance{}

func (Attendance) GetGraceWindow() time.Duration {
	return getDuration("GRACE_WINDOW", 15*time.Minute)
}

func (Attendance) GetDefaultRadiusM() float64 {
	v, err := strconv.ParseFloat(GetEnv("DEFAULT_RADIUS_M", "100"), 64)
	if err != nil || v <= 0 {
		return 100
	}
	return v
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func getDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
