// Package config reads process configuration from the environment once at
// startup. A .env file is loaded when present; real environment variables
// win.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Config interface {
	EnvConfig
	AuthConfig
	AttendanceConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetDatabaseDSN() string
	GetStoreTimeout() time.Duration
}

type AuthConfig interface {
	GetTokenSecret() []byte
	GetTokenTTL() time.Duration
	GetIssuer() string
	SuperAdminBypassAllowed() bool
}

type AttendanceConfig interface {
	GetGraceWindow() time.Duration
	GetDefaultRadiusM() float64
}

type mainConfig struct {
	EnvVars
	Auth
	Attendance
}

// New loads and validates the configuration. Validation failures are
// collected so a misconfigured deployment reports everything wrong at once;
// the process must not serve authenticated routes on error.
func New() (Config, error) {
	_ = godotenv.Load()
	c := mainConfig{}

	var problems []string
	if len(c.GetTokenSecret()) < minSecretLen {
		problems = append(problems, "TOKEN_SECRET must be set and at least 32 bytes")
	}
	if c.GetDatabaseDSN() == "" {
		problems = append(problems, "DATABASE_DSN must be set")
	}
	if len(problems) > 0 {
		return nil, errors.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return c, nil
}
