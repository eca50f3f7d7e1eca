package postgres

import (
	"context"
	"database/sql"
	"embed"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies all pending schema migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "[postgres.Migrate] set dialect")
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return errors.Wrap(err, "[postgres.Migrate] goose up")
	}

	return nil
}
