package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MigrateCommand selects a goose operation.
type MigrateCommand string

const (
	MigrateUp     MigrateCommand = "up"
	MigrateDown   MigrateCommand = "down"
	MigrateStatus MigrateCommand = "status"
)

// goose keeps its FS and dialect in package state; these seams let tests
// observe calls without a database.
var (
	gooseUpContext     = goose.UpContext
	gooseDownContext   = goose.DownContext
	gooseStatusContext = goose.StatusContext
)

// Migrate runs cmd against db using the embedded migrations.
func Migrate(ctx context.Context, db *sql.DB, cmd MigrateCommand) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}

	switch cmd {
	case MigrateUp, "":
		return gooseUpContext(ctx, db, "migrations")
	case MigrateDown:
		return gooseDownContext(ctx, db, "migrations")
	case MigrateStatus:
		return gooseStatusContext(ctx, db, "migrations")
	default:
		return fmt.Errorf("unknown migrate command %q", cmd)
	}
}
