package postgres

import (
	"context"
	"database/sql"
	"io/fs"
	"strings"
	"testing"

	"github.com/pressly/goose/v3"
)

func TestEmbeddedMigrations(t *testing.T) {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		t.Fatalf("glob error: %v", err)
	}
	if len(files) == 0 {
		t.Fatalf("no embedded migrations")
	}

	body, err := fs.ReadFile(migrations, files[0])
	if err != nil {
		t.Fatalf("read %s: %v", files[0], err)
	}
	for _, want := range []string{"-- +goose Up", "-- +goose Down", "CREATE TABLE IF NOT EXISTS users", "linked_accounts"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("%s missing %q", files[0], want)
		}
	}
}

func TestMigrate_Dispatch(t *testing.T) {
	origUp, origDown, origStatus := gooseUpContext, gooseDownContext, gooseStatusContext
	t.Cleanup(func() {
		gooseUpContext, gooseDownContext, gooseStatusContext = origUp, origDown, origStatus
	})

	var called []string
	record := func(name string) func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error {
		return func(_ context.Context, _ *sql.DB, dir string, _ ...goose.OptionsFunc) error {
			if dir != "migrations" {
				t.Fatalf("unexpected dir %q", dir)
			}
			called = append(called, name)
			return nil
		}
	}
	gooseUpContext = record("up")
	gooseDownContext = record("down")
	gooseStatusContext = record("status")

	for _, cmd := range []MigrateCommand{"", MigrateUp, MigrateDown, MigrateStatus} {
		if err := Migrate(context.Background(), nil, cmd); err != nil {
			t.Fatalf("Migrate(%q) error: %v", cmd, err)
		}
	}
	want := "up,up,down,status"
	if got := strings.Join(called, ","); got != want {
		t.Fatalf("calls = %s, want %s", got, want)
	}

	if err := Migrate(context.Background(), nil, "sideways"); err == nil {
		t.Fatalf("expected unknown command error")
	}
}
