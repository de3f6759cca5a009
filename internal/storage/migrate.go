package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/retosmicro/authsvc/internal/storage/migrations"
)

// RunMigrations applies the embedded schema migrations inside the
// configured schema. Table names in the migration files are unqualified,
// so the connection's search_path decides where they land.
func RunMigrations(ctx context.Context, dbURL, schema string) error {
	const op = "storage.RunMigrations"

	dsn, err := withSearchPath(dbURL, schema)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema); err != nil {
		return fmt.Errorf("%s (create schema): %w", op, err)
	}

	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// withSearchPath appends search_path as a runtime parameter to a
// postgres:// URL. pgx forwards unknown query parameters to the server.
func withSearchPath(dbURL, schema string) (string, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(u.Scheme, "postgres") {
		return "", fmt.Errorf("unsupported db url scheme %q", u.Scheme)
	}

	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
