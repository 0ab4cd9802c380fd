package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// OpenPostgres opens a postgres-backed bun handle for the stores.
func OpenPostgres(dsn string) (*bun.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("sqlstore: postgres dsn is required")
	}
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open postgres: %w", err)
	}
	return bun.NewDB(sqlDB, pgdialect.New()), nil
}

// OpenSQLite opens a sqlite-backed bun handle, used by embedded setups and
// the integration tests.
func OpenSQLite(dsn string) (*bun.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("sqlstore: sqlite dsn is required")
	}
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open sqlite: %w", err)
	}
	// sqlite serializes writers; a single connection avoids lock errors.
	sqlDB.SetMaxOpenConns(1)
	return bun.NewDB(sqlDB, sqlitedialect.New()), nil
}
