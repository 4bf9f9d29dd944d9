// internal/db/db.go
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB wraps a connection pool together with its SQL dialect.
type DB struct {
	*sql.DB
	Driver string
}

// Open connects to the send history database and pings it.
// For SQLite a bare file path gets the durability pragmas appended.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*DB, error) {
	switch driver {
	case DriverSQLite:
		dsn = sqliteDSN(dsn)
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// one writer keeps upserts serialized
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database_connected", "driver", driver)
	return &DB{DB: conn, Driver: driver}, nil
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "send_history.db"
	}
	if strings.Contains(dsn, "_pragma") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)"
}

// Rebind rewrites ? placeholders to $n for PostgreSQL.
func (d *DB) Rebind(query string) string {
	if d.Driver != DriverPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

const schema = `
CREATE TABLE IF NOT EXISTS send_records (
    campaign_id       TEXT NOT NULL,
    recipient_address TEXT NOT NULL,
    status            TEXT NOT NULL,
    attempt_count     INTEGER NOT NULL DEFAULT 0,
    last_attempt_at   TEXT,
    last_error        TEXT,
    created_at        TEXT NOT NULL,
    updated_at        TEXT NOT NULL,
    PRIMARY KEY (campaign_id, recipient_address)
);
CREATE INDEX IF NOT EXISTS idx_send_records_updated_at ON send_records (updated_at);
`

// Migrate creates the send history table if it does not exist.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	return nil
}
