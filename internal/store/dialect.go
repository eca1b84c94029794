package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type dialect struct {
	driver string
	schema string
}

var dialects = map[string]dialect{
	DriverSQLite: {
		driver: DriverSQLite,
		schema: `
		CREATE TABLE IF NOT EXISTS help_requests (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			ticket_id         TEXT NOT NULL UNIQUE,
			caller            TEXT NOT NULL,
			question          TEXT NOT NULL,
			state             TEXT NOT NULL DEFAULT 'PENDING',
			supervisor_answer TEXT,
			resolution_note   TEXT NOT NULL DEFAULT '',
			room_binding      TEXT,
			created_at        TEXT NOT NULL,
			resolved_at       TEXT,
			CHECK (state IN ('PENDING', 'RESOLVED', 'UNRESOLVED')),
			CHECK ((state = 'PENDING') = (resolved_at IS NULL))
		);

		CREATE TABLE IF NOT EXISTS kb_entries (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			question   TEXT NOT NULL,
			answer     TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_help_requests_state ON help_requests(state);
		CREATE INDEX IF NOT EXISTS idx_kb_entries_question ON kb_entries(question);
	`,
	},
	DriverPostgres: {
		driver: DriverPostgres,
		schema: `
		CREATE TABLE IF NOT EXISTS help_requests (
			id                BIGSERIAL PRIMARY KEY,
			ticket_id         TEXT NOT NULL UNIQUE,
			caller            TEXT NOT NULL,
			question          TEXT NOT NULL,
			state             TEXT NOT NULL DEFAULT 'PENDING',
			supervisor_answer TEXT,
			resolution_note   TEXT NOT NULL DEFAULT '',
			room_binding      TEXT,
			created_at        TEXT NOT NULL,
			resolved_at       TEXT,
			CHECK (state IN ('PENDING', 'RESOLVED', 'UNRESOLVED')),
			CHECK ((state = 'PENDING') = (resolved_at IS NULL))
		);

		CREATE TABLE IF NOT EXISTS kb_entries (
			id         BIGSERIAL PRIMARY KEY,
			question   TEXT NOT NULL,
			answer     TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_help_requests_state ON help_requests(state);
		CREATE INDEX IF NOT EXISTS idx_kb_entries_question ON kb_entries(question);
	`,
	},
}

func lookupDialect(driver string) (dialect, error) {
	d, ok := dialects[driver]
	if !ok {
		return dialect{}, fmt.Errorf("store: unsupported driver %q", driver)
	}
	return d, nil
}

// rebind rewrites ? placeholders into the driver's bind syntax.
func (d dialect) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// sqliteDSN turns a bare file path into a modernc DSN with the pragmas the
// store relies on. DSNs that already carry a query string are left alone.
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}
