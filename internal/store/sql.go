package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/h1v3-io/frontdesk/pkg/protocol"
)

// timeLayout is fixed-width so TEXT timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const requestColumns = "id, ticket_id, caller, question, state, supervisor_answer, resolution_note, room_binding, created_at, resolved_at"

// SQLStore implements Store over database/sql. SQLite and PostgreSQL are supported.
type SQLStore struct {
	db *sql.DB
	d  dialect
}

// Open connects to the database identified by driver and dsn and runs migrations.
// For SQLite, dsn may be a plain file path.
func Open(driver, dsn string) (*SQLStore, error) {
	d, err := lookupDialect(driver)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	s := &SQLStore{db: db, d: d}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore opens (or creates) a SQLite database at path.
func NewSQLiteStore(path string) (*SQLStore, error) {
	return Open(DriverSQLite, path)
}

func (s *SQLStore) migrate() error {
	if _, err := s.db.Exec(s.d.schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// DB returns the underlying database connection (for testing or direct access).
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) CreateRequest(ctx context.Context, hr *protocol.HelpRequest) error {
	if hr.State == "" {
		hr.State = protocol.StatePending
	}
	if hr.State != protocol.StatePending {
		return fmt.Errorf("store: create request: %w: new requests must be %s", ErrInvalidTransition, protocol.StatePending)
	}
	err := s.db.QueryRowContext(ctx, s.d.rebind(`
		INSERT INTO help_requests (ticket_id, caller, question, state, room_binding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`), hr.TicketID, hr.Caller, hr.Question, string(hr.State), nullString(hr.RoomBinding), formatTime(hr.CreatedAt)).Scan(&hr.ID)
	if err != nil {
		return fmt.Errorf("store: create request: %w", err)
	}
	return nil
}

func (s *SQLStore) GetRequest(ctx context.Context, ticketID string) (*protocol.HelpRequest, error) {
	return getRequest(ctx, s.db, s.d, ticketID)
}

func (s *SQLStore) ListRequests(ctx context.Context, filter Filter) ([]*protocol.HelpRequest, error) {
	where, args := filter.where()
	query := "SELECT " + requestColumns + " FROM help_requests" + where + " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("store: list requests: %w", err)
	}
	defer rows.Close()

	var out []*protocol.HelpRequest
	for rows.Next() {
		hr, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list requests scan: %w", err)
		}
		out = append(out, hr)
	}
	return out, rows.Err()
}

func (s *SQLStore) CountRequests(ctx context.Context, filter Filter) (int, error) {
	where, args := filter.where()
	var n int
	if err := s.db.QueryRowContext(ctx, s.d.rebind("SELECT COUNT(*) FROM help_requests"+where), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count requests: %w", err)
	}
	return n, nil
}

func (s *SQLStore) Resolve(ctx context.Context, ticketID, answer string, at time.Time) (*protocol.HelpRequest, error) {
	var hr *protocol.HelpRequest
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		// The state guard in the WHERE clause is what makes a concurrent
		// timeout and resolution mutually exclusive.
		res, err := tx.ExecContext(ctx, s.d.rebind(`
			UPDATE help_requests SET state = ?, supervisor_answer = ?, resolved_at = ?
			WHERE ticket_id = ? AND state = ?
		`), string(protocol.StateResolved), answer, formatTime(at), ticketID, string(protocol.StatePending))
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			current, err := getRequest(ctx, tx, s.d, ticketID)
			if err != nil {
				return err
			}
			return fmt.Errorf("%w: ticket %s is %s", ErrInvalidTransition, ticketID, current.State)
		}

		hr, err = getRequest(ctx, tx, s.d, ticketID)
		if err != nil {
			return err
		}
		_, err = upsertEntry(ctx, tx, s.d, hr.Question, answer, at)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store: resolve: %w", err)
	}
	return hr, nil
}

func (s *SQLStore) Expire(ctx context.Context, ticketID, note string, at time.Time) (*protocol.HelpRequest, bool, error) {
	var (
		hr      *protocol.HelpRequest
		changed bool
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.d.rebind(`
			UPDATE help_requests SET state = ?, resolution_note = ?, resolved_at = ?
			WHERE ticket_id = ? AND state = ?
		`), string(protocol.StateUnresolved), note, formatTime(at), ticketID, string(protocol.StatePending))
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		changed = n > 0
		hr, err = getRequest(ctx, tx, s.d, ticketID)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("store: expire: %w", err)
	}
	return hr, changed, nil
}

func (s *SQLStore) BindRoom(ctx context.Context, ticketID, room string) (bool, error) {
	var bound bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.d.rebind(`
			UPDATE help_requests SET room_binding = ? WHERE ticket_id = ? AND room_binding IS NULL
		`), room, ticketID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			bound = true
			return nil
		}
		_, err = getRequest(ctx, tx, s.d, ticketID)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("store: bind room: %w", err)
	}
	return bound, nil
}

func (s *SQLStore) ListEntries(ctx context.Context) ([]*protocol.KBEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, question, answer, created_at, updated_at FROM kb_entries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list entries: %w", err)
	}
	defer rows.Close()

	var out []*protocol.KBEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list entries scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) CountEntries(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kb_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count entries: %w", err)
	}
	return n, nil
}

func (s *SQLStore) AddEntry(ctx context.Context, question, answer string, at time.Time) (*protocol.KBEntry, error) {
	e, err := insertEntry(ctx, s.db, s.d, question, answer, at)
	if err != nil {
		return nil, fmt.Errorf("store: add entry: %w", err)
	}
	return e, nil
}

// UpsertEntry matches on the exact question string, while answer lookup
// uses case-insensitive substring containment. A resolved ticket's phrasing
// therefore becomes a literal KB key; this asymmetry is a known quirk and is
// kept deliberately.
func (s *SQLStore) UpsertEntry(ctx context.Context, question, answer string, at time.Time) (*protocol.KBEntry, error) {
	var e *protocol.KBEntry
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		e, err = upsertEntry(ctx, tx, s.d, question, answer, at)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store: upsert entry: %w", err)
	}
	return e, nil
}

func (s *SQLStore) DeleteEntry(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.d.rebind(`DELETE FROM kb_entries WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("store: delete entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: delete entry: kb entry %d: %w", id, ErrNotFound)
	}
	return nil
}

// --- helpers ---

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func getRequest(ctx context.Context, q queryer, d dialect, ticketID string) (*protocol.HelpRequest, error) {
	row := q.QueryRowContext(ctx, d.rebind("SELECT "+requestColumns+" FROM help_requests WHERE ticket_id = ?"), ticketID)
	hr, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ticket %q: %w", ticketID, ErrNotFound)
		}
		return nil, fmt.Errorf("store: get request: %w", err)
	}
	return hr, nil
}

func upsertEntry(ctx context.Context, q queryer, d dialect, question, answer string, at time.Time) (*protocol.KBEntry, error) {
	row := q.QueryRowContext(ctx, d.rebind(`
		SELECT id, question, answer, created_at, updated_at FROM kb_entries WHERE question = ? ORDER BY id LIMIT 1
	`), question)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return insertEntry(ctx, q, d, question, answer, at)
	}
	if err != nil {
		return nil, err
	}

	if _, err := q.ExecContext(ctx, d.rebind(`UPDATE kb_entries SET answer = ?, updated_at = ? WHERE id = ?`),
		answer, formatTime(at), e.ID); err != nil {
		return nil, err
	}
	e.Answer = answer
	updated := at.UTC()
	e.UpdatedAt = &updated
	return e, nil
}

func insertEntry(ctx context.Context, q queryer, d dialect, question, answer string, at time.Time) (*protocol.KBEntry, error) {
	e := &protocol.KBEntry{Question: question, Answer: answer, CreatedAt: at.UTC()}
	err := q.QueryRowContext(ctx, d.rebind(`
		INSERT INTO kb_entries (question, answer, created_at) VALUES (?, ?, ?) RETURNING id
	`), question, answer, formatTime(at)).Scan(&e.ID)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (f Filter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if len(f.States) > 0 {
		marks := make([]string, len(f.States))
		for i, st := range f.States {
			marks[i] = "?"
			args = append(args, string(st))
		}
		clauses = append(clauses, "state IN ("+strings.Join(marks, ", ")+")")
	}
	if f.Caller != "" {
		clauses = append(clauses, "caller = ?")
		args = append(args, f.Caller)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRequest(s scannable) (*protocol.HelpRequest, error) {
	var (
		hr                       protocol.HelpRequest
		state, createdAt         string
		answer, room, resolvedAt sql.NullString
	)
	err := s.Scan(&hr.ID, &hr.TicketID, &hr.Caller, &hr.Question, &state, &answer,
		&hr.ResolutionNote, &room, &createdAt, &resolvedAt)
	if err != nil {
		return nil, err
	}

	hr.State = protocol.RequestState(state)
	hr.CreatedAt = parseTime(createdAt)
	if answer.Valid {
		hr.SupervisorAnswer = &answer.String
	}
	if room.Valid {
		hr.RoomBinding = &room.String
	}
	if resolvedAt.Valid {
		t := parseTime(resolvedAt.String)
		hr.ResolvedAt = &t
	}
	return &hr, nil
}

func scanEntry(s scannable) (*protocol.KBEntry, error) {
	var (
		e         protocol.KBEntry
		createdAt string
		updatedAt sql.NullString
	)
	if err := s.Scan(&e.ID, &e.Question, &e.Answer, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	e.CreatedAt = parseTime(createdAt)
	if updatedAt.Valid {
		t := parseTime(updatedAt.String)
		e.UpdatedAt = &t
	}
	return &e, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
