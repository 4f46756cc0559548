package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported database/sql drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// SQLSink stores events in an audit_events table. Rows are ordered per
// session by the turn column.
type SQLSink struct {
	db     *sql.DB
	driver string
	owned  bool
}

var schemaDDL = map[string][]string{
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS audit_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			session_id TEXT NOT NULL,
			turn INTEGER NOT NULL,
			policy_id TEXT NOT NULL DEFAULT '',
			policy_hash TEXT NOT NULL DEFAULT '',
			intent TEXT NOT NULL DEFAULT '',
			clamped BOOLEAN NOT NULL DEFAULT 0,
			blocked BOOLEAN NOT NULL DEFAULT 0,
			done BOOLEAN NOT NULL DEFAULT 0,
			approval TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_session ON audit_events (session_id, turn)`,
	},
	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS audit_events (
			id BIGSERIAL PRIMARY KEY,
			ts TEXT NOT NULL,
			session_id TEXT NOT NULL,
			turn INTEGER NOT NULL,
			policy_id TEXT NOT NULL DEFAULT '',
			policy_hash TEXT NOT NULL DEFAULT '',
			intent TEXT NOT NULL DEFAULT '',
			clamped BOOLEAN NOT NULL DEFAULT FALSE,
			blocked BOOLEAN NOT NULL DEFAULT FALSE,
			done BOOLEAN NOT NULL DEFAULT FALSE,
			approval TEXT NOT NULL DEFAULT '',
			payload JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_session ON audit_events (session_id, turn)`,
	},
}

var insertSQL = map[string]string{
	DriverSQLite: `INSERT INTO audit_events
		(ts, session_id, turn, policy_id, policy_hash, intent, clamped, blocked, done, approval, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	DriverPostgres: `INSERT INTO audit_events
		(ts, session_id, turn, policy_id, policy_hash, intent, clamped, blocked, done, approval, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
}

var selectSQL = map[string]string{
	DriverSQLite:   `SELECT payload FROM audit_events WHERE session_id = ? ORDER BY turn, id`,
	DriverPostgres: `SELECT payload FROM audit_events WHERE session_id = $1 ORDER BY turn, id`,
}

// OpenSQL connects to dsn with the given driver and creates the table if needed.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLSink, error) {
	if _, ok := schemaDDL[driver]; !ok {
		return nil, fmt.Errorf("audit: unsupported sql driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// One writer connection avoids SQLITE_BUSY under concurrent sessions.
		db.SetMaxOpenConns(1)
	}
	s, err := NewSQLSink(ctx, db, driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewSQLSink wraps an existing connection pool. The caller keeps ownership of db.
func NewSQLSink(ctx context.Context, db *sql.DB, driver string) (*SQLSink, error) {
	ddl, ok := schemaDDL[driver]
	if !ok {
		return nil, fmt.Errorf("audit: unsupported sql driver %q", driver)
	}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("audit: migrate: %w", err)
		}
	}
	return &SQLSink{db: db, driver: driver}, nil
}

// Append inserts ev in its own transaction.
func (s *SQLSink) Append(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("audit: marshal event: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("audit: begin: %w", err)
	}
	_, err = tx.ExecContext(ctx, insertSQL[s.driver],
		ev.Timestamp, ev.SessionID, ev.Turn, ev.PolicyID, ev.PolicyHash, ev.Intent,
		ev.Clamped, ev.Blocked(), ev.Done, ev.Approval, string(payload),
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("audit: insert event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("audit: commit: %w", err)
	}
	return nil
}

// Session returns the stored events of one session in turn order.
func (s *SQLSink) Session(ctx context.Context, sessionID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, selectSQL[s.driver], sessionID)
	if err != nil {
		return nil, fmt.Errorf("audit: query session: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		var ev Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("audit: decode payload: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: rows: %w", err)
	}
	return events, nil
}

// Close releases the connection pool when the sink opened it.
func (s *SQLSink) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
