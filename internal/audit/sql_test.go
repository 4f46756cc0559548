package audit

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ppiankov/turnguard/internal/guard"
)

func expectMigrate(mock sqlmock.Sqlmock) {
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS audit_events")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS idx_audit_events_session")).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestSQLSinkAppendPostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	expectMigrate(mock)
	s, err := NewSQLSink(context.Background(), db, DriverPostgres)
	if err != nil {
		t.Fatal(err)
	}

	ev := testEvent("eligibility")
	ev.Guards = append(ev.Guards, guard.Result{RuleID: "legal", Action: guard.Block})

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("VALUES ($1, $2, $3")).
		WithArgs(ev.Timestamp, "s-test123", 1, "hr_onboarding", "sha256:abc123", "eligibility",
			false, true, false, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := s.Append(context.Background(), ev); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLSinkInsertFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	expectMigrate(mock)
	s, err := NewSQLSink(context.Background(), db, DriverSQLite)
	if err != nil {
		t.Fatal(err)
	}

	boom := errors.New("disk I/O error")
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_events")).WillReturnError(boom)
	mock.ExpectRollback()

	err = s.Append(context.Background(), testEvent("start"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped insert error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLSinkMigrateFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))
	if _, err := NewSQLSink(context.Background(), db, DriverPostgres); err == nil {
		t.Fatal("expected migrate error")
	}
}

func TestSQLSinkUnsupportedDriver(t *testing.T) {
	if _, err := OpenSQL(context.Background(), "mysql", "dsn"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestSQLiteSinkRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQL(ctx, DriverSQLite, filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer s.Close()

	for turn, intent := range []string{"eligibility", "collect_documents", "goodbye"} {
		ev := testEvent(intent)
		ev.Turn = turn + 1
		if err := s.Append(ctx, ev); err != nil {
			t.Fatalf("append %d: %v", turn, err)
		}
	}
	other := testEvent("out_of_scope")
	other.SessionID = "s-other"
	s.Append(ctx, other)

	events, err := s.Session(ctx, "s-test123")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[2].Intent != "goodbye" || events[0].Guards[0].RuleID != "pii" {
		t.Errorf("unexpected events: %+v", events)
	}
}
