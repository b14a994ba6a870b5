package testutil

import (
	"io/fs"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/NickGuerrero/cti-sys/core"
	"github.com/NickGuerrero/cti-sys/fs"
)

// PrepareDB opens an in-memory sqlite database holding the application schema.
// The goose "Up" sections of the embedded migrations are applied as-is, SERIAL aside.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	// every connection to ":memory:" is a new database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	fps, err := fs.Glob(appfs.FS, "migrations/*.sql")
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	for _, fp := range fps {
		raw, err := fs.ReadFile(appfs.FS, fp)
		if err != nil {
			t.Fatalf("PrepareDB(%s) failed: %v", path.Base(fp), err)
		}
		up := string(raw)
		if i := strings.Index(up, "-- +goose Down"); i >= 0 {
			up = up[:i]
		}
		up = strings.ReplaceAll(up, "SERIAL", "INTEGER")
		if _, err = db.Exec(up); err != nil {
			t.Fatalf("PrepareDB(%s) failed: %v", path.Base(fp), err)
		}
	}
	return db
}

// ResetDB empties every table.
func ResetDB(t *testing.T, db *sqlx.DB) {
	t.Helper()
	for _, table := range []string{
		"student_attendance", "attendance", "accelerate_course_progress", "accelerate",
		"canvas_ids", "student_emails", "students",
	} {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			t.Fatalf("ResetDB(%s) failed: %v", table, err)
		}
	}
}

func mustExec(t *testing.T, db *sqlx.DB, query string, args ...interface{}) {
	t.Helper()
	if _, err := db.Exec(db.Rebind(query), args...); err != nil {
		t.Fatalf("%s failed: %v", query, err)
	}
}

// CreateStudent inserts an active student. The first email, if any, is the primary one.
func CreateStudent(t *testing.T, db *sqlx.DB, ctiID int, fname, lname string, emails ...string) {
	t.Helper()
	mustExec(t, db,
		"INSERT INTO students (cti_id, fname, lname, target_year, active) VALUES (?, ?, ?, ?, ?)",
		ctiID, fname, lname, 2026, true)
	for i, email := range emails {
		mustExec(t, db, "INSERT INTO student_emails (email, cti_id, is_primary) VALUES (?, ?, ?)", email, ctiID, i == 0)
	}
}

func DeactivateStudent(t *testing.T, db *sqlx.DB, ctiID int) {
	t.Helper()
	mustExec(t, db, "UPDATE students SET active = ? WHERE cti_id = ?", false, ctiID)
}

// EnrollAccelerate creates the student's accelerate record.
func EnrollAccelerate(t *testing.T, db *sqlx.DB, ctiID int, active bool) {
	t.Helper()
	mustExec(t, db, "INSERT INTO accelerate (cti_id, active) VALUES (?, ?)", ctiID, active)
}

func SetCanvasID(t *testing.T, db *sqlx.DB, ctiID, canvasID int) {
	t.Helper()
	mustExec(t, db, "INSERT INTO canvas_ids (cti_id, canvas_id) VALUES (?, ?)", ctiID, canvasID)
}

// CreateSession inserts a one hour session starting at start.
func CreateSession(t *testing.T, db *sqlx.DB, sessionID int, program string, start time.Time) {
	t.Helper()
	mustExec(t, db,
		"INSERT INTO attendance (session_id, session_start, session_end, program) VALUES (?, ?, ?, ?)",
		sessionID, start.UTC(), start.Add(time.Hour).UTC(), program)
}

func RecordAttendance(t *testing.T, db *sqlx.DB, ctiID, sessionID int, score float64) {
	t.Helper()
	mustExec(t, db,
		"INSERT INTO student_attendance (cti_id, session_id, session_score) VALUES (?, ?, ?)",
		ctiID, sessionID, score)
}

// NopLogger discards everything.
type NopLogger struct{}

var _ core.Logger = NopLogger{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}
