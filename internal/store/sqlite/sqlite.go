// Package sqlite is a single-file backend for development and small
// deployments. It implements the same contracts as the Postgres store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"classattend/internal/attendance"
	"classattend/internal/face"
	"classattend/internal/identity"
	"classattend/internal/session"
)

const schemaVersion = "sqlite_001_init"

const schema = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version     TEXT PRIMARY KEY,
	applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS identities (
	uid          TEXT PRIMARY KEY,
	email        TEXT NOT NULL DEFAULT '',
	full_name    TEXT NOT NULL,
	role         TEXT NOT NULL CHECK (role IN ('student', 'teacher')),
	student_id   TEXT UNIQUE,
	faculty_id   TEXT UNIQUE,
	descriptor   TEXT NOT NULL,
	enrolled_at  DATETIME NOT NULL,
	created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	subject     TEXT NOT NULL,
	faculty_id  TEXT NOT NULL,
	start_time  DATETIME NOT NULL,
	end_time    DATETIME NOT NULL,
	latitude    REAL,
	longitude   REAL,
	created_at  DATETIME NOT NULL,
	CHECK (end_time >= start_time)
);

CREATE INDEX IF NOT EXISTS idx_sessions_faculty ON sessions(faculty_id, start_time);

CREATE TABLE IF NOT EXISTS attendance_records (
	session_id   TEXT NOT NULL REFERENCES sessions(id),
	student_uid  TEXT NOT NULL REFERENCES identities(uid),
	status       TEXT NOT NULL DEFAULT 'absent' CHECK (status IN ('present', 'absent')),
	marked_at    DATETIME,
	PRIMARY KEY (session_id, student_uid)
);

CREATE INDEX IF NOT EXISTS idx_attendance_student ON attendance_records(student_uid);

CREATE TABLE IF NOT EXISTS attendance_events (
	id           TEXT PRIMARY KEY,
	type         TEXT NOT NULL,
	session_id   TEXT NOT NULL,
	subject      TEXT NOT NULL,
	student_uid  TEXT NOT NULL,
	distance     REAL NOT NULL,
	occurred_at  DATETIME NOT NULL,
	recorded_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_attendance_events_session ON attendance_events(session_id, occurred_at);
`

// Store is a SQLite-backed store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database file and applies the schema.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	s := &Store{db: db}
	if _, err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Migrate applies the schema. It reports the version when newly applied.
func (s *Store) Migrate(ctx context.Context) ([]string, error) {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO schema_migrations (version) VALUES (?)`, schemaVersion)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return []string{schemaVersion}, nil
	}
	return nil, nil
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// -------- Identities --------

const identityColumns = `uid, email, full_name, role, COALESCE(student_id, ''), COALESCE(faculty_id, ''), descriptor, enrolled_at, created_at`

func scanIdentity(row interface{ Scan(...any) error }) (identity.Identity, error) {
	var (
		id   identity.Identity
		role string
		raw  string
	)
	if err := row.Scan(&id.UID, &id.Email, &id.FullName, &role, &id.StudentID, &id.FacultyID, &raw, &id.EnrolledAt, &id.CreatedAt); err != nil {
		return identity.Identity{}, err
	}
	if err := json.Unmarshal([]byte(raw), &id.Descriptor); err != nil {
		return identity.Identity{}, fmt.Errorf("decode descriptor for %s: %w", id.UID, err)
	}
	id.Role = identity.Role(role)
	id.EnrolledAt, id.CreatedAt = id.EnrolledAt.UTC(), id.CreatedAt.UTC()
	return id, nil
}

// CreateIdentity inserts a new identity.
func (s *Store) CreateIdentity(ctx context.Context, id identity.Identity) error {
	raw, err := json.Marshal(id.Descriptor)
	if err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO identities (uid, email, full_name, role, student_id, faculty_id, descriptor, enrolled_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.UID, id.Email, id.FullName, string(id.Role), nullString(id.StudentID), nullString(id.FacultyID),
		string(raw), id.EnrolledAt.UTC(), id.CreatedAt.UTC(),
	)
	if err != nil {
		var sqlErr sqlite3.Error
		if errors.As(err, &sqlErr) {
			switch sqlErr.ExtendedCode {
			case sqlite3.ErrConstraintPrimaryKey:
				return identity.ErrAlreadyEnrolled
			case sqlite3.ErrConstraintUnique:
				return identity.ErrSecondaryIDTaken
			}
		}
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

// GetIdentity returns identity.ErrNotFound when uid is unknown.
func (s *Store) GetIdentity(ctx context.Context, uid string) (*identity.Identity, error) {
	id, err := scanIdentity(s.db.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE uid = ?`, uid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// ReplaceDescriptor overwrites the descriptor of an existing identity.
func (s *Store) ReplaceDescriptor(ctx context.Context, uid string, d face.Descriptor, at time.Time) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE identities SET descriptor = ?, enrolled_at = ? WHERE uid = ?`, string(raw), at.UTC(), uid)
	if err != nil {
		return fmt.Errorf("update descriptor: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return identity.ErrNotFound
	}
	return nil
}

// ListIdentities returns identities of a role ordered by name.
func (s *Store) ListIdentities(ctx context.Context, role identity.Role) ([]identity.Identity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE role = ? ORDER BY full_name, uid`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []identity.Identity
	for rows.Next() {
		id, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListDescriptors returns every enrolled descriptor in enrollment order.
func (s *Store) ListDescriptors(ctx context.Context) ([]face.Registered, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uid, descriptor FROM identities ORDER BY enrolled_at, uid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []face.Registered
	for rows.Next() {
		var (
			r   face.Registered
			raw string
		)
		if err := rows.Scan(&r.Owner, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &r.Descriptor); err != nil {
			return nil, fmt.Errorf("decode descriptor for %s: %w", r.Owner, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// -------- Sessions --------

const sessionColumns = `id, subject, faculty_id, start_time, end_time, latitude, longitude, created_at`

func scanSession(row interface{ Scan(...any) error }) (session.Session, error) {
	var (
		s        session.Session
		lat, lng sql.NullFloat64
	)
	if err := row.Scan(&s.ID, &s.Subject, &s.FacultyID, &s.Start, &s.End, &lat, &lng, &s.CreatedAt); err != nil {
		return session.Session{}, err
	}
	s.Start, s.End, s.CreatedAt = s.Start.UTC(), s.End.UTC(), s.CreatedAt.UTC()
	s.Latitude, s.Longitude = floatPtr(lat), floatPtr(lng)
	return s, nil
}

// CreateSession inserts a session.
func (s *Store) CreateSession(ctx context.Context, sess session.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, subject, faculty_id, start_time, end_time, latitude, longitude, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Subject, sess.FacultyID, sess.Start.UTC(), sess.End.UTC(),
		nullFloat(sess.Latitude), nullFloat(sess.Longitude), sess.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession returns session.ErrNotFound for unknown or malformed ids.
func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, session.ErrNotFound
	}
	sess, err := scanSession(s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListSessions returns sessions newest first, optionally for one faculty id.
func (s *Store) ListSessions(ctx context.Context, facultyID string) ([]session.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	var args []any
	if facultyID != "" {
		query += ` WHERE faculty_id = ?`
		args = append(args, facultyID)
	}
	query += ` ORDER BY start_time DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// -------- Attendance --------

// UpsertPresent marks a student present, creating the row if needed.
func (s *Store) UpsertPresent(ctx context.Context, sessionID, studentUID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attendance_records (session_id, student_uid, status, marked_at)
		 VALUES (?, ?, 'present', ?)
		 ON CONFLICT (session_id, student_uid) DO UPDATE SET
			status = 'present',
			marked_at = excluded.marked_at`,
		sessionID, studentUID, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert attendance: %w", err)
	}
	return nil
}

// GetRecord returns nil, nil when no row exists.
func (s *Store) GetRecord(ctx context.Context, sessionID, studentUID string) (*attendance.Record, error) {
	var (
		rec      attendance.Record
		status   string
		markedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, student_uid, status, marked_at FROM attendance_records WHERE session_id = ? AND student_uid = ?`,
		sessionID, studentUID,
	).Scan(&rec.SessionID, &rec.StudentUID, &status, &markedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Status = attendance.Status(status)
	if markedAt.Valid {
		rec.MarkedAt = markedAt.Time.UTC()
	}
	return &rec, nil
}

// SubjectCounts tallies sessions and attended sessions per subject.
func (s *Store) SubjectCounts(ctx context.Context, studentUID string) ([]attendance.SubjectCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.subject,
		        COUNT(*),
		        COALESCE(SUM(CASE WHEN r.status = 'present' THEN 1 ELSE 0 END), 0)
		 FROM sessions s
		 LEFT JOIN attendance_records r ON r.session_id = s.id AND r.student_uid = ?
		 GROUP BY s.subject
		 ORDER BY s.subject`, studentUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []attendance.SubjectCount
	for rows.Next() {
		var c attendance.SubjectCount
		if err := rows.Scan(&c.Subject, &c.Total, &c.Attended); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Roster lists present students of a session in marking order.
func (s *Store) Roster(ctx context.Context, sessionID string) ([]attendance.RosterEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.student_uid, i.full_name, COALESCE(i.student_id, ''), r.marked_at
		 FROM attendance_records r
		 JOIN identities i ON i.uid = r.student_uid
		 WHERE r.session_id = ? AND r.status = 'present'
		 ORDER BY r.marked_at, r.student_uid`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []attendance.RosterEntry
	for rows.Next() {
		var e attendance.RosterEntry
		if err := rows.Scan(&e.StudentUID, &e.FullName, &e.StudentID, &e.MarkedAt); err != nil {
			return nil, err
		}
		e.MarkedAt = e.MarkedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// -------- Events --------

// AppendEvent records an event once; replays of the same id are ignored.
func (s *Store) AppendEvent(ctx context.Context, evt attendance.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO attendance_events (id, type, session_id, subject, student_uid, distance, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		evt.ID, evt.Type, evt.SessionID, evt.Subject, evt.StudentUID, evt.Distance, evt.OccurredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListEvents returns the most recent events, optionally for one session.
func (s *Store) ListEvents(ctx context.Context, sessionID string, limit int) ([]attendance.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, type, session_id, subject, student_uid, distance, occurred_at FROM attendance_events`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY occurred_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []attendance.Event
	for rows.Next() {
		var e attendance.Event
		if err := rows.Scan(&e.ID, &e.Type, &e.SessionID, &e.Subject, &e.StudentUID, &e.Distance, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.OccurredAt = e.OccurredAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
