package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"classattend/internal/attendance"
)

// UpsertPresent marks a student present, creating the row if needed. The
// composite primary key makes concurrent calls collapse onto one row.
func (s *Store) UpsertPresent(ctx context.Context, sessionID, studentUID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance_records (session_id, student_uid, status, marked_at)
		VALUES ($1, $2, 'present', $3)
		ON CONFLICT (session_id, student_uid) DO UPDATE SET
			status = 'present',
			marked_at = EXCLUDED.marked_at
	`, sessionID, studentUID, at)
	if err != nil {
		return fmt.Errorf("upsert attendance: %w", err)
	}
	return nil
}

// GetRecord returns nil, nil when no row exists.
func (s *Store) GetRecord(ctx context.Context, sessionID, studentUID string) (*attendance.Record, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, nil
	}
	var (
		rec      attendance.Record
		status   string
		markedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, student_uid, status, marked_at
		FROM attendance_records WHERE session_id = $1 AND student_uid = $2
	`, sessionID, studentUID).Scan(&rec.SessionID, &rec.StudentUID, &status, &markedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query attendance record: %w", err)
	}
	rec.Status = attendance.Status(status)
	if markedAt.Valid {
		rec.MarkedAt = markedAt.Time.UTC()
	}
	return &rec, nil
}

// SubjectCounts tallies, for each subject with sessions, how many sessions
// exist and how many the student was present at.
func (s *Store) SubjectCounts(ctx context.Context, studentUID string) ([]attendance.SubjectCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.subject,
		       COUNT(*) AS total,
		       COUNT(r.student_uid) FILTER (WHERE r.status = 'present') AS attended
		FROM sessions s
		LEFT JOIN attendance_records r ON r.session_id = s.id AND r.student_uid = $1
		GROUP BY s.subject
		ORDER BY s.subject
	`, studentUID)
	if err != nil {
		return nil, fmt.Errorf("query subject counts: %w", err)
	}
	defer rows.Close()

	var out []attendance.SubjectCount
	for rows.Next() {
		var c attendance.SubjectCount
		if err := rows.Scan(&c.Subject, &c.Total, &c.Attended); err != nil {
			return nil, fmt.Errorf("scan subject count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Roster lists present students of a session in marking order.
func (s *Store) Roster(ctx context.Context, sessionID string) ([]attendance.RosterEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.student_uid, i.full_name, COALESCE(i.student_id, ''), r.marked_at
		FROM attendance_records r
		JOIN identities i ON i.uid = r.student_uid
		WHERE r.session_id = $1 AND r.status = 'present'
		ORDER BY r.marked_at, r.student_uid
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query roster: %w", err)
	}
	defer rows.Close()

	var out []attendance.RosterEntry
	for rows.Next() {
		var e attendance.RosterEntry
		if err := rows.Scan(&e.StudentUID, &e.FullName, &e.StudentID, &e.MarkedAt); err != nil {
			return nil, fmt.Errorf("scan roster entry: %w", err)
		}
		e.MarkedAt = e.MarkedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
