package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"classattend/internal/session"
)

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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, subject, faculty_id, start_time, end_time, latitude, longitude, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, sess.ID, sess.Subject, sess.FacultyID, sess.Start, sess.End, nullFloat(sess.Latitude), nullFloat(sess.Longitude), sess.CreatedAt)
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
	sess, err := scanSession(s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	return &sess, nil
}

// ListSessions returns sessions newest first, filtered by faculty id when
// one is given.
func (s *Store) ListSessions(ctx context.Context, facultyID string) ([]session.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	var args []any
	if facultyID != "" {
		query += ` WHERE faculty_id = $1`
		args = append(args, facultyID)
	}
	query += ` ORDER BY start_time DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}
