package postgres

import (
	"context"
	"fmt"

	"classattend/internal/attendance"
)

// AppendEvent records an event once; replays of the same id are ignored.
func (s *Store) AppendEvent(ctx context.Context, evt attendance.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance_events (id, type, session_id, subject, student_uid, distance, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, evt.ID, evt.Type, evt.SessionID, evt.Subject, evt.StudentUID, evt.Distance, evt.OccurredAt)
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
		query += ` WHERE session_id = $1`
		args = append(args, sessionID)
	}
	query += fmt.Sprintf(` ORDER BY occurred_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []attendance.Event
	for rows.Next() {
		var e attendance.Event
		if err := rows.Scan(&e.ID, &e.Type, &e.SessionID, &e.Subject, &e.StudentUID, &e.Distance, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.OccurredAt = e.OccurredAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
