package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"classattend/internal/face"
	"classattend/internal/identity"
)

const uniqueViolation = "23505"

const identityColumns = `uid, email, full_name, role, COALESCE(student_id, ''), COALESCE(faculty_id, ''), descriptor, enrolled_at, created_at`

func scanIdentity(row interface{ Scan(...any) error }) (identity.Identity, error) {
	var (
		id   identity.Identity
		role string
		vec  pgvector.Vector
	)
	if err := row.Scan(&id.UID, &id.Email, &id.FullName, &role, &id.StudentID, &id.FacultyID, &vec, &id.EnrolledAt, &id.CreatedAt); err != nil {
		return identity.Identity{}, err
	}
	id.Role = identity.Role(role)
	id.Descriptor = face.Descriptor(vec.Slice())
	id.EnrolledAt = id.EnrolledAt.UTC()
	id.CreatedAt = id.CreatedAt.UTC()
	return id, nil
}

// CreateIdentity inserts a new identity.
func (s *Store) CreateIdentity(ctx context.Context, id identity.Identity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identities (uid, email, full_name, role, student_id, faculty_id, descriptor, enrolled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, id.UID, id.Email, id.FullName, string(id.Role), nullString(id.StudentID), nullString(id.FacultyID),
		pgvector.NewVector([]float32(id.Descriptor)), id.EnrolledAt, id.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == "identities_pkey" {
				return identity.ErrAlreadyEnrolled
			}
			return identity.ErrSecondaryIDTaken
		}
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

// GetIdentity returns identity.ErrNotFound when uid is unknown.
func (s *Store) GetIdentity(ctx context.Context, uid string) (*identity.Identity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE uid = $1`, uid)
	id, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query identity: %w", err)
	}
	return &id, nil
}

// ReplaceDescriptor overwrites the descriptor of an existing identity.
func (s *Store) ReplaceDescriptor(ctx context.Context, uid string, d face.Descriptor, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE identities SET descriptor = $2, enrolled_at = $3 WHERE uid = $1
	`, uid, pgvector.NewVector([]float32(d)), at)
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
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+identityColumns+` FROM identities WHERE role = $1 ORDER BY full_name, uid
	`, string(role))
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var out []identity.Identity
	for rows.Next() {
		id, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListDescriptors returns every enrolled descriptor in enrollment order.
func (s *Store) ListDescriptors(ctx context.Context) ([]face.Registered, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uid, descriptor FROM identities ORDER BY enrolled_at, uid`)
	if err != nil {
		return nil, fmt.Errorf("query descriptors: %w", err)
	}
	defer rows.Close()

	var out []face.Registered
	for rows.Next() {
		var (
			uid string
			vec pgvector.Vector
		)
		if err := rows.Scan(&uid, &vec); err != nil {
			return nil, fmt.Errorf("scan descriptor: %w", err)
		}
		out = append(out, face.Registered{Owner: uid, Descriptor: face.Descriptor(vec.Slice())})
	}
	return out, rows.Err()
}
