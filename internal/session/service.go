package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository persists sessions.
type Repository interface {
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, facultyID string) ([]Session, error)
}

// CreateRequest carries either absolute RFC 3339 instants in StartTime and
// EndTime, or a Date plus HH:MM clock times read in the service location.
type CreateRequest struct {
	Subject   string
	FacultyID string
	Date      string
	StartTime string
	EndTime   string
	Latitude  *float64
	Longitude *float64
}

// Service creates and reads sessions.
type Service struct {
	repo Repository
	loc  *time.Location
	now  func() time.Time
}

// NewService creates a service. loc is the zone wall-clock input is read in;
// nil means UTC.
func NewService(repo Repository, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, loc: loc, now: func() time.Time { return time.Now().UTC() }}
}

// ParseWindow converts request times into absolute instants.
func ParseWindow(date, start, end string, loc *time.Location) (time.Time, time.Time, error) {
	date, start, end = strings.TrimSpace(date), strings.TrimSpace(start), strings.TrimSpace(end)
	if date == "" {
		s, err := time.Parse(time.RFC3339Nano, start)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: startTime must be RFC 3339 when no date is given", ErrInvalid)
		}
		e, err := time.Parse(time.RFC3339Nano, end)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: endTime must be RFC 3339 when no date is given", ErrInvalid)
		}
		return s.UTC(), e.UTC(), nil
	}

	s, err := time.ParseInLocation("2006-01-02 15:04", date+" "+start, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: date/startTime must be YYYY-MM-DD and HH:MM", ErrInvalid)
	}
	e, err := time.ParseInLocation("2006-01-02 15:04", date+" "+end, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: date/endTime must be YYYY-MM-DD and HH:MM", ErrInvalid)
	}
	return s.UTC(), e.UTC(), nil
}

// Create validates and stores a new session.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Session, error) {
	start, end, err := ParseWindow(req.Date, req.StartTime, req.EndTime, s.loc)
	if err != nil {
		return Session{}, err
	}
	sess := Session{
		ID:        uuid.NewString(),
		Subject:   strings.TrimSpace(req.Subject),
		FacultyID: req.FacultyID,
		Start:     start,
		End:       end,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		CreatedAt: s.now(),
	}
	if err := sess.Validate(); err != nil {
		return Session{}, err
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Get returns a session or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	sess, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNotFound
	}
	return sess, nil
}

// List returns sessions, optionally filtered by owner.
func (s *Service) List(ctx context.Context, facultyID string) ([]Session, error) {
	return s.repo.ListSessions(ctx, strings.TrimSpace(facultyID))
}
