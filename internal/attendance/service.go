// Package attendance verifies faces against a session and keeps the ledger.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"classattend/internal/face"
	"classattend/internal/identity"
	"classattend/internal/session"
)

// Outcome labels for verification observations.
const (
	OutcomeMarked          = "marked"
	OutcomeInvalidRequest  = "invalid_request"
	OutcomeSessionNotFound = "session_not_found"
	OutcomeOutsideWindow   = "outside_window"
	OutcomeNoEnrolledUsers = "no_enrolled_users"
	OutcomeNotRecognized   = "not_recognized"
	OutcomeError           = "error"
)

// Registry yields the descriptors a query is matched against.
type Registry interface {
	Candidates(ctx context.Context, query face.Descriptor) ([]face.Registered, error)
}

// SessionSource looks up sessions. It returns session.ErrNotFound when the
// id is unknown or malformed.
type SessionSource interface {
	GetSession(ctx context.Context, id string) (*session.Session, error)
}

// IdentitySource looks up enrolled identities.
type IdentitySource interface {
	GetIdentity(ctx context.Context, uid string) (*identity.Identity, error)
}

// Observer receives one call per finished verification. distance is only
// meaningful for marked and not_recognized outcomes.
type Observer interface {
	ObserveVerification(outcome string, distance float64)
}

// VerifyRequest is the input of a verification.
type VerifyRequest struct {
	Descriptor face.Descriptor
	SessionID  string
}

// VerifyResult is returned when attendance was recorded.
type VerifyResult struct {
	User     identity.Profile
	Session  session.Session
	Distance float64
	MarkedAt time.Time
}

// IdentifyResult is the identity a descriptor resolved to.
type IdentifyResult struct {
	User     identity.Profile
	Distance float64
}

// Service runs the verification workflow and serves ledger reads.
type Service struct {
	ledger     Ledger
	sessions   SessionSource
	identities IdentitySource
	registry   Registry
	matcher    face.Matcher
	publisher  Publisher
	observer   Observer
	now        func() time.Time
}

// NewService wires the workflow.
func NewService(ledger Ledger, sessions SessionSource, identities IdentitySource, registry Registry, matcher face.Matcher) *Service {
	return &Service{
		ledger:     ledger,
		sessions:   sessions,
		identities: identities,
		registry:   registry,
		matcher:    matcher,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithPublisher sets the destination of attendance.marked events.
func (s *Service) WithPublisher(p Publisher) *Service {
	s.publisher = p
	return s
}

// WithObserver sets the verification observer.
func (s *Service) WithObserver(o Observer) *Service {
	s.observer = o
	return s
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Threshold returns the matcher's acceptance distance.
func (s *Service) Threshold() float64 { return s.matcher.Threshold() }

func (s *Service) observe(outcome string, distance float64) {
	if s.observer != nil {
		s.observer.ObserveVerification(outcome, distance)
	}
}

// Verify matches a query descriptor and, when the session is open and the
// face is recognized, marks the matched identity present.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	res, err := s.verify(ctx, req)
	var (
		outside  *OutsideWindowError
		rejected *NotRecognizedError
	)
	switch {
	case err == nil:
		s.observe(OutcomeMarked, res.Distance)
	case errors.Is(err, ErrInvalidRequest):
		s.observe(OutcomeInvalidRequest, 0)
	case errors.Is(err, ErrSessionNotFound):
		s.observe(OutcomeSessionNotFound, 0)
	case errors.As(err, &outside):
		s.observe(OutcomeOutsideWindow, 0)
	case errors.Is(err, ErrNoEnrolledUsers):
		s.observe(OutcomeNoEnrolledUsers, 0)
	case errors.As(err, &rejected):
		s.observe(OutcomeNotRecognized, rejected.Distance)
	default:
		s.observe(OutcomeError, 0)
	}
	return res, err
}

func (s *Service) verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	if err := s.matcher.Validate(req.Descriptor); err != nil {
		return VerifyResult{}, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return VerifyResult{}, ErrMissingSession
	}

	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return VerifyResult{}, ErrSessionNotFound
		}
		return VerifyResult{}, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return VerifyResult{}, ErrSessionNotFound
	}

	now := s.now()
	if !sess.Contains(now) {
		return VerifyResult{}, &OutsideWindowError{Start: sess.Start, End: sess.End, Now: now}
	}

	who, match, err := s.recognize(ctx, req.Descriptor)
	if err != nil {
		return VerifyResult{}, err
	}

	if err := s.ledger.UpsertPresent(ctx, sess.ID, who.UID, now); err != nil {
		return VerifyResult{}, fmt.Errorf("mark attendance: %w", err)
	}
	log.Printf("marked %s present for session %s (%s), distance %.4f", who.UID, sess.ID, sess.Subject, match.Distance)

	s.publish(ctx, Event{
		ID:         uuid.NewString(),
		Type:       EventMarked,
		SessionID:  sess.ID,
		Subject:    sess.Subject,
		StudentUID: who.UID,
		Distance:   match.Distance,
		OccurredAt: now,
	})

	return VerifyResult{
		User:     who.Profile(),
		Session:  *sess,
		Distance: match.Distance,
		MarkedAt: now,
	}, nil
}

// recognize resolves a descriptor to the closest enrolled identity within
// the threshold.
func (s *Service) recognize(ctx context.Context, d face.Descriptor) (*identity.Identity, face.Result, error) {
	candidates, err := s.registry.Candidates(ctx, d)
	if err != nil {
		return nil, face.Result{}, fmt.Errorf("load descriptors: %w", err)
	}
	match, err := s.matcher.Match(d, candidates)
	if err != nil {
		if errors.Is(err, face.ErrNoRegisteredDescriptors) {
			return nil, face.Result{}, ErrNoEnrolledUsers
		}
		return nil, face.Result{}, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	if !match.Accepted {
		return nil, match, &NotRecognizedError{Distance: match.Distance, Threshold: match.Threshold}
	}

	who, err := s.identities.GetIdentity(ctx, match.Owner)
	if err != nil {
		return nil, match, fmt.Errorf("load matched identity %s: %w", match.Owner, err)
	}
	return who, match, nil
}

// Identify resolves a descriptor to an enrolled identity without touching
// the ledger.
func (s *Service) Identify(ctx context.Context, d face.Descriptor) (IdentifyResult, error) {
	if err := s.matcher.Validate(d); err != nil {
		return IdentifyResult{}, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	who, match, err := s.recognize(ctx, d)
	if err != nil {
		return IdentifyResult{}, err
	}
	log.Printf("identified %s, distance %.4f", who.UID, match.Distance)
	return IdentifyResult{User: who.Profile(), Distance: match.Distance}, nil
}

func (s *Service) publish(ctx context.Context, evt Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		log.Printf("publish %s for %s failed: %v", evt.Type, evt.StudentUID, err)
	}
}

// Status returns the record for a student in a session; a missing row is
// reported as absent.
func (s *Service) Status(ctx context.Context, sessionID, studentUID string) (Record, error) {
	rec, err := s.ledger.GetRecord(ctx, sessionID, studentUID)
	if err != nil {
		return Record{}, err
	}
	if rec == nil {
		return Record{SessionID: sessionID, StudentUID: studentUID, Status: StatusAbsent}, nil
	}
	return *rec, nil
}

// Summary returns per-subject attendance for a student.
func (s *Service) Summary(ctx context.Context, studentUID string) ([]Summary, error) {
	counts, err := s.ledger.SubjectCounts(ctx, studentUID)
	if err != nil {
		return nil, fmt.Errorf("summarize %s: %w", studentUID, err)
	}
	return Summarize(counts), nil
}

// Roster lists the present students of a session.
func (s *Service) Roster(ctx context.Context, sessionID string) ([]RosterEntry, error) {
	if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return s.ledger.Roster(ctx, sessionID)
}
