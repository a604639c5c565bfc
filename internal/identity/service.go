package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"classattend/internal/face"
)

// Repository persists identities.
type Repository interface {
	CreateIdentity(ctx context.Context, id Identity) error
	GetIdentity(ctx context.Context, uid string) (*Identity, error)
	ReplaceDescriptor(ctx context.Context, uid string, d face.Descriptor, at time.Time) error
	ListIdentities(ctx context.Context, role Role) ([]Identity, error)
}

// Extractor turns an image into a descriptor. It fails with an error when no
// face is found.
type Extractor interface {
	Embed(ctx context.Context, imageURL string) (face.Descriptor, error)
}

// EnrollRequest is the validated input of an enrollment.
type EnrollRequest struct {
	UID        string
	Email      string
	FullName   string
	Role       Role
	StudentID  string
	FacultyID  string
	Descriptor face.Descriptor
	ImageURL   string
}

// Service coordinates enrollment.
type Service struct {
	repo      Repository
	matcher   face.Matcher
	extractor Extractor
	onChange  []func(ctx context.Context)
	now       func() time.Time
}

// NewService creates a service. extractor may be nil, in which case every
// enrollment must carry a descriptor.
func NewService(repo Repository, matcher face.Matcher, extractor Extractor) *Service {
	return &Service{
		repo:      repo,
		matcher:   matcher,
		extractor: extractor,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// OnChange registers a callback run after any descriptor write.
func (s *Service) OnChange(fn func(ctx context.Context)) {
	s.onChange = append(s.onChange, fn)
}

func (s *Service) changed(ctx context.Context) {
	for _, fn := range s.onChange {
		fn(ctx)
	}
}

func (s *Service) resolveDescriptor(ctx context.Context, d face.Descriptor, imageURL string) (face.Descriptor, error) {
	if len(d) == 0 && strings.TrimSpace(imageURL) != "" {
		if s.extractor == nil {
			return nil, fmt.Errorf("%w: image enrollment is not available", ErrInvalid)
		}
		extracted, err := s.extractor.Embed(ctx, imageURL)
		if err != nil {
			return nil, fmt.Errorf("extract descriptor: %w", err)
		}
		d = extracted
	}
	if len(d) == 0 {
		return nil, fmt.Errorf("%w: face descriptor is required", ErrInvalid)
	}
	if err := s.matcher.Validate(d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return d.Clone(), nil
}

// Enroll registers a new identity with its descriptor.
func (s *Service) Enroll(ctx context.Context, req EnrollRequest) (Identity, error) {
	id := Identity{
		UID:       strings.TrimSpace(req.UID),
		Email:     strings.TrimSpace(req.Email),
		FullName:  strings.TrimSpace(req.FullName),
		Role:      Role(strings.ToLower(strings.TrimSpace(string(req.Role)))),
		StudentID: strings.TrimSpace(req.StudentID),
	}
	if req.FacultyID != "" {
		id.FacultyID = NormalizeFacultyID(req.FacultyID)
	}
	// The form only sends the id matching the chosen role.
	switch id.Role {
	case RoleStudent:
		id.FacultyID = ""
	case RoleTeacher:
		id.StudentID = ""
	}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}

	existing, err := s.repo.GetIdentity(ctx, id.UID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Identity{}, fmt.Errorf("lookup identity: %w", err)
	}
	if existing != nil {
		return Identity{}, ErrAlreadyEnrolled
	}

	d, err := s.resolveDescriptor(ctx, req.Descriptor, req.ImageURL)
	if err != nil {
		return Identity{}, err
	}
	now := s.now()
	id.Descriptor = d
	id.EnrolledAt = now
	id.CreatedAt = now

	if err := s.repo.CreateIdentity(ctx, id); err != nil {
		return Identity{}, err
	}
	log.Printf("enrolled %s as %s", id.UID, id.Role)
	s.changed(ctx)
	return id, nil
}

// ReEnroll replaces the caller's descriptor wholesale.
func (s *Service) ReEnroll(ctx context.Context, uid string, d face.Descriptor, imageURL string) error {
	if _, err := s.Get(ctx, uid); err != nil {
		return err
	}
	resolved, err := s.resolveDescriptor(ctx, d, imageURL)
	if err != nil {
		return err
	}
	if err := s.repo.ReplaceDescriptor(ctx, uid, resolved, s.now()); err != nil {
		return err
	}
	log.Printf("re-enrolled descriptor for %s", uid)
	s.changed(ctx)
	return nil
}

// Get returns the identity for uid or ErrNotFound.
func (s *Service) Get(ctx context.Context, uid string) (*Identity, error) {
	if strings.TrimSpace(uid) == "" {
		return nil, ErrNotFound
	}
	id, err := s.repo.GetIdentity(ctx, uid)
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, ErrNotFound
	}
	return id, nil
}

// Students lists student profiles.
func (s *Service) Students(ctx context.Context) ([]Profile, error) {
	ids, err := s.repo.ListIdentities(ctx, RoleStudent)
	if err != nil {
		return nil, err
	}
	out := make([]Profile, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Profile())
	}
	return out, nil
}
