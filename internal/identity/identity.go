// Package identity holds enrolled users and their face descriptors.
package identity

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"classattend/internal/face"
)

// Role is the mutually exclusive role fixed at enrollment.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher
}

var (
	ErrNotFound         = errors.New("identity not found")
	ErrAlreadyEnrolled  = errors.New("identity already enrolled")
	ErrSecondaryIDTaken = errors.New("student or faculty id already in use")
	ErrInvalid          = errors.New("invalid identity")
)

var (
	studentIDPattern = regexp.MustCompile(`^[0-9]{6}$`)
	facultyIDPattern = regexp.MustCompile(`^FAC[0-9]{4}$`)
)

// Identity is an enrolled person. Descriptor never leaves the service; use
// Profile for anything returned to a client.
type Identity struct {
	UID        string
	Email      string
	FullName   string
	Role       Role
	StudentID  string
	FacultyID  string
	Descriptor face.Descriptor
	EnrolledAt time.Time
	CreatedAt  time.Time
}

// Profile is the public view of an identity.
type Profile struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	FullName  string `json:"fullName"`
	Role      Role   `json:"role"`
	StudentID string `json:"studentId,omitempty"`
	FacultyID string `json:"facultyId,omitempty"`
}

// Profile strips the descriptor.
func (i Identity) Profile() Profile {
	return Profile{
		ID:        i.UID,
		Email:     i.Email,
		FullName:  i.FullName,
		Role:      i.Role,
		StudentID: i.StudentID,
		FacultyID: i.FacultyID,
	}
}

// SecondaryID returns the role-scoped id.
func (i Identity) SecondaryID() string {
	if i.Role == RoleTeacher {
		return i.FacultyID
	}
	return i.StudentID
}

// NormalizeFacultyID upper-cases and trims a faculty id the way the
// registration form does before it is validated.
func NormalizeFacultyID(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Validate checks the role invariants. The descriptor is validated separately
// because its length depends on the configured embedding model.
func (i Identity) Validate() error {
	if strings.TrimSpace(i.UID) == "" {
		return fmt.Errorf("%w: uid is required", ErrInvalid)
	}
	if strings.TrimSpace(i.FullName) == "" {
		return fmt.Errorf("%w: full name is required", ErrInvalid)
	}
	if _, err := mail.ParseAddress(i.Email); err != nil {
		return fmt.Errorf("%w: email %q is not valid", ErrInvalid, i.Email)
	}

	switch i.Role {
	case RoleStudent:
		if !studentIDPattern.MatchString(i.StudentID) {
			return fmt.Errorf("%w: student id must be 6 digits", ErrInvalid)
		}
		if i.FacultyID != "" {
			return fmt.Errorf("%w: a student cannot hold a faculty id", ErrInvalid)
		}
	case RoleTeacher:
		if !facultyIDPattern.MatchString(i.FacultyID) {
			return fmt.Errorf("%w: faculty id must look like FAC0000", ErrInvalid)
		}
		if i.StudentID != "" {
			return fmt.Errorf("%w: a teacher cannot hold a student id", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: role must be student or teacher", ErrInvalid)
	}
	return nil
}
