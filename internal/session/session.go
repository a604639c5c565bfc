// Package session models scheduled class meetings and their time windows.
package session

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrInvalid  = errors.New("invalid session")
)

// Session is one scheduled class meeting. Start and End are absolute
// instants; they are stored and emitted in UTC.
type Session struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	FacultyID string    `json:"facultyId"`
	Start     time.Time `json:"startTime"`
	End       time.Time `json:"endTime"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Contains reports whether now lies within [Start, End], bounds inclusive.
// Comparison is on instants, so the location attached to any argument is
// irrelevant.
func (s Session) Contains(now time.Time) bool {
	return !now.Before(s.Start) && !now.After(s.End)
}

// Validate checks the creation invariants.
func (s Session) Validate() error {
	if strings.TrimSpace(s.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalid)
	}
	if strings.TrimSpace(s.FacultyID) == "" {
		return fmt.Errorf("%w: faculty id is required", ErrInvalid)
	}
	if s.Start.IsZero() || s.End.IsZero() {
		return fmt.Errorf("%w: start and end time are required", ErrInvalid)
	}
	if s.End.Before(s.Start) {
		return fmt.Errorf("%w: end time is before start time", ErrInvalid)
	}
	if s.Latitude != nil && (math.IsNaN(*s.Latitude) || *s.Latitude < -90 || *s.Latitude > 90) {
		return fmt.Errorf("%w: latitude out of range", ErrInvalid)
	}
	if s.Longitude != nil && (math.IsNaN(*s.Longitude) || *s.Longitude < -180 || *s.Longitude > 180) {
		return fmt.Errorf("%w: longitude out of range", ErrInvalid)
	}
	return nil
}
