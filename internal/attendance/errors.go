package attendance

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidRequest covers a malformed descriptor or a missing session id.
	ErrInvalidRequest = errors.New("invalid verification request")
	// ErrInvalidDescriptor is an ErrInvalidRequest for a bad candidate descriptor.
	ErrInvalidDescriptor = fmt.Errorf("%w: invalid or missing candidate descriptor", ErrInvalidRequest)
	// ErrMissingSession is an ErrInvalidRequest for an empty session id.
	ErrMissingSession = fmt.Errorf("%w: missing session id", ErrInvalidRequest)
	// ErrSessionNotFound is returned for unknown or malformed session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNoEnrolledUsers is returned when no descriptors are registered.
	ErrNoEnrolledUsers = errors.New("no enrolled users")
)

// OutsideWindowError reports a verification attempted outside [Start, End].
type OutsideWindowError struct {
	Start time.Time
	End   time.Time
	Now   time.Time
}

func (e *OutsideWindowError) Error() string {
	return fmt.Sprintf("attendance window is %s to %s, now %s",
		e.Start.UTC().Format(time.RFC3339), e.End.UTC().Format(time.RFC3339), e.Now.UTC().Format(time.RFC3339))
}

// NotRecognizedError reports that the closest descriptor was beyond the
// threshold. It carries the distance but never the identity.
type NotRecognizedError struct {
	Distance  float64
	Threshold float64
}

func (e *NotRecognizedError) Error() string {
	return fmt.Sprintf("face not recognized: lowest distance %.4f exceeds threshold %.4f", e.Distance, e.Threshold)
}
