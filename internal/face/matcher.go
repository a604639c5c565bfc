// Package face implements nearest-neighbour matching of face descriptors.
package face

import (
	"errors"
	"fmt"
	"math"
)

// DefaultDim is the dimensionality of the browser-side embedding model.
const DefaultDim = 128

// DefaultThreshold is the embedding model's calibrated match distance.
const DefaultThreshold = 0.6

var (
	// ErrInvalidInput is returned when the candidate is not a well-formed descriptor.
	ErrInvalidInput = errors.New("invalid candidate descriptor")
	// ErrNoRegisteredDescriptors is returned when there is nothing to compare against.
	ErrNoRegisteredDescriptors = errors.New("no registered descriptors")
)

// Registered is an enrolled descriptor tagged with its owner.
type Registered struct {
	Owner      string     `json:"owner"`
	Descriptor Descriptor `json:"descriptor"`
}

// Result is the outcome of a comparison. When Accepted is false Owner is
// always empty: a rejected query never learns which identity it was closest to.
type Result struct {
	Accepted  bool
	Owner     string
	Distance  float64
	Threshold float64
}

// Matcher compares a candidate against a registry by Euclidean distance.
// The zero value is not usable; construct with NewMatcher.
type Matcher struct {
	dim       int
	threshold float64
}

// NewMatcher builds a matcher for descriptors of length dim.
func NewMatcher(dim int, threshold float64) (Matcher, error) {
	if dim <= 0 {
		return Matcher{}, fmt.Errorf("descriptor dimension must be positive, got %d", dim)
	}
	if threshold <= 0 || math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return Matcher{}, fmt.Errorf("match threshold must be a positive number, got %v", threshold)
	}
	return Matcher{dim: dim, threshold: threshold}, nil
}

// Dim returns the expected descriptor length.
func (m Matcher) Dim() int { return m.dim }

// Threshold returns the acceptance distance.
func (m Matcher) Threshold() float64 { return m.threshold }

// Validate checks a descriptor against the configured dimensionality.
func (m Matcher) Validate(d Descriptor) error {
	if len(d) != m.dim {
		return fmt.Errorf("%w: expected %d values, got %d", ErrInvalidInput, m.dim, len(d))
	}
	if !d.Finite() {
		return fmt.Errorf("%w: descriptor contains non-finite values", ErrInvalidInput)
	}
	return nil
}

// Match scans the registry in order and keeps the first entry with the
// strictly smallest distance.
func (m Matcher) Match(candidate Descriptor, registry []Registered) (Result, error) {
	if err := m.Validate(candidate); err != nil {
		return Result{}, err
	}
	if len(registry) == 0 {
		return Result{}, ErrNoRegisteredDescriptors
	}

	best := -1
	lowest := math.Inf(1)
	for i := range registry {
		d := EuclideanDistance(candidate, registry[i].Descriptor)
		if d < lowest {
			lowest = d
			best = i
		}
	}

	if best >= 0 && lowest <= m.threshold {
		return Result{
			Accepted:  true,
			Owner:     registry[best].Owner,
			Distance:  lowest,
			Threshold: m.threshold,
		}, nil
	}
	return Result{Distance: lowest, Threshold: m.threshold}, nil
}
