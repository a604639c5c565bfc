package face

import "math"

// Descriptor is a face embedding produced by the external extractor.
type Descriptor []float32

// EuclideanDistance returns the L2 distance between two descriptors.
// Descriptors of different length are never comparable and yield +Inf,
// so a corrupt stored row can never be selected as the best match.
func EuclideanDistance(a, b Descriptor) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Finite reports whether every component is a finite number.
func (d Descriptor) Finite() bool {
	for _, v := range d {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Clone returns a copy that does not share the backing array.
func (d Descriptor) Clone() Descriptor {
	if d == nil {
		return nil
	}
	out := make(Descriptor, len(d))
	copy(out, d)
	return out
}
