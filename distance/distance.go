package distance

import "fmt"

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// NegDot returns the negated dot product of two vectors.
//
// Inner-product similarity is "larger is better"; negating it makes the
// value usable wherever the engine expects "smaller distance is better".
func NegDot(a, b []float32) float32 {
	return -Dot(a, b)
}

// Metric represents the distance metric used for vector comparison.
type Metric int

const (
	// MetricL2 is squared Euclidean distance.
	MetricL2 Metric = iota

	// MetricInnerProduct is dot-product similarity, reported as a negated
	// value so that results still order ascending (smaller is closer).
	MetricInnerProduct
)

func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "L2"
	case MetricInnerProduct:
		return "InnerProduct"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// Func is a function type for distance calculation.
type Func func(a, b []float32) float32

// Provider returns the distance function for the given metric.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricL2:
		return SquaredL2, nil
	case MetricInnerProduct:
		return NegDot, nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}
