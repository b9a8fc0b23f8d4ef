// Package index provides shared types and error contracts for vector search
// indexes.
package index

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrNotBuilt is returned when a search is attempted before any
	// successful index build.
	ErrNotBuilt = errors.New("index not built")

	// ErrNoVectors is returned when an index build is attempted on a store
	// with no flushed vectors.
	ErrNoVectors = errors.New("no flushed vectors to index")
)

// ErrDimensionMismatch is a named error type for dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrInvalidParameter is a named error type for out-of-range index or
// search parameters (nlist, nprobe, max iterations).
type ErrInvalidParameter struct {
	Name  string
	Value int
}

func (e *ErrInvalidParameter) Error() string {
	return fmt.Sprintf("invalid parameter %s: %d", e.Name, e.Value)
}

// SearchResult represents a search result.
type SearchResult struct {
	// ID is the primary key of the matched record.
	ID int64

	// Distance is the distance between the query vector and the result
	// vector. For MetricInnerProduct this is the negated dot product.
	Distance float32
}
