package ivfgo

import (
	"errors"
	"fmt"

	"github.com/hupe1980/ivfgo/index"
	"github.com/hupe1980/ivfgo/vectorstore"
)

var (
	// ErrNotFound is returned when a collection or record is not found.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when a collection with the same name
	// already exists and overwrite was not requested.
	ErrAlreadyExists = errors.New("already exists")

	// ErrIndexNotBuilt is returned when a search requires an index but the
	// collection has not built one yet.
	ErrIndexNotBuilt = errors.New("index not built")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrDuplicateID indicates an insert batch that would duplicate a primary
// key, either against stored rows or within the batch itself.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDuplicateID struct {
	ID    int64
	cause error
}

func (e *ErrDuplicateID) Error() string {
	return fmt.Sprintf("duplicate id: %d", e.ID)
}

func (e *ErrDuplicateID) Unwrap() error { return e.cause }

// ErrInvalidParameter indicates an out-of-range tuning parameter such as
// nlist, nprobe or maxIterations.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrInvalidParameter struct {
	Name  string
	Value int
	cause error
}

func (e *ErrInvalidParameter) Error() string {
	return fmt.Sprintf("invalid parameter %s: %d", e.Name, e.Value)
}

func (e *ErrInvalidParameter) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var dup *vectorstore.ErrDuplicateID
	if errors.As(err, &dup) {
		return &ErrDuplicateID{ID: dup.ID, cause: err}
	}

	var dm *index.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}

	var ip *index.ErrInvalidParameter
	if errors.As(err, &ip) {
		return &ErrInvalidParameter{Name: ip.Name, Value: ip.Value, cause: err}
	}

	if errors.Is(err, index.ErrInvalidK) {
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	}
	if errors.Is(err, index.ErrNotBuilt) {
		return fmt.Errorf("%w: %w", ErrIndexNotBuilt, err)
	}

	return err
}
