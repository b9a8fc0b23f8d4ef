// Package vectorstore provides the append-only columnar record store that
// owns the ground-truth data of a collection.
//
// Records are buffered on insert and become visible to readers, clustering,
// and index builds only after Flush. Flushed vectors are stored contiguously
// in a single []float32 slice for cache-friendly batch scanning.
package vectorstore

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/ivfgo/index"
	"github.com/hupe1980/ivfgo/metadata"
)

// ErrDuplicateID is a named error type for primary key collisions.
type ErrDuplicateID struct {
	ID int64
}

func (e *ErrDuplicateID) Error() string {
	return fmt.Sprintf("duplicate id: %d", e.ID)
}

// Record is a single (primary key, metadata, vector) entry.
type Record struct {
	ID     int64
	Fields metadata.Document
	Vector []float32
}

// View is an immutable snapshot of the flushed rows. Index builds and
// searches operate on a View so they never observe a partial flush.
type View struct {
	dim  int
	data []float32
	ids  []int64
	docs []metadata.Document
}

// Rows returns the number of flushed rows in the view.
func (v *View) Rows() int { return len(v.ids) }

// Dimension returns the vector dimensionality.
func (v *View) Dimension() int { return v.dim }

// Vector returns the vector of a row. The slice aliases store memory and
// must be treated as read-only.
func (v *View) Vector(row uint32) []float32 {
	start := int(row) * v.dim
	return v.data[start : start+v.dim : start+v.dim]
}

// Vectors returns all flushed vectors as one contiguous slice (rows * dim).
// The slice aliases store memory and must be treated as read-only.
func (v *View) Vectors() []float32 { return v.data }

// ID returns the primary key of a row.
func (v *View) ID(row uint32) int64 { return v.ids[row] }

// Document returns the metadata document of a row (may be nil).
func (v *View) Document(row uint32) metadata.Document { return v.docs[row] }

// state is the immutable flushed state, swapped wholesale on Flush.
type state struct {
	View
	rowByPK map[int64]uint32
}

// Store is the columnar record store of one collection.
//
// Writes (Insert, Flush) must be serialized by the caller or are serialized
// internally by writeMu; reads are lock-free against the last published
// flush snapshot.
type Store struct {
	dim     int
	writeMu sync.Mutex
	state   atomic.Pointer[state]

	buffered   []Record
	bufferedPK map[int64]struct{}
}

// New creates an empty store for vectors of the given dimension.
func New(dim int) *Store {
	s := &Store{
		dim:        dim,
		bufferedPK: make(map[int64]struct{}),
	}
	s.state.Store(&state{
		View:    View{dim: dim},
		rowByPK: make(map[int64]uint32),
	})
	return s
}

// NewFromRows creates a store whose rows are already flushed. Used when
// loading a snapshot.
func NewFromRows(dim int, ids []int64, vectors []float32, docs []metadata.Document) (*Store, error) {
	if len(vectors) != len(ids)*dim {
		return nil, &index.ErrDimensionMismatch{Expected: len(ids) * dim, Actual: len(vectors)}
	}
	if len(docs) != len(ids) {
		return nil, fmt.Errorf("vectorstore: %d documents for %d rows", len(docs), len(ids))
	}

	rowByPK := make(map[int64]uint32, len(ids))
	for row, id := range ids {
		if _, dup := rowByPK[id]; dup {
			return nil, &ErrDuplicateID{ID: id}
		}
		rowByPK[id] = uint32(row)
	}

	s := New(dim)
	s.state.Store(&state{
		View:    View{dim: dim, data: vectors, ids: ids, docs: docs},
		rowByPK: rowByPK,
	})
	return s, nil
}

// Dimension returns the vector dimensionality of the store.
func (s *Store) Dimension() int { return s.dim }

// Insert buffers records for a later Flush.
//
// The whole batch is validated up front: any dimension mismatch or primary
// key collision (against flushed rows, buffered rows, or within the batch)
// rejects the batch and leaves the store unchanged.
func (s *Store) Insert(records []Record) error {
	if len(records) == 0 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	st := s.state.Load()

	batch := make(map[int64]struct{}, len(records))
	for _, r := range records {
		if len(r.Vector) != s.dim {
			return &index.ErrDimensionMismatch{Expected: s.dim, Actual: len(r.Vector)}
		}
		if _, ok := st.rowByPK[r.ID]; ok {
			return &ErrDuplicateID{ID: r.ID}
		}
		if _, ok := s.bufferedPK[r.ID]; ok {
			return &ErrDuplicateID{ID: r.ID}
		}
		if _, ok := batch[r.ID]; ok {
			return &ErrDuplicateID{ID: r.ID}
		}
		batch[r.ID] = struct{}{}
	}

	for _, r := range records {
		// Copy the vector so later caller mutations cannot leak in.
		vec := make([]float32, s.dim)
		copy(vec, r.Vector)

		var doc metadata.Document
		if len(r.Fields) > 0 {
			doc = make(metadata.Document, len(r.Fields))
			for k, v := range r.Fields {
				doc[k] = v
			}
		}

		s.buffered = append(s.buffered, Record{ID: r.ID, Fields: doc, Vector: vec})
		s.bufferedPK[r.ID] = struct{}{}
	}
	return nil
}

// Flush makes all buffered records visible to readers and returns how many
// rows were published. Flushing with an empty buffer is a no-op.
//
// The new state is built aside and swapped atomically, so concurrent
// readers see either the old or the new flush in full.
func (s *Store) Flush() int {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if len(s.buffered) == 0 {
		return 0
	}

	old := s.state.Load()
	added := len(s.buffered)

	data := make([]float32, len(old.data), len(old.data)+added*s.dim)
	copy(data, old.data)
	ids := make([]int64, len(old.ids), len(old.ids)+added)
	copy(ids, old.ids)
	docs := make([]metadata.Document, len(old.docs), len(old.docs)+added)
	copy(docs, old.docs)

	rowByPK := make(map[int64]uint32, len(old.rowByPK)+added)
	for pk, row := range old.rowByPK {
		rowByPK[pk] = row
	}

	for _, r := range s.buffered {
		row := uint32(len(ids))
		data = append(data, r.Vector...)
		ids = append(ids, r.ID)
		docs = append(docs, r.Fields)
		rowByPK[r.ID] = row
	}

	s.state.Store(&state{
		View:    View{dim: s.dim, data: data, ids: ids, docs: docs},
		rowByPK: rowByPK,
	})

	s.buffered = nil
	s.bufferedPK = make(map[int64]struct{})
	return added
}

// Get returns the flushed record with the given primary key. Buffered
// records are not visible until Flush.
func (s *Store) Get(id int64) (Record, bool) {
	st := s.state.Load()
	row, ok := st.rowByPK[id]
	if !ok {
		return Record{}, false
	}

	vec := make([]float32, s.dim)
	copy(vec, st.Vector(row))

	// Copy the document too, so callers cannot mutate flushed state.
	var doc metadata.Document
	if stored := st.Document(row); len(stored) > 0 {
		doc = make(metadata.Document, len(stored))
		for k, v := range stored {
			doc[k] = v
		}
	}

	return Record{ID: id, Fields: doc, Vector: vec}, true
}

// Count returns the number of flushed records.
func (s *Store) Count() int64 {
	return int64(s.state.Load().Rows())
}

// Pending returns the number of buffered, not yet flushed records.
func (s *Store) Pending() int {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return len(s.buffered)
}

// Snapshot returns the current flushed view.
func (s *Store) Snapshot() *View {
	return &s.state.Load().View
}
