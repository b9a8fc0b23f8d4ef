package metadata

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// Index is an inverted equality-filter index over flushed rows.
//
// For every (field, value) pair it keeps a Roaring Bitmap of the store rows
// carrying that value. Searches intersect bitmaps to prefilter candidates
// without touching documents.
//
// Writes are expected to be serialized by the owning collection; reads may
// run concurrently with each other.
type Index struct {
	mu     sync.RWMutex
	fields map[string]map[string]*roaring.Bitmap
}

// NewIndex creates an empty filter index.
func NewIndex() *Index {
	return &Index{
		fields: make(map[string]map[string]*roaring.Bitmap),
	}
}

// Add indexes the document of a flushed row.
func (idx *Index) Add(row uint32, doc Document) {
	if len(doc) == 0 {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for name, v := range doc {
		values, ok := idx.fields[name]
		if !ok {
			values = make(map[string]*roaring.Bitmap)
			idx.fields[name] = values
		}
		key := v.Key()
		bm, ok := values[key]
		if !ok {
			bm = roaring.New()
			values[key] = bm
		}
		bm.Add(row)
	}
}

// Eq returns a copy of the bitmap of rows where field equals value.
// The result is never nil; missing fields or values yield an empty bitmap.
func (idx *Index) Eq(field string, v Value) *roaring.Bitmap {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	values, ok := idx.fields[field]
	if !ok {
		return roaring.New()
	}
	bm, ok := values[v.Key()]
	if !ok {
		return roaring.New()
	}
	return bm.Clone()
}

// EqAll intersects the row sets of all given conditions. With no conditions
// it returns nil, meaning "no filtering".
func (idx *Index) EqAll(conds []Condition) *roaring.Bitmap {
	if len(conds) == 0 {
		return nil
	}

	out := idx.Eq(conds[0].Field, conds[0].Value)
	for _, c := range conds[1:] {
		if out.IsEmpty() {
			return out
		}
		out.And(idx.Eq(c.Field, c.Value))
	}
	return out
}

// Reset drops all indexed rows.
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.fields = make(map[string]map[string]*roaring.Bitmap)
}

// Condition is an equality predicate on a scalar field.
type Condition struct {
	Field string
	Value Value
}

// Eq builds an equality condition.
func Eq(field string, v Value) Condition {
	return Condition{Field: field, Value: v}
}
