package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ivfgo/index"
	"github.com/hupe1980/ivfgo/metadata"
)

func TestInsertFlushCount(t *testing.T) {
	s := New(2)
	assert.Equal(t, int64(0), s.Count())

	require.NoError(t, s.Insert([]Record{
		{ID: 1, Vector: []float32{1, 2}},
		{ID: 2, Vector: []float32{3, 4}},
	}))

	// Buffered records are invisible until Flush.
	assert.Equal(t, int64(0), s.Count())
	assert.Equal(t, 2, s.Pending())
	_, ok := s.Get(1)
	assert.False(t, ok)

	assert.Equal(t, 2, s.Flush())
	assert.Equal(t, int64(2), s.Count())
	assert.Equal(t, 0, s.Pending())

	r, ok := s.Get(1)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2}, r.Vector)

	// Flush with nothing buffered is a no-op.
	assert.Equal(t, 0, s.Flush())
	assert.Equal(t, int64(2), s.Count())
}

func TestInsertDimensionMismatch(t *testing.T) {
	s := New(3)
	require.NoError(t, s.Insert([]Record{{ID: 1, Vector: []float32{1, 2, 3}}}))

	err := s.Insert([]Record{
		{ID: 2, Vector: []float32{1, 2, 3}},
		{ID: 3, Vector: []float32{1, 2}},
	})

	var dm *index.ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 3, dm.Expected)
	assert.Equal(t, 2, dm.Actual)

	// The whole batch was rejected; only the first insert survives.
	s.Flush()
	assert.Equal(t, int64(1), s.Count())
}

func TestInsertDuplicateID(t *testing.T) {
	s := New(1)
	require.NoError(t, s.Insert([]Record{{ID: 1, Vector: []float32{1}}}))
	s.Flush()

	var dup *ErrDuplicateID

	// Against flushed rows.
	err := s.Insert([]Record{{ID: 1, Vector: []float32{2}}})
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, int64(1), dup.ID)

	// Within one batch.
	err = s.Insert([]Record{
		{ID: 2, Vector: []float32{2}},
		{ID: 2, Vector: []float32{3}},
	})
	require.ErrorAs(t, err, &dup)

	// Against buffered rows.
	require.NoError(t, s.Insert([]Record{{ID: 3, Vector: []float32{3}}}))
	err = s.Insert([]Record{{ID: 3, Vector: []float32{4}}})
	require.ErrorAs(t, err, &dup)

	s.Flush()
	assert.Equal(t, int64(2), s.Count())
}

func TestInsertCopiesVectorsAndDocs(t *testing.T) {
	s := New(2)
	vec := []float32{1, 2}
	doc := metadata.Document{"name": metadata.String("a")}
	require.NoError(t, s.Insert([]Record{{ID: 1, Fields: doc, Vector: vec}}))

	vec[0] = 99
	doc["name"] = metadata.String("changed")
	s.Flush()

	r, ok := s.Get(1)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2}, r.Vector)
	assert.Equal(t, metadata.String("a"), r.Fields["name"])
}

func TestGetCopiesVectorsAndDocs(t *testing.T) {
	s := New(2)
	require.NoError(t, s.Insert([]Record{{
		ID:     1,
		Fields: metadata.Document{"name": metadata.String("a")},
		Vector: []float32{1, 2},
	}}))
	s.Flush()

	r, ok := s.Get(1)
	require.True(t, ok)
	r.Vector[0] = 99
	r.Fields["name"] = metadata.String("changed")

	again, ok := s.Get(1)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2}, again.Vector)
	assert.Equal(t, metadata.String("a"), again.Fields["name"])
}

func TestViewLayout(t *testing.T) {
	s := New(2)
	require.NoError(t, s.Insert([]Record{
		{ID: 10, Vector: []float32{1, 2}},
		{ID: 20, Vector: []float32{3, 4}},
	}))
	s.Flush()

	v := s.Snapshot()
	assert.Equal(t, 2, v.Rows())
	assert.Equal(t, 2, v.Dimension())
	assert.Equal(t, []float32{1, 2, 3, 4}, v.Vectors())
	assert.Equal(t, []float32{3, 4}, v.Vector(1))
	assert.Equal(t, int64(20), v.ID(1))

	// A snapshot taken before a flush stays stable.
	require.NoError(t, s.Insert([]Record{{ID: 30, Vector: []float32{5, 6}}}))
	s.Flush()
	assert.Equal(t, 2, v.Rows())
	assert.Equal(t, 3, s.Snapshot().Rows())
}

func TestNewFromRows(t *testing.T) {
	s, err := NewFromRows(2, []int64{7, 8}, []float32{1, 2, 3, 4}, []metadata.Document{nil, nil})
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.Count())

	r, ok := s.Get(8)
	require.True(t, ok)
	assert.Equal(t, []float32{3, 4}, r.Vector)

	_, err = NewFromRows(2, []int64{7, 7}, []float32{1, 2, 3, 4}, []metadata.Document{nil, nil})
	var dup *ErrDuplicateID
	assert.ErrorAs(t, err, &dup)

	_, err = NewFromRows(2, []int64{7}, []float32{1, 2, 3}, []metadata.Document{nil})
	assert.Error(t, err)
}
