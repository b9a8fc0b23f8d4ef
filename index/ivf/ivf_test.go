package ivf

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ivfgo/distance"
	"github.com/hupe1980/ivfgo/index"
	"github.com/hupe1980/ivfgo/testutil"
	"github.com/hupe1980/ivfgo/vectorstore"
)

func newStore(t *testing.T, dim int, vectors [][]float32) *vectorstore.Store {
	t.Helper()
	s := vectorstore.New(dim)
	records := make([]vectorstore.Record, len(vectors))
	for i, v := range vectors {
		records[i] = vectorstore.Record{ID: int64(i + 1), Vector: v}
	}
	require.NoError(t, s.Insert(records))
	s.Flush()
	return s
}

func randomStore(t *testing.T, rng *testutil.RNG, n, dim int) *vectorstore.Store {
	t.Helper()
	s := vectorstore.New(dim)
	records := make([]vectorstore.Record, n)
	data := rng.RandomVectors(n, dim)
	for i := range records {
		records[i] = vectorstore.Record{ID: int64(i + 1), Vector: data[i*dim : (i+1)*dim]}
	}
	require.NoError(t, s.Insert(records))
	s.Flush()
	return s
}

func TestBuildCoversEveryRowOnce(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(99)
	s := randomStore(t, rng, 200, 8)

	idx, err := Build(ctx, s.Snapshot(), func(o *Options) {
		o.NList = 10
		o.Seed = 5
	})
	require.NoError(t, err)

	seen := make(map[uint32]int)
	for c := 0; c < idx.NList(); c++ {
		prev := -1
		for _, row := range idx.Postings(c) {
			seen[row]++
			// Posting lists are ordered by row.
			assert.Greater(t, int(row), prev)
			prev = int(row)
		}
	}

	assert.Len(t, seen, 200)
	for row, n := range seen {
		assert.Equalf(t, 1, n, "row %d appears in %d posting lists", row, n)
	}
	assert.Equal(t, 200, idx.Indexed())
}

func TestBuildDeterministic(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(7)
	s := randomStore(t, rng, 100, 4)

	a, err := Build(ctx, s.Snapshot(), func(o *Options) { o.NList = 8 })
	require.NoError(t, err)
	b, err := Build(ctx, s.Snapshot(), func(o *Options) { o.NList = 8 })
	require.NoError(t, err)

	assert.Equal(t, a.Centroids(), b.Centroids())
	assert.Equal(t, a.Stats(), b.Stats())
	for c := 0; c < a.NList(); c++ {
		assert.Equal(t, a.Postings(c), b.Postings(c))
	}
}

func TestBuildReducesNList(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, 2, [][]float32{{1, 1}, {1, 1}, {5, 5}})

	idx, err := Build(ctx, s.Snapshot(), func(o *Options) { o.NList = 8 })
	require.NoError(t, err)

	st := idx.Stats()
	assert.Equal(t, 2, st.NList)
	assert.Equal(t, 8, st.Requested)
	assert.True(t, st.Reduced)
	assert.Equal(t, 3, st.Indexed)
}

func TestBuildInvalid(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, 2, [][]float32{{1, 1}})

	var ip *index.ErrInvalidParameter

	_, err := Build(ctx, s.Snapshot(), func(o *Options) { o.NList = 0 })
	require.ErrorAs(t, err, &ip)
	assert.Equal(t, "nlist", ip.Name)

	_, err = Build(ctx, s.Snapshot(), func(o *Options) { o.MaxIterations = -1 })
	require.ErrorAs(t, err, &ip)
	assert.Equal(t, "maxIterations", ip.Name)

	empty := vectorstore.New(2)
	_, err = Build(ctx, empty.Snapshot())
	assert.ErrorIs(t, err, index.ErrNoVectors)
}

func TestSearchFullProbeMatchesBrute(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(123)
	s := randomStore(t, rng, 500, 16)

	idx, err := Build(ctx, s.Snapshot(), func(o *Options) {
		o.NList = 20
		o.Seed = 3
	})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		query := make([]float32, 16)
		rng.FillUniform(query)

		got, err := idx.Search(ctx, s.Snapshot(), query, 10, idx.NList(), distance.MetricL2, nil)
		require.NoError(t, err)

		want, err := Brute(ctx, s.Snapshot(), query, 10, distance.MetricL2, nil)
		require.NoError(t, err)

		// nprobe == nlist is exhaustive: 100% recall.
		assert.Equal(t, want, got)
	}
}

func TestSearchResultsAscending(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(321)
	s := randomStore(t, rng, 300, 8)

	idx, err := Build(ctx, s.Snapshot(), func(o *Options) { o.NList = 16 })
	require.NoError(t, err)

	query := make([]float32, 8)
	rng.FillUniform(query)

	results, err := idx.Search(ctx, s.Snapshot(), query, 25, 4, distance.MetricL2, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	for i := 1; i < len(results); i++ {
		if results[i-1].Distance == results[i].Distance {
			assert.Less(t, results[i-1].ID, results[i].ID)
		} else {
			assert.Less(t, results[i-1].Distance, results[i].Distance)
		}
	}
}

func TestSearchKLargerThanIndexed(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, 2, [][]float32{{0, 0}, {1, 0}, {2, 0}})

	idx, err := Build(ctx, s.Snapshot(), func(o *Options) { o.NList = 2 })
	require.NoError(t, err)

	results, err := idx.Search(ctx, s.Snapshot(), []float32{0, 0}, 100, idx.NList(), distance.MetricL2, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, int64(1), results[0].ID)
	assert.Equal(t, int64(2), results[1].ID)
	assert.Equal(t, int64(3), results[2].ID)
}

func TestSearchTieBreaksOnID(t *testing.T) {
	ctx := context.Background()
	// Records 2 and 3 are equidistant from the query.
	s := newStore(t, 2, [][]float32{{5, 5}, {1, 0}, {-1, 0}})

	idx, err := Build(ctx, s.Snapshot(), func(o *Options) { o.NList = 1 })
	require.NoError(t, err)

	results, err := idx.Search(ctx, s.Snapshot(), []float32{0, 0}, 2, 1, distance.MetricL2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(2), results[0].ID)
	assert.Equal(t, int64(3), results[1].ID)
	assert.Equal(t, results[0].Distance, results[1].Distance)
}

func TestSearchErrors(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, 2, [][]float32{{0, 0}, {1, 1}})

	idx, err := Build(ctx, s.Snapshot(), func(o *Options) { o.NList = 1 })
	require.NoError(t, err)

	_, err = idx.Search(ctx, s.Snapshot(), []float32{0, 0}, 0, 1, distance.MetricL2, nil)
	assert.ErrorIs(t, err, index.ErrInvalidK)

	var ip *index.ErrInvalidParameter
	_, err = idx.Search(ctx, s.Snapshot(), []float32{0, 0}, 1, 0, distance.MetricL2, nil)
	require.ErrorAs(t, err, &ip)
	assert.Equal(t, "nprobe", ip.Name)

	var dm *index.ErrDimensionMismatch
	_, err = idx.Search(ctx, s.Snapshot(), []float32{0, 0, 0}, 1, 1, distance.MetricL2, nil)
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 2, dm.Expected)
	assert.Equal(t, 3, dm.Actual)
}

func TestSearchInnerProduct(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, 2, [][]float32{{1, 0}, {0.1, 0}, {0.5, 0.5}})

	idx, err := Build(ctx, s.Snapshot(), func(o *Options) {
		o.NList = 1
		o.Metric = distance.MetricInnerProduct
	})
	require.NoError(t, err)

	results, err := idx.Search(ctx, s.Snapshot(), []float32{1, 0}, 3, 1, distance.MetricInnerProduct, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Highest dot product first; distances are negated dot products.
	assert.Equal(t, int64(1), results[0].ID)
	assert.Equal(t, float32(-1), results[0].Distance)
	assert.Equal(t, int64(3), results[1].ID)
	assert.Equal(t, int64(2), results[2].ID)
}

func TestSearchWithFilter(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, 2, [][]float32{{0, 0}, {1, 0}, {2, 0}})

	idx, err := Build(ctx, s.Snapshot(), func(o *Options) { o.NList = 1 })
	require.NoError(t, err)

	// Drop row 0 (record 1).
	results, err := idx.Search(ctx, s.Snapshot(), []float32{0, 0}, 3, 1, distance.MetricL2, func(row uint32) bool {
		return row != 0
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(2), results[0].ID)
	assert.Equal(t, int64(3), results[1].ID)
}

func TestSearchSeesOnlyIndexedRows(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, 2, [][]float32{{0, 0}, {1, 0}})

	idx, err := Build(ctx, s.Snapshot(), func(o *Options) { o.NList = 1 })
	require.NoError(t, err)

	// Rows flushed after the build are invisible until the next build.
	require.NoError(t, s.Insert([]vectorstore.Record{{ID: 42, Vector: []float32{0, 0.001}}}))
	s.Flush()

	results, err := idx.Search(ctx, s.Snapshot(), []float32{0, 0}, 10, 1, distance.MetricL2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].ID)

	rebuilt, err := Build(ctx, s.Snapshot(), func(o *Options) { o.NList = 1 })
	require.NoError(t, err)

	results, err = rebuilt.Search(ctx, s.Snapshot(), []float32{0, 0}, 10, 1, distance.MetricL2, nil)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, int64(1), results[0].ID)
	assert.Equal(t, int64(42), results[1].ID)
}

func TestBruteErrors(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, 2, [][]float32{{0, 0}})

	_, err := Brute(ctx, s.Snapshot(), []float32{0, 0}, 0, distance.MetricL2, nil)
	assert.ErrorIs(t, err, index.ErrInvalidK)

	var dm *index.ErrDimensionMismatch
	_, err = Brute(ctx, s.Snapshot(), []float32{0}, 1, distance.MetricL2, nil)
	assert.ErrorAs(t, err, &dm)
}
