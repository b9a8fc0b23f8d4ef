package ivf

import (
	"container/heap"
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/ivfgo/distance"
	"github.com/hupe1980/ivfgo/index"
	"github.com/hupe1980/ivfgo/internal/kmeans"
	"github.com/hupe1980/ivfgo/internal/queue"
	"github.com/hupe1980/ivfgo/vectorstore"
)

// parallelThreshold is the row count below which posting assignment runs
// sequentially.
const parallelThreshold = 2048

// Options contains configuration options for an index build.
type Options struct {
	// Metric is the distance metric the index was trained for. Searches
	// default to it but may override per query.
	Metric distance.Metric

	// NList is the number of clusters (centroids). It is capped at the
	// number of distinct flushed vectors.
	NList int

	// MaxIterations bounds the k-means training loop.
	MaxIterations int

	// Seed makes centroid initialization reproducible: the same flushed
	// rows and the same seed produce bit-identical centroids.
	Seed int64
}

// DefaultOptions contains the default configuration options for the index.
var DefaultOptions = Options{
	Metric:        distance.MetricL2,
	NList:         128,
	MaxIterations: 20,
	Seed:          1,
}

// Stats describes a built index.
type Stats struct {
	Dimension  int
	Metric     distance.Metric
	NList      int  // centroid count actually produced
	Requested  int  // nlist requested at build time
	Reduced    bool // true when NList was capped below Requested
	Indexed    int  // rows covered by the posting lists
	Iterations int  // k-means iterations performed
}

// Index is a built IVF_FLAT index over one flushed store snapshot.
// It is immutable; rebuilds replace the whole value.
type Index struct {
	dim       int
	metric    distance.Metric
	centroids []float32  // nlist * dim
	postings  [][]uint32 // cluster -> rows, ascending
	stats     Stats
}

// Build clusters the flushed rows of view into nlist centroids and assigns
// every row to the posting list of its nearest centroid (squared L2, ties
// broken by the lowest cluster id). Every flushed row lands in exactly one
// posting list.
func Build(ctx context.Context, view *vectorstore.View, optFns ...func(o *Options)) (*Index, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.NList <= 0 {
		return nil, &index.ErrInvalidParameter{Name: "nlist", Value: opts.NList}
	}
	if opts.MaxIterations <= 0 {
		return nil, &index.ErrInvalidParameter{Name: "maxIterations", Value: opts.MaxIterations}
	}
	if view.Rows() == 0 {
		return nil, index.ErrNoVectors
	}

	dim := view.Dimension()

	res, err := kmeans.Train(ctx, view.Vectors(), dim, opts.NList, opts.MaxIterations, opts.Seed)
	if err != nil {
		return nil, err
	}

	rows := view.Rows()
	assignments := make([]int, rows)
	if err := assignRows(ctx, view, res.Centroids, res.K, assignments); err != nil {
		return nil, err
	}

	postings := make([][]uint32, res.K)
	for row := 0; row < rows; row++ {
		c := assignments[row]
		postings[c] = append(postings[c], uint32(row))
	}

	return &Index{
		dim:       dim,
		metric:    opts.Metric,
		centroids: res.Centroids,
		postings:  postings,
		stats: Stats{
			Dimension:  dim,
			Metric:     opts.Metric,
			NList:      res.K,
			Requested:  opts.NList,
			Reduced:    res.Reduced,
			Indexed:    rows,
			Iterations: res.Iterations,
		},
	}, nil
}

func assignRows(ctx context.Context, view *vectorstore.View, centroids []float32, k int, assignments []int) error {
	dim := view.Dimension()
	rows := len(assignments)

	if rows < parallelThreshold {
		for row := 0; row < rows; row++ {
			assignments[row] = kmeans.NearestCentroid(view.Vector(uint32(row)), centroids, dim, k)
		}
		return nil
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > rows {
		workers = rows
	}
	chunk := (rows + workers - 1) / workers

	g, _ := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > rows {
			hi = rows
		}
		if lo >= hi {
			break
		}
		g.Go(func() error {
			for row := lo; row < hi; row++ {
				assignments[row] = kmeans.NearestCentroid(view.Vector(uint32(row)), centroids, dim, k)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Dimension returns the vector dimensionality of the index.
func (idx *Index) Dimension() int { return idx.dim }

// Metric returns the metric the index was built with.
func (idx *Index) Metric() distance.Metric { return idx.metric }

// NList returns the number of centroids actually produced.
func (idx *Index) NList() int { return idx.stats.NList }

// Indexed returns the number of rows covered by the posting lists. Rows
// flushed after the build are not searchable until the next build.
func (idx *Index) Indexed() int { return idx.stats.Indexed }

// Stats returns build statistics.
func (idx *Index) Stats() Stats { return idx.stats }

// Postings returns the posting list of a cluster. The slice is shared index
// state and must be treated as read-only.
func (idx *Index) Postings(cluster int) []uint32 { return idx.postings[cluster] }

// Centroids returns the flattened centroid table (NList * dim), read-only.
func (idx *Index) Centroids() []float32 { return idx.centroids }

// Search probes the nprobe centroids nearest to the query (ties broken by
// the lowest cluster id; nprobe >= NList probes everything), scores every
// row in their posting lists exactly, and returns the k nearest results in
// ascending distance order, ties broken by the lowest primary key.
//
// view must be the snapshot the index was built from, or a later snapshot
// of the same store: rows are append-only, so earlier rows stay valid.
func (idx *Index) Search(ctx context.Context, view *vectorstore.View, query []float32, k, nprobe int, metric distance.Metric, filter func(row uint32) bool) ([]index.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, index.ErrInvalidK
	}
	if nprobe <= 0 {
		return nil, &index.ErrInvalidParameter{Name: "nprobe", Value: nprobe}
	}
	if len(query) != idx.dim {
		return nil, &index.ErrDimensionMismatch{Expected: idx.dim, Actual: len(query)}
	}

	distFunc, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}

	clusters := idx.closestClusters(query, nprobe, distFunc)

	top := queue.NewMax(k)
	heap.Init(top)

	for _, c := range clusters {
		for _, row := range idx.postings[c] {
			if filter != nil && !filter(row) {
				continue
			}
			d := distFunc(query, view.Vector(row))
			id := view.ID(row)

			if top.Len() < k {
				heap.Push(top, queue.Item{Row: row, ID: id, Distance: d})
				continue
			}
			if top.Better(d, id) {
				heap.Pop(top)
				heap.Push(top, queue.Item{Row: row, ID: id, Distance: d})
			}
		}
	}

	return drain(top), nil
}

// closestClusters returns the nprobe cluster ids nearest to the query,
// ordered by distance, ties broken by the lowest cluster id.
func (idx *Index) closestClusters(query []float32, nprobe int, distFunc distance.Func) []int {
	n := idx.stats.NList
	if nprobe > n {
		nprobe = n
	}

	type clusterDist struct {
		id   int
		dist float32
	}
	dists := make([]clusterDist, n)
	for c := 0; c < n; c++ {
		center := idx.centroids[c*idx.dim : (c+1)*idx.dim]
		dists[c] = clusterDist{id: c, dist: distFunc(query, center)}
	}

	sort.Slice(dists, func(i, j int) bool {
		if dists[i].dist != dists[j].dist {
			return dists[i].dist < dists[j].dist
		}
		return dists[i].id < dists[j].id
	})

	out := make([]int, nprobe)
	for i := 0; i < nprobe; i++ {
		out[i] = dists[i].id
	}
	return out
}

// Brute performs an exact linear scan over every flushed row of the view.
// It needs no built index and serves as the explicit full-scan search mode
// and as the recall oracle in tests.
func Brute(ctx context.Context, view *vectorstore.View, query []float32, k int, metric distance.Metric, filter func(row uint32) bool) ([]index.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, index.ErrInvalidK
	}
	if dim := view.Dimension(); len(query) != dim {
		return nil, &index.ErrDimensionMismatch{Expected: dim, Actual: len(query)}
	}

	distFunc, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}

	top := queue.NewMax(k)
	heap.Init(top)

	rows := view.Rows()
	for row := 0; row < rows; row++ {
		if filter != nil && !filter(uint32(row)) {
			continue
		}
		d := distFunc(query, view.Vector(uint32(row)))
		id := view.ID(uint32(row))

		if top.Len() < k {
			heap.Push(top, queue.Item{Row: uint32(row), ID: id, Distance: d})
			continue
		}
		if top.Better(d, id) {
			heap.Pop(top)
			heap.Push(top, queue.Item{Row: uint32(row), ID: id, Distance: d})
		}
	}

	return drain(top), nil
}

// drain empties the max-heap into an ascending result slice.
func drain(top *queue.MaxQueue) []index.SearchResult {
	results := make([]index.SearchResult, top.Len())
	for i := top.Len() - 1; i >= 0; i-- {
		item := heap.Pop(top).(queue.Item)
		results[i] = index.SearchResult{ID: item.ID, Distance: item.Distance}
	}
	return results
}

// Restore reconstructs a built index from previously saved state. The caller
// is responsible for pairing it with the store snapshot it was built from;
// centroids and postings are taken as-is.
func Restore(centroids []float32, postings [][]uint32, stats Stats) *Index {
	return &Index{
		dim:       stats.Dimension,
		metric:    stats.Metric,
		centroids: centroids,
		postings:  postings,
		stats:     stats,
	}
}
