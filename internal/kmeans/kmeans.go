package kmeans

import (
	"context"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/ivfgo/distance"
	"github.com/hupe1980/ivfgo/index"
)

// parallelThreshold is the row count below which the assignment step runs
// sequentially; goroutine fan-out is not worth it for small inputs.
const parallelThreshold = 2048

// Result holds the outcome of a clustering run.
type Result struct {
	// Centroids is the flattened centroid table (K * dim).
	Centroids []float32

	// K is the number of centroids produced. It can be lower than the
	// requested k when the input has fewer distinct vectors.
	K int

	// Reduced reports whether K was capped below the requested k.
	Reduced bool

	// Iterations is the number of Lloyd iterations performed.
	Iterations int
}

// Train clusters the flattened input vectors (n * dim) into k centroids
// using Lloyd's algorithm.
//
// Initial centroids are sampled uniformly at random from the distinct input
// vectors using seed. If fewer than k distinct vectors exist, k is reduced
// to that count and Result.Reduced is set; this is a signal, not a failure.
//
// A centroid that ends an iteration with no assigned vectors is reseeded
// from the assigned vector globally farthest from its own centroid, so no
// cluster stays empty.
func Train(ctx context.Context, vectors []float32, dim, k, maxIter int, seed int64) (*Result, error) {
	if dim <= 0 {
		return nil, &index.ErrInvalidParameter{Name: "dim", Value: dim}
	}
	if k <= 0 {
		return nil, &index.ErrInvalidParameter{Name: "nlist", Value: k}
	}
	if maxIter <= 0 {
		return nil, &index.ErrInvalidParameter{Name: "maxIterations", Value: maxIter}
	}

	n := len(vectors) / dim
	if n == 0 {
		return nil, index.ErrNoVectors
	}

	distinct := distinctRows(vectors, dim, n)

	reduced := false
	if len(distinct) < k {
		k = len(distinct)
		reduced = true
	}

	// Seeded initialization from distinct vectors only, so duplicated
	// inputs cannot produce coinciding centroids.
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(len(distinct))

	centroids := make([]float32, k*dim)
	for i := 0; i < k; i++ {
		row := distinct[perm[i]]
		copy(centroids[i*dim:(i+1)*dim], vectors[row*dim:(row+1)*dim])
	}

	assignments := make([]int, n)
	for i := range assignments {
		assignments[i] = -1
	}
	counts := make([]int, k)
	sums := make([]float32, k*dim)

	res := &Result{Centroids: centroids, K: k, Reduced: reduced}

	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Iterations = iter + 1

		changed, err := assign(ctx, vectors, centroids, assignments, dim, n, k)
		if err != nil {
			return nil, err
		}
		if !changed {
			break
		}

		// Update step: recompute each centroid as the mean of its members.
		for i := range sums {
			sums[i] = 0
		}
		for i := range counts {
			counts[i] = 0
		}
		for i := 0; i < n; i++ {
			c := assignments[i]
			vec := vectors[i*dim : (i+1)*dim]
			for d := 0; d < dim; d++ {
				sums[c*dim+d] += vec[d]
			}
			counts[c]++
		}
		for j := 0; j < k; j++ {
			if counts[j] == 0 {
				continue
			}
			scale := 1 / float32(counts[j])
			for d := 0; d < dim; d++ {
				centroids[j*dim+d] = sums[j*dim+d] * scale
			}
		}

		reseedEmpty(vectors, centroids, assignments, counts, dim, n, k)
	}

	return res, nil
}

// assign maps every vector to its nearest centroid by squared L2 distance,
// ties broken by the lowest cluster id. It reports whether any assignment
// changed. Large inputs are partitioned across workers; each worker writes
// disjoint ranges, so the outcome is independent of scheduling.
func assign(ctx context.Context, vectors, centroids []float32, assignments []int, dim, n, k int) (bool, error) {
	if n < parallelThreshold {
		return assignRange(vectors, centroids, assignments, dim, 0, n, k), nil
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}

	changedBy := make([]bool, workers)
	chunk := (n + workers - 1) / workers

	g, _ := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		lo := w * chunk
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		if lo >= hi {
			break
		}
		g.Go(func() error {
			changedBy[w] = assignRange(vectors, centroids, assignments, dim, lo, hi, k)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	for _, c := range changedBy {
		if c {
			return true, nil
		}
	}
	return false, nil
}

func assignRange(vectors, centroids []float32, assignments []int, dim, lo, hi, k int) bool {
	changed := false
	for i := lo; i < hi; i++ {
		vec := vectors[i*dim : (i+1)*dim]
		best := NearestCentroid(vec, centroids, dim, k)
		if assignments[i] != best {
			assignments[i] = best
			changed = true
		}
	}
	return changed
}

// reseedEmpty replaces every empty centroid with the assigned vector
// globally farthest from its current centroid. The chosen vector is moved
// to the empty cluster so a later empty cluster cannot pick it again.
// Distance ties are broken by the lowest row index.
func reseedEmpty(vectors, centroids []float32, assignments []int, counts []int, dim, n, k int) {
	for j := 0; j < k; j++ {
		if counts[j] > 0 {
			continue
		}

		farRow := -1
		farDist := float32(-1)
		for i := 0; i < n; i++ {
			c := assignments[i]
			if counts[c] <= 1 {
				// Moving the sole member would just relocate the hole.
				continue
			}
			vec := vectors[i*dim : (i+1)*dim]
			d := distance.SquaredL2(vec, centroids[c*dim:(c+1)*dim])
			if d > farDist {
				farDist = d
				farRow = i
			}
		}
		if farRow < 0 {
			continue
		}

		copy(centroids[j*dim:(j+1)*dim], vectors[farRow*dim:(farRow+1)*dim])
		counts[assignments[farRow]]--
		assignments[farRow] = j
		counts[j] = 1
	}
}

// NearestCentroid returns the index of the centroid closest to vec by
// squared L2 distance, ties broken by the lowest centroid index.
func NearestCentroid(vec, centroids []float32, dim, k int) int {
	best := -1
	minDist := float32(math.MaxFloat32)
	for j := 0; j < k; j++ {
		d := distance.SquaredL2(vec, centroids[j*dim:(j+1)*dim])
		if d < minDist {
			minDist = d
			best = j
		}
	}
	return best
}

// distinctRows returns the first-occurrence row index of every distinct
// vector, in input order. Distinctness is exact float32 equality.
func distinctRows(vectors []float32, dim, n int) []int {
	seen := make(map[string]struct{}, n)
	rows := make([]int, 0, n)
	key := make([]byte, dim*4)

	for i := 0; i < n; i++ {
		vec := vectors[i*dim : (i+1)*dim]
		for d, v := range vec {
			bits := math.Float32bits(v)
			key[d*4] = byte(bits)
			key[d*4+1] = byte(bits >> 8)
			key[d*4+2] = byte(bits >> 16)
			key[d*4+3] = byte(bits >> 24)
		}
		if _, ok := seen[string(key)]; ok {
			continue
		}
		seen[string(key)] = struct{}{}
		rows = append(rows, i)
	}
	return rows
}
