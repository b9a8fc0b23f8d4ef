package ivfgo

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/ivfgo/distance"
	"github.com/hupe1980/ivfgo/index/ivf"
	"github.com/hupe1980/ivfgo/metadata"
	"github.com/hupe1980/ivfgo/persistence"
	"github.com/hupe1980/ivfgo/vectorstore"
)

// MetricType selects the distance metric of a collection.
type MetricType = distance.Metric

const (
	// L2 is squared Euclidean distance.
	L2 = distance.MetricL2
	// InnerProduct is dot-product similarity, reported negated so smaller
	// is closer.
	InnerProduct = distance.MetricInnerProduct
)

// Record is one row of a collection: a primary key, the scalar fields and
// the vector.
type Record = vectorstore.Record

// IndexOptions tune index construction. The metric is fixed per collection
// and not configurable here.
type IndexOptions struct {
	// NList is the number of clusters to train.
	NList int
	// MaxIterations bounds the k-means training loop.
	MaxIterations int
	// Seed makes training deterministic. The same seed over the same data
	// yields bit-identical centroids.
	Seed int64
}

// DefaultIndexOptions are the recommended default index options.
var DefaultIndexOptions = IndexOptions{
	NList:         128,
	MaxIterations: 20,
	Seed:          1,
}

// CollectionInfo describes the current state of a collection.
type CollectionInfo struct {
	Name            string
	Dimension       int
	Metric          MetricType
	NumEntities     int64 // flushed rows
	PendingEntities int   // inserted but not yet flushed
	HasIndex        bool
	IndexedEntities int // rows covered by the current index
	NList           int // clusters of the current index, 0 without one
}

// builtIndex pins an index to the store snapshot it was trained on. Searches
// via the index only ever see this snapshot, never rows flushed later.
type builtIndex struct {
	view *vectorstore.View
	idx  *ivf.Index
}

// Collection is a named set of schema-validated records with an optional
// IVF index over its flushed rows.
//
// Mutations are serialized; searches are lock-free against immutable
// snapshots and may run concurrently with inserts, flushes and rebuilds.
type Collection struct {
	name   string
	schema metadata.Schema
	metric distance.Metric

	logger  *Logger
	metrics MetricsCollector

	mu       sync.Mutex
	store    *vectorstore.Store
	meta     *metadata.Index
	metaRows int

	built atomic.Pointer[builtIndex]
}

func newCollection(name string, schema metadata.Schema, metric MetricType, logger *Logger, metrics MetricsCollector) (*Collection, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if _, err := distance.Provider(metric); err != nil {
		return nil, err
	}

	return &Collection{
		name:    name,
		schema:  schema,
		metric:  metric,
		logger:  logger,
		metrics: metrics,
		store:   vectorstore.New(schema.Dimension()),
		meta:    metadata.NewIndex(),
	}, nil
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Schema returns the collection schema.
func (c *Collection) Schema() metadata.Schema { return c.schema }

// Dimension returns the vector dimension of the collection.
func (c *Collection) Dimension() int { return c.store.Dimension() }

// Metric returns the distance metric of the collection.
func (c *Collection) Metric() MetricType { return c.metric }

// Insert buffers records for later flushing. The batch is all-or-nothing:
// on any dimension mismatch, duplicate primary key or schema violation no
// record of the batch is kept.
//
// Buffered records are invisible to Search and Get until Flush is called.
func (c *Collection) Insert(ctx context.Context, records []Record) error {
	start := time.Now()
	err := c.insert(ctx, records)
	c.metrics.RecordInsert(len(records), time.Since(start), err)

	if err != nil {
		c.logger.WithCollection(c.name).Error("insert failed", "error", err)
		return err
	}

	c.logger.WithCollection(c.name).WithCount(len(records)).Debug("records buffered")

	return nil
}

func (c *Collection) insert(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, r := range records {
		if err := c.schema.ValidateDocument(r.Fields); err != nil {
			return fmt.Errorf("record %d: %w", r.ID, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return translateError(c.store.Insert(records))
}

// Flush makes all buffered records visible to Get and to future index
// builds. It returns the number of records flushed and is a no-op when the
// buffer is empty.
//
// Flushing does not touch an existing index: searches keep seeing the
// snapshot the index was built on until BuildIndex runs again.
func (c *Collection) Flush(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	start := time.Now()

	c.mu.Lock()
	n := c.store.Flush()

	// Index the scalar fields of the newly visible rows.
	view := c.store.Snapshot()
	for row := c.metaRows; row < view.Rows(); row++ {
		c.meta.Add(uint32(row), view.Document(uint32(row)))
	}
	c.metaRows = view.Rows()
	c.mu.Unlock()

	c.metrics.RecordFlush(n, time.Since(start))
	c.logger.WithCollection(c.name).WithCount(n).Debug("records flushed")

	return n, nil
}

// BuildIndex trains a new IVF index over all currently flushed rows and
// swaps it in atomically. Searches running concurrently keep using the old
// index until the swap; afterwards they see the new one.
//
// When fewer distinct vectors than NList exist, the cluster count is
// reduced to the distinct count and a warning is logged.
func (c *Collection) BuildIndex(ctx context.Context, optFns ...func(o *IndexOptions)) error {
	opts := DefaultIndexOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	start := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	view := c.store.Snapshot()

	idx, err := ivf.Build(ctx, view, func(o *ivf.Options) {
		o.Metric = c.metric
		o.NList = opts.NList
		o.MaxIterations = opts.MaxIterations
		o.Seed = opts.Seed
	})
	c.metrics.RecordBuildIndex(view.Rows(), time.Since(start), err)

	if err != nil {
		c.logger.WithCollection(c.name).Error("index build failed", "error", err)
		return translateError(err)
	}

	stats := idx.Stats()
	if stats.Reduced {
		c.logger.WithCollection(c.name).Warn("nlist reduced to distinct vector count",
			"requested", stats.Requested, "nlist", stats.NList)
	}

	c.built.Store(&builtIndex{view: view, idx: idx})

	c.logger.WithCollection(c.name).Info("index built",
		"indexed", stats.Indexed, "nlist", stats.NList, "iterations", stats.Iterations,
		"duration", time.Since(start))

	return nil
}

// DropIndex removes the current index. Searches fail with ErrIndexNotBuilt
// afterwards unless brute-force mode is requested.
func (c *Collection) DropIndex() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.built.Store(nil)
}

// Get returns the flushed record with the given primary key.
func (c *Collection) Get(id int64) (Record, error) {
	r, ok := c.store.Get(id)
	if !ok {
		return Record{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return r, nil
}

// NumEntities returns the number of flushed records.
func (c *Collection) NumEntities() int64 {
	return c.store.Count()
}

// Describe reports the current state of the collection.
func (c *Collection) Describe() CollectionInfo {
	info := CollectionInfo{
		Name:            c.name,
		Dimension:       c.store.Dimension(),
		Metric:          c.metric,
		NumEntities:     c.store.Count(),
		PendingEntities: c.store.Pending(),
	}

	if built := c.built.Load(); built != nil {
		info.HasIndex = true
		info.IndexedEntities = built.idx.Indexed()
		info.NList = built.idx.NList()
	}

	return info
}

// SaveTo writes a snapshot of the collection (flushed rows plus the current
// index state, if any) to w.
func (c *Collection) SaveTo(w io.Writer, optFns ...func(o *persistence.Options)) error {
	// Index publishes happen under c.mu, so loading both here guarantees
	// the index never references rows beyond the saved snapshot.
	c.mu.Lock()
	view := c.store.Snapshot()
	built := c.built.Load()
	c.mu.Unlock()

	snap := &persistence.Snapshot{
		Name:    c.name,
		Schema:  c.schema,
		Metric:  c.metric,
		IDs:     make([]int64, view.Rows()),
		Vectors: view.Vectors(),
		Docs:    make([]metadata.Document, view.Rows()),
	}
	for row := 0; row < view.Rows(); row++ {
		snap.IDs[row] = view.ID(uint32(row))
		snap.Docs[row] = view.Document(uint32(row))
	}

	// Rows are append-only, so a stale index keeps meaning the same thing
	// after restore: its postings reference the same prefix of rows.
	if built != nil {
		snap.Index = &persistence.IndexState{
			Stats:     built.idx.Stats(),
			Centroids: built.idx.Centroids(),
			Postings:  make([][]uint32, built.idx.NList()),
		}
		for cluster := 0; cluster < built.idx.NList(); cluster++ {
			snap.Index.Postings[cluster] = built.idx.Postings(cluster)
		}
	}

	if err := persistence.Write(w, snap, optFns...); err != nil {
		return err
	}

	c.logger.WithCollection(c.name).WithCount(view.Rows()).Info("snapshot saved")

	return nil
}

func restoreCollection(snap *persistence.Snapshot, logger *Logger, metrics MetricsCollector) (*Collection, error) {
	c, err := newCollection(snap.Name, snap.Schema, snap.Metric, logger, metrics)
	if err != nil {
		return nil, err
	}

	store, err := vectorstore.NewFromRows(snap.Schema.Dimension(), snap.IDs, snap.Vectors, snap.Docs)
	if err != nil {
		return nil, translateError(err)
	}
	c.store = store

	view := store.Snapshot()
	for row := 0; row < view.Rows(); row++ {
		c.meta.Add(uint32(row), view.Document(uint32(row)))
	}
	c.metaRows = view.Rows()

	if snap.Index != nil {
		idx := ivf.Restore(snap.Index.Centroids, snap.Index.Postings, snap.Index.Stats)
		c.built.Store(&builtIndex{view: view, idx: idx})
	}

	return c, nil
}
