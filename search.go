package ivfgo

import (
	"context"
	"time"

	"github.com/hupe1980/ivfgo/index"
	"github.com/hupe1980/ivfgo/index/ivf"
	"github.com/hupe1980/ivfgo/metadata"
	"github.com/hupe1980/ivfgo/vectorstore"
)

// SearchResult is one search hit: the primary key, its distance to the
// query and the scalar fields of the record.
type SearchResult struct {
	ID       int64
	Distance float32
	Fields   metadata.Document
}

// Search creates a new fluent search builder for the given query vector.
//
// Example:
//
//	results, err := coll.Search(query).
//	    KNN(10).
//	    NProbe(16).
//	    Execute(ctx)
func (c *Collection) Search(query []float32) *SearchBuilder {
	return &SearchBuilder{
		c:      c,
		query:  query,
		k:      10, // Default k
		nprobe: 10, // Default probe count
	}
}

// SearchBuilder is a fluent builder for constructing search queries.
type SearchBuilder struct {
	c      *Collection
	query  []float32
	k      int
	nprobe int
	brute  bool

	metric    MetricType
	metricSet bool

	conds []metadata.Condition
}

// KNN sets the number of nearest neighbors to return.
func (sb *SearchBuilder) KNN(k int) *SearchBuilder {
	sb.k = k
	return sb
}

// NProbe sets the number of clusters probed. Higher values improve recall
// but slow down search; probing every cluster makes search exact.
func (sb *SearchBuilder) NProbe(nprobe int) *SearchBuilder {
	sb.nprobe = nprobe
	return sb
}

// Metric overrides the distance metric for this search only. Defaults to
// the collection metric.
func (sb *SearchBuilder) Metric(metric MetricType) *SearchBuilder {
	sb.metric = metric
	sb.metricSet = true
	return sb
}

// Brute requests an exact scan over all flushed rows instead of the index.
// It works without a built index and always sees the latest flushed state.
func (sb *SearchBuilder) Brute() *SearchBuilder {
	sb.brute = true
	return sb
}

// Where restricts results to records whose field equals the given value.
// Multiple conditions combine with AND.
func (sb *SearchBuilder) Where(field string, value metadata.Value) *SearchBuilder {
	sb.conds = append(sb.conds, metadata.Eq(field, value))
	return sb
}

// WhereInt is shorthand for Where with an integer value.
func (sb *SearchBuilder) WhereInt(field string, v int64) *SearchBuilder {
	return sb.Where(field, metadata.Int(v))
}

// WhereString is shorthand for Where with a string value.
func (sb *SearchBuilder) WhereString(field string, v string) *SearchBuilder {
	return sb.Where(field, metadata.String(v))
}

// Execute runs the search and returns up to k results ordered by ascending
// distance, ties broken by the lower record ID.
func (sb *SearchBuilder) Execute(ctx context.Context) ([]SearchResult, error) {
	c := sb.c
	start := time.Now()

	results, err := sb.execute(ctx)
	c.metrics.RecordSearch(sb.k, time.Since(start), err)

	if err != nil {
		c.logger.WithCollection(c.name).Error("search failed", "error", err)
		return nil, err
	}

	c.logger.WithCollection(c.name).WithK(sb.k).Debug("search executed",
		"results", len(results), "nprobe", sb.nprobe, "brute", sb.brute)

	return results, nil
}

func (sb *SearchBuilder) execute(ctx context.Context) ([]SearchResult, error) {
	c := sb.c

	metric := c.metric
	if sb.metricSet {
		metric = sb.metric
	}

	if sb.brute {
		view := c.store.Snapshot()

		hits, err := ivf.Brute(ctx, view, sb.query, sb.k, metric, sb.filterFunc())
		if err != nil {
			return nil, translateError(err)
		}
		return sb.collect(view, hits), nil
	}

	built := c.built.Load()
	if built == nil {
		return nil, ErrIndexNotBuilt
	}

	hits, err := built.idx.Search(ctx, built.view, sb.query, sb.k, sb.nprobe, metric, sb.filterFunc())
	if err != nil {
		return nil, translateError(err)
	}

	return sb.collect(built.view, hits), nil
}

// filterFunc resolves the equality conditions against the scalar index.
// A nil func means no filtering.
func (sb *SearchBuilder) filterFunc() func(row uint32) bool {
	if len(sb.conds) == 0 {
		return nil
	}

	return sb.c.meta.EqAll(sb.conds).Contains
}

func (sb *SearchBuilder) collect(view *vectorstore.View, hits []index.SearchResult) []SearchResult {
	results := make([]SearchResult, len(hits))
	for i, hit := range hits {
		results[i] = SearchResult{
			ID:       hit.ID,
			Distance: hit.Distance,
		}
		if r, ok := sb.c.store.Get(hit.ID); ok {
			results[i].Fields = r.Fields
		}
	}
	return results
}
