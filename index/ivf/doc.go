// Package ivf implements an IVF_FLAT index: an inverted-file structure that
// partitions the vector space into nlist clusters and scans only the nprobe
// nearest clusters per query, with exact (flat) distance scoring inside each
// scanned cluster.
//
// The speed/recall tradeoff is first-class: recall is exact (100%) only when
// nprobe equals the number of centroids; smaller nprobe values trade recall
// for latency.
//
// An Index is immutable once built. Rebuilds construct a fresh Index from
// the current store snapshot; the owning collection publishes it atomically
// so concurrent searches never observe a partial build.
package ivf
