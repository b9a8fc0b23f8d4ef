// Package kmeans implements seeded k-means clustering for IVF index training.
//
// The implementation is deterministic: the same input vectors and the same
// seed produce bit-identical centroids, which the index relies on for
// reproducible builds.
package kmeans
