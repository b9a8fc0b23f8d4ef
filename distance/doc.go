// Package distance provides vector distance calculations for the IVF index.
//
// All functions operate on raw []float32 slices and assume both operands
// have the same length; dimension enforcement happens at the store and
// index layers.
package distance
