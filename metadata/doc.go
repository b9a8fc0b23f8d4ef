// Package metadata provides typed metadata values, collection schemas, and a
// Roaring Bitmap-backed equality filter index for hybrid vector search.
package metadata
