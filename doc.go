// Package ivfgo provides an embedded IVF_FLAT vector collection engine for Go.
//
// Collections hold schema-validated records (an int64 primary key, scalar
// fields and a float32 vector) and answer k-nearest-neighbor queries through
// an inverted-file index with exact per-cluster scoring.
//
// # Quick Start
//
//	ctx := context.Background()
//	db := ivfgo.New()
//
//	coll, _ := db.CreateCollection(ctx, "articles", metadata.Schema{
//	    metadata.PrimaryField("id"),
//	    metadata.VarCharField("title", 200),
//	    metadata.FloatVectorField("embedding", 384),
//	})
//
//	coll.Insert(ctx, records) // buffered, not yet searchable
//	coll.Flush(ctx)           // visible to Get and index builds
//	coll.BuildIndex(ctx)      // k-means training + posting lists
//
//	results, _ := coll.Search(query).KNN(10).NProbe(16).Execute(ctx)
//
// # Visibility Model
//
// Inserts are buffered until Flush. A built index covers exactly the rows
// that were flushed when BuildIndex ran; rows flushed afterwards stay
// invisible to index searches until the next BuildIndex. Brute-force
// searches (Search(query).Brute()) always see the latest flushed state and
// need no index.
//
// # Recall
//
// Search probes the NProbe closest clusters and scores their rows exactly.
// Probing every cluster (NProbe >= NList) makes the search exhaustive and
// equivalent to a brute-force scan over the indexed rows.
//
// # Persistence
//
// Collections can be written to and restored from a checksummed binary
// snapshot, including the built index state:
//
//	var buf bytes.Buffer
//	coll.SaveTo(&buf)
//	restored, _ := db.RestoreCollection(ctx, &buf)
package ivfgo
