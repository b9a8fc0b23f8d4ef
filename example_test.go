package ivfgo_test

import (
	"context"
	"fmt"
	"log"

	"github.com/hupe1980/ivfgo"
	"github.com/hupe1980/ivfgo/metadata"
)

func Example() {
	ctx := context.Background()
	db := ivfgo.New()

	coll, err := db.CreateCollection(ctx, "articles", metadata.Schema{
		metadata.PrimaryField("id"),
		metadata.VarCharField("title", 200),
		metadata.FloatVectorField("embedding", 4),
	})
	if err != nil {
		log.Fatal(err)
	}

	err = coll.Insert(ctx, []ivfgo.Record{
		{ID: 1, Fields: metadata.Document{"title": metadata.String("origin")}, Vector: []float32{0, 0, 0, 0}},
		{ID: 2, Fields: metadata.Document{"title": metadata.String("near origin")}, Vector: []float32{1, 0, 0, 0}},
		{ID: 3, Fields: metadata.Document{"title": metadata.String("far away")}, Vector: []float32{10, 10, 10, 10}},
	})
	if err != nil {
		log.Fatal(err)
	}

	if _, err := coll.Flush(ctx); err != nil {
		log.Fatal(err)
	}

	if err := coll.BuildIndex(ctx, func(o *ivfgo.IndexOptions) {
		o.NList = 2
	}); err != nil {
		log.Fatal(err)
	}

	results, err := coll.Search([]float32{0, 0, 0, 0}).KNN(2).NProbe(2).Execute(ctx)
	if err != nil {
		log.Fatal(err)
	}

	for _, r := range results {
		fmt.Printf("%d %.1f %s\n", r.ID, r.Distance, r.Fields["title"].S)
	}
	// Output:
	// 1 0.0 origin
	// 2 1.0 near origin
}
