package ivfgo

import (
	"context"
	"fmt"

	"github.com/hupe1980/ivfgo/metadata"
)

// EmbedFunc turns a text into its vector representation. Implementations
// typically wrap an embedding model client.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Row is a record whose vector is computed from its text at insert time.
type Row struct {
	ID     int64
	Fields metadata.Document
	Text   string
}

// InsertRows embeds the texts of all rows and buffers the resulting records
// as one batch. Embedding happens before any record is buffered, so a
// failing embedder leaves the collection untouched.
func (c *Collection) InsertRows(ctx context.Context, embed EmbedFunc, rows []Row) error {
	if embed == nil {
		return fmt.Errorf("embed func must not be nil")
	}

	records := make([]Record, len(rows))
	for i, row := range rows {
		vector, err := embed(ctx, row.Text)
		if err != nil {
			return fmt.Errorf("embed row %d: %w", row.ID, err)
		}
		records[i] = Record{
			ID:     row.ID,
			Fields: row.Fields,
			Vector: vector,
		}
	}

	return c.Insert(ctx, records)
}
