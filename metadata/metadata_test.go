package metadata

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueEqualAndKey(t *testing.T) {
	assert.True(t, Int(5).Equal(Int(5)))
	assert.False(t, Int(5).Equal(Int(6)))
	assert.True(t, String("a").Equal(String("a")))
	assert.False(t, String("1").Equal(Int(1)))

	// Int(1) and String("1") must not collide in the filter index.
	assert.NotEqual(t, Int(1).Key(), String("1").Key())
}

func testSchema() Schema {
	return Schema{
		PrimaryField("IDX_PX"),
		VarCharField("IDX_NM", 64),
		VarCharField("WP_HTML_TRSF_CN", 20000),
		FloatVectorField("embedding", 384),
	}
}

func TestSchemaValidate(t *testing.T) {
	require.NoError(t, testSchema().Validate())
	assert.Equal(t, 384, testSchema().Dimension())

	pk, ok := testSchema().Primary()
	require.True(t, ok)
	assert.Equal(t, "IDX_PX", pk.Name)

	assert.Len(t, testSchema().ScalarFields(), 2)
}

func TestSchemaValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		schema Schema
	}{
		{"empty", Schema{}},
		{"no primary", Schema{Int64Field("a"), FloatVectorField("v", 4)}},
		{"two primaries", Schema{PrimaryField("a"), PrimaryField("b"), FloatVectorField("v", 4)}},
		{"no vector", Schema{PrimaryField("a")}},
		{"two vectors", Schema{PrimaryField("a"), FloatVectorField("v", 4), FloatVectorField("w", 4)}},
		{"zero dim", Schema{PrimaryField("a"), FloatVectorField("v", 0)}},
		{"bad maxlength", Schema{PrimaryField("a"), VarCharField("s", 0), FloatVectorField("v", 4)}},
		{"duplicate names", Schema{PrimaryField("a"), VarCharField("a", 10), FloatVectorField("v", 4)}},
		{"vector primary", Schema{PrimaryField("a"), FieldSchema{Name: "v", Type: FieldTypeFloatVector, Dim: 4, PrimaryKey: true}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.schema.Validate())
		})
	}
}

func TestValidateDocument(t *testing.T) {
	s := testSchema()

	require.NoError(t, s.ValidateDocument(Document{
		"IDX_NM":          String("2019 whitepaper"),
		"WP_HTML_TRSF_CN": String("body"),
	}))

	assert.Error(t, s.ValidateDocument(Document{"unknown": String("x")}))
	assert.Error(t, s.ValidateDocument(Document{"IDX_NM": Int(3)}))
	assert.Error(t, s.ValidateDocument(Document{"IDX_PX": Int(3)}))
	assert.Error(t, s.ValidateDocument(Document{"embedding": String("x")}))
	assert.Error(t, s.ValidateDocument(Document{"IDX_NM": String(strings.Repeat("x", 65))}))
}

func TestIndexEq(t *testing.T) {
	idx := NewIndex()
	idx.Add(0, Document{"category": String("tech"), "year": Int(2019)})
	idx.Add(1, Document{"category": String("tech"), "year": Int(2020)})
	idx.Add(2, Document{"category": String("news"), "year": Int(2019)})

	tech := idx.Eq("category", String("tech"))
	assert.Equal(t, uint64(2), tech.GetCardinality())
	assert.True(t, tech.Contains(0))
	assert.True(t, tech.Contains(1))

	assert.True(t, idx.Eq("category", String("sports")).IsEmpty())
	assert.True(t, idx.Eq("missing", Int(1)).IsEmpty())
}

func TestIndexEqAll(t *testing.T) {
	idx := NewIndex()
	idx.Add(0, Document{"category": String("tech"), "year": Int(2019)})
	idx.Add(1, Document{"category": String("tech"), "year": Int(2020)})
	idx.Add(2, Document{"category": String("news"), "year": Int(2019)})

	bm := idx.EqAll([]Condition{Eq("category", String("tech")), Eq("year", Int(2019))})
	require.NotNil(t, bm)
	assert.Equal(t, uint64(1), bm.GetCardinality())
	assert.True(t, bm.Contains(0))

	assert.Nil(t, idx.EqAll(nil))

	idx.Reset()
	assert.True(t, idx.Eq("category", String("tech")).IsEmpty())
}
