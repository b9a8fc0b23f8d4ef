package metadata

import (
	"errors"
	"fmt"
)

// FieldType defines the data type of a collection field.
type FieldType uint8

const (
	// FieldTypeInt64 is a 64-bit integer field. The primary field must be
	// of this type.
	FieldTypeInt64 FieldType = iota + 1
	// FieldTypeVarChar is a variable-length string field with a maximum
	// length constraint.
	FieldTypeVarChar
	// FieldTypeFloatVector is a fixed-dimension float32 vector field.
	FieldTypeFloatVector
)

func (t FieldType) String() string {
	switch t {
	case FieldTypeInt64:
		return "Int64"
	case FieldTypeVarChar:
		return "VarChar"
	case FieldTypeFloatVector:
		return "FloatVector"
	default:
		return "Unknown"
	}
}

// MaxVarCharLength is the upper bound accepted for VarChar MaxLength.
const MaxVarCharLength = 65535

// FieldSchema describes a single collection field.
type FieldSchema struct {
	Name       string
	Type       FieldType
	PrimaryKey bool

	// MaxLength bounds VarChar fields (characters, not bytes).
	MaxLength int

	// Dim is the dimension of a FloatVector field.
	Dim int
}

// Int64Field returns an INT64 field descriptor.
func Int64Field(name string) FieldSchema {
	return FieldSchema{Name: name, Type: FieldTypeInt64}
}

// PrimaryField returns the INT64 primary key field descriptor.
func PrimaryField(name string) FieldSchema {
	return FieldSchema{Name: name, Type: FieldTypeInt64, PrimaryKey: true}
}

// VarCharField returns a bounded string field descriptor.
func VarCharField(name string, maxLength int) FieldSchema {
	return FieldSchema{Name: name, Type: FieldTypeVarChar, MaxLength: maxLength}
}

// FloatVectorField returns the embedding vector field descriptor.
func FloatVectorField(name string, dim int) FieldSchema {
	return FieldSchema{Name: name, Type: FieldTypeFloatVector, Dim: dim}
}

// Schema is the ordered list of field descriptors of a collection.
type Schema []FieldSchema

// Validate checks structural invariants: exactly one INT64 primary field,
// exactly one vector field with a positive dimension, unique field names,
// and sane VarChar bounds.
func (s Schema) Validate() error {
	if len(s) == 0 {
		return errors.New("schema has no fields")
	}

	names := make(map[string]struct{}, len(s))
	primaries, vectors := 0, 0

	for _, f := range s {
		if f.Name == "" {
			return errors.New("schema field with empty name")
		}
		if _, dup := names[f.Name]; dup {
			return fmt.Errorf("duplicate field name %q", f.Name)
		}
		names[f.Name] = struct{}{}

		switch f.Type {
		case FieldTypeInt64:
			if f.PrimaryKey {
				primaries++
			}
		case FieldTypeVarChar:
			if f.PrimaryKey {
				return fmt.Errorf("field %q: VarChar cannot be the primary field", f.Name)
			}
			if f.MaxLength <= 0 || f.MaxLength > MaxVarCharLength {
				return fmt.Errorf("field %q: invalid MaxLength %d", f.Name, f.MaxLength)
			}
		case FieldTypeFloatVector:
			if f.PrimaryKey {
				return fmt.Errorf("field %q: FloatVector cannot be the primary field", f.Name)
			}
			if f.Dim <= 0 {
				return fmt.Errorf("field %q: invalid dimension %d", f.Name, f.Dim)
			}
			vectors++
		default:
			return fmt.Errorf("field %q: unknown type", f.Name)
		}
	}

	if primaries != 1 {
		return fmt.Errorf("schema needs exactly one primary INT64 field, got %d", primaries)
	}
	if vectors != 1 {
		return fmt.Errorf("schema needs exactly one FloatVector field, got %d", vectors)
	}
	return nil
}

// Dimension returns the dimension of the vector field, or 0 if absent.
func (s Schema) Dimension() int {
	for _, f := range s {
		if f.Type == FieldTypeFloatVector {
			return f.Dim
		}
	}
	return 0
}

// Primary returns the primary field descriptor.
func (s Schema) Primary() (FieldSchema, bool) {
	for _, f := range s {
		if f.PrimaryKey {
			return f, true
		}
	}
	return FieldSchema{}, false
}

// ScalarFields returns the non-primary, non-vector fields in schema order.
func (s Schema) ScalarFields() []FieldSchema {
	out := make([]FieldSchema, 0, len(s))
	for _, f := range s {
		if f.PrimaryKey || f.Type == FieldTypeFloatVector {
			continue
		}
		out = append(out, f)
	}
	return out
}

// ValidateDocument checks a metadata document against the scalar fields:
// no undeclared fields, matching kinds, VarChar length within bounds.
func (s Schema) ValidateDocument(doc Document) error {
	for name, v := range doc {
		f, ok := s.field(name)
		if !ok {
			return fmt.Errorf("field %q not declared in schema", name)
		}
		switch f.Type {
		case FieldTypeInt64:
			if f.PrimaryKey {
				return fmt.Errorf("field %q: primary key does not belong in metadata", name)
			}
			if v.Kind != KindInt {
				return fmt.Errorf("field %q: expected Int64, got %s", name, v.Kind)
			}
		case FieldTypeVarChar:
			if v.Kind != KindString {
				return fmt.Errorf("field %q: expected VarChar, got %s", name, v.Kind)
			}
			if n := len([]rune(v.S)); n > f.MaxLength {
				return fmt.Errorf("field %q: length %d exceeds MaxLength %d", name, n, f.MaxLength)
			}
		case FieldTypeFloatVector:
			return fmt.Errorf("field %q: vector data does not belong in metadata", name)
		}
	}
	return nil
}

func (s Schema) field(name string) (FieldSchema, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSchema{}, false
}
