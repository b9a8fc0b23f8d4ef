package metadata

import (
	"fmt"
	"strconv"
)

// Kind identifies the concrete type stored in a Value.
type Kind uint8

const (
	// KindInvalid represents an invalid kind.
	KindInvalid Kind = iota
	// KindInt represents an integer value.
	KindInt
	// KindString represents a string value.
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "Int"
	case KindString:
		return "String"
	default:
		return "Invalid"
	}
}

// Value is a small typed value used for metadata documents and filters.
//
// The representation is designed to make filtering fast and predictable:
// no reflection and no fmt-based stringification on the hot path.
type Value struct {
	Kind Kind
	I64  int64
	S    string
}

// Int returns an integer Value.
func Int(v int64) Value {
	return Value{Kind: KindInt, I64: v}
}

// String returns a string Value.
func String(s string) Value {
	return Value{Kind: KindString, S: s}
}

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindInt:
		return v.I64 == other.I64
	case KindString:
		return v.S == other.S
	default:
		return false
	}
}

// Key returns a stable string key for use in filter index maps.
// Kinds are prefixed so Int(1) and String("1") never collide.
func (v Value) Key() string {
	switch v.Kind {
	case KindInt:
		return "i:" + strconv.FormatInt(v.I64, 10)
	case KindString:
		return "s:" + v.S
	default:
		return "invalid"
	}
}

func (v Value) GoString() string {
	switch v.Kind {
	case KindInt:
		return fmt.Sprintf("metadata.Int(%d)", v.I64)
	case KindString:
		return fmt.Sprintf("metadata.String(%q)", v.S)
	default:
		return "metadata.Value{}"
	}
}

// Document is an ordered-by-schema mapping of field names to values.
type Document map[string]Value
