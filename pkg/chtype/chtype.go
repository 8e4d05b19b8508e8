// Package chtype models ClickHouse column types.
//
// A Type is a small tree: scalar kinds are leaves, and Nullable,
// LowCardinality, Array and Tuple wrap other types. Types are built with
// the constructors in this package, which reject nestings ClickHouse
// itself refuses (Nullable(Nullable(T)), Nullable(Array(T)) and so on), or
// parsed from the spelling the server reports in DESCRIBE TABLE and in
// result set metadata.
package chtype

import (
	"github.com/ajitpratap0/arrowhouse/pkg/errors"
	stringpool "github.com/ajitpratap0/arrowhouse/pkg/strings"
)

// Kind identifies the top-level constructor of a Type.
type Kind int

const (
	KindInvalid Kind = iota
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUInt8
	KindUInt16
	KindUInt32
	KindUInt64
	KindFloat32
	KindFloat64
	KindBool
	KindString
	KindFixedString
	KindUUID
	KindNullable
	KindLowCardinality
	KindArray
	KindTuple
	// KindUnsupported holds any valid ClickHouse type the engine has no
	// mapping for (dates, decimals, maps, enums ...). Its spelling is kept.
	KindUnsupported
)

var kindNames = map[Kind]string{
	KindInt8:           "Int8",
	KindInt16:          "Int16",
	KindInt32:          "Int32",
	KindInt64:          "Int64",
	KindUInt8:          "UInt8",
	KindUInt16:         "UInt16",
	KindUInt32:         "UInt32",
	KindUInt64:         "UInt64",
	KindFloat32:        "Float32",
	KindFloat64:        "Float64",
	KindBool:           "Bool",
	KindString:         "String",
	KindFixedString:    "FixedString",
	KindUUID:           "UUID",
	KindNullable:       "Nullable",
	KindLowCardinality: "LowCardinality",
	KindArray:          "Array",
	KindTuple:          "Tuple",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	if k == KindUnsupported {
		return "Unsupported"
	}
	return "Invalid"
}

// IsInteger reports whether k is one of the fixed-width integer kinds.
func (k Kind) IsInteger() bool {
	return k >= KindInt8 && k <= KindUInt64
}

// IsFloat reports whether k is Float32 or Float64.
func (k Kind) IsFloat() bool {
	return k == KindFloat32 || k == KindFloat64
}

// IsScalar reports whether k is a leaf kind.
func (k Kind) IsScalar() bool {
	return k >= KindInt8 && k <= KindUUID
}

// Signed reports whether an integer kind is signed. Floats are signed.
func (k Kind) Signed() bool {
	return (k >= KindInt8 && k <= KindInt64) || k.IsFloat()
}

// Bits returns the width of numeric kinds, 0 otherwise.
func (k Kind) Bits() int {
	switch k {
	case KindInt8, KindUInt8, KindBool:
		return 8
	case KindInt16, KindUInt16:
		return 16
	case KindInt32, KindUInt32, KindFloat32:
		return 32
	case KindInt64, KindUInt64, KindFloat64:
		return 64
	}
	return 0
}

// IntKind returns the integer kind with the given width and signedness.
func IntKind(bits int, signed bool) (Kind, bool) {
	var k Kind
	switch bits {
	case 8:
		k = KindInt8
	case 16:
		k = KindInt16
	case 32:
		k = KindInt32
	case 64:
		k = KindInt64
	default:
		return KindInvalid, false
	}
	if !signed {
		k += KindUInt8 - KindInt8
	}
	return k, true
}

// Field is a named element of a Tuple.
type Field struct {
	Name string
	Type Type
}

// Type is a ClickHouse column type.
type Type struct {
	Kind Kind
	// Length is the byte length of a FixedString.
	Length int
	// Elem is the wrapped type of Nullable, LowCardinality and Array.
	Elem *Type
	// Fields are the elements of a Tuple, in declaration order.
	Fields []Field
	// Spelling is the server's text for KindUnsupported.
	Spelling string
}

// Scalar types.
var (
	Int8    = Type{Kind: KindInt8}
	Int16   = Type{Kind: KindInt16}
	Int32   = Type{Kind: KindInt32}
	Int64   = Type{Kind: KindInt64}
	UInt8   = Type{Kind: KindUInt8}
	UInt16  = Type{Kind: KindUInt16}
	UInt32  = Type{Kind: KindUInt32}
	UInt64  = Type{Kind: KindUInt64}
	Float32 = Type{Kind: KindFloat32}
	Float64 = Type{Kind: KindFloat64}
	Bool    = Type{Kind: KindBool}
	String  = Type{Kind: KindString}
	UUID    = Type{Kind: KindUUID}
)

// FixedString returns FixedString(n).
func FixedString(n int) (Type, error) {
	if n <= 0 {
		return Type{}, errors.Newf(errors.ErrorTypeUnsupportedType, "FixedString length must be positive, got %d", n)
	}
	return Type{Kind: KindFixedString, Length: n}, nil
}

// Nullable wraps t. Nullable is only valid around scalar types.
func Nullable(t Type) (Type, error) {
	if !t.Kind.IsScalar() {
		return Type{}, errors.Newf(errors.ErrorTypeUnsupportedType, "Nullable(%s) is not a valid ClickHouse type", t).
			WithDataType(t.String())
	}
	return Type{Kind: KindNullable, Elem: &t}, nil
}

// LowCardinality wraps t, which must be a string, fixed string or numeric
// type, optionally Nullable.
func LowCardinality(t Type) (Type, error) {
	inner := t.StripNullable()
	if inner.Kind != KindString && inner.Kind != KindFixedString && !inner.Kind.IsInteger() && !inner.Kind.IsFloat() {
		return Type{}, errors.Newf(errors.ErrorTypeUnsupportedType, "LowCardinality(%s) is not a valid ClickHouse type", t).
			WithDataType(t.String())
	}
	return Type{Kind: KindLowCardinality, Elem: &t}, nil
}

// Array wraps t.
func Array(t Type) Type {
	return Type{Kind: KindArray, Elem: &t}
}

// Tuple builds a named tuple. Names must be non-empty and unique.
func Tuple(fields ...Field) (Type, error) {
	if len(fields) == 0 {
		return Type{}, errors.New(errors.ErrorTypeUnsupportedType, "Tuple requires at least one element")
	}
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return Type{}, errors.New(errors.ErrorTypeUnsupportedType, "unnamed Tuple elements are not supported")
		}
		if _, dup := seen[f.Name]; dup {
			return Type{}, errors.Newf(errors.ErrorTypeSchemaConflict, "duplicate Tuple element %q", f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return Type{Kind: KindTuple, Fields: append([]Field(nil), fields...)}, nil
}

// Unsupported records a type the engine does not map, keeping its spelling.
func Unsupported(spelling string) Type {
	return Type{Kind: KindUnsupported, Spelling: spelling}
}

// IsNullable reports whether values of t may be NULL: Nullable(T) and
// LowCardinality(Nullable(T)).
func (t Type) IsNullable() bool {
	switch t.Kind {
	case KindNullable:
		return true
	case KindLowCardinality:
		return t.Elem.Kind == KindNullable
	}
	return false
}

// AsNullable returns the nullable form of t: Nullable(T) for scalars and
// LowCardinality(Nullable(T)) for low cardinality columns. Arrays and
// tuples cannot hold NULL in ClickHouse.
func (t Type) AsNullable() (Type, error) {
	switch {
	case t.IsNullable():
		return t, nil
	case t.Kind == KindLowCardinality:
		inner, err := Nullable(*t.Elem)
		if err != nil {
			return Type{}, err
		}
		return LowCardinality(inner)
	}
	return Nullable(t)
}

// StripNullable returns the type wrapped by a top-level Nullable, or t.
func (t Type) StripNullable() Type {
	if t.Kind == KindNullable {
		return *t.Elem
	}
	return t
}

// StripLowCardinality returns the type wrapped by a top-level
// LowCardinality, or t.
func (t Type) StripLowCardinality() Type {
	if t.Kind == KindLowCardinality {
		return *t.Elem
	}
	return t
}

// Base removes LowCardinality and Nullable wrappers.
func (t Type) Base() Type {
	return t.StripLowCardinality().StripNullable()
}

// Equal reports whether two types are structurally identical.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind || t.Length != o.Length || t.Spelling != o.Spelling {
		return false
	}
	if (t.Elem == nil) != (o.Elem == nil) {
		return false
	}
	if t.Elem != nil && !t.Elem.Equal(*o.Elem) {
		return false
	}
	if len(t.Fields) != len(o.Fields) {
		return false
	}
	for i := range t.Fields {
		if t.Fields[i].Name != o.Fields[i].Name || !t.Fields[i].Type.Equal(o.Fields[i].Type) {
			return false
		}
	}
	return true
}

// String renders the ClickHouse spelling of t.
func (t Type) String() string {
	b := stringpool.GetBuilder(stringpool.Small)
	defer stringpool.PutBuilder(b, stringpool.Small)
	t.write(b)
	return b.String()
}

func (t Type) write(b *stringpool.Builder) {
	switch t.Kind {
	case KindUnsupported:
		b.WriteString(t.Spelling)
	case KindFixedString:
		b.WriteString(stringpool.Sprintf("FixedString(%d)", t.Length))
	case KindNullable, KindLowCardinality, KindArray:
		b.WriteString(t.Kind.String())
		b.WriteByte('(')
		if t.Elem != nil {
			t.Elem.write(b)
		}
		b.WriteByte(')')
	case KindTuple:
		b.WriteString("Tuple(")
		for i, f := range t.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			if isPlainIdentifier(f.Name) {
				b.WriteString(f.Name)
			} else {
				b.WriteString(stringpool.QuoteIdentifier(f.Name))
			}
			b.WriteByte(' ')
			f.Type.write(b)
		}
		b.WriteByte(')')
	default:
		b.WriteString(t.Kind.String())
	}
}

func isPlainIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
