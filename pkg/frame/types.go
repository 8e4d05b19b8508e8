// Package frame is the in-memory dataframe model consumed and produced by
// the transcoding engine: column types, schemas, typed column buffers with
// validity masks, and conversion to and from Apache Arrow records.
package frame

import (
	"strings"

	"github.com/ajitpratap0/arrowhouse/pkg/errors"
	stringpool "github.com/ajitpratap0/arrowhouse/pkg/strings"
)

// Separator joins struct field names into flattened column names.
const Separator = "."

// Kind identifies the variant of a ColumnType.
type Kind int

const (
	KindInvalid Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindUUID
	KindCategorical
	KindStruct
	KindList
	KindNullable
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindBool:
		return "Bool"
	case KindString:
		return "String"
	case KindUUID:
		return "Uuid"
	case KindCategorical:
		return "Categorical"
	case KindStruct:
		return "Struct"
	case KindList:
		return "List"
	case KindNullable:
		return "Nullable"
	}
	return "Invalid"
}

// Field is a named ColumnType, used for struct fields and schema entries.
type Field struct {
	Name string
	Type ColumnType
}

// ColumnType is the local type of a column.
//
// Int carries Bits and Signed, Float carries Bits. List and Nullable wrap
// Elem. Struct carries ordered Fields. Categorical is a dictionary-encoded
// string column.
type ColumnType struct {
	Kind   Kind
	Bits   int
	Signed bool
	Elem   *ColumnType
	Fields []Field
}

// Int returns an integer type of the given width (8, 16, 32 or 64).
func Int(bits int, signed bool) ColumnType {
	return ColumnType{Kind: KindInt, Bits: bits, Signed: signed}
}

// Float returns a float type of the given width (32 or 64).
func Float(bits int) ColumnType {
	return ColumnType{Kind: KindFloat, Bits: bits, Signed: true}
}

func Bool() ColumnType        { return ColumnType{Kind: KindBool} }
func String() ColumnType      { return ColumnType{Kind: KindString} }
func UUID() ColumnType        { return ColumnType{Kind: KindUUID} }
func Categorical() ColumnType { return ColumnType{Kind: KindCategorical} }

// StructOf returns a struct type with the given fields.
func StructOf(fields ...Field) ColumnType {
	return ColumnType{Kind: KindStruct, Fields: append([]Field(nil), fields...)}
}

// ListOf returns a list type.
func ListOf(elem ColumnType) ColumnType {
	return ColumnType{Kind: KindList, Elem: &elem}
}

// NullableOf marks t nullable. Wrapping an already nullable type returns
// it unchanged.
func NullableOf(t ColumnType) ColumnType {
	if t.Kind == KindNullable {
		return t
	}
	return ColumnType{Kind: KindNullable, Elem: &t}
}

// IsNullable reports whether t is a Nullable wrapper.
func (t ColumnType) IsNullable() bool {
	return t.Kind == KindNullable
}

// StripNullable returns the type inside a Nullable wrapper, or t.
func (t ColumnType) StripNullable() ColumnType {
	if t.Kind == KindNullable && t.Elem != nil {
		return *t.Elem
	}
	return t
}

// Equal reports structural equality.
func (t ColumnType) Equal(o ColumnType) bool {
	if t.Kind != o.Kind || t.Bits != o.Bits || t.Signed != o.Signed {
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

// String renders t, e.g. "Nullable(List(Int32))" or
// "Struct{a: UInt8, b: String}".
func (t ColumnType) String() string {
	switch t.Kind {
	case KindInt:
		if t.Signed {
			return stringpool.Sprintf("Int%d", t.Bits)
		}
		return stringpool.Sprintf("UInt%d", t.Bits)
	case KindFloat:
		return stringpool.Sprintf("Float%d", t.Bits)
	case KindList, KindNullable:
		if t.Elem == nil {
			return t.Kind.String() + "(?)"
		}
		return t.Kind.String() + "(" + t.Elem.String() + ")"
	case KindStruct:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.Name + ": " + f.Type.String()
		}
		return "Struct{" + stringpool.JoinPooled(parts, ", ") + "}"
	}
	return t.Kind.String()
}

// Validate checks the structural invariants of t: no Nullable inside
// Nullable, no List directly inside List, non-empty structs with unique,
// non-empty field names free of the separator, and valid numeric widths.
func (t ColumnType) Validate() error {
	switch t.Kind {
	case KindInt:
		switch t.Bits {
		case 8, 16, 32, 64:
			return nil
		}
		return unsupported(t, "integer width must be 8, 16, 32 or 64")
	case KindFloat:
		if t.Bits == 32 || t.Bits == 64 {
			return nil
		}
		return unsupported(t, "float width must be 32 or 64")
	case KindBool, KindString, KindUUID, KindCategorical:
		return nil
	case KindNullable:
		if t.Elem == nil {
			return unsupported(t, "Nullable without inner type")
		}
		if t.Elem.Kind == KindNullable {
			return unsupported(t, "Nullable cannot wrap Nullable")
		}
		return t.Elem.Validate()
	case KindList:
		if t.Elem == nil {
			return unsupported(t, "List without element type")
		}
		if t.Elem.StripNullable().Kind == KindList {
			return unsupported(t, "nested lists are not supported")
		}
		return t.Elem.Validate()
	case KindStruct:
		if len(t.Fields) == 0 {
			return unsupported(t, "struct must have at least one field")
		}
		seen := make(map[string]struct{}, len(t.Fields))
		for _, f := range t.Fields {
			if err := ValidateName(f.Name); err != nil {
				return err
			}
			if _, dup := seen[f.Name]; dup {
				return errors.Newf(errors.ErrorTypeSchemaConflict, "duplicate struct field %q", f.Name).
					WithDataType(t.String())
			}
			seen[f.Name] = struct{}{}
			if err := f.Type.Validate(); err != nil {
				return errors.InColumn(err, f.Name)
			}
		}
		return nil
	}
	return unsupported(t, "invalid column type")
}

// ValidateName rejects empty names and names containing the separator.
func ValidateName(name string) error {
	if name == "" {
		return errors.New(errors.ErrorTypeSchemaConflict, "empty column name")
	}
	if strings.Contains(name, Separator) {
		return errors.Newf(errors.ErrorTypeSchemaConflict, "name %q contains the separator %q", name, Separator).
			WithColumn(name)
	}
	return nil
}

func unsupported(t ColumnType, msg string) error {
	return errors.New(errors.ErrorTypeUnsupportedType, msg).WithDataType(t.String())
}

// Schema is an ordered list of top-level columns.
type Schema []Field

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Validate checks top-level name uniqueness and every column type.
func (s Schema) Validate() error {
	seen := make(map[string]struct{}, len(s))
	for _, f := range s {
		if err := ValidateName(f.Name); err != nil {
			return err
		}
		if _, dup := seen[f.Name]; dup {
			return errors.Newf(errors.ErrorTypeSchemaConflict, "duplicate column %q", f.Name).WithColumn(f.Name)
		}
		seen[f.Name] = struct{}{}
		if err := f.Type.Validate(); err != nil {
			return errors.InColumn(err, f.Name)
		}
	}
	return nil
}

// Equal reports whether both schemas list the same fields in order.
func (s Schema) Equal(o Schema) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i].Name != o[i].Name || !s[i].Type.Equal(o[i].Type) {
			return false
		}
	}
	return true
}
