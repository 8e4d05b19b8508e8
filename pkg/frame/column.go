package frame

import (
	"reflect"

	"github.com/ajitpratap0/arrowhouse/pkg/errors"
)

// Column is a named, typed column of a frame.
//
// The payload depends on the type with any Nullable wrapper removed:
//
//	Int, Float      Values holds []int8 ... []uint64, []float32 or []float64
//	Bool            Values holds []bool
//	String, Uuid,
//	Categorical     Values holds []string
//	List            Offsets (rows+1 entries) index into Children[0]
//	Struct          Children holds one column per field, each with the
//	                same number of rows as the struct
//
// Valid is the row validity mask of a Nullable column; nil means every row
// is valid. Values stored at invalid slots are padding and must be ignored.
// Offsets are non-decreasing but need not start at zero, so a slice of a
// list column shares its element column.
type Column struct {
	Name     string
	Type     ColumnType
	Valid    []bool
	Values   interface{}
	Offsets  []int
	Children []*Column
}

// NewColumn builds a scalar column. Pass a nil validity mask for columns
// without nulls.
func NewColumn(name string, t ColumnType, values interface{}, valid []bool) *Column {
	return &Column{Name: name, Type: t, Values: values, Valid: valid}
}

// NewList builds a list column from offsets into elem.
func NewList(name string, t ColumnType, offsets []int, elem *Column, valid []bool) *Column {
	return &Column{Name: name, Type: t, Offsets: offsets, Children: []*Column{elem}, Valid: valid}
}

// NewStruct builds a struct column from its field columns.
func NewStruct(name string, t ColumnType, fields []*Column, valid []bool) *Column {
	return &Column{Name: name, Type: t, Children: fields, Valid: valid}
}

// Len returns the number of rows.
func (c *Column) Len() int {
	switch c.Type.StripNullable().Kind {
	case KindList:
		if len(c.Offsets) == 0 {
			return 0
		}
		return len(c.Offsets) - 1
	case KindStruct:
		if len(c.Children) == 0 {
			return 0
		}
		return c.Children[0].Len()
	}
	return valuesLen(c.Values)
}

// IsValid reports whether row i is non-null.
func (c *Column) IsValid(i int) bool {
	return c.Valid == nil || c.Valid[i]
}

// NullCount returns the number of null rows.
func (c *Column) NullCount() int {
	n := 0
	for _, v := range c.Valid {
		if !v {
			n++
		}
	}
	return n
}

// Elem returns the element column of a list column.
func (c *Column) Elem() *Column {
	if len(c.Children) == 0 {
		return nil
	}
	return c.Children[0]
}

// Field returns the child column of a struct column by name.
func (c *Column) Field(name string) (*Column, bool) {
	for _, ch := range c.Children {
		if ch.Name == name {
			return ch, true
		}
	}
	return nil, false
}

// Validate checks that the payload matches the type: value slice element
// type and length, mask length, offsets shape and struct children.
func (c *Column) Validate() error {
	if err := c.validate(); err != nil {
		return errors.InColumn(err, c.Name)
	}
	return nil
}

func (c *Column) validate() error {
	base := c.Type.StripNullable()
	n := c.Len()
	if c.Valid != nil {
		if !c.Type.IsNullable() {
			return invalid(c, "validity mask on a non-nullable column")
		}
		if len(c.Valid) != n {
			return invalid(c, "validity mask has %d entries for %d rows", len(c.Valid), n)
		}
	}

	switch base.Kind {
	case KindList:
		if len(c.Offsets) == 0 {
			return invalid(c, "list column without offsets")
		}
		elem := c.Elem()
		if elem == nil || len(c.Children) != 1 {
			return invalid(c, "list column must have exactly one element column")
		}
		if !elem.Type.Equal(*base.Elem) {
			return invalid(c, "element column has type %s", elem.Type)
		}
		if c.Offsets[0] < 0 {
			return invalid(c, "negative list offset")
		}
		for i := 1; i < len(c.Offsets); i++ {
			if c.Offsets[i] < c.Offsets[i-1] {
				return invalid(c, "list offsets decrease at row %d", i-1)
			}
		}
		if last := c.Offsets[len(c.Offsets)-1]; last > elem.Len() {
			return invalid(c, "list offsets reach %d past %d elements", last, elem.Len())
		}
		return elem.Validate()
	case KindStruct:
		if len(c.Children) != len(base.Fields) {
			return invalid(c, "struct has %d children for %d fields", len(c.Children), len(base.Fields))
		}
		for i, f := range base.Fields {
			ch := c.Children[i]
			if ch.Name != f.Name || !ch.Type.Equal(f.Type) {
				return invalid(c, "child %d is %s %s, want %s %s", i, ch.Name, ch.Type, f.Name, f.Type)
			}
			if ch.Len() != n {
				return invalid(c, "field %q has %d rows, struct has %d", f.Name, ch.Len(), n)
			}
			if err := ch.Validate(); err != nil {
				return err
			}
		}
		return nil
	}

	if !valuesMatch(base, c.Values) {
		return invalid(c, "values of Go type %T do not match %s", c.Values, base)
	}
	return nil
}

func invalid(c *Column, format string, args ...interface{}) error {
	return errors.Newf(errors.ErrorTypeValidation, format, args...).WithDataType(c.Type.String())
}

// Slice returns rows [start, end) sharing storage with c.
func (c *Column) Slice(start, end int) *Column {
	out := &Column{Name: c.Name, Type: c.Type}
	if c.Valid != nil {
		out.Valid = c.Valid[start:end]
	}
	switch c.Type.StripNullable().Kind {
	case KindList:
		out.Offsets = c.Offsets[start : end+1]
		out.Children = c.Children
	case KindStruct:
		out.Children = make([]*Column, len(c.Children))
		for i, ch := range c.Children {
			out.Children[i] = ch.Slice(start, end)
		}
	default:
		out.Values = sliceValues(c.Values, start, end)
	}
	return out
}

// Take returns a new column holding rows at the given indices, in order.
func (c *Column) Take(indices []int) *Column {
	out := &Column{Name: c.Name, Type: c.Type}
	if c.Valid != nil {
		out.Valid = take(c.Valid, indices)
	}
	switch c.Type.StripNullable().Kind {
	case KindList:
		offsets := make([]int, 1, len(indices)+1)
		var elemIdx []int
		for _, i := range indices {
			for j := c.Offsets[i]; j < c.Offsets[i+1]; j++ {
				elemIdx = append(elemIdx, j)
			}
			offsets = append(offsets, len(elemIdx))
		}
		out.Offsets = offsets
		out.Children = []*Column{c.Elem().Take(elemIdx)}
	case KindStruct:
		out.Children = make([]*Column, len(c.Children))
		for i, ch := range c.Children {
			out.Children[i] = ch.Take(indices)
		}
	default:
		out.Values = takeValues(c.Values, indices)
	}
	return out
}

// NewValues allocates an empty value slice of the Go type used for t.
func NewValues(t ColumnType, n int) interface{} {
	switch t.Kind {
	case KindInt:
		switch {
		case t.Bits == 8 && t.Signed:
			return make([]int8, n)
		case t.Bits == 16 && t.Signed:
			return make([]int16, n)
		case t.Bits == 32 && t.Signed:
			return make([]int32, n)
		case t.Bits == 64 && t.Signed:
			return make([]int64, n)
		case t.Bits == 8:
			return make([]uint8, n)
		case t.Bits == 16:
			return make([]uint16, n)
		case t.Bits == 32:
			return make([]uint32, n)
		case t.Bits == 64:
			return make([]uint64, n)
		}
	case KindFloat:
		if t.Bits == 32 {
			return make([]float32, n)
		}
		return make([]float64, n)
	case KindBool:
		return make([]bool, n)
	case KindString, KindUUID, KindCategorical:
		return make([]string, n)
	}
	return nil
}

func valuesMatch(t ColumnType, values interface{}) bool {
	want := NewValues(t, 0)
	if want == nil {
		return false
	}
	return sameSliceType(want, values)
}

func sameSliceType(a, b interface{}) bool {
	switch a.(type) {
	case []int8:
		_, ok := b.([]int8)
		return ok
	case []int16:
		_, ok := b.([]int16)
		return ok
	case []int32:
		_, ok := b.([]int32)
		return ok
	case []int64:
		_, ok := b.([]int64)
		return ok
	case []uint8:
		_, ok := b.([]uint8)
		return ok
	case []uint16:
		_, ok := b.([]uint16)
		return ok
	case []uint32:
		_, ok := b.([]uint32)
		return ok
	case []uint64:
		_, ok := b.([]uint64)
		return ok
	case []float32:
		_, ok := b.([]float32)
		return ok
	case []float64:
		_, ok := b.([]float64)
		return ok
	case []bool:
		_, ok := b.([]bool)
		return ok
	case []string:
		_, ok := b.([]string)
		return ok
	}
	return false
}

func valuesLen(values interface{}) int {
	switch v := values.(type) {
	case []int8:
		return len(v)
	case []int16:
		return len(v)
	case []int32:
		return len(v)
	case []int64:
		return len(v)
	case []uint8:
		return len(v)
	case []uint16:
		return len(v)
	case []uint32:
		return len(v)
	case []uint64:
		return len(v)
	case []float32:
		return len(v)
	case []float64:
		return len(v)
	case []bool:
		return len(v)
	case []string:
		return len(v)
	}
	return 0
}

func sliceValues(values interface{}, start, end int) interface{} {
	switch v := values.(type) {
	case []int8:
		return v[start:end]
	case []int16:
		return v[start:end]
	case []int32:
		return v[start:end]
	case []int64:
		return v[start:end]
	case []uint8:
		return v[start:end]
	case []uint16:
		return v[start:end]
	case []uint32:
		return v[start:end]
	case []uint64:
		return v[start:end]
	case []float32:
		return v[start:end]
	case []float64:
		return v[start:end]
	case []bool:
		return v[start:end]
	case []string:
		return v[start:end]
	}
	return values
}

func takeValues(values interface{}, idx []int) interface{} {
	switch v := values.(type) {
	case []int8:
		return take(v, idx)
	case []int16:
		return take(v, idx)
	case []int32:
		return take(v, idx)
	case []int64:
		return take(v, idx)
	case []uint8:
		return take(v, idx)
	case []uint16:
		return take(v, idx)
	case []uint32:
		return take(v, idx)
	case []uint64:
		return take(v, idx)
	case []float32:
		return take(v, idx)
	case []float64:
		return take(v, idx)
	case []bool:
		return take(v, idx)
	case []string:
		return take(v, idx)
	}
	return values
}

func take[T any](s []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = s[j]
	}
	return out
}

// Constant builds a scalar column repeating value n times. A nil value
// yields an all-null column and requires a nullable type. Numeric values are
// converted to the column's Go element type when representable.
func Constant(name string, t ColumnType, value interface{}, n int) (*Column, error) {
	base := t.StripNullable()
	values := NewValues(base, n)
	if values == nil {
		return nil, errors.Newf(errors.ErrorTypeValidation, "constant columns must be scalar, got %s", t).
			WithColumn(name)
	}
	col := &Column{Name: name, Type: t, Values: values}
	if value == nil {
		if !t.IsNullable() {
			return nil, errors.New(errors.ErrorTypeValidation, "null constant for non-nullable column").
				WithColumn(name).WithDataType(t.String())
		}
		col.Valid = make([]bool, n)
		return col, nil
	}

	slice := reflect.ValueOf(values)
	v := reflect.ValueOf(value)
	elemType := slice.Type().Elem()
	switch {
	case v.Type() == elemType:
	case v.CanConvert(elemType) && isNumeric(v.Kind()) && isNumeric(elemType.Kind()):
		converted := v.Convert(elemType)
		if !reflect.DeepEqual(converted.Convert(v.Type()).Interface(), value) {
			return nil, errors.Newf(errors.ErrorTypeValidation, "constant %v does not fit %s", value, t).
				WithColumn(name)
		}
		v = converted
	default:
		return nil, errors.Newf(errors.ErrorTypeValidation, "constant of Go type %T does not match %s", value, t).
			WithColumn(name)
	}
	for i := 0; i < n; i++ {
		slice.Index(i).Set(v)
	}
	return col, nil
}

func isNumeric(k reflect.Kind) bool {
	return (k >= reflect.Int && k <= reflect.Uint64) || k == reflect.Float32 || k == reflect.Float64
}
