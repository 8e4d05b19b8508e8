package frame

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/arrowhouse/pkg/errors"
)

// Arrow has no UUID storage type in the subset we read and write, so UUID
// columns travel as strings tagged with this field metadata.
const (
	MetadataTypeKey = "arrowhouse.type"
	metadataUUID    = "uuid"
)

var uuidMetadata = arrow.NewMetadata([]string{MetadataTypeKey}, []string{metadataUUID})

// TypeFromArrow maps an Arrow field to a ColumnType. Nullable Arrow fields
// become Nullable columns.
func TypeFromArrow(f arrow.Field) (ColumnType, error) {
	t, err := typeFromArrow(f.Type, f.Metadata)
	if err != nil {
		return ColumnType{}, errors.InColumn(err, f.Name)
	}
	if f.Nullable {
		t = NullableOf(t)
	}
	return t, nil
}

func typeFromArrow(dt arrow.DataType, md arrow.Metadata) (ColumnType, error) {
	switch dt.ID() {
	case arrow.INT8:
		return Int(8, true), nil
	case arrow.INT16:
		return Int(16, true), nil
	case arrow.INT32:
		return Int(32, true), nil
	case arrow.INT64:
		return Int(64, true), nil
	case arrow.UINT8:
		return Int(8, false), nil
	case arrow.UINT16:
		return Int(16, false), nil
	case arrow.UINT32:
		return Int(32, false), nil
	case arrow.UINT64:
		return Int(64, false), nil
	case arrow.FLOAT32:
		return Float(32), nil
	case arrow.FLOAT64:
		return Float(64), nil
	case arrow.BOOL:
		return Bool(), nil
	case arrow.STRING, arrow.LARGE_STRING:
		if i := md.FindKey(MetadataTypeKey); i >= 0 && md.Values()[i] == metadataUUID {
			return UUID(), nil
		}
		return String(), nil
	case arrow.DICTIONARY:
		dict := dt.(*arrow.DictionaryType)
		if id := dict.ValueType.ID(); id != arrow.STRING && id != arrow.LARGE_STRING {
			return ColumnType{}, arrowUnsupported(dt, "only string dictionaries are supported")
		}
		return Categorical(), nil
	case arrow.STRUCT:
		st := dt.(*arrow.StructType)
		fields := make([]Field, 0, st.NumFields())
		for _, f := range st.Fields() {
			ft, err := TypeFromArrow(f)
			if err != nil {
				return ColumnType{}, err
			}
			fields = append(fields, Field{Name: f.Name, Type: ft})
		}
		t := StructOf(fields...)
		return t, t.Validate()
	case arrow.LIST:
		elem, err := TypeFromArrow(dt.(*arrow.ListType).ElemField())
		if err != nil {
			return ColumnType{}, err
		}
		t := ListOf(elem)
		return t, t.Validate()
	case arrow.LARGE_LIST:
		elem, err := TypeFromArrow(dt.(*arrow.LargeListType).ElemField())
		if err != nil {
			return ColumnType{}, err
		}
		t := ListOf(elem)
		return t, t.Validate()
	}
	return ColumnType{}, arrowUnsupported(dt, "no column type for Arrow type")
}

func arrowUnsupported(dt arrow.DataType, msg string) error {
	return errors.New(errors.ErrorTypeUnsupportedType, msg).WithDataType(dt.String())
}

// FieldToArrow maps a named ColumnType to an Arrow field.
func FieldToArrow(name string, t ColumnType) (arrow.Field, error) {
	f := arrow.Field{Name: name, Nullable: t.IsNullable()}
	base := t.StripNullable()
	switch base.Kind {
	case KindInt:
		switch {
		case base.Bits == 8 && base.Signed:
			f.Type = arrow.PrimitiveTypes.Int8
		case base.Bits == 16 && base.Signed:
			f.Type = arrow.PrimitiveTypes.Int16
		case base.Bits == 32 && base.Signed:
			f.Type = arrow.PrimitiveTypes.Int32
		case base.Bits == 64 && base.Signed:
			f.Type = arrow.PrimitiveTypes.Int64
		case base.Bits == 8:
			f.Type = arrow.PrimitiveTypes.Uint8
		case base.Bits == 16:
			f.Type = arrow.PrimitiveTypes.Uint16
		case base.Bits == 32:
			f.Type = arrow.PrimitiveTypes.Uint32
		case base.Bits == 64:
			f.Type = arrow.PrimitiveTypes.Uint64
		default:
			return f, unsupported(t, "integer width must be 8, 16, 32 or 64")
		}
	case KindFloat:
		if base.Bits == 32 {
			f.Type = arrow.PrimitiveTypes.Float32
		} else {
			f.Type = arrow.PrimitiveTypes.Float64
		}
	case KindBool:
		f.Type = arrow.FixedWidthTypes.Boolean
	case KindString:
		f.Type = arrow.BinaryTypes.String
	case KindUUID:
		f.Type = arrow.BinaryTypes.String
		f.Metadata = uuidMetadata
	case KindCategorical:
		f.Type = &arrow.DictionaryType{
			IndexType: arrow.PrimitiveTypes.Int32,
			ValueType: arrow.BinaryTypes.String,
		}
	case KindStruct:
		fields := make([]arrow.Field, len(base.Fields))
		for i, sf := range base.Fields {
			af, err := FieldToArrow(sf.Name, sf.Type)
			if err != nil {
				return f, errors.InColumn(err, name)
			}
			fields[i] = af
		}
		f.Type = arrow.StructOf(fields...)
	case KindList:
		elem, err := FieldToArrow("item", *base.Elem)
		if err != nil {
			return f, errors.InColumn(err, name)
		}
		f.Type = arrow.ListOfField(elem)
	default:
		return f, unsupported(t, "no Arrow type for column type")
	}
	return f, nil
}

// SchemaToArrow maps a schema to an Arrow schema.
func SchemaToArrow(s Schema) (*arrow.Schema, error) {
	fields := make([]arrow.Field, len(s))
	for i, f := range s {
		af, err := FieldToArrow(f.Name, f.Type)
		if err != nil {
			return nil, err
		}
		fields[i] = af
	}
	return arrow.NewSchema(fields, nil), nil
}

// FromRecord copies an Arrow record into a frame.
func FromRecord(rec arrow.Record) (*Frame, error) {
	schema := rec.Schema()
	cols := make([]*Column, 0, rec.NumCols())
	for i, f := range schema.Fields() {
		col, err := ColumnFromArrow(f, rec.Column(i))
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return New(cols...)
}

// ColumnFromArrow copies one Arrow array into a column.
func ColumnFromArrow(f arrow.Field, arr arrow.Array) (*Column, error) {
	t, err := TypeFromArrow(f)
	if err != nil {
		return nil, err
	}
	col, err := columnFromArrow(f.Name, t, arr)
	if err != nil {
		return nil, errors.InColumn(err, f.Name)
	}
	return col, nil
}

func columnFromArrow(name string, t ColumnType, arr arrow.Array) (*Column, error) {
	n := arr.Len()
	col := &Column{Name: name, Type: t}
	if arr.NullN() > 0 {
		if !t.IsNullable() {
			return nil, errors.Newf(errors.ErrorTypeValidation, "%d nulls in non-nullable Arrow field", arr.NullN()).
				WithDataType(t.String())
		}
		col.Valid = make([]bool, n)
		for i := 0; i < n; i++ {
			col.Valid[i] = arr.IsValid(i)
		}
	}

	base := t.StripNullable()
	switch base.Kind {
	case KindStruct:
		sa, ok := arr.(*array.Struct)
		if !ok {
			return nil, arrayMismatch(t, arr)
		}
		col.Children = make([]*Column, len(base.Fields))
		for i, sf := range base.Fields {
			child, err := columnFromArrow(sf.Name, sf.Type, sa.Field(i))
			if err != nil {
				return nil, errors.InColumn(err, sf.Name)
			}
			col.Children[i] = child
		}
		return col, nil
	case KindList:
		la, ok := arr.(array.ListLike)
		if !ok {
			return nil, arrayMismatch(t, arr)
		}
		col.Offsets = make([]int, n+1)
		for i := 0; i < n; i++ {
			start, end := la.ValueOffsets(i)
			col.Offsets[i] = int(start)
			col.Offsets[i+1] = int(end)
		}
		elem, err := columnFromArrow("item", *base.Elem, la.ListValues())
		if err != nil {
			return nil, err
		}
		col.Children = []*Column{elem}
		return col, nil
	case KindCategorical:
		da, ok := arr.(*array.Dictionary)
		if !ok {
			return nil, arrayMismatch(t, arr)
		}
		dict, ok := da.Dictionary().(interface{ Value(int) string })
		if !ok {
			return nil, arrayMismatch(t, arr)
		}
		values := make([]string, n)
		for i := 0; i < n; i++ {
			if da.IsValid(i) {
				values[i] = dict.Value(da.GetValueIndex(i))
			}
		}
		col.Values = values
		return col, nil
	case KindString, KindUUID:
		sa, ok := arr.(interface{ Value(int) string })
		if !ok {
			return nil, arrayMismatch(t, arr)
		}
		values := make([]string, n)
		for i := 0; i < n; i++ {
			if arr.IsValid(i) {
				values[i] = sa.Value(i)
			}
		}
		col.Values = values
		return col, nil
	case KindBool:
		ba, ok := arr.(*array.Boolean)
		if !ok {
			return nil, arrayMismatch(t, arr)
		}
		values := make([]bool, n)
		for i := 0; i < n; i++ {
			values[i] = ba.Value(i)
		}
		col.Values = values
		return col, nil
	}

	var values interface{}
	switch a := arr.(type) {
	case *array.Int8:
		values = copyOf(a.Int8Values())
	case *array.Int16:
		values = copyOf(a.Int16Values())
	case *array.Int32:
		values = copyOf(a.Int32Values())
	case *array.Int64:
		values = copyOf(a.Int64Values())
	case *array.Uint8:
		values = copyOf(a.Uint8Values())
	case *array.Uint16:
		values = copyOf(a.Uint16Values())
	case *array.Uint32:
		values = copyOf(a.Uint32Values())
	case *array.Uint64:
		values = copyOf(a.Uint64Values())
	case *array.Float32:
		values = copyOf(a.Float32Values())
	case *array.Float64:
		values = copyOf(a.Float64Values())
	default:
		return nil, arrayMismatch(t, arr)
	}
	if !valuesMatch(base, values) {
		return nil, arrayMismatch(t, arr)
	}
	col.Values = values
	return col, nil
}

func arrayMismatch(t ColumnType, arr arrow.Array) error {
	return errors.Newf(errors.ErrorTypeTypeMismatch, "arrow array %s does not hold %s", arr.DataType(), t).
		WithDataType(t.String())
}

func copyOf[T any](s []T) []T {
	out := make([]T, len(s))
	copy(out, s)
	return out
}

// ToRecord builds an Arrow record from the frame. The caller must Release it.
func (f *Frame) ToRecord(mem memory.Allocator) (arrow.Record, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	schema, err := SchemaToArrow(f.Schema())
	if err != nil {
		return nil, err
	}
	rb := array.NewRecordBuilder(mem, schema)
	defer rb.Release()

	for i, c := range f.Columns {
		if err := appendColumn(rb.Field(i), c); err != nil {
			return nil, errors.InColumn(err, c.Name)
		}
	}
	return rb.NewRecord(), nil
}

func appendColumn(b array.Builder, c *Column) error {
	base := c.Type.StripNullable()
	switch base.Kind {
	case KindStruct:
		sb, ok := b.(*array.StructBuilder)
		if !ok {
			return builderMismatch(c, b)
		}
		n := c.Len()
		valid := c.Valid
		if valid == nil {
			valid = make([]bool, n)
			for i := range valid {
				valid[i] = true
			}
		}
		sb.AppendValues(valid)
		for i, ch := range c.Children {
			if err := appendColumn(sb.FieldBuilder(i), ch); err != nil {
				return errors.InColumn(err, ch.Name)
			}
		}
		return nil
	case KindList:
		lb, ok := b.(*array.ListBuilder)
		if !ok {
			return builderMismatch(c, b)
		}
		elem := c.Elem()
		for i := 0; i < c.Len(); i++ {
			if !c.IsValid(i) {
				lb.AppendNull()
				continue
			}
			lb.Append(true)
			if err := appendColumn(lb.ValueBuilder(), elem.Slice(c.Offsets[i], c.Offsets[i+1])); err != nil {
				return err
			}
		}
		return nil
	case KindCategorical:
		db, ok := b.(*array.BinaryDictionaryBuilder)
		if !ok {
			return builderMismatch(c, b)
		}
		for i, s := range c.Values.([]string) {
			if !c.IsValid(i) {
				db.AppendNull()
				continue
			}
			if err := db.AppendString(s); err != nil {
				return errors.Wrap(err, errors.ErrorTypeInternal, "failed to append dictionary value")
			}
		}
		return nil
	}

	switch bb := b.(type) {
	case *array.Int8Builder:
		bb.AppendValues(c.Values.([]int8), c.Valid)
	case *array.Int16Builder:
		bb.AppendValues(c.Values.([]int16), c.Valid)
	case *array.Int32Builder:
		bb.AppendValues(c.Values.([]int32), c.Valid)
	case *array.Int64Builder:
		bb.AppendValues(c.Values.([]int64), c.Valid)
	case *array.Uint8Builder:
		bb.AppendValues(c.Values.([]uint8), c.Valid)
	case *array.Uint16Builder:
		bb.AppendValues(c.Values.([]uint16), c.Valid)
	case *array.Uint32Builder:
		bb.AppendValues(c.Values.([]uint32), c.Valid)
	case *array.Uint64Builder:
		bb.AppendValues(c.Values.([]uint64), c.Valid)
	case *array.Float32Builder:
		bb.AppendValues(c.Values.([]float32), c.Valid)
	case *array.Float64Builder:
		bb.AppendValues(c.Values.([]float64), c.Valid)
	case *array.BooleanBuilder:
		bb.AppendValues(c.Values.([]bool), c.Valid)
	case *array.StringBuilder:
		bb.AppendValues(c.Values.([]string), c.Valid)
	default:
		return builderMismatch(c, b)
	}
	return nil
}

func builderMismatch(c *Column, b array.Builder) error {
	return errors.Newf(errors.ErrorTypeTypeMismatch, "cannot append %s to %T", c.Type, b).
		WithDataType(c.Type.String())
}
