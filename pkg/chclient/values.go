package chclient

import (
	"reflect"

	"github.com/google/uuid"

	"github.com/ajitpratap0/arrowhouse/pkg/chtype"
	"github.com/ajitpratap0/arrowhouse/pkg/errors"
	"github.com/ajitpratap0/arrowhouse/pkg/transcode"
)

var (
	typeBool   = reflect.TypeOf(false)
	typeString = reflect.TypeOf("")
	typeUUID   = reflect.TypeOf(uuid.UUID{})
	typeTuple  = reflect.TypeOf(map[string]interface{}{})

	scalarTypes = map[chtype.Kind]reflect.Type{
		chtype.KindInt8:        reflect.TypeOf(int8(0)),
		chtype.KindInt16:       reflect.TypeOf(int16(0)),
		chtype.KindInt32:       reflect.TypeOf(int32(0)),
		chtype.KindInt64:       reflect.TypeOf(int64(0)),
		chtype.KindUInt8:       reflect.TypeOf(uint8(0)),
		chtype.KindUInt16:      reflect.TypeOf(uint16(0)),
		chtype.KindUInt32:      reflect.TypeOf(uint32(0)),
		chtype.KindUInt64:      reflect.TypeOf(uint64(0)),
		chtype.KindFloat32:     reflect.TypeOf(float32(0)),
		chtype.KindFloat64:     reflect.TypeOf(float64(0)),
		chtype.KindBool:        typeBool,
		chtype.KindString:      typeString,
		chtype.KindFixedString: typeString,
		chtype.KindUUID:        typeUUID,
	}
)

// goType is the Go type clickhouse-go accepts for one value of rt.
func goType(rt chtype.Type) reflect.Type {
	switch rt.Kind {
	case chtype.KindNullable:
		return reflect.PointerTo(goType(*rt.Elem))
	case chtype.KindLowCardinality:
		return goType(*rt.Elem)
	case chtype.KindArray:
		return reflect.SliceOf(goType(*rt.Elem))
	case chtype.KindTuple:
		return typeTuple
	}
	return scalarTypes[rt.Kind]
}

func hasTuple(rt chtype.Type) bool {
	switch rt.Kind {
	case chtype.KindTuple:
		return true
	case chtype.KindNullable, chtype.KindLowCardinality, chtype.KindArray:
		return hasTuple(*rt.Elem)
	}
	return false
}

// appendColumn hands one encoded column to the driver. Plain columns go in
// as one typed slice; columns containing tuples are appended row by row.
func appendColumn(col BatchColumn, buf *transcode.Buffer) error {
	if hasTuple(buf.Type) {
		for i := 0; i < buf.Len(); i++ {
			if err := col.AppendRow(rowValue(buf, i)); err != nil {
				return err
			}
		}
		return nil
	}
	return col.Append(columnValues(buf))
}

// columnValues converts a buffer into the slice form the driver accepts.
func columnValues(buf *transcode.Buffer) interface{} {
	switch buf.Type.Kind {
	case chtype.KindBool:
		data := buf.Data.([]uint8)
		out := make([]bool, len(data))
		for i, v := range data {
			out[i] = v > 0
		}
		return out
	case chtype.KindNullable, chtype.KindLowCardinality, chtype.KindArray, chtype.KindTuple:
		n := buf.Len()
		out := reflect.MakeSlice(reflect.SliceOf(goType(buf.Type)), 0, n)
		for i := 0; i < n; i++ {
			out = reflect.Append(out, valueOf(goType(buf.Type), rowValue(buf, i)))
		}
		return out.Interface()
	}
	return buf.Data
}

// rowValue returns row i of buf as a value of goType(buf.Type). Null rows
// become typed nil pointers.
func rowValue(buf *transcode.Buffer, i int) interface{} {
	switch buf.Type.Kind {
	case chtype.KindNullable:
		ptr := goType(buf.Type)
		if !buf.Valid[i] {
			return reflect.Zero(ptr).Interface()
		}
		v := reflect.New(ptr.Elem())
		v.Elem().Set(reflect.ValueOf(rowValue(buf.Elem, i)))
		return v.Interface()
	case chtype.KindLowCardinality:
		return rowValue(buf.Dict, int(buf.Keys[i]))
	case chtype.KindArray:
		start, end := int(buf.Offsets[i]), int(buf.Offsets[i+1])
		elemType := goType(*buf.Type.Elem)
		out := reflect.MakeSlice(reflect.SliceOf(elemType), 0, end-start)
		for j := start; j < end; j++ {
			out = reflect.Append(out, valueOf(elemType, rowValue(buf.Elem, j)))
		}
		return out.Interface()
	case chtype.KindTuple:
		out := make(map[string]interface{}, len(buf.Fields))
		for _, f := range buf.Fields {
			out[f.Name] = rowValue(f, i)
		}
		return out
	case chtype.KindBool:
		return buf.Data.([]uint8)[i] > 0
	}
	return reflect.ValueOf(buf.Data).Index(i).Interface()
}

func valueOf(t reflect.Type, v interface{}) reflect.Value {
	if v == nil {
		return reflect.Zero(t)
	}
	return reflect.ValueOf(v)
}

// builder accumulates scanned row values into a transcode buffer.
type builder struct {
	name string
	rt   chtype.Type

	data    reflect.Value
	valid   []bool
	offsets []uint64
	keys    []uint32
	index   map[interface{}]uint32
	elem    *builder
	dict    *builder
	fields  []*builder
}

func newBuilder(name string, rt chtype.Type) (*builder, error) {
	b := &builder{name: name, rt: rt}
	switch rt.Kind {
	case chtype.KindNullable, chtype.KindArray:
		elem, err := newBuilder("", *rt.Elem)
		if err != nil {
			return nil, errors.InColumn(err, name)
		}
		b.elem = elem
		if rt.Kind == chtype.KindArray {
			b.offsets = []uint64{0}
		}
	case chtype.KindLowCardinality:
		dict, err := newBuilder("", *rt.Elem)
		if err != nil {
			return nil, err
		}
		b.dict = dict
		b.index = make(map[interface{}]uint32)
		if rt.Elem.Kind == chtype.KindNullable {
			// entry 0 is the null entry
			if err := dict.append(nil); err != nil {
				return nil, err
			}
		}
	case chtype.KindTuple:
		b.fields = make([]*builder, len(rt.Fields))
		for i, f := range rt.Fields {
			fb, err := newBuilder(f.Name, f.Type)
			if err != nil {
				return nil, errors.InColumn(err, name)
			}
			b.fields[i] = fb
		}
	case chtype.KindUnsupported:
		return nil, errors.Newf(errors.ErrorTypeUnsupportedType, "no mapping for %s", rt).
			WithColumn(name).WithDataType(rt.String())
	default:
		elemType, ok := scalarTypes[rt.Kind]
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeUnsupportedType, "no mapping for %s", rt).WithColumn(name)
		}
		if rt.Kind == chtype.KindBool {
			elemType = scalarTypes[chtype.KindUInt8]
		}
		b.data = reflect.MakeSlice(reflect.SliceOf(elemType), 0, 0)
	}
	return b, nil
}

// deref follows pointers, returning nil for nil pointers.
func deref(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}

func (b *builder) unexpected(v interface{}) error {
	return errors.Newf(errors.ErrorTypeDecoding, "unexpected value of Go type %T", v).
		WithColumn(b.name).WithDataType(b.rt.String())
}

// append adds one row.
func (b *builder) append(v interface{}) error {
	v = deref(v)
	switch b.rt.Kind {
	case chtype.KindNullable:
		if v == nil {
			b.valid = append(b.valid, false)
			return b.elem.appendZero()
		}
		b.valid = append(b.valid, true)
		return errors.InColumn(b.elem.append(v), b.name)
	case chtype.KindLowCardinality:
		return b.appendKey(v)
	case chtype.KindArray:
		if v == nil {
			b.offsets = append(b.offsets, b.offsets[len(b.offsets)-1])
			return nil
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return b.unexpected(v)
		}
		for i := 0; i < rv.Len(); i++ {
			if err := b.elem.append(rv.Index(i).Interface()); err != nil {
				return errors.InColumn(err, b.name)
			}
		}
		b.offsets = append(b.offsets, b.offsets[len(b.offsets)-1]+uint64(rv.Len()))
		return nil
	case chtype.KindTuple:
		return b.appendTuple(v)
	}
	return b.appendScalar(v)
}

func (b *builder) appendKey(v interface{}) error {
	if v == nil {
		if b.rt.Elem.Kind != chtype.KindNullable {
			return b.unexpected(v)
		}
		b.keys = append(b.keys, 0)
		return nil
	}
	scalar, err := scalarValue(b.rt.Base(), v)
	if err != nil {
		return errors.InColumn(err, b.name)
	}
	key, ok := b.index[scalar]
	if !ok {
		key = uint32(b.dict.len())
		if err := b.dict.append(scalar); err != nil {
			return errors.InColumn(err, b.name)
		}
		b.index[scalar] = key
	}
	b.keys = append(b.keys, key)
	return nil
}

func (b *builder) appendTuple(v interface{}) error {
	switch t := v.(type) {
	case []interface{}:
		if len(t) != len(b.fields) {
			return errors.Newf(errors.ErrorTypeDecoding, "tuple row has %d elements, want %d", len(t), len(b.fields)).
				WithColumn(b.name)
		}
		for i, f := range b.fields {
			if err := f.append(t[i]); err != nil {
				return errors.InColumn(err, b.name)
			}
		}
	case map[string]interface{}:
		for _, f := range b.fields {
			fv, ok := t[f.name]
			if !ok {
				return errors.Newf(errors.ErrorTypeDecoding, "tuple row is missing element %q", f.name).
					WithColumn(b.name)
			}
			if err := f.append(fv); err != nil {
				return errors.InColumn(err, b.name)
			}
		}
	default:
		return b.unexpected(v)
	}
	return nil
}

func (b *builder) appendScalar(v interface{}) error {
	if v == nil {
		return b.unexpected(v)
	}
	scalar, err := scalarValue(b.rt, v)
	if err != nil {
		return errors.InColumn(err, b.name)
	}
	b.data = reflect.Append(b.data, reflect.ValueOf(scalar))
	return nil
}

// appendZero pads a null slot.
func (b *builder) appendZero() error {
	b.data = reflect.Append(b.data, reflect.Zero(b.data.Type().Elem()))
	return nil
}

func (b *builder) len() int {
	switch b.rt.Kind {
	case chtype.KindNullable:
		return len(b.valid)
	case chtype.KindArray:
		return len(b.offsets) - 1
	case chtype.KindLowCardinality:
		return len(b.keys)
	case chtype.KindTuple:
		if len(b.fields) == 0 {
			return 0
		}
		return b.fields[0].len()
	}
	return b.data.Len()
}

// finish returns the accumulated buffer.
func (b *builder) finish() *transcode.Buffer {
	buf := &transcode.Buffer{Name: b.name, Type: b.rt}
	switch b.rt.Kind {
	case chtype.KindNullable:
		buf.Valid = append([]bool{}, b.valid...)
		buf.Elem = b.elem.finish()
	case chtype.KindArray:
		buf.Offsets = b.offsets
		buf.Elem = b.elem.finish()
	case chtype.KindLowCardinality:
		buf.Keys = append([]uint32{}, b.keys...)
		buf.Dict = b.dict.finish()
	case chtype.KindTuple:
		buf.Fields = make([]*transcode.Buffer, len(b.fields))
		for i, f := range b.fields {
			buf.Fields[i] = f.finish()
		}
	default:
		buf.Data = b.data.Interface()
	}
	return buf
}

// scalarValue converts a driver value into the buffer storage type of a
// scalar kind: Bool becomes 0 or 1, UUID text is parsed, numbers are
// converted when the value fits the kind.
func scalarValue(rt chtype.Type, v interface{}) (interface{}, error) {
	mismatch := func() error {
		return errors.Newf(errors.ErrorTypeDecoding, "cannot store %T in %s", v, rt).WithDataType(rt.String())
	}
	switch rt.Kind {
	case chtype.KindBool:
		switch t := v.(type) {
		case bool:
			if t {
				return uint8(1), nil
			}
			return uint8(0), nil
		case uint8:
			if t > 0 {
				return uint8(1), nil
			}
			return uint8(0), nil
		}
		return nil, mismatch()
	case chtype.KindString, chtype.KindFixedString:
		switch t := v.(type) {
		case string:
			return t, nil
		case []byte:
			return string(t), nil
		}
		return nil, mismatch()
	case chtype.KindUUID:
		switch t := v.(type) {
		case uuid.UUID:
			return t, nil
		case [16]byte:
			return uuid.UUID(t), nil
		case string:
			u, err := uuid.Parse(t)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeDecoding, "invalid UUID text").WithDataType(rt.String())
			}
			return u, nil
		}
		return nil, mismatch()
	}

	target, ok := scalarTypes[rt.Kind]
	if !ok {
		return nil, mismatch()
	}
	rv := reflect.ValueOf(v)
	if rv.Type() == target {
		return v, nil
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rt.Kind.IsFloat() || rt.Kind.Signed() {
			if !rt.Kind.IsFloat() && reflect.New(target).Elem().OverflowInt(rv.Int()) {
				return nil, mismatch()
			}
		} else if rv.Int() < 0 || reflect.New(target).Elem().OverflowUint(uint64(rv.Int())) {
			return nil, mismatch()
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rt.Kind.IsFloat() {
			break
		}
		if rt.Kind.Signed() {
			if rv.Uint() > uint64(1)<<63-1 || reflect.New(target).Elem().OverflowInt(int64(rv.Uint())) {
				return nil, mismatch()
			}
		} else if reflect.New(target).Elem().OverflowUint(rv.Uint()) {
			return nil, mismatch()
		}
	case reflect.Float32, reflect.Float64:
		if !rt.Kind.IsFloat() {
			return nil, mismatch()
		}
	default:
		return nil, mismatch()
	}
	return rv.Convert(target).Interface(), nil
}
