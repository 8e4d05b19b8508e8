package transcode

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ajitpratap0/arrowhouse/pkg/chtype"
	"github.com/ajitpratap0/arrowhouse/pkg/errors"
	"github.com/ajitpratap0/arrowhouse/pkg/frame"
)

// Encode converts one column into the buffer layout of the target remote
// type. The whole column is checked before anything is returned: nulls in a
// non-nullable target, strings longer than a FixedString, malformed UUID
// text and payloads that disagree with the column type all fail the call.
func Encode(col *frame.Column, target chtype.Type) (*Buffer, error) {
	if err := col.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeEncoding, "invalid column payload")
	}
	buf, err := encode(col, target, nil)
	if err != nil {
		return nil, errors.InColumn(err, col.Name)
	}
	buf.Name = col.Name
	return buf, nil
}

// EncodeFrame flattens and encodes every column of f. specs must list the
// flattened leaves of f in walk order, as DeriveRemoteSchema produces them;
// their types may differ from the derived ones (for example when inserting
// into an existing table) as long as each leaf can be encoded into its spec.
func EncodeFrame(f *frame.Frame, specs []FlatColumnSpec) (*Batch, error) {
	if err := f.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeEncoding, "invalid frame")
	}

	leaves := FlattenFrame(f)
	if len(leaves) != len(specs) {
		return nil, errors.Newf(errors.ErrorTypeSchemaConflict, "frame has %d flattened columns, target has %d",
			len(leaves), len(specs))
	}

	batch := &Batch{Columns: make([]*Buffer, len(leaves)), Rows: f.NumRows()}
	for i, leaf := range leaves {
		spec := specs[i]
		if leaf.Path != spec.Name {
			return nil, errors.Newf(errors.ErrorTypeSchemaConflict, "flattened column %d is %q, target expects %q",
				i, leaf.Path, spec.Name).WithColumn(leaf.Path)
		}
		buf, err := encode(leaf.Column, spec.Type, leaf.Inherited)
		if err != nil {
			return nil, errors.InColumn(err, leaf.Path)
		}
		buf.Name = leaf.Path
		batch.Columns[i] = buf
	}
	return batch, nil
}

// Leaf is one flattened column of a frame. Inherited is the AND of the
// validity masks of every enclosing struct, nil when no ancestor has nulls.
type Leaf struct {
	Path      string
	Column    *frame.Column
	Inherited []bool
}

// FlattenFrame splits struct columns into their leaves, in the same order
// DeriveRemoteSchema lists them.
func FlattenFrame(f *frame.Frame) []Leaf {
	var leaves []Leaf
	for _, c := range f.Columns {
		leaves = flattenColumn(leaves, c.Name, c, nil)
	}
	return leaves
}

func flattenColumn(leaves []Leaf, path string, c *frame.Column, inherited []bool) []Leaf {
	if c.Type.StripNullable().Kind != frame.KindStruct {
		return append(leaves, Leaf{Path: path, Column: c, Inherited: inherited})
	}
	mask := andMask(inherited, c.Valid)
	for _, ch := range c.Children {
		leaves = flattenColumn(leaves, path+frame.Separator+ch.Name, ch, mask)
	}
	return leaves
}

// andMask combines two validity masks. nil means all valid.
func andMask(a, b []bool) []bool {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	out := make([]bool, len(a))
	for i := range a {
		out[i] = a[i] && b[i]
	}
	return out
}

func encode(col *frame.Column, target chtype.Type, inherited []bool) (*Buffer, error) {
	mask := andMask(inherited, col.Valid)
	base := col.Type.StripNullable()

	switch target.Kind {
	case chtype.KindNullable:
		elem, err := encodeScalar(col, *target.Elem, mask)
		if err != nil {
			return nil, err
		}
		valid := make([]bool, col.Len())
		for i := range valid {
			valid[i] = mask == nil || mask[i]
		}
		return &Buffer{Type: target, Valid: valid, Elem: elem}, nil

	case chtype.KindLowCardinality:
		return encodeLowCardinality(col, target, mask)

	case chtype.KindArray:
		if base.Kind != frame.KindList {
			return nil, encodeMismatch(col, target)
		}
		return encodeArray(col, target, mask)

	case chtype.KindTuple:
		if base.Kind != frame.KindStruct || len(base.Fields) != len(target.Fields) {
			return nil, encodeMismatch(col, target)
		}
		buf := &Buffer{Type: target, Fields: make([]*Buffer, len(target.Fields))}
		for i, f := range target.Fields {
			child := col.Children[i]
			if child.Name != f.Name {
				return nil, encodeMismatch(col, target)
			}
			fb, err := encode(child, f.Type, mask)
			if err != nil {
				return nil, errors.InColumn(err, f.Name)
			}
			fb.Name = f.Name
			buf.Fields[i] = fb
		}
		return buf, nil

	case chtype.KindUnsupported:
		return nil, unsupportedRemote(target)
	}

	if err := requireNoNulls(mask, target); err != nil {
		return nil, err
	}
	return encodeScalar(col, target, mask)
}

func requireNoNulls(mask []bool, target chtype.Type) error {
	for i, ok := range mask {
		if !ok {
			return errors.Newf(errors.ErrorTypeEncoding, "null at row %d in non-nullable %s column", i, target).
				WithDataType(target.String())
		}
	}
	return nil
}

// encodeArray writes offsets relative to the flattened element buffer.
// Arrays are never nullable, so a null list row, whether from the column
// itself or an enclosing struct, fails the call.
func encodeArray(col *frame.Column, target chtype.Type, mask []bool) (*Buffer, error) {
	if err := requireNoNulls(mask, target); err != nil {
		return nil, err
	}

	n := col.Len()
	offsets := make([]uint64, n+1)
	start, end := col.Offsets[0], col.Offsets[n]
	for i := 0; i < n; i++ {
		offsets[i+1] = uint64(col.Offsets[i+1] - start)
	}
	child := col.Elem().Slice(start, end)

	eb, err := encode(child, *target.Elem, nil)
	if err != nil {
		return nil, err
	}
	return &Buffer{Type: target, Offsets: offsets, Elem: eb}, nil
}

// encodeLowCardinality builds a dictionary of distinct values in first-seen
// order. A nullable dictionary reserves entry 0 for null.
func encodeLowCardinality(col *frame.Column, target chtype.Type, mask []bool) (*Buffer, error) {
	switch col.Type.StripNullable().Kind {
	case frame.KindList, frame.KindStruct:
		return nil, encodeMismatch(col, target)
	}
	dictType := *target.Elem
	valueType := dictType.StripNullable()
	nullable := dictType.Kind == chtype.KindNullable
	if !nullable {
		if err := requireNoNulls(mask, target); err != nil {
			return nil, err
		}
	}

	n := col.Len()
	keys := make([]uint32, n)
	first := make([]int, 0)
	seen := make(map[interface{}]uint32)
	reserved := uint32(0)
	if nullable {
		reserved = 1
	}
	for i := 0; i < n; i++ {
		if mask != nil && !mask[i] {
			keys[i] = 0
			continue
		}
		k := valueKey(col.Values, i)
		key, ok := seen[k]
		if !ok {
			key = uint32(len(first)) + reserved
			seen[k] = key
			first = append(first, i)
		}
		keys[i] = key
	}

	distinct := col.Take(first)
	distinct.Valid = nil
	values, err := encodeScalar(distinct, valueType, nil)
	if err != nil {
		return nil, err
	}

	dict := values
	if nullable {
		valid := make([]bool, len(first)+1)
		for i := 1; i < len(valid); i++ {
			valid[i] = true
		}
		values.Data = prependZero(values.Data)
		dict = &Buffer{Type: dictType, Valid: valid, Elem: values}
	}
	return &Buffer{Type: target, Keys: keys, Dict: dict}, nil
}

func valueKey(values interface{}, i int) interface{} {
	switch v := values.(type) {
	case []int8:
		return v[i]
	case []int16:
		return v[i]
	case []int32:
		return v[i]
	case []int64:
		return v[i]
	case []uint8:
		return v[i]
	case []uint16:
		return v[i]
	case []uint32:
		return v[i]
	case []uint64:
		return v[i]
	case []float32:
		return v[i]
	case []float64:
		return v[i]
	case []bool:
		return v[i]
	case []string:
		return v[i]
	}
	return nil
}

// encodeScalar converts the values of a scalar column. Rows where mask is
// false are written as zero padding and never inspected.
func encodeScalar(col *frame.Column, target chtype.Type, mask []bool) (*Buffer, error) {
	base := col.Type.StripNullable()
	buf := &Buffer{Type: target}
	switch base.Kind {
	case frame.KindInt:
		if !target.Kind.IsInteger() || target.Kind.Bits() != base.Bits || target.Kind.Signed() != base.Signed {
			return nil, encodeMismatch(col, target)
		}
		buf.Data = copyValues(col.Values)
	case frame.KindFloat:
		if !target.Kind.IsFloat() || target.Kind.Bits() != base.Bits {
			return nil, encodeMismatch(col, target)
		}
		buf.Data = copyValues(col.Values)
	case frame.KindBool:
		if target.Kind != chtype.KindBool && target.Kind != chtype.KindUInt8 {
			return nil, encodeMismatch(col, target)
		}
		values := col.Values.([]bool)
		data := make([]uint8, len(values))
		for i, v := range values {
			if v {
				data[i] = 1
			}
		}
		buf.Data = data
	case frame.KindString, frame.KindCategorical, frame.KindUUID:
		data, err := encodeText(col, base, target, mask)
		if err != nil {
			return nil, err
		}
		buf.Data = data
	default:
		return nil, encodeMismatch(col, target)
	}
	return buf, nil
}

func encodeText(col *frame.Column, base frame.ColumnType, target chtype.Type, mask []bool) (interface{}, error) {
	values := col.Values.([]string)
	valid := func(i int) bool { return mask == nil || mask[i] }

	if base.Kind == frame.KindUUID {
		switch target.Kind {
		case chtype.KindString, chtype.KindUUID:
		default:
			return nil, encodeMismatch(col, target)
		}
	}

	switch target.Kind {
	case chtype.KindString:
		out := make([]string, len(values))
		for i, v := range values {
			if !valid(i) {
				continue
			}
			if base.Kind == frame.KindUUID {
				if _, err := parseUUID(v); err != nil {
					return nil, invalidUUID(err, errors.ErrorTypeEncoding, i, v, target)
				}
			}
			out[i] = v
		}
		return out, nil
	case chtype.KindFixedString:
		out := make([]string, len(values))
		for i, v := range values {
			if !valid(i) {
				continue
			}
			if len(v) > target.Length {
				return nil, errors.Newf(errors.ErrorTypeEncoding, "value of %d bytes at row %d exceeds %s",
					len(v), i, target).WithDataType(target.String())
			}
			out[i] = v
		}
		return out, nil
	case chtype.KindUUID:
		if base.Kind == frame.KindCategorical {
			return nil, encodeMismatch(col, target)
		}
		out := make([]uuid.UUID, len(values))
		for i, v := range values {
			if !valid(i) {
				continue
			}
			u, err := parseUUID(v)
			if err != nil {
				return nil, invalidUUID(err, errors.ErrorTypeEncoding, i, v, target)
			}
			out[i] = u
		}
		return out, nil
	}
	return nil, encodeMismatch(col, target)
}

// parseUUID accepts only the canonical lowercase hyphenated form, the one
// uuid.UUID.String renders, so text survives a round trip unchanged.
func parseUUID(s string) (uuid.UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, err
	}
	if u.String() != s {
		return uuid.Nil, fmt.Errorf("UUID %q is not in canonical form %q", s, u.String())
	}
	return u, nil
}

func invalidUUID(err error, typ errors.ErrorType, row int, value string, rt chtype.Type) error {
	return errors.Wrap(err, typ, "invalid UUID").
		WithDetail("row", row).
		WithDetail("value", value).
		WithDataType(rt.String())
}

func copyValues(values interface{}) interface{} {
	switch v := values.(type) {
	case []int8:
		return copyOf(v)
	case []int16:
		return copyOf(v)
	case []int32:
		return copyOf(v)
	case []int64:
		return copyOf(v)
	case []uint8:
		return copyOf(v)
	case []uint16:
		return copyOf(v)
	case []uint32:
		return copyOf(v)
	case []uint64:
		return copyOf(v)
	case []float32:
		return copyOf(v)
	case []float64:
		return copyOf(v)
	}
	return values
}

func encodeMismatch(col *frame.Column, target chtype.Type) error {
	return errors.Newf(errors.ErrorTypeTypeMismatch, "cannot encode %s as ClickHouse %s", col.Type, target).
		WithDataType(target.String())
}
