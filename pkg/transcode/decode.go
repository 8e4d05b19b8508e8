package transcode

import (
	"strings"

	"github.com/google/uuid"

	"github.com/ajitpratap0/arrowhouse/pkg/chtype"
	"github.com/ajitpratap0/arrowhouse/pkg/errors"
	"github.com/ajitpratap0/arrowhouse/pkg/frame"
)

// Decode rebuilds a local column from a remote buffer.
//
// With a nil requested type the local type is inferred with ToLocal.
// Otherwise the request must be compatible with the buffer type (see
// Compatible); nothing is coerced. LowCardinality buffers are expanded
// through their dictionary.
func Decode(buf *Buffer, requested *frame.ColumnType, opts Options) (*frame.Column, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}

	var lt frame.ColumnType
	if requested == nil {
		inferred, err := ToLocal(buf.Type, opts)
		if err != nil {
			return nil, errors.InColumn(err, buf.Name)
		}
		lt = inferred
	} else {
		if err := Compatible(*requested, buf.Type); err != nil {
			return nil, errors.InColumn(err, buf.Name)
		}
		lt = *requested
	}

	col, err := decode(buf, lt)
	if err != nil {
		return nil, errors.InColumn(err, buf.Name)
	}
	col.Name = buf.Name
	return col, nil
}

// DecodeFrame decodes a set of equally long buffers and regroups dotted
// names into struct columns. overrides maps a buffer name to the local
// type it must be read as.
func DecodeFrame(bufs []*Buffer, overrides map[string]frame.ColumnType, opts Options) (*frame.Frame, error) {
	cols := make([]*frame.Column, len(bufs))
	rows := -1
	for i, buf := range bufs {
		if err := buf.Validate(); err != nil {
			return nil, err
		}
		if rows >= 0 && buf.Len() != rows {
			return nil, errors.Newf(errors.ErrorTypeDecoding, "column has %d rows, previous columns have %d",
				buf.Len(), rows).WithColumn(buf.Name)
		}
		rows = buf.Len()

		var requested *frame.ColumnType
		if t, ok := overrides[buf.Name]; ok {
			requested = &t
		}
		col, err := Decode(buf, requested, opts)
		if err != nil {
			return nil, err
		}
		cols[i] = col
	}

	grouped, err := GroupColumns(cols)
	if err != nil {
		return nil, err
	}
	f := &frame.Frame{Columns: grouped}
	if err := f.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDecoding, "decoded frame is inconsistent")
	}
	return f, nil
}

func decode(buf *Buffer, lt frame.ColumnType) (*frame.Column, error) {
	base := lt.StripNullable()

	switch buf.Type.Kind {
	case chtype.KindNullable:
		col, err := decodeScalar(buf.Elem, lt)
		if err != nil {
			return nil, err
		}
		col.Valid = maskOrNil(buf.Valid)
		if err := checkUUIDs(col, buf.Type); err != nil {
			return nil, err
		}
		return col, nil

	case chtype.KindLowCardinality:
		dictLocal := base
		if buf.Dict.Type.Kind == chtype.KindNullable {
			dictLocal = frame.NullableOf(base)
		}
		dict, err := decode(buf.Dict, dictLocal)
		if err != nil {
			return nil, err
		}
		idx := make([]int, len(buf.Keys))
		for i, k := range buf.Keys {
			idx[i] = int(k)
		}
		col := dict.Take(idx)
		col.Type = lt
		col.Valid = maskOrNil(col.Valid)
		return col, nil

	case chtype.KindArray:
		elem, err := decode(buf.Elem, *base.Elem)
		if err != nil {
			return nil, err
		}
		elem.Name = "item"
		offsets := make([]int, len(buf.Offsets))
		for i, o := range buf.Offsets {
			offsets[i] = int(o)
		}
		return frame.NewList("", lt, offsets, elem, nil), nil

	case chtype.KindTuple:
		children := make([]*frame.Column, len(buf.Fields))
		for i, fb := range buf.Fields {
			child, err := decode(fb, base.Fields[i].Type)
			if err != nil {
				return nil, errors.InColumn(err, fb.Name)
			}
			child.Name = base.Fields[i].Name
			children[i] = child
		}
		return frame.NewStruct("", lt, children, nil), nil
	}

	col, err := decodeScalar(buf, lt)
	if err != nil {
		return nil, err
	}
	if err := checkUUIDs(col, buf.Type); err != nil {
		return nil, err
	}
	return col, nil
}

// checkUUIDs rejects text read as Uuid that is not a canonical UUID. Null
// rows hold padding and are skipped.
func checkUUIDs(col *frame.Column, rt chtype.Type) error {
	if col.Type.StripNullable().Kind != frame.KindUUID || rt.Base().Kind == chtype.KindUUID {
		return nil
	}
	for i, v := range col.Values.([]string) {
		if !col.IsValid(i) {
			continue
		}
		if _, err := parseUUID(v); err != nil {
			return invalidUUID(err, errors.ErrorTypeDecoding, i, v, rt)
		}
	}
	return nil
}

// maskOrNil drops a validity mask without nulls.
func maskOrNil(valid []bool) []bool {
	for _, v := range valid {
		if !v {
			return copyOf(valid)
		}
	}
	return nil
}

// decodeScalar converts a scalar buffer into a column of type lt.
func decodeScalar(buf *Buffer, lt frame.ColumnType) (*frame.Column, error) {
	base := lt.StripNullable()
	col := &frame.Column{Type: lt}

	switch data := buf.Data.(type) {
	case []uint8:
		if base.Kind == frame.KindBool {
			values := make([]bool, len(data))
			for i, v := range data {
				values[i] = v > 0
			}
			col.Values = values
			return col, nil
		}
		col.Values = copyOf(data)
	case []string:
		values := copyOf(data)
		if buf.Type.Kind == chtype.KindFixedString {
			for i, v := range values {
				values[i] = strings.TrimRight(v, "\x00")
			}
		}
		col.Values = values
	case []uuid.UUID:
		values := make([]string, len(data))
		for i, u := range data {
			values[i] = u.String()
		}
		col.Values = values
	default:
		col.Values = copyValues(data)
	}

	if err := col.Validate(); err != nil {
		return nil, errors.Newf(errors.ErrorTypeTypeMismatch, "cannot read ClickHouse %s as %s", buf.Type, lt).
			WithDataType(buf.Type.String())
	}
	return col, nil
}
