// Package transcode converts dataframe columns to ClickHouse column
// encodings and back.
//
// The package has four parts: the type mapper (ToRemote, ToLocal,
// Compatible), the schema translator (DeriveRemoteSchema,
// GroupFlatColumns), the column encoder (Encode, EncodeFrame) and the
// column decoder (Decode, DecodeFrame). All functions are pure: they
// perform no I/O and share no state, so concurrent calls on distinct
// inputs are safe.
package transcode

import (
	"github.com/ajitpratap0/arrowhouse/pkg/chtype"
	"github.com/ajitpratap0/arrowhouse/pkg/errors"
	"github.com/ajitpratap0/arrowhouse/pkg/frame"
)

// Options tunes how remote types are read back.
type Options struct {
	// PreserveCategorical decodes LowCardinality string columns as
	// Categorical instead of plain String.
	PreserveCategorical bool
}

// ToRemote maps a local column type to the ClickHouse type that stores it.
//
// Nullable(Struct) has no remote counterpart and is pushed down onto the
// struct's leaves; a null struct row comes back as a struct of null leaves.
// ClickHouse has no Nullable(Array), so Nullable(List) is rejected, as is a
// List leaf under a nullable struct.
func ToRemote(t frame.ColumnType) (chtype.Type, error) {
	if err := t.Validate(); err != nil {
		return chtype.Type{}, err
	}
	return toRemote(t)
}

func toRemote(t frame.ColumnType) (chtype.Type, error) {
	switch t.Kind {
	case frame.KindInt:
		k, ok := chtype.IntKind(t.Bits, t.Signed)
		if !ok {
			return chtype.Type{}, unsupportedLocal(t)
		}
		return chtype.Type{Kind: k}, nil
	case frame.KindFloat:
		if t.Bits == 32 {
			return chtype.Float32, nil
		}
		return chtype.Float64, nil
	case frame.KindBool:
		return chtype.Bool, nil
	case frame.KindString:
		return chtype.String, nil
	case frame.KindUUID:
		return chtype.String, nil
	case frame.KindCategorical:
		return chtype.LowCardinality(chtype.String)
	case frame.KindList:
		elem, err := toRemote(*t.Elem)
		if err != nil {
			return chtype.Type{}, err
		}
		return chtype.Array(elem), nil
	case frame.KindStruct:
		fields := make([]chtype.Field, len(t.Fields))
		for i, f := range t.Fields {
			ft, err := toRemote(f.Type)
			if err != nil {
				return chtype.Type{}, errors.InColumn(err, f.Name)
			}
			fields[i] = chtype.Field{Name: f.Name, Type: ft}
		}
		return chtype.Tuple(fields...)
	case frame.KindNullable:
		inner := *t.Elem
		switch inner.Kind {
		case frame.KindCategorical:
			nullString, err := chtype.Nullable(chtype.String)
			if err != nil {
				return chtype.Type{}, err
			}
			return chtype.LowCardinality(nullString)
		case frame.KindList:
			return chtype.Type{}, errors.Newf(errors.ErrorTypeUnsupportedType,
				"no ClickHouse type for %s: arrays cannot be Nullable", t).WithDataType(t.String())
		case frame.KindStruct:
			return toRemote(pushNullable(inner))
		}
		rt, err := toRemote(inner)
		if err != nil {
			return chtype.Type{}, err
		}
		return chtype.Nullable(rt)
	}
	return chtype.Type{}, unsupportedLocal(t)
}

// pushNullable marks every field of a struct nullable.
func pushNullable(t frame.ColumnType) frame.ColumnType {
	fields := make([]frame.Field, len(t.Fields))
	for i, f := range t.Fields {
		fields[i] = frame.Field{Name: f.Name, Type: frame.NullableOf(f.Type)}
	}
	return frame.StructOf(fields...)
}

func unsupportedLocal(t frame.ColumnType) error {
	return errors.Newf(errors.ErrorTypeUnsupportedType, "no ClickHouse type for %s", t).WithDataType(t.String())
}

func unsupportedRemote(rt chtype.Type) error {
	return errors.Newf(errors.ErrorTypeUnsupportedType, "no column type for ClickHouse type %s", rt).
		WithDataType(rt.String())
}

// ToLocal maps a ClickHouse type to the local column type it decodes into.
//
// UUID and FixedString decode as String. UInt8 decodes as an unsigned
// integer; request Bool explicitly to read UInt8-stored flags. LowCardinality
// string columns decode as String unless opts.PreserveCategorical is set.
func ToLocal(rt chtype.Type, opts Options) (frame.ColumnType, error) {
	switch rt.Kind {
	case chtype.KindInt8, chtype.KindInt16, chtype.KindInt32, chtype.KindInt64,
		chtype.KindUInt8, chtype.KindUInt16, chtype.KindUInt32, chtype.KindUInt64:
		return frame.Int(rt.Kind.Bits(), rt.Kind.Signed()), nil
	case chtype.KindFloat32, chtype.KindFloat64:
		return frame.Float(rt.Kind.Bits()), nil
	case chtype.KindBool:
		return frame.Bool(), nil
	case chtype.KindString, chtype.KindFixedString, chtype.KindUUID:
		return frame.String(), nil
	case chtype.KindNullable:
		inner, err := ToLocal(*rt.Elem, opts)
		if err != nil {
			return frame.ColumnType{}, err
		}
		return frame.NullableOf(inner), nil
	case chtype.KindLowCardinality:
		wrapped := *rt.Elem
		inner := wrapped.StripNullable()
		var lt frame.ColumnType
		switch {
		case (inner.Kind == chtype.KindString || inner.Kind == chtype.KindFixedString) && opts.PreserveCategorical:
			lt = frame.Categorical()
		default:
			var err error
			if lt, err = ToLocal(inner, opts); err != nil {
				return frame.ColumnType{}, err
			}
		}
		if wrapped.Kind == chtype.KindNullable {
			lt = frame.NullableOf(lt)
		}
		return lt, nil
	case chtype.KindArray:
		if rt.Elem.Base().Kind == chtype.KindArray {
			return frame.ColumnType{}, errors.New(errors.ErrorTypeUnsupportedType, "arrays of arrays are not supported").
				WithDataType(rt.String())
		}
		elem, err := ToLocal(*rt.Elem, opts)
		if err != nil {
			return frame.ColumnType{}, err
		}
		return frame.ListOf(elem), nil
	case chtype.KindTuple:
		fields := make([]frame.Field, len(rt.Fields))
		for i, f := range rt.Fields {
			ft, err := ToLocal(f.Type, opts)
			if err != nil {
				return frame.ColumnType{}, errors.InColumn(err, f.Name)
			}
			fields[i] = frame.Field{Name: f.Name, Type: ft}
		}
		st := frame.StructOf(fields...)
		if err := st.Validate(); err != nil {
			return frame.ColumnType{}, err
		}
		return st, nil
	}
	return frame.ColumnType{}, unsupportedRemote(rt)
}

// Compatible reports whether a column stored as rt can be decoded as the
// requested local type without coercion. A nullable request accepts a
// non-nullable remote type; the reverse is a mismatch.
func Compatible(requested frame.ColumnType, rt chtype.Type) error {
	if err := requested.Validate(); err != nil {
		return err
	}
	return compatible(requested, rt)
}

func compatible(requested frame.ColumnType, rt chtype.Type) error {
	if rt.Kind == chtype.KindUnsupported {
		return unsupportedRemote(rt)
	}
	if rt.IsNullable() && !requested.IsNullable() {
		return mismatch(requested, rt)
	}

	req := requested.StripNullable()
	base := rt.Base()
	switch req.Kind {
	case frame.KindInt:
		if !base.Kind.IsInteger() || base.Kind.Bits() != req.Bits || base.Kind.Signed() != req.Signed {
			return mismatch(requested, rt)
		}
	case frame.KindFloat:
		if !base.Kind.IsFloat() || base.Kind.Bits() != req.Bits {
			return mismatch(requested, rt)
		}
	case frame.KindBool:
		if base.Kind != chtype.KindBool && base.Kind != chtype.KindUInt8 {
			return mismatch(requested, rt)
		}
	case frame.KindString:
		switch base.Kind {
		case chtype.KindString, chtype.KindFixedString, chtype.KindUUID:
		default:
			return mismatch(requested, rt)
		}
	case frame.KindUUID:
		if base.Kind != chtype.KindUUID && base.Kind != chtype.KindString {
			return mismatch(requested, rt)
		}
	case frame.KindCategorical:
		if base.Kind != chtype.KindString && base.Kind != chtype.KindFixedString {
			return mismatch(requested, rt)
		}
	case frame.KindList:
		if rt.Kind != chtype.KindArray {
			return mismatch(requested, rt)
		}
		if rt.Elem.Base().Kind == chtype.KindArray {
			return unsupportedRemote(rt)
		}
		return compatible(*req.Elem, *rt.Elem)
	case frame.KindStruct:
		if rt.Kind != chtype.KindTuple || len(rt.Fields) != len(req.Fields) {
			return mismatch(requested, rt)
		}
		for i, f := range req.Fields {
			if rt.Fields[i].Name != f.Name {
				return mismatch(requested, rt)
			}
			if err := compatible(f.Type, rt.Fields[i].Type); err != nil {
				return errors.InColumn(err, f.Name)
			}
		}
		return nil
	default:
		return mismatch(requested, rt)
	}

	// Scalars only from here: composite remote types never match.
	if base.Kind == chtype.KindArray || base.Kind == chtype.KindTuple {
		return mismatch(requested, rt)
	}
	return nil
}

func mismatch(requested frame.ColumnType, rt chtype.Type) error {
	return errors.Newf(errors.ErrorTypeTypeMismatch, "cannot read ClickHouse %s as %s", rt, requested).
		WithDataType(rt.String())
}
