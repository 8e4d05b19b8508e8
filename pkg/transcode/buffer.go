package transcode

import (
	"github.com/google/uuid"

	"github.com/ajitpratap0/arrowhouse/pkg/chtype"
	"github.com/ajitpratap0/arrowhouse/pkg/errors"
)

// Buffer is the remote-side physical encoding of one column.
//
// Which fields are set depends on Type.Kind:
//
//	scalars         Data: []int8 ... []uint64, []float32, []float64,
//	                []uint8 (Bool, 0 or 1), []string (String, FixedString),
//	                []uuid.UUID (UUID)
//	Nullable        Valid (one entry per row) and Elem, the inner values,
//	                where invalid rows hold padding
//	Array           Offsets (rows+1 entries, first 0, non-decreasing) and
//	                Elem, the concatenated elements
//	LowCardinality  Keys (one per row) indexing into Dict, whose type is the
//	                wrapped type. A nullable dictionary marks null rows by
//	                pointing at an invalid entry, entry 0 by convention
//	Tuple           Fields, one buffer per element with the same row count
type Buffer struct {
	Name    string
	Type    chtype.Type
	Data    interface{}
	Valid   []bool
	Elem    *Buffer
	Offsets []uint64
	Keys    []uint32
	Dict    *Buffer
	Fields  []*Buffer
}

// NewBuffer returns an empty buffer shaped for rt.
func NewBuffer(name string, rt chtype.Type) *Buffer {
	b := &Buffer{Name: name, Type: rt}
	switch rt.Kind {
	case chtype.KindNullable:
		b.Valid = []bool{}
		b.Elem = NewBuffer("", *rt.Elem)
	case chtype.KindArray:
		b.Offsets = []uint64{0}
		b.Elem = NewBuffer("", *rt.Elem)
	case chtype.KindLowCardinality:
		b.Keys = []uint32{}
		b.Dict = NewBuffer("", *rt.Elem)
	case chtype.KindTuple:
		b.Fields = make([]*Buffer, len(rt.Fields))
		for i, f := range rt.Fields {
			b.Fields[i] = NewBuffer(f.Name, f.Type)
		}
	default:
		b.Data = makeData(rt.Kind, 0)
	}
	return b
}

// Len returns the number of rows held by the buffer.
func (b *Buffer) Len() int {
	switch b.Type.Kind {
	case chtype.KindNullable:
		return len(b.Valid)
	case chtype.KindArray:
		if len(b.Offsets) == 0 {
			return 0
		}
		return len(b.Offsets) - 1
	case chtype.KindLowCardinality:
		return len(b.Keys)
	case chtype.KindTuple:
		if len(b.Fields) == 0 {
			return 0
		}
		return b.Fields[0].Len()
	}
	return dataLen(b.Data)
}

// IsNull reports whether row i is null. Only Nullable and nullable
// LowCardinality buffers have null rows.
func (b *Buffer) IsNull(i int) bool {
	switch b.Type.Kind {
	case chtype.KindNullable:
		return !b.Valid[i]
	case chtype.KindLowCardinality:
		return b.Dict.IsNull(int(b.Keys[i]))
	}
	return false
}

// Validate checks that the buffer is well formed for its type. Failures are
// decoding errors naming the buffer.
func (b *Buffer) Validate() error {
	if err := b.validate(); err != nil {
		return errors.InColumn(err, b.Name)
	}
	return nil
}

func (b *Buffer) validate() error {
	rt := b.Type
	switch rt.Kind {
	case chtype.KindNullable:
		if b.Elem == nil {
			return malformed(b, "nullable buffer without values")
		}
		if !b.Elem.Type.Equal(*rt.Elem) {
			return malformed(b, "inner buffer has type %s", b.Elem.Type)
		}
		if len(b.Valid) != b.Elem.Len() {
			return malformed(b, "validity mask has %d entries for %d values", len(b.Valid), b.Elem.Len())
		}
		return b.Elem.validate()
	case chtype.KindArray:
		if b.Elem == nil {
			return malformed(b, "array buffer without elements")
		}
		if !b.Elem.Type.Equal(*rt.Elem) {
			return malformed(b, "element buffer has type %s", b.Elem.Type)
		}
		if len(b.Offsets) == 0 {
			return malformed(b, "array buffer without offsets")
		}
		if b.Offsets[0] != 0 {
			return malformed(b, "first offset is %d, want 0", b.Offsets[0])
		}
		for i := 1; i < len(b.Offsets); i++ {
			if b.Offsets[i] < b.Offsets[i-1] {
				return malformed(b, "offsets decrease at row %d", i-1)
			}
		}
		if last := b.Offsets[len(b.Offsets)-1]; last != uint64(b.Elem.Len()) {
			return malformed(b, "last offset %d does not match %d elements", last, b.Elem.Len())
		}
		return b.Elem.validate()
	case chtype.KindLowCardinality:
		if b.Dict == nil {
			return malformed(b, "low cardinality buffer without dictionary")
		}
		if !b.Dict.Type.Equal(*rt.Elem) {
			return malformed(b, "dictionary has type %s", b.Dict.Type)
		}
		size := b.Dict.Len()
		for i, k := range b.Keys {
			if int(k) >= size {
				return malformed(b, "key %d at row %d is out of range for %d dictionary entries", k, i, size)
			}
		}
		return b.Dict.validate()
	case chtype.KindTuple:
		if len(b.Fields) != len(rt.Fields) {
			return malformed(b, "tuple buffer has %d fields for %d elements", len(b.Fields), len(rt.Fields))
		}
		n := b.Len()
		for i, f := range rt.Fields {
			fb := b.Fields[i]
			if fb.Name != f.Name || !fb.Type.Equal(f.Type) {
				return malformed(b, "field %d is %s %s, want %s %s", i, fb.Name, fb.Type, f.Name, f.Type)
			}
			if fb.Len() != n {
				return malformed(b, "field %q has %d rows, tuple has %d", f.Name, fb.Len(), n)
			}
			if err := fb.Validate(); err != nil {
				return err
			}
		}
		return nil
	case chtype.KindUnsupported:
		return errors.Newf(errors.ErrorTypeUnsupportedType, "no mapping for %s", rt).WithDataType(rt.String())
	}

	if !dataMatches(rt.Kind, b.Data) {
		return malformed(b, "data of Go type %T does not match %s", b.Data, rt)
	}
	return nil
}

func malformed(b *Buffer, format string, args ...interface{}) error {
	return errors.Newf(errors.ErrorTypeDecoding, format, args...).WithDataType(b.Type.String())
}

// Batch is an encoded row block ready to hand to the remote client.
type Batch struct {
	Columns []*Buffer
	Rows    int
}

// Names returns the flattened column names in insert order.
func (b *Batch) Names() []string {
	names := make([]string, len(b.Columns))
	for i, c := range b.Columns {
		names[i] = c.Name
	}
	return names
}

func makeData(k chtype.Kind, n int) interface{} {
	switch k {
	case chtype.KindInt8:
		return make([]int8, n)
	case chtype.KindInt16:
		return make([]int16, n)
	case chtype.KindInt32:
		return make([]int32, n)
	case chtype.KindInt64:
		return make([]int64, n)
	case chtype.KindUInt8, chtype.KindBool:
		return make([]uint8, n)
	case chtype.KindUInt16:
		return make([]uint16, n)
	case chtype.KindUInt32:
		return make([]uint32, n)
	case chtype.KindUInt64:
		return make([]uint64, n)
	case chtype.KindFloat32:
		return make([]float32, n)
	case chtype.KindFloat64:
		return make([]float64, n)
	case chtype.KindString, chtype.KindFixedString:
		return make([]string, n)
	case chtype.KindUUID:
		return make([]uuid.UUID, n)
	}
	return nil
}

func dataMatches(k chtype.Kind, data interface{}) bool {
	switch data.(type) {
	case []int8:
		return k == chtype.KindInt8
	case []int16:
		return k == chtype.KindInt16
	case []int32:
		return k == chtype.KindInt32
	case []int64:
		return k == chtype.KindInt64
	case []uint8:
		return k == chtype.KindUInt8 || k == chtype.KindBool
	case []uint16:
		return k == chtype.KindUInt16
	case []uint32:
		return k == chtype.KindUInt32
	case []uint64:
		return k == chtype.KindUInt64
	case []float32:
		return k == chtype.KindFloat32
	case []float64:
		return k == chtype.KindFloat64
	case []string:
		return k == chtype.KindString || k == chtype.KindFixedString
	case []uuid.UUID:
		return k == chtype.KindUUID
	}
	return false
}

func dataLen(data interface{}) int {
	switch d := data.(type) {
	case []int8:
		return len(d)
	case []int16:
		return len(d)
	case []int32:
		return len(d)
	case []int64:
		return len(d)
	case []uint8:
		return len(d)
	case []uint16:
		return len(d)
	case []uint32:
		return len(d)
	case []uint64:
		return len(d)
	case []float32:
		return len(d)
	case []float64:
		return len(d)
	case []string:
		return len(d)
	case []uuid.UUID:
		return len(d)
	}
	return 0
}

// prependZero returns data with one zero value in front. Used for the null
// entry of nullable dictionaries.
func prependZero(data interface{}) interface{} {
	switch d := data.(type) {
	case []int8:
		return append([]int8{0}, d...)
	case []int16:
		return append([]int16{0}, d...)
	case []int32:
		return append([]int32{0}, d...)
	case []int64:
		return append([]int64{0}, d...)
	case []uint8:
		return append([]uint8{0}, d...)
	case []uint16:
		return append([]uint16{0}, d...)
	case []uint32:
		return append([]uint32{0}, d...)
	case []uint64:
		return append([]uint64{0}, d...)
	case []float32:
		return append([]float32{0}, d...)
	case []float64:
		return append([]float64{0}, d...)
	case []string:
		return append([]string{""}, d...)
	case []uuid.UUID:
		return append([]uuid.UUID{uuid.Nil}, d...)
	}
	return data
}

func copyOf[T any](s []T) []T {
	out := make([]T, len(s))
	copy(out, s)
	return out
}
