package frame

import (
	"github.com/ajitpratap0/arrowhouse/pkg/errors"
)

// Frame is an ordered set of equally long, uniquely named columns.
type Frame struct {
	Columns []*Column
}

// New builds a frame, checking name uniqueness, equal lengths and each
// column's payload.
func New(columns ...*Column) (*Frame, error) {
	f := &Frame{Columns: columns}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks the frame invariants.
func (f *Frame) Validate() error {
	if err := f.Schema().Validate(); err != nil {
		return err
	}
	rows := -1
	for _, c := range f.Columns {
		if err := c.Validate(); err != nil {
			return err
		}
		if rows >= 0 && c.Len() != rows {
			return errors.Newf(errors.ErrorTypeValidation, "column has %d rows, frame has %d", c.Len(), rows).
				WithColumn(c.Name)
		}
		rows = c.Len()
	}
	return nil
}

// Schema returns the (name, type) pairs of the frame.
func (f *Frame) Schema() Schema {
	s := make(Schema, len(f.Columns))
	for i, c := range f.Columns {
		s[i] = Field{Name: c.Name, Type: c.Type}
	}
	return s
}

// NumRows returns the row count, 0 for a frame without columns.
func (f *Frame) NumRows() int {
	if len(f.Columns) == 0 {
		return 0
	}
	return f.Columns[0].Len()
}

// Column looks up a top-level column by name.
func (f *Frame) Column(name string) (*Column, bool) {
	for _, c := range f.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Slice returns rows [start, end) of every column.
func (f *Frame) Slice(start, end int) *Frame {
	cols := make([]*Column, len(f.Columns))
	for i, c := range f.Columns {
		cols[i] = c.Slice(start, end)
	}
	return &Frame{Columns: cols}
}
