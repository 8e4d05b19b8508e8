package main

import (
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/arrowhouse/pkg/compression"
	"github.com/ajitpratap0/arrowhouse/pkg/errors"
	"github.com/ajitpratap0/arrowhouse/pkg/frame"
)

// readArrow reads an Arrow IPC stream file into one frame per record
// batch. The compression algorithm follows the file extension.
func readArrow(path string) (frame.Schema, []*frame.Frame, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is chosen by the operator
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open arrow file").WithDetail("path", path)
	}
	defer f.Close()

	src, err := compression.NewReader(f, compression.FromPath(path))
	if err != nil {
		return nil, nil, err
	}
	defer src.Close()

	return decodeArrow(src)
}

func decodeArrow(src io.Reader) (frame.Schema, []*frame.Frame, error) {
	rdr, err := ipc.NewReader(src, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeFile, "invalid arrow IPC stream")
	}
	defer rdr.Release()

	schema, err := schemaFromArrow(rdr.Schema())
	if err != nil {
		return nil, nil, err
	}

	var frames []*frame.Frame
	for rdr.Next() {
		fr, err := frame.FromRecord(rdr.Record())
		if err != nil {
			return nil, nil, err
		}
		frames = append(frames, fr)
	}
	if err := rdr.Err(); err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read arrow record batch")
	}
	return schema, frames, nil
}

func schemaFromArrow(s *arrow.Schema) (frame.Schema, error) {
	out := make(frame.Schema, 0, s.NumFields())
	for _, f := range s.Fields() {
		t, err := frame.TypeFromArrow(f)
		if err != nil {
			return nil, err
		}
		out = append(out, frame.Field{Name: f.Name, Type: t})
	}
	return out, nil
}

// writeArrow writes fr as a single record batch IPC stream compressed with
// alg.
func writeArrow(path string, fr *frame.Frame, alg compression.Algorithm) error {
	f, err := os.Create(path) //nolint:gosec // G304: path is chosen by the operator
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create arrow file").WithDetail("path", path)
	}
	if err := encodeArrow(f, fr, alg); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close arrow file").WithDetail("path", path)
	}
	return nil
}

func encodeArrow(dst io.Writer, fr *frame.Frame, alg compression.Algorithm) error {
	rec, err := fr.ToRecord(memory.NewGoAllocator())
	if err != nil {
		return err
	}
	defer rec.Release()

	cw, err := compression.NewWriter(dst, alg, compression.Default)
	if err != nil {
		return err
	}
	w := ipc.NewWriter(cw, ipc.WithSchema(rec.Schema()))
	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write arrow record batch")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to finish arrow stream")
	}
	if err := cw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush compressed stream")
	}
	return nil
}
