// Package compression wraps file streams written and read by the
// arrowhouse CLI: Arrow IPC dumps and schema documents.
//
// # Basic Usage
//
//	alg := compression.FromPath("events.arrow.zst")
//	w, err := compression.NewWriter(f, alg, compression.Default)
//	// write the IPC stream to w
//	err = w.Close() // flushes the frame, f stays open
//
// # Algorithm Selection
//
//   - LZ4: fastest, decent compression
//   - Zstd: best compression ratio, good speed
//   - Gzip: wide compatibility
//   - Snappy/S2: framed snappy streams, S2 reads both
package compression

import (
	"compress/gzip"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ajitpratap0/arrowhouse/pkg/errors"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Snappy represents framed snappy compression
	Snappy Algorithm = "snappy"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// S2 represents s2 compression (Snappy compatible)
	S2 Algorithm = "s2"
)

// Level controls the speed/ratio trade-off.
type Level int

const (
	// Fastest prioritizes speed over compression ratio.
	Fastest Level = 1
	// Default balances speed and compression.
	Default Level = 5
	// Best maximizes compression ratio.
	Best Level = 9
)

var extensions = map[string]Algorithm{
	".gz":     Gzip,
	".sz":     Snappy,
	".snappy": Snappy,
	".lz4":    LZ4,
	".zst":    Zstd,
	".zstd":   Zstd,
	".s2":     S2,
}

// Parse converts an algorithm name. The empty string means None.
func Parse(name string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(name)); a {
	case "", None:
		return None, nil
	case Gzip, Snappy, LZ4, Zstd, S2:
		return a, nil
	}
	return "", errors.Newf(errors.ErrorTypeConfig, "unknown compression algorithm %q", name)
}

// FromPath picks an algorithm from a file extension, None if unknown.
func FromPath(path string) Algorithm {
	if a, ok := extensions[strings.ToLower(filepath.Ext(path))]; ok {
		return a
	}
	return None
}

// Extension returns the file extension conventionally used for a.
func (a Algorithm) Extension() string {
	for ext, alg := range extensions {
		if alg == a && ext != ".snappy" && ext != ".zstd" {
			return ext
		}
	}
	return ""
}

// NewWriter compresses everything written to the returned writer into dst.
// Close flushes the compressed stream but does not close dst.
func NewWriter(dst io.Writer, alg Algorithm, level Level) (io.WriteCloser, error) {
	switch alg {
	case None, "":
		return nopWriteCloser{dst}, nil
	case Gzip:
		w, err := gzip.NewWriterLevel(dst, mapGzipLevel(level))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid gzip level")
		}
		return w, nil
	case Snappy:
		return snappy.NewBufferedWriter(dst), nil
	case S2:
		return s2.NewWriter(dst, mapS2Level(level)...), nil
	case LZ4:
		w := lz4.NewWriter(dst)
		if err := w.Apply(lz4.CompressionLevelOption(mapLZ4Level(level))); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid lz4 level")
		}
		return w, nil
	case Zstd:
		enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(mapZstdLevel(level)))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid zstd options")
		}
		return enc, nil
	}
	return nil, errors.Newf(errors.ErrorTypeConfig, "unknown compression algorithm %q", alg)
}

// NewReader decompresses src. Close releases decoder resources but does
// not close src.
func NewReader(src io.Reader, alg Algorithm) (io.ReadCloser, error) {
	switch alg {
	case None, "":
		return io.NopCloser(src), nil
	case Gzip:
		r, err := gzip.NewReader(src)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "invalid gzip stream")
		}
		return r, nil
	case Snappy:
		return io.NopCloser(snappy.NewReader(src)), nil
	case S2:
		return io.NopCloser(s2.NewReader(src)), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(src)), nil
	case Zstd:
		dec, err := zstd.NewReader(src)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "invalid zstd stream")
		}
		return zstdReadCloser{dec}, nil
	}
	return nil, errors.Newf(errors.ErrorTypeConfig, "unknown compression algorithm %q", alg)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// zstd.Decoder.Close has no error result.
type zstdReadCloser struct {
	*zstd.Decoder
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

func mapGzipLevel(level Level) int {
	switch {
	case level <= Fastest:
		return gzip.BestSpeed
	case level >= Best:
		return gzip.BestCompression
	}
	return gzip.DefaultCompression
}

func mapLZ4Level(level Level) lz4.CompressionLevel {
	switch {
	case level <= Fastest:
		return lz4.Fast
	case level >= Best:
		return lz4.Level9
	}
	return lz4.Level5
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch {
	case level <= Fastest:
		return zstd.SpeedFastest
	case level >= Best:
		return zstd.SpeedBestCompression
	}
	return zstd.SpeedDefault
}

func mapS2Level(level Level) []s2.WriterOption {
	switch {
	case level >= Best:
		return []s2.WriterOption{s2.WriterBestCompression()}
	case level > Default:
		return []s2.WriterOption{s2.WriterBetterCompression()}
	}
	return nil
}
