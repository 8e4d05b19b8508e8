package compression

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/arrowhouse/pkg/errors"
)

func TestStreamRoundTrip(t *testing.T) {
	original := bytes.Repeat([]byte("arrow record batch payload, "), 500)

	for _, alg := range []Algorithm{None, Gzip, Snappy, S2, LZ4, Zstd} {
		for _, level := range []Level{Fastest, Default, Best} {
			t.Run(string(alg), func(t *testing.T) {
				var compressed bytes.Buffer
				w, err := NewWriter(&compressed, alg, level)
				require.NoError(t, err)
				_, err = w.Write(original)
				require.NoError(t, err)
				require.NoError(t, w.Close())

				if alg != None {
					assert.Less(t, compressed.Len(), len(original))
				}

				r, err := NewReader(&compressed, alg)
				require.NoError(t, err)
				got, err := io.ReadAll(r)
				require.NoError(t, err)
				require.NoError(t, r.Close())
				assert.Equal(t, original, got)
			})
		}
	}
}

func TestFromPath(t *testing.T) {
	tests := map[string]Algorithm{
		"dump.arrow":      None,
		"dump.arrow.zst":  Zstd,
		"dump.arrow.ZSTD": Zstd,
		"dump.arrow.lz4":  LZ4,
		"schema.json.gz":  Gzip,
		"x.sz":            Snappy,
		"x.s2":            S2,
	}
	for path, want := range tests {
		assert.Equal(t, want, FromPath(path), path)
	}
}

func TestParse(t *testing.T) {
	a, err := Parse("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, Zstd, a)

	a, err = Parse("")
	require.NoError(t, err)
	assert.Equal(t, None, a)

	_, err = Parse("brotli")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".zst", Zstd.Extension())
	assert.Equal(t, ".lz4", LZ4.Extension())
	assert.Equal(t, ".sz", Snappy.Extension())
	assert.Equal(t, "", None.Extension())
}

func TestNewReaderRejectsGarbage(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte("not gzip")), Gzip)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))
}
