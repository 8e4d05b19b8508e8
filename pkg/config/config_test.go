package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/arrowhouse/pkg/errors"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arrowhouse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost:9000"}, cfg.ClickHouse.Addr)
	assert.Equal(t, 200000, cfg.Insert.BatchRows)
	assert.Equal(t, "lz4", cfg.ClickHouse.Compression)
	assert.Equal(t, 10*time.Second, cfg.ClickHouse.DialTimeout)
}

func TestLoadFileWithSubstitution(t *testing.T) {
	t.Setenv("CH_TEST_PASSWORD", "s3cret")
	path := writeFile(t, `
clickhouse:
  addr: ["ch-1:9000", "ch-2:9000"]
  database: analytics
  password: ${CH_TEST_PASSWORD}
  dial_timeout: 3s
  compression: zstd
insert:
  batch_rows: 5000
  nullable: true
query:
  preserve_categorical: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"ch-1:9000", "ch-2:9000"}, cfg.ClickHouse.Addr)
	assert.Equal(t, "analytics", cfg.ClickHouse.Database)
	assert.Equal(t, "s3cret", cfg.ClickHouse.Password)
	assert.Equal(t, 3*time.Second, cfg.ClickHouse.DialTimeout)
	assert.Equal(t, "zstd", cfg.ClickHouse.Compression)
	assert.Equal(t, 5000, cfg.Insert.BatchRows)
	assert.True(t, cfg.Insert.Nullable)
	assert.True(t, cfg.Query.PreserveCategorical)
	assert.Equal(t, "MergeTree()", cfg.Insert.Engine)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ARROWHOUSE_CLICKHOUSE_DATABASE", "from_env")
	t.Setenv("ARROWHOUSE_INSERT_BATCH_ROWS", "42")
	path := writeFile(t, "clickhouse:\n  database: from_file\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from_env", cfg.ClickHouse.Database)
	assert.Equal(t, 42, cfg.Insert.BatchRows)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))

	_, err = Load(writeFile(t, "clickhouse: [unbalanced"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = Load(writeFile(t, "clickhouse:\n  compression: gzip\n"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"no address", func(c *Config) { c.ClickHouse.Addr = nil }, "clickhouse.addr"},
		{"zero batch", func(c *Config) { c.Insert.BatchRows = 0 }, "insert.batch_rows"},
		{"negative retries", func(c *Config) { c.Reliability.RetryAttempts = -1 }, "reliability.retry_attempts"},
		{"sampling rate", func(c *Config) { c.Tracing.SamplingRate = 2 }, "tracing.sampling_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)

			e, ok := errors.As(err)
			require.True(t, ok)
			assert.Equal(t, errors.ErrorTypeConfig, e.Type)
			assert.Equal(t, tt.field, e.Details["field"])
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestSaveThenLoad(t *testing.T) {
	cfg := Default()
	cfg.ClickHouse.Database = "saved"
	cfg.Insert.BatchRows = 1234

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "saved", loaded.ClickHouse.Database)
	assert.Equal(t, 1234, loaded.Insert.BatchRows)
	assert.Equal(t, cfg.ClickHouse.DialTimeout, loaded.ClickHouse.DialTimeout)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("AH_A", "1")
	assert.Equal(t, "x=1 y=", substituteEnvVars("x=${AH_A} y=${AH_UNSET_VAR}"))
	assert.Equal(t, "no vars", substituteEnvVars("no vars"))
}
