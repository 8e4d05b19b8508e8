package config

import (
	"bytes"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/arrowhouse/pkg/errors"
	"github.com/ajitpratap0/arrowhouse/pkg/logger"
	"github.com/ajitpratap0/arrowhouse/pkg/observability"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ARROWHOUSE"

// Config is the complete arrowhouse configuration.
type Config struct {
	// ClickHouse holds connection settings
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse" yaml:"clickhouse"`

	// Insert controls table creation and batched inserts
	Insert InsertConfig `mapstructure:"insert" yaml:"insert"`

	// Query controls how results are decoded
	Query QueryConfig `mapstructure:"query" yaml:"query"`

	// Reliability settings for connection retries
	Reliability ReliabilityConfig `mapstructure:"reliability" yaml:"reliability"`

	Logging logger.Config               `mapstructure:"logging" yaml:"logging"`
	Tracing observability.TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

// ClickHouseConfig contains native protocol connection settings.
type ClickHouseConfig struct {
	// Addr lists host:port pairs of the native protocol endpoint
	Addr     []string `mapstructure:"addr" yaml:"addr"`
	Database string   `mapstructure:"database" yaml:"database"`
	Username string   `mapstructure:"username" yaml:"username"`
	Password string   `mapstructure:"password" yaml:"password"`

	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	MaxOpenConns int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`

	// Compression selects wire compression: lz4, zstd or none
	Compression string `mapstructure:"compression" yaml:"compression"`

	// Settings are passed to the server with every query
	Settings map[string]interface{} `mapstructure:"settings" yaml:"settings,omitempty"`

	// Debug enables driver-level debug logging
	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// InsertConfig contains insert and table creation settings.
type InsertConfig struct {
	// BatchRows caps the number of rows sent per insert batch
	BatchRows int `mapstructure:"batch_rows" yaml:"batch_rows"`
	// Nullable makes every derived column nullable on table creation
	Nullable bool `mapstructure:"nullable" yaml:"nullable"`
	// IfNotExists adds IF NOT EXISTS to CREATE TABLE
	IfNotExists bool `mapstructure:"if_not_exists" yaml:"if_not_exists"`
	// Engine is the table engine clause, MergeTree() by default
	Engine string `mapstructure:"engine" yaml:"engine"`
}

// QueryConfig contains decoding settings.
type QueryConfig struct {
	// PreserveCategorical reads LowCardinality strings as categoricals
	PreserveCategorical bool `mapstructure:"preserve_categorical" yaml:"preserve_categorical"`
}

// ReliabilityConfig contains retry settings for transport failures.
type ReliabilityConfig struct {
	RetryAttempts   int           `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	RetryMultiplier float64       `mapstructure:"retry_multiplier" yaml:"retry_multiplier"`
	MaxRetryDelay   time.Duration `mapstructure:"max_retry_delay" yaml:"max_retry_delay"`
}

// Default returns a configuration for a local ClickHouse server.
func Default() *Config {
	return &Config{
		ClickHouse: ClickHouseConfig{
			Addr:         []string{"localhost:9000"},
			Database:     "default",
			Username:     "default",
			DialTimeout:  10 * time.Second,
			ReadTimeout:  5 * time.Minute,
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			Compression:  "lz4",
		},
		Insert: InsertConfig{
			BatchRows: 200000,
			Engine:    "MergeTree()",
		},
		Reliability: ReliabilityConfig{
			RetryAttempts:   3,
			RetryDelay:      time.Second,
			RetryMultiplier: 2.0,
			MaxRetryDelay:   30 * time.Second,
		},
		Logging: logger.Config{
			Level:    "info",
			Encoding: "console",
		},
		Tracing: observability.TracingConfig{
			ServiceName:  "arrowhouse",
			SamplingRate: 1.0,
			ExporterType: "stdout",
		},
	}
}

// Load reads configuration from path, which may be empty to use defaults
// and environment overrides only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // G304: path is chosen by the operator
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read config file").
				WithDetail("path", path)
		}
		v.SetConfigType("yaml")
		if err := v.ReadConfig(bytes.NewReader([]byte(substituteEnvVars(string(data))))); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse YAML").
				WithDetail("path", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to decode configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("clickhouse.addr", d.ClickHouse.Addr)
	v.SetDefault("clickhouse.database", d.ClickHouse.Database)
	v.SetDefault("clickhouse.username", d.ClickHouse.Username)
	v.SetDefault("clickhouse.password", d.ClickHouse.Password)
	v.SetDefault("clickhouse.dial_timeout", d.ClickHouse.DialTimeout)
	v.SetDefault("clickhouse.read_timeout", d.ClickHouse.ReadTimeout)
	v.SetDefault("clickhouse.max_open_conns", d.ClickHouse.MaxOpenConns)
	v.SetDefault("clickhouse.max_idle_conns", d.ClickHouse.MaxIdleConns)
	v.SetDefault("clickhouse.compression", d.ClickHouse.Compression)
	v.SetDefault("clickhouse.debug", d.ClickHouse.Debug)

	v.SetDefault("insert.batch_rows", d.Insert.BatchRows)
	v.SetDefault("insert.nullable", d.Insert.Nullable)
	v.SetDefault("insert.if_not_exists", d.Insert.IfNotExists)
	v.SetDefault("insert.engine", d.Insert.Engine)

	v.SetDefault("query.preserve_categorical", d.Query.PreserveCategorical)

	v.SetDefault("reliability.retry_attempts", d.Reliability.RetryAttempts)
	v.SetDefault("reliability.retry_delay", d.Reliability.RetryDelay)
	v.SetDefault("reliability.retry_multiplier", d.Reliability.RetryMultiplier)
	v.SetDefault("reliability.max_retry_delay", d.Reliability.MaxRetryDelay)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.development", d.Logging.Development)
	v.SetDefault("logging.encoding", d.Logging.Encoding)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.environment", d.Tracing.Environment)
	v.SetDefault("tracing.sampling_rate", d.Tracing.SamplingRate)
	v.SetDefault("tracing.exporter", d.Tracing.ExporterType)
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	invalid := func(field, msg string) error {
		return errors.New(errors.ErrorTypeConfig, msg).WithDetail("field", field)
	}
	if len(c.ClickHouse.Addr) == 0 {
		return invalid("clickhouse.addr", "at least one ClickHouse address is required")
	}
	switch c.ClickHouse.Compression {
	case "", "none", "lz4", "zstd":
	default:
		return invalid("clickhouse.compression", "compression must be lz4, zstd or none")
	}
	if c.ClickHouse.MaxOpenConns < 0 || c.ClickHouse.MaxIdleConns < 0 {
		return invalid("clickhouse.max_open_conns", "connection limits cannot be negative")
	}
	if c.Insert.BatchRows <= 0 {
		return invalid("insert.batch_rows", "batch_rows must be positive")
	}
	if c.Reliability.RetryAttempts < 0 {
		return invalid("reliability.retry_attempts", "retry_attempts cannot be negative")
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return invalid("tracing.sampling_rate", "sampling_rate must be between 0 and 1")
	}
	return nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg interface{}) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to marshal YAML")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write config file").WithDetail("path", path)
	}
	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		content = content[:start] + os.Getenv(varName) + content[end+1:]
	}
	return content
}
