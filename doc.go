// Package arrowhouse moves columnar dataframes in and out of ClickHouse.
//
// It maps dataframe column types to ClickHouse types and back, flattens
// nested struct columns into dotted ClickHouse column names, and transcodes
// column payloads in both directions without going through rows.
//
// # Architecture
//
// The engine is split into layers that only depend downwards:
//
//	pkg/chtype     - ClickHouse type model and type-string parser
//	pkg/frame      - Dataframe model (columns, validity masks, Arrow bridge)
//	pkg/transcode  - Type mapper, schema translator, column encoder/decoder
//	pkg/chclient   - clickhouse-go native protocol adapter with retries
//	pkg/table      - Table definitions, CREATE TABLE, batched insert, query
//
// Ambient packages follow the usual layout:
//
//	pkg/config        - Viper/YAML configuration with ARROWHOUSE_ env overrides
//	pkg/errors        - Structured, typed errors with column paths
//	pkg/logger        - Zap logging
//	pkg/metrics       - Prometheus counters and stage latencies
//	pkg/observability - OpenTelemetry tracing
//	pkg/compression   - Stream compression for Arrow files
//	pkg/strings       - Pooled builders and identifier quoting
//
// # Quick Start
//
// Derive a table from a frame, create it and insert:
//
//	import (
//	    "context"
//	    "github.com/ajitpratap0/arrowhouse/pkg/chclient"
//	    "github.com/ajitpratap0/arrowhouse/pkg/config"
//	    "github.com/ajitpratap0/arrowhouse/pkg/table"
//	)
//
//	cfg, _ := config.Load("arrowhouse.yaml")
//	client, _ := chclient.Open(ctx, cfg)
//	defer client.Close()
//
//	tb, _ := table.FromSchema("events", f.Schema(), table.TableOptions{})
//	_ = tb.Create(ctx, client, table.CreateOptions{PrimaryKey: []string{"id"}})
//	_ = tb.Insert(ctx, client, f, table.InsertOptions{})
//
// Read it back with the table's declared types:
//
//	back, _ := tb.Select(ctx, client, nil, "", transcode.Options{})
//
// # Type Mapping
//
// Integers, floats, Bool and String map one to one and UUIDs are stored as
// canonical String text. Categorical maps to LowCardinality(String), List to
// Array and Struct to a set of flat columns named parent.child. Nullability
// of a struct is pushed down to its leaves. ClickHouse has no
// Nullable(Array), so nullable lists are rejected.
//
// # CLI
//
// The arrowhouse command wraps the same operations for Arrow IPC files:
//
//	arrowhouse schema events.arrow --table events --primary-key id
//	arrowhouse load events.arrow.zst --table events --create --primary-key id
//	arrowhouse dump --table events --where "id > 10" --out events.arrow.lz4
//	arrowhouse describe events
package arrowhouse
