// Package config provides configuration loading for arrowhouse.
//
// A single Config structure covers the ClickHouse connection, insert and
// query behaviour, retries, logging and tracing. Values come from, in
// increasing priority:
//
//   - Default()
//   - a YAML file, with ${VAR_NAME} references replaced by environment values
//   - ARROWHOUSE_* environment variables, with dots in keys written as
//     underscores (ARROWHOUSE_CLICKHOUSE_DATABASE, ARROWHOUSE_INSERT_BATCH_ROWS)
//
// # Usage
//
//	cfg, err := config.Load("arrowhouse.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// ## Environment Variable Substitution
//
//	clickhouse:
//	  addr: ["${CH_HOST}:9000"]
//	  password: ${CH_PASSWORD}
//
// Save writes a configuration back as YAML, which is how the CLI produces
// a starter file.
package config
