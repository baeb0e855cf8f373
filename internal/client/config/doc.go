// Package config loads runtime configuration for the draft client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string            address:port of the draft server (empty: local only)
//	-i int               online status check interval (seconds)
//	-db string           SQLite database path
//	-debounce duration   autosave debounce delay
//	-ttl duration        maximum backup age
//	-remote-timeout dur  timeout of one remote save
//	-log-format string   text, json or zap
//	-log-level string    debug, info, warn or error
//	-statsd string       DogStatsD address (metrics off when empty)
//	-s3-endpoint string  S3-compatible endpoint
//	-s3-bucket string    bucket for remote saves (remote saves off when empty)
//	-token-env string    environment variable holding the session token
//
// # JSON schema
//
// Durations use timex.Duration, so values can be strings like "3s" or
// integer nanoseconds. Absent keys keep their defaults:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "online_check_interval": "3s",
//	  "database_path": "drafts.db",
//	  "debounce_delay": "5s",
//	  "backup_ttl": "24h",
//	  "s3": {"region": "us-east-1", "endpoint": "http://localhost:9000", "bucket": "drafts"}
//	}
//
// Secrets such as S3 keys belong in the JSON file rather than flags.
package config
