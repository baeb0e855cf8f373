package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/draftkeeper/internal/flagx"
)

var knownFlags = []string{
	"-a", "-i", "-db", "-debounce", "-ttl", "-remote-timeout",
	"-log-format", "-log-level", "-statsd", "-s3-endpoint", "-s3-bucket", "-token-env",
}

// parseFlags overlays cfg with command-line flags. Unknown arguments are
// filtered out first so other flag sets can share the command line.
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("draftctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port of the draft server (empty: local only)")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval/time.Second), "online check interval (in seconds)")
	fs.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "path to the local SQLite database")
	fs.DurationVar(&cfg.DebounceDelay, "debounce", cfg.DebounceDelay, "autosave debounce delay")
	fs.DurationVar(&cfg.BackupTTL, "ttl", cfg.BackupTTL, "maximum age of a local backup")
	fs.DurationVar(&cfg.RemoteSaveTimeout, "remote-timeout", cfg.RemoteSaveTimeout, "timeout of a single remote save")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: text, json or zap")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.StatsdAddr, "statsd", cfg.StatsdAddr, "DogStatsD address")
	fs.StringVar(&cfg.S3.Endpoint, "s3-endpoint", cfg.S3.Endpoint, "S3-compatible endpoint")
	fs.StringVar(&cfg.S3.Bucket, "s3-bucket", cfg.S3.Bucket, "bucket for remote draft saves")
	fs.StringVar(&cfg.CredentialEnv, "token-env", cfg.CredentialEnv, "environment variable holding the session token")

	if err := fs.Parse(flagx.FilterArgs(args, knownFlags)); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	if *onlineCheckInterval <= 0 {
		return fmt.Errorf("online check interval must be positive, got %d", *onlineCheckInterval)
	}
	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
	return nil
}
