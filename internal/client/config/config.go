package config

import (
	"time"

	"github.com/dmitrijs2005/draftkeeper/internal/client/client"
)

// Config holds runtime settings for the draft client.
type Config struct {
	// ServerEndpointAddr is host:port of the gRPC health endpoint. Empty
	// runs the client in local-only mode.
	ServerEndpointAddr  string
	OnlineCheckInterval time.Duration

	// DatabasePath is the SQLite file holding local backups.
	DatabasePath string

	DebounceDelay          time.Duration
	RemoteSaveTimeout      time.Duration
	BackupTTL              time.Duration
	FailureNoticeThreshold int

	// LogFormat is one of text, json or zap.
	LogFormat string
	LogLevel  string

	// StatsdAddr enables DogStatsD metrics when set.
	StatsdAddr string

	// S3 is the remote draft storage; an empty bucket disables remote saves.
	S3 client.S3Config

	// CredentialEnv names an environment variable to read the session
	// token from when no interactive login happened.
	CredentialEnv string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.OnlineCheckInterval = 3 * time.Second
	c.DatabasePath = "drafts.db"
	c.DebounceDelay = 5 * time.Second
	c.RemoteSaveTimeout = 30 * time.Second
	c.BackupTTL = 24 * time.Hour
	c.FailureNoticeThreshold = 3
	c.LogFormat = "text"
	c.LogLevel = "info"
	c.S3 = client.S3Config{Region: "us-east-1", Prefix: "drafts"}
	c.CredentialEnv = "DRAFTKEEPER_TOKEN"
}

// LoadConfig applies defaults, then the JSON file named by -c/-config (if
// any), then the remaining flags in args. Later sources take precedence.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJSON(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
