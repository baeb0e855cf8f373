package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/draftkeeper/internal/client/client"
	"github.com/dmitrijs2005/draftkeeper/internal/flagx"
	"github.com/dmitrijs2005/draftkeeper/internal/timex"
)

// JSONConfig is the on-disk form of Config. Pointer and zero-able fields
// distinguish "absent" from "set", so a partial file only overrides what it
// names.
type JSONConfig struct {
	ServerEndpointAddr     *string          `json:"server_endpoint_addr"`
	OnlineCheckInterval    *timex.Duration  `json:"online_check_interval"`
	DatabasePath           *string          `json:"database_path"`
	DebounceDelay          *timex.Duration  `json:"debounce_delay"`
	RemoteSaveTimeout      *timex.Duration  `json:"remote_save_timeout"`
	BackupTTL              *timex.Duration  `json:"backup_ttl"`
	FailureNoticeThreshold *int             `json:"failure_notice_threshold"`
	LogFormat              *string          `json:"log_format"`
	LogLevel               *string          `json:"log_level"`
	StatsdAddr             *string          `json:"statsd_addr"`
	S3                     *client.S3Config `json:"s3"`
	CredentialEnv          *string          `json:"credential_env"`
}

func parseJSON(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	// s3 keys merge into the current settings
	s3 := cfg.S3
	jc := JSONConfig{S3: &s3}
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	jc.apply(cfg)
	return nil
}

func (jc *JSONConfig) apply(cfg *Config) {
	setString(&cfg.ServerEndpointAddr, jc.ServerEndpointAddr)
	setDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)
	setString(&cfg.DatabasePath, jc.DatabasePath)
	setDuration(&cfg.DebounceDelay, jc.DebounceDelay)
	setDuration(&cfg.RemoteSaveTimeout, jc.RemoteSaveTimeout)
	setDuration(&cfg.BackupTTL, jc.BackupTTL)
	if jc.FailureNoticeThreshold != nil {
		cfg.FailureNoticeThreshold = *jc.FailureNoticeThreshold
	}
	setString(&cfg.LogFormat, jc.LogFormat)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.StatsdAddr, jc.StatsdAddr)
	if jc.S3 != nil {
		cfg.S3 = *jc.S3
	}
	setString(&cfg.CredentialEnv, jc.CredentialEnv)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
