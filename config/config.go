// Package config defines the takbridge application configuration: the TAK
// server connection, track storage backend, optional NATS fan-out, and the
// HTTP API.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/c360/takbridge/errors"
)

// Storage mode constants
const (
	StorageModeMemory = "memory" // In-memory only (default, volatile)
	StorageModeSQLite = "sqlite" // Local SQLite file
	StorageModeKV     = "kv"     // NATS JetStream KV bucket (requires NATS)
)

// Default values applied by ApplyDefaults.
const (
	DefaultTAKPort         = 8087
	DefaultPushInterval    = 30 * time.Second
	DefaultConnectTimeout  = 10 * time.Second
	DefaultCallsign        = "COP-LITE"
	DefaultAPIPort         = 8080
	DefaultSQLitePath      = "cop.db"
	DefaultKVBucket        = "takbridge_tracks"
	DefaultNATSSubject     = "takbridge.events.cot"
	DefaultShutdownTimeout = 30 * time.Second
)

// Config is the complete application configuration
type Config struct {
	Version  string         `json:"version"`
	Platform PlatformConfig `json:"platform"`
	TAK      TAKConfig      `json:"tak"`
	Storage  StorageConfig  `json:"storage"`
	NATS     NATSConfig     `json:"nats"`
	API      APIConfig      `json:"api"`
}

// PlatformConfig identifies this deployment
type PlatformConfig struct {
	Name        string `json:"name"`
	Environment string `json:"environment,omitempty"`
}

// TAKConfig configures the bridge to the remote TAK server. The bridge is
// opt-in: it only starts when Host is set.
type TAKConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	TLS            bool   `json:"tls"`
	CertFile       string `json:"cert_file,omitempty"`
	KeyFile        string `json:"key_file,omitempty"`
	CAFile         string `json:"ca_file,omitempty"`
	Callsign       string `json:"callsign"`
	PushIntervalMS int    `json:"push_interval_ms"`
}

// Enabled reports whether the bridge should start.
func (c TAKConfig) Enabled() bool {
	return c.Host != ""
}

// PushInterval returns the track push interval as a duration.
func (c TAKConfig) PushInterval() time.Duration {
	if c.PushIntervalMS <= 0 {
		return DefaultPushInterval
	}
	return time.Duration(c.PushIntervalMS) * time.Millisecond
}

// StorageConfig selects the track store backend
type StorageConfig struct {
	Mode   string `json:"mode"`
	Path   string `json:"path,omitempty"`   // sqlite file path
	Bucket string `json:"bucket,omitempty"` // kv bucket name
}

// NATSConfig configures the optional NATS connection
type NATSConfig struct {
	URL     string `json:"url,omitempty"`
	Subject string `json:"subject,omitempty"`
}

// Enabled reports whether NATS fan-out should be wired.
func (c NATSConfig) Enabled() bool {
	return c.URL != ""
}

// APIConfig configures the HTTP API server
type APIConfig struct {
	Host string `json:"host,omitempty"`
	Port int    `json:"port"`
}

// Addr returns the listen address for the API server.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{
		Version:  "1.0.0",
		Platform: PlatformConfig{Name: "takbridge"},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields with their default values.
func (c *Config) ApplyDefaults() {
	if c.TAK.Port == 0 {
		c.TAK.Port = DefaultTAKPort
	}
	if c.TAK.Callsign == "" {
		c.TAK.Callsign = DefaultCallsign
	}
	if c.TAK.PushIntervalMS == 0 {
		c.TAK.PushIntervalMS = int(DefaultPushInterval / time.Millisecond)
	}
	if c.Storage.Mode == "" {
		c.Storage.Mode = StorageModeMemory
	}
	if c.Storage.Mode == StorageModeSQLite && c.Storage.Path == "" {
		c.Storage.Path = DefaultSQLitePath
	}
	if c.Storage.Mode == StorageModeKV && c.Storage.Bucket == "" {
		c.Storage.Bucket = DefaultKVBucket
	}
	if c.NATS.Enabled() && c.NATS.Subject == "" {
		c.NATS.Subject = DefaultNATSSubject
	}
	if c.API.Port == 0 {
		c.API.Port = DefaultAPIPort
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.TAK.Port < 0 || c.TAK.Port > 65535 {
		return errors.WrapInvalid(
			fmt.Errorf("tak port %d out of range", c.TAK.Port),
			"Config", "Validate", "tak port")
	}
	if c.TAK.Enabled() && c.TAK.Callsign == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "tak callsign")
	}
	if (c.TAK.CertFile == "") != (c.TAK.KeyFile == "") {
		return errors.WrapInvalid(
			fmt.Errorf("cert_file and key_file must be set together"),
			"Config", "Validate", "tak client certificate")
	}

	switch c.Storage.Mode {
	case StorageModeMemory:
	case StorageModeSQLite:
		if c.Storage.Path == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "sqlite path")
		}
	case StorageModeKV:
		if !c.NATS.Enabled() {
			return errors.WrapInvalid(
				fmt.Errorf("storage mode %q requires nats.url", StorageModeKV),
				"Config", "Validate", "kv storage")
		}
		if c.Storage.Bucket == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "kv bucket")
		}
	default:
		return errors.WrapInvalid(
			fmt.Errorf("unknown storage mode %q", c.Storage.Mode),
			"Config", "Validate", "storage mode")
	}

	if c.API.Port < 0 || c.API.Port > 65535 {
		return errors.WrapInvalid(
			fmt.Errorf("api port %d out of range", c.API.Port),
			"Config", "Validate", "api port")
	}

	return nil
}

// Load reads a JSON configuration file, applies environment overrides and
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "file read")
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "json decode")
		}
	}

	cfg.applyEnvOverrides()
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployments override the file without editing it.
func (c *Config) applyEnvOverrides() {
	setString(&c.TAK.Host, "TAK_HOST")
	setInt(&c.TAK.Port, "TAK_PORT")
	setBool(&c.TAK.TLS, "TAK_TLS")
	setString(&c.TAK.CertFile, "TAK_CERT_FILE")
	setString(&c.TAK.KeyFile, "TAK_KEY_FILE")
	setString(&c.TAK.CAFile, "TAK_CA_FILE")
	setString(&c.TAK.Callsign, "TAK_CALLSIGN")
	if v := os.Getenv("TAK_PUSH_INTERVAL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.TAK.PushIntervalMS = secs * 1000
		}
	}

	setString(&c.Storage.Mode, "COP_STORAGE_MODE")
	setString(&c.Storage.Path, "COP_DB_PATH")
	setString(&c.NATS.URL, "TAKBRIDGE_NATS_URL")
	setInt(&c.API.Port, "TAKBRIDGE_API_PORT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}
