package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/depotgate/depotgate/pkg/sanitize"
)

// Config is the validated configuration the composition root consumes.
// Environment and CLI concerns resolve into this struct before any core
// component is constructed.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// TenantID scopes the process in single-tenant mode.
	TenantID string `yaml:"tenant_id"`

	// MaxArtifactBytes caps a single staged artifact. 0 = unlimited.
	MaxArtifactBytes int64 `yaml:"max_artifact_bytes"`

	// StorageBasePath roots the filesystem staging backend.
	StorageBasePath string `yaml:"storage_base_path"`

	// SinkBasesByScheme roots filesystem-like sinks, keyed by scheme.
	SinkBasesByScheme map[string]string `yaml:"sink_bases_by_scheme"`

	// EnabledSinks lists the sink schemes to wire. Empty enables fs, http
	// and https.
	EnabledSinks []string `yaml:"enabled_sinks"`

	// MetadataDBPath and ReceiptsDBPath locate the two BoltDB files.
	MetadataDBPath string `yaml:"metadata_db_path"`
	ReceiptsDBPath string `yaml:"receipts_db_path"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Host:            "127.0.0.1",
		Port:            7411,
		TenantID:        "default",
		StorageBasePath: "/var/lib/depotgate/staging",
		SinkBasesByScheme: map[string]string{
			"fs": "/var/lib/depotgate/shipped",
		},
		EnabledSinks:   []string{"fs", "http", "https"},
		MetadataDBPath: "/var/lib/depotgate/depotgate.db",
		ReceiptsDBPath: "/var/lib/depotgate/receipts.db",
	}
}

// Load reads a YAML configuration file over the defaults and validates the
// result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if len(cfg.EnabledSinks) == 0 {
		cfg.EnabledSinks = []string{"fs", "http", "https"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration is internally consistent.
func (c *Config) Validate() error {
	if err := sanitize.ValidateTenantID(c.TenantID); err != nil {
		return fmt.Errorf("tenant_id: %w", err)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.MaxArtifactBytes < 0 {
		return fmt.Errorf("max_artifact_bytes must be >= 0")
	}
	if c.StorageBasePath == "" {
		return fmt.Errorf("storage_base_path is required")
	}
	if c.MetadataDBPath == "" || c.ReceiptsDBPath == "" {
		return fmt.Errorf("metadata_db_path and receipts_db_path are required")
	}
	for _, scheme := range c.EnabledSinks {
		switch scheme {
		case "fs":
			if c.SinkBasesByScheme["fs"] == "" {
				return fmt.Errorf("sink scheme fs enabled without a base path")
			}
		case "http", "https":
		default:
			return fmt.Errorf("unknown sink scheme %q", scheme)
		}
	}
	return nil
}

// ListenAddr returns host:port for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
