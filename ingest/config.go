// Package ingest orchestrates invoice processing: scan the document
// envelope, obtain table grids, parse shipment rows, persist outcomes,
// and push the good rows to the tabular datastore.
package ingest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/frakt/airtable"
)

// Config holds the full service configuration.
type Config struct {
	Listen      string          `yaml:"listen"`
	DBPath      string          `yaml:"db_path"`
	MaxUploadMB int             `yaml:"max_upload_mb"`
	Extractor   ExtractorConfig `yaml:"extractor"`
	Airtable    airtable.Config `yaml:"airtable"`
}

// ExtractorConfig points at the table-extraction sidecar. Leave URL empty to
// run without one; then only pre-extracted grid uploads are accepted.
type ExtractorConfig struct {
	URL string `yaml:"url"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:      ":8084",
		DBPath:      "frakt.db",
		MaxUploadMB: 50,
	}
}

// LoadConfig reads and parses a YAML config file, merged over DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be > 0")
	}
	if c.Airtable.Token != "" && !c.Airtable.Enabled() {
		return fmt.Errorf("airtable: base_id and table are required when a token is set")
	}
	return nil
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 { return int64(c.MaxUploadMB) * 1024 * 1024 }
