package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Provider kinds selectable in the config file.
const (
	ProviderLocal = "local"
	ProviderCloud = "cloud"
)

// ProviderConfig selects and tunes the AI provider. It is read once at job
// start and treated as immutable for the duration of a build.
type ProviderConfig struct {
	Kind           string `yaml:"kind"`            // local | cloud
	Endpoint       string `yaml:"endpoint"`        // base URL of the provider
	APIKey         string `yaml:"api_key"`         // cloud only
	Model          string `yaml:"model"`           // chat/completion model
	EmbeddingModel string `yaml:"embedding_model"` // empty disables embeddings
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"` // per-file retry ceiling
}

// CatalogConfig locates the cataloged tree and the data directory.
type CatalogConfig struct {
	RootDir string `yaml:"root_dir"` // directory to catalog
	DataDir string `yaml:"data_dir"` // where the database lives
}

// ScanConfig tunes file enumeration.
type ScanConfig struct {
	MaxFileSizeMB int  `yaml:"max_file_size_mb"` // size ceiling for candidates
	Watch         bool `yaml:"watch"`            // rebuild automatically when the root changes
}

// SearchConfig tunes result ranking.
type SearchConfig struct {
	// SemanticWeight is the share of the final score contributed by
	// embedding similarity when embeddings are available; the lexical
	// score gets the complement. 0.7 keeps the semantic signal dominant
	// with lexical acting as an exact-term boost.
	SemanticWeight float64 `yaml:"semantic_weight"`
	Limit          int     `yaml:"limit"`
}

// Config holds application configuration.
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Scan     ScanConfig     `yaml:"scan"`
	Search   SearchConfig   `yaml:"search"`
}

// Default returns the default configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.Provider.Kind = ProviderLocal
	cfg.Provider.Endpoint = "http://localhost:11434"
	cfg.Provider.Model = "llama3.2"
	cfg.Provider.EmbeddingModel = "nomic-embed-text"
	cfg.Provider.TimeoutSeconds = 60
	cfg.Provider.MaxRetries = 3
	cfg.Catalog.DataDir = defaultDataDir()
	cfg.Scan.MaxFileSizeMB = 100
	cfg.Search.SemanticWeight = 0.7
	cfg.Search.Limit = 10
	return cfg
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".filedex"
	}
	return filepath.Join(home, ".filedex")
}

// Path returns the config file location.
func Path() string {
	return filepath.Join(defaultDataDir(), "config.yaml")
}

// Load reads configuration from the default path, falling back to defaults
// when the file does not exist.
func Load() (*Config, error) {
	return LoadFrom(Path())
}

// LoadFrom reads configuration from an explicit path.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

// Save writes the configuration to the default path, creating the data
// directory if needed.
func (c *Config) Save() error {
	return c.SaveTo(Path())
}

// SaveTo writes the configuration to an explicit path.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// normalize clamps values that would otherwise misbehave downstream.
func (c *Config) normalize() {
	if c.Provider.TimeoutSeconds <= 0 {
		c.Provider.TimeoutSeconds = 60
	}
	if c.Provider.MaxRetries < 0 {
		c.Provider.MaxRetries = 0
	}
	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		c.Search.SemanticWeight = 0.7
	}
	if c.Search.Limit <= 0 {
		c.Search.Limit = 10
	}
	if c.Scan.MaxFileSizeMB <= 0 {
		c.Scan.MaxFileSizeMB = 100
	}
}

// Validate checks that the provider section is usable for a build.
func (c *Config) Validate() error {
	switch c.Provider.Kind {
	case ProviderLocal:
		if c.Provider.Endpoint == "" {
			return fmt.Errorf("local provider requires an endpoint")
		}
	case ProviderCloud:
		if c.Provider.APIKey == "" {
			return fmt.Errorf("cloud provider requires an api_key")
		}
	default:
		return fmt.Errorf("unknown provider kind %q", c.Provider.Kind)
	}
	return nil
}
