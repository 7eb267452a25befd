// Package config provides configuration loading and structs for the Tower server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Spool     SpoolConfig     `yaml:"spool"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the record store and indices.
type StorageConfig struct {
	DatabasePath     string `yaml:"database_path"`
	SnapshotPath     string `yaml:"snapshot_path"`
	KeywordIndexPath string `yaml:"keyword_index_path"`
}

// EmbeddingConfig holds embedder settings. The embedding dimension is fixed
// at process configuration time; changing it requires wiping the store and
// index and rebuilding from scratch.
type EmbeddingConfig struct {
	// Provider selects the embedder: "onnx" (local model) or "mock"
	// (deterministic, for development and tests).
	Provider  string `yaml:"provider"`
	ModelPath string `yaml:"model_path"`
	Dimension int    `yaml:"dimension"`
	MaxTokens int    `yaml:"max_tokens"`
	CacheSize int    `yaml:"cache_size"`
}

// SearchConfig holds semantic search and query expansion settings.
type SearchConfig struct {
	DefaultTopK    int `yaml:"default_top_k"`
	MaxTopK        int `yaml:"max_top_k"`
	ExpansionCount int `yaml:"expansion_count"`
	// VariantTimeoutMs bounds each query variant's embed+search so one slow
	// variant does not stall the others.
	VariantTimeoutMs int `yaml:"variant_timeout_ms"`
	KeywordLimit     int `yaml:"keyword_limit"`
}

// SpoolConfig holds ingest spool settings. Files fetched from remote devices
// land in the spool directory named "<fileID>_<filename>" and are indexed
// automatically.
type SpoolConfig struct {
	Directory string `yaml:"directory"`
	Enabled   bool   `yaml:"enabled"`
}

// Load reads and parses the config file at path, applies defaults, and
// expands relative paths. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.SnapshotPath = expandPath(cfg.Storage.SnapshotPath, configDir)
	cfg.Storage.KeywordIndexPath = expandPath(cfg.Storage.KeywordIndexPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Spool.Directory != "" {
		cfg.Spool.Directory = expandPath(cfg.Spool.Directory, configDir)
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
