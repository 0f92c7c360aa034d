package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for hs.
type Config struct {
	BaseDir  string         `toml:"base_dir" validate:"required"`
	LogDir   string         `toml:"log_dir" validate:"required"`
	LogLevel string         `toml:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	User     string         `toml:"user,omitempty"` // default user for commands run without --user
	Storage  StorageConfig  `toml:"storage"`
	Database DatabaseConfig `toml:"database"`
	Listing  ListingConfig  `toml:"listing"`
}

// StorageConfig selects where node content lives.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StorageConfig struct {
	Type string `toml:"type" validate:"required,oneof=os memory"`
	Root string `toml:"root,omitempty" validate:"required_if=Type os"` // only used for type=os
}

// DatabaseConfig represents configuration for the node catalog.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type          string `toml:"type" validate:"required,oneof=sqlite memory"`
	DataDir       string `toml:"data_dir,omitempty" validate:"required_if=Type sqlite"` // only used for type=sqlite
	BusyTimeoutMS int    `toml:"busy_timeout_ms,omitempty" validate:"gte=0"`
}

// ListingConfig holds defaults for folder listings.
type ListingConfig struct {
	DefaultPageSize int    `toml:"default_page_size" validate:"gte=0,lte=10000"`
	DefaultSort     string `toml:"default_sort,omitempty"` // "column" or "column:desc"
}

// NewConfig creates a Config rooted at baseDir with default locations.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		LogLevel: "info",
		Storage: StorageConfig{
			Type: "os",
			Root: filepath.Join(baseDir, "files"),
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Listing: ListingConfig{
			DefaultPageSize: 50,
			DefaultSort:     "title",
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads and validates a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := Validate(cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
