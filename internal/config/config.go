// Package config handles loading and persisting user configuration
// for batu. Configuration is stored in ~/.batu/config.toml; the API key is
// kept separately in the encrypted vault.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/batu-chat/batu/internal/vault"
)

const (
	dirName  = ".batu"
	fileName = "config.toml"
	dbName   = "batu.db"

	// DefaultModel is OpenRouter's automatic model router.
	DefaultModel = "openrouter/auto"
	// DefaultBaseURL is the OpenRouter API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	defaultSiteURL  = "https://github.com/batu-chat/batu"
	defaultSiteName = "Batu Chat"

	envKeyHome    = "BATU_HOME"
	envKeyModel   = "BATU_MODEL"
	envKeyBaseURL = "BATU_BASE_URL"
	envKeyAPIKey  = "OPENROUTER_API_KEY"
)

// Config holds the user's configuration.
type Config struct {
	Model    string `toml:"model"`
	BaseURL  string `toml:"base_url"`
	SiteURL  string `toml:"site_url"`
	SiteName string `toml:"site_name"`
	LogLevel string `toml:"log_level,omitempty"`

	// APIKey comes from OPENROUTER_API_KEY or the vault and is never
	// written to config.toml.
	APIKey string `toml:"-"`
}

// Dir returns the configuration directory path.
func Dir() string {
	if dir := os.Getenv(envKeyHome); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, dirName)
}

// DBPath returns the default location of the conversation database.
func DBPath() string {
	return filepath.Join(Dir(), dbName)
}

func configPath() string {
	return filepath.Join(Dir(), fileName)
}

func defaults() *Config {
	return &Config{
		Model:    DefaultModel,
		BaseURL:  DefaultBaseURL,
		SiteURL:  defaultSiteURL,
		SiteName: defaultSiteName,
	}
}

// readFile loads config.toml over the defaults. A missing file is not an
// error.
func readFile() (*Config, error) {
	cfg := defaults()
	data, err := os.ReadFile(configPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath(), err)
	}
	return cfg, nil
}

// Load reads the configuration from disk, the vault and environment
// variables. Environment variables win over the file.
func Load() (*Config, error) {
	cfg, err := readFile()
	if err != nil {
		return nil, err
	}

	if model := os.Getenv(envKeyModel); model != "" {
		cfg.Model = model
	}
	if baseURL := os.Getenv(envKeyBaseURL); baseURL != "" {
		cfg.BaseURL = baseURL
	}

	if key := os.Getenv(envKeyAPIKey); key != "" {
		cfg.APIKey = strings.TrimSpace(key)
	} else {
		key, err := vault.New(Dir()).Load()
		if err != nil {
			return nil, fmt.Errorf("read API key: %w", err)
		}
		cfg.APIKey = key
	}

	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	return cfg, nil
}

// MaskedKey returns a shortened form of the key that is safe to print.
func (c *Config) MaskedKey() string {
	if c.APIKey == "" {
		return "[not set]"
	}
	if len(c.APIKey) <= 8 {
		return strings.Repeat("*", len(c.APIKey))
	}
	return c.APIKey[:6] + "..." + c.APIKey[len(c.APIKey)-4:]
}

// save persists the config to disk.
func save(cfg *Config) error {
	if err := os.MkdirAll(Dir(), 0o700); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return err
	}

	return os.WriteFile(configPath(), buf.Bytes(), 0o600)
}

// SetAPIKey seals the API key into the vault.
func SetAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("API key is empty")
	}
	return vault.New(Dir()).Store(key)
}

// ClearAPIKey removes the stored API key.
func ClearAPIKey() error {
	return vault.New(Dir()).Clear()
}

// SetModel saves the model preference to the config file.
func SetModel(model string) error {
	cfg, err := readFile()
	if err != nil {
		return err
	}

	cfg.Model = model
	return save(cfg)
}
