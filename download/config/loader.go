package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvCookiesPath = "SPOTIFYDL_COOKIES_PATH"
	EnvWVDPath     = "SPOTIFYDL_WVD_PATH"
	EnvOutputPath  = "SPOTIFYDL_OUTPUT_PATH"
)

// DefaultConfigPath returns ~/.spotify-web-downloader/config.json.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".spotify-web-downloader", "config.json")
	}
	return filepath.Join(home, ".spotify-web-downloader", "config.json")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadConfig loads and validates configuration from a JSON or YAML file.
// Keys missing from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, &ConfigError{
			Message: fmt.Sprintf("Configuration file not found: %s", path),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{
			Message: fmt.Sprintf("Error reading configuration file: %v", err),
		}
	}

	cfg := Default()
	if isYAML(path) {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &ConfigError{
				Message: fmt.Sprintf("Error parsing YAML file: %v", err),
			}
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, &ConfigError{
				Message: fmt.Sprintf("Error parsing JSON file: %v", err),
			}
		}
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrCreate loads the config at path, writing the defaults there first when
// the file does not exist.
func LoadOrCreate(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := WriteDefault(path); err != nil {
			return nil, err
		}
	}
	return LoadConfig(path)
}

// WriteDefault writes the default configuration to path.
func WriteDefault(path string) error {
	return Save(Default(), path)
}

// Save writes cfg to path as JSON or YAML depending on the extension.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &ConfigError{
			Message: fmt.Sprintf("Error creating configuration directory: %v", err),
		}
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "    ")
	}
	if err != nil {
		return &ConfigError{
			Message: fmt.Sprintf("Error encoding configuration: %v", err),
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return &ConfigError{
			Message: fmt.Sprintf("Error writing configuration file: %v", err),
		}
	}
	return nil
}

// ApplyEnv overrides path settings from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvCookiesPath); v != "" {
		c.CookiesPath = v
	}
	if v := os.Getenv(EnvWVDPath); v != "" {
		c.WVDPath = v
	}
	if v := os.Getenv(EnvOutputPath); v != "" {
		c.OutputPath = v
	}
}
