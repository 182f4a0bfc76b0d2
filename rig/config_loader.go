package rig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read when no config path is given
const DefaultConfigFile = "headswap.yaml"

// LoadConfig loads the configuration from a YAML file over the defaults,
// applies environment overrides, and validates the result
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadConfigOrDefault loads path when it exists and falls back to the defaults
// (with environment overrides) when it does not
func LoadConfigOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); err == nil {
		return LoadConfig(path)
	}

	config := DefaultConfig()
	if err := ApplyEnv(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overrides config fields from HEADSWAP_* and MQTT_* variables.
// Unset variables leave the field alone.
func ApplyEnv(config *Config) error {
	if err := env.Parse(config); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	return nil
}

// Validate checks required fields
func (c *Config) Validate() error {
	if c.Paths.TempDir == "" {
		return &ConfigError{Field: "paths.tempDir", Reason: "is required"}
	}
	if c.Paths.OutputPattern == "" {
		return &ConfigError{Field: "paths.outputPattern", Reason: "is required"}
	}
	if _, err := filepath.Match(c.Paths.OutputPattern, ""); err != nil {
		return &ConfigError{Field: "paths.outputPattern", Reason: err.Error()}
	}
	if c.Tool.Script == "" {
		return &ConfigError{Field: "tool.script", Reason: "is required"}
	}
	if c.MQTT.QoS > 2 {
		return &ConfigError{Field: "mqtt.qos", Reason: fmt.Sprintf("must be 0, 1 or 2 (got %d)", c.MQTT.QoS)}
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return &ConfigError{Field: "http.port", Reason: fmt.Sprintf("out of range: %d", c.HTTP.Port)}
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
