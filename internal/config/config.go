// Package config handles homedeck configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/homedeck/config.yaml,
// /etc/homedeck/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "homedeck", "config.yaml"))
	}

	paths = append(paths, "/etc/homedeck/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all homedeck configuration.
type Config struct {
	Listen        ListenConfig        `yaml:"listen"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	Refresh       RefreshConfig       `yaml:"refresh"`
	DataDir       string              `yaml:"data_dir"`
	LogLevel      string              `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// HomeAssistantConfig defines HA connection settings.
type HomeAssistantConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// MQTTConfig defines the optional MQTT presence publisher. When both
// Broker and DeviceName are set, homedeck announces itself to Home
// Assistant via MQTT discovery.
type MQTTConfig struct {
	Broker             string `yaml:"broker"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	DeviceName         string `yaml:"device_name"`
	DiscoveryPrefix    string `yaml:"discovery_prefix"`
	PublishIntervalSec int    `yaml:"publish_interval_sec"`
}

// Configured reports whether the MQTT publisher should run.
func (c MQTTConfig) Configured() bool {
	return c.Broker != "" && c.DeviceName != ""
}

// RefreshConfig tunes the regroup cycle.
type RefreshConfig struct {
	// CoalesceSec is how long to batch incoming state changes before
	// regrouping (default 2).
	CoalesceSec int `yaml:"coalesce_sec"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen:  ListenConfig{Port: 8090},
		DataDir: "data",
		MQTT: MQTTConfig{
			DiscoveryPrefix:    "homeassistant",
			PublishIntervalSec: 60,
		},
		Refresh: RefreshConfig{CoalesceSec: 2},
	}
}
