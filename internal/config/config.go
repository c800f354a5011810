// Package config loads the optional larknotify YAML configuration: named
// webhook profiles, the relay server block, and the send-history location.
// String values support ${VAR} environment expansion, and the file can be
// locked against tampering with a BLAKE3 checksum manifest.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Load when the corresponding fields are unset.
const (
	DefaultLogLevel        = "INFO"
	DefaultListen          = "127.0.0.1:8080"
	DefaultSignatureHeader = "X-Hub-Signature-256"
	DefaultMaxBodySize     = 1 << 20 // 1MB
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Config is the root configuration document.
type Config struct {
	LogLevel       string             `yaml:"log_level"`
	DefaultProfile string             `yaml:"default_profile"`
	Profiles       map[string]Profile `yaml:"profiles"`
	History        HistoryConfig      `yaml:"history"`
	Server         ServerConfig       `yaml:"server"`
}

// Profile names a webhook destination. Secret is optional; an empty secret
// means messages to this profile are sent unsigned.
type Profile struct {
	WebhookURL string   `yaml:"webhook_url"`
	Secret     string   `yaml:"secret"`
	Keywords   []string `yaml:"keywords"`
}

// HistoryConfig locates the send-history database. An empty path disables
// history recording.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig configures the relay server. Secret, when set, enables
// inbound HMAC-SHA256 signature verification on the header named by
// SignatureHeader.
type ServerConfig struct {
	Listen          string `yaml:"listen"`
	Profile         string `yaml:"profile"`
	Secret          string `yaml:"secret"`
	SignatureHeader string `yaml:"signature_header"`
	MaxBodySize     int64  `yaml:"max_body_size"`
}

// Load reads, expands, and validates the configuration at path.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", path, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s", absPath)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", absPath, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// ResolveProfile returns the profile to use for a send: the named profile if
// name is non-empty, otherwise the default profile, otherwise a zero profile
// (flags and environment variables must then supply the webhook URL).
func (c *Config) ResolveProfile(name string) (Profile, string, error) {
	if name == "" {
		name = c.DefaultProfile
	}
	if name == "" {
		return Profile{}, "", nil
	}
	profile, ok := c.Profiles[name]
	if !ok {
		return Profile{}, "", fmt.Errorf("profile %q not defined in config", name)
	}
	return profile, name, nil
}

// expandEnvVars replaces ${VAR} references with environment values.
// Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = DefaultListen
	}
	if cfg.Server.SignatureHeader == "" {
		cfg.Server.SignatureHeader = DefaultSignatureHeader
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = DefaultMaxBodySize
	}
}

func validate(cfg *Config) error {
	for name, profile := range cfg.Profiles {
		if profile.WebhookURL == "" {
			return fmt.Errorf("profile %q: webhook_url is required", name)
		}
	}
	if cfg.DefaultProfile != "" {
		if _, ok := cfg.Profiles[cfg.DefaultProfile]; !ok {
			return fmt.Errorf("default_profile %q not defined in profiles", cfg.DefaultProfile)
		}
	}
	if cfg.Server.Profile != "" {
		if _, ok := cfg.Profiles[cfg.Server.Profile]; !ok {
			return fmt.Errorf("server.profile %q not defined in profiles", cfg.Server.Profile)
		}
	}
	return nil
}
