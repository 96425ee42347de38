// Package config loads settings for kvctl and the dev node.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables, then validation. Environment variables win over the
// file so a deployment can override a checked-in config without editing it.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Config is the client configuration.
type Config struct {
	Endpoints []string      `yaml:"endpoints" env:"KV_ENDPOINTS" envSeparator:"," validate:"dive,url"`
	Timeout   time.Duration `yaml:"timeout" env:"KV_TIMEOUT" validate:"gte=0"`
	Username  string        `yaml:"username" env:"KV_USERNAME"`
	Password  string        `yaml:"password" env:"KV_PASSWORD"`
	LogLevel  string        `yaml:"log_level" env:"KV_LOG_LEVEL" validate:"omitempty,oneof=trace debug info warn error"`
	LogFormat string        `yaml:"log_format" env:"KV_LOG_FORMAT" validate:"omitempty,oneof=console json"`
}

// Default returns the client defaults: a single local endpoint.
func Default() *Config {
	return &Config{
		Endpoints: []string{"http://127.0.0.1:2379"},
		Timeout:   5 * time.Second,
		LogLevel:  "warn",
		LogFormat: "console",
	}
}

// Load reads the client configuration. path may be empty to skip the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := load(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NodeConfig configures a dev node.
type NodeConfig struct {
	ID        string `yaml:"id" env:"NODE_ID" validate:"required"`
	Name      string `yaml:"name" env:"NODE_NAME"`
	Listen    string `yaml:"listen" env:"NODE_LISTEN" validate:"required"`
	ClientURL string `yaml:"client_url" env:"NODE_ADDR" validate:"required,url"`
	PeerURL   string `yaml:"peer_url" env:"NODE_PEER_ADDR" validate:"omitempty,url"`
	ClusterID string `yaml:"cluster_id" env:"NODE_CLUSTER_ID"`
	LogLevel  string `yaml:"log_level" env:"NODE_LOG_LEVEL" validate:"omitempty,oneof=trace debug info warn error"`
	LogFormat string `yaml:"log_format" env:"NODE_LOG_FORMAT" validate:"omitempty,oneof=console json"`

	// Join lists client URLs of an existing cluster to register with on
	// startup. Empty means run standalone.
	Join []string `yaml:"join" env:"NODE_JOIN" envSeparator:"," validate:"dive,url"`
}

// DefaultNode returns dev node defaults. ID has no default.
func DefaultNode() *NodeConfig {
	return &NodeConfig{
		Listen:    ":2379",
		ClientURL: "http://127.0.0.1:2379",
		PeerURL:   "http://127.0.0.1:2380",
		ClusterID: "dev-cluster",
		LogLevel:  "info",
		LogFormat: "console",
	}
}

// LoadNode reads the dev node configuration. path may be empty.
func LoadNode(path string) (*NodeConfig, error) {
	cfg := DefaultNode()
	if err := load(path, cfg); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}
	return cfg, nil
}

func load(path string, cfg any) error {
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
