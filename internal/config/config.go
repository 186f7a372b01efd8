package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Analysis  Analysis  `yaml:"analysis"`
	Pipeline  Pipeline  `yaml:"pipeline"`
	Output    Output    `yaml:"output"`
	Server    Server    `yaml:"server"`
	Scheduler Scheduler `yaml:"scheduler"`
	Logging   Logging   `yaml:"logging"`
}

type Analysis struct {
	Provider        string  `yaml:"provider"`
	AnthropicModel  string  `yaml:"anthropic_model"`
	AnthropicKeyEnv string  `yaml:"anthropic_key_env"`
	OpenAIModel     string  `yaml:"openai_model"`
	OpenAIKeyEnv    string  `yaml:"openai_key_env"`
	MaxTokens       int     `yaml:"max_tokens"`
	RateIntervalMS  int     `yaml:"rate_interval_ms"`
	Temperature     float64 `yaml:"temperature"`
}

type Pipeline struct {
	FeedbackBatchLimit int `yaml:"feedback_batch_limit"`
	DiscoveryBatchSize int `yaml:"discovery_batch_size"`
	LinkWindowHours    int `yaml:"link_window_hours"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Scheduler struct {
	ProcessIntervalMinutes  int `yaml:"process_interval_minutes"`
	InsightIntervalMinutes  int `yaml:"insight_interval_minutes"`
	AttackIntervalMinutes   int `yaml:"attack_interval_minutes"`
	MaintainIntervalMinutes int `yaml:"maintain_interval_minutes"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for pulsedesk.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "pulsedesk")
}

// DataDir returns the XDG data directory for pulsedesk.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "pulsedesk")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/pulsedesk/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'pulsedesk init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Analysis: Analysis{
			Provider:        "anthropic",
			AnthropicModel:  "claude-sonnet-4-20250514",
			AnthropicKeyEnv: "ANTHROPIC_API_KEY",
			OpenAIModel:     "gpt-4o-mini",
			OpenAIKeyEnv:    "OPENAI_API_KEY",
			MaxTokens:       4096,
			RateIntervalMS:  500,
			Temperature:     0.3,
		},
		Pipeline: Pipeline{
			FeedbackBatchLimit: 100,
			DiscoveryBatchSize: 25,
			LinkWindowHours:    24,
		},
		Server: Server{Port: 8000},
		Scheduler: Scheduler{
			ProcessIntervalMinutes:  15,
			InsightIntervalMinutes:  60,
			AttackIntervalMinutes:   1440,
			MaintainIntervalMinutes: 1440,
		},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
