package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"manity/internal/selector"
	"manity/internal/tools"
)

// Config models manity.yml.
type Config struct {
	Workspace struct {
		Name string `yaml:"name"`
	} `yaml:"workspace"`
	Agent struct {
		Author              string   `yaml:"author"`
		MaxSteps            int      `yaml:"max_steps"`
		AllowSideEffects    bool     `yaml:"allow_side_effects"`
		RequireConfirmation bool     `yaml:"require_confirmation"`
		ExcludeTools        []string `yaml:"exclude_tools"`
	} `yaml:"agent"`
	Server struct {
		Addr      string `yaml:"addr"`
		JWTSecret string `yaml:"jwt_secret"`
		Metrics   bool   `yaml:"metrics"`
	} `yaml:"server"`
	Email EmailConfig `yaml:"email"`
}

// EmailConfig controls outbox delivery. With no webhook_url, queued mail
// stays in the outbox.
type EmailConfig struct {
	From        string  `yaml:"from"`
	WebhookURL  string  `yaml:"webhook_url"`
	Secret      string  `yaml:"secret"`
	RatePerSec  float64 `yaml:"rate_per_second"`
	Burst       int     `yaml:"burst"`
	MaxAttempts int     `yaml:"max_attempts"`
}

// Constraints converts the agent section into run constraints.
func (c *Config) Constraints() selector.AgentConstraints {
	out := selector.AgentConstraints{
		MaxSteps:            c.Agent.MaxSteps,
		AllowSideEffects:    c.Agent.AllowSideEffects,
		RequireConfirmation: c.Agent.RequireConfirmation,
	}
	for _, name := range c.Agent.ExcludeTools {
		out.ExcludeTools = append(out.ExcludeTools, tools.Name(name))
	}
	return out
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with manity init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Workspace.Name) == "" {
		return fmt.Errorf("config.workspace.name is required")
	}
	if c.Agent.MaxSteps < 1 {
		return fmt.Errorf("config.agent.max_steps must be at least 1")
	}
	for _, name := range c.Agent.ExcludeTools {
		if !tools.Known(name) {
			return fmt.Errorf("config.agent.exclude_tools: unknown tool %s", name)
		}
	}
	if c.Email.MaxAttempts < 1 {
		return fmt.Errorf("config.email.max_attempts must be at least 1")
	}
	if c.Email.RatePerSec < 0 {
		return fmt.Errorf("config.email.rate_per_second must not be negative")
	}
	if c.Email.WebhookURL != "" && !strings.HasPrefix(c.Email.WebhookURL, "http://") && !strings.HasPrefix(c.Email.WebhookURL, "https://") {
		return fmt.Errorf("config.email.webhook_url must be an http(s) url")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "manity.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(name string) string {
	return fmt.Sprintf(defaultTemplate, name)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default("default"), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config for a workspace.
func Default(name string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(name))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Sections left
// out of data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default("default")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `workspace:
  name: %s

agent:
  author: assistant
  max_steps: 10
  allow_side_effects: true
  require_confirmation: false
  exclude_tools: []

server:
  addr: 127.0.0.1:8080
  jwt_secret: ""
  metrics: true

email:
  from: assistant@manity.local
  webhook_url: ""
  secret: ""
  rate_per_second: 1
  burst: 5
  max_attempts: 3
`
