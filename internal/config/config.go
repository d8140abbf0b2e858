package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models gigboard.yml.
type Config struct {
	Marketplace struct {
		Name       string   `yaml:"name"`
		Categories []string `yaml:"categories"`
	} `yaml:"marketplace"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		DevLogin  bool   `yaml:"dev_login"`
	} `yaml:"auth"`
	Webhooks []Webhook `yaml:"webhooks"`
}

// Webhook subscribes an external URL to event types. An empty Events list
// means every event.
type Webhook struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// ValidCategory reports whether the category exists in the catalog.
func (c *Config) ValidCategory(category string) bool {
	for _, cat := range c.Marketplace.Categories {
		if strings.EqualFold(cat, category) {
			return true
		}
	}
	return false
}

// Load reads and validates config from workspace, falling back to defaults
// when the file does not exist.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Marketplace.Name == "" {
		return fmt.Errorf("config.marketplace.name is required")
	}
	if len(c.Marketplace.Categories) == 0 {
		return fmt.Errorf("config.marketplace.categories must not be empty")
	}
	seen := map[string]bool{}
	for _, cat := range c.Marketplace.Categories {
		if strings.TrimSpace(cat) == "" {
			return fmt.Errorf("config.marketplace.categories contains an empty entry")
		}
		key := strings.ToLower(cat)
		if seen[key] {
			return fmt.Errorf("config.marketplace.categories lists %q twice", cat)
		}
		seen[key] = true
	}
	for i, wh := range c.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		for _, t := range wh.Events {
			if t == "" {
				return fmt.Errorf("config.webhooks[%d] has empty event type", i)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "gigboard.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `marketplace:
  name: gigboard

  categories:
    - Web Development
    - Mobile Development
    - Design
    - Writing
    - Marketing
    - Data Science
    - Other

server:
  addr: ":8080"
  base_path: /v1

auth:
  jwt_secret: ""
  dev_login: true

webhooks: []
`
