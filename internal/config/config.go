package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models studyplan.yml.
type Config struct {
	Store struct {
		Backend       string   `yaml:"backend"`
		MongoURI      string   `yaml:"mongo_uri"`
		MongoDatabase string   `yaml:"mongo_database"`
		Timeout       Duration `yaml:"timeout"`
	} `yaml:"store"`
	Cache struct {
		Freshness Duration `yaml:"freshness"`
	} `yaml:"cache"`
	Sync struct {
		Strategy string `yaml:"strategy"`
	} `yaml:"sync"`
	Auth struct {
		JWTSecret  string   `yaml:"jwt_secret"`
		TokenTTL   Duration `yaml:"token_ttl"`
		BcryptCost int      `yaml:"bcrypt_cost"`
	} `yaml:"auth"`
	Extract struct {
		Provider  string   `yaml:"provider"`
		Model     string   `yaml:"model"`
		MaxTokens int      `yaml:"max_tokens"`
		APIKey    string   `yaml:"api_key"`
		Timeout   Duration `yaml:"timeout"`
	} `yaml:"extract"`
	Server struct {
		Addr             string   `yaml:"addr"`
		BasePath         string   `yaml:"base_path"`
		SessionCacheSize int      `yaml:"session_cache_size"`
		SessionTTL       Duration `yaml:"session_ttl"`
	} `yaml:"server"`
	Log struct {
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
	Webhooks []Webhook `yaml:"webhooks"`
}

type Webhook struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// IsEnabled treats a missing enabled key as true.
func (w Webhook) IsEnabled() bool { return w.Enabled == nil || *w.Enabled }

// Duration is a time.Duration written as "5s", "24h" in YAML.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", node.Line, raw)
	}
	*d = Duration(v)
	return nil
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with sp init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional falls back to Default when the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
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
	switch c.Store.Backend {
	case "sqlite":
	case "mongo":
		if c.Store.MongoURI == "" {
			return fmt.Errorf("config.store.mongo_uri is required for the mongo backend")
		}
	default:
		return fmt.Errorf("config.store.backend must be 'sqlite' or 'mongo', got %q", c.Store.Backend)
	}
	if c.Store.Timeout < 0 {
		return fmt.Errorf("config.store.timeout must not be negative")
	}
	if c.Cache.Freshness < 0 {
		return fmt.Errorf("config.cache.freshness must not be negative")
	}
	if s := c.Sync.Strategy; s != "poll" && s != "live" {
		return fmt.Errorf("config.sync.strategy must be 'poll' or 'live', got %q", s)
	}
	if c.Auth.BcryptCost != 0 && (c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31) {
		return fmt.Errorf("config.auth.bcrypt_cost must be between 4 and 31")
	}
	if c.Extract.Provider != "anthropic" {
		return fmt.Errorf("config.extract.provider must be 'anthropic', got %q", c.Extract.Provider)
	}
	if c.Extract.MaxTokens < 0 {
		return fmt.Errorf("config.extract.max_tokens must not be negative")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Server.SessionCacheSize < 0 {
		return fmt.Errorf("config.server.session_cache_size must not be negative")
	}
	for i, h := range c.Webhooks {
		if h.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		for _, e := range h.Events {
			if e == "" {
				return fmt.Errorf("config.webhooks[%d] has empty event type", i)
			}
		}
		if h.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "studyplan.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing from
// data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
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

const defaultTemplate = `store:
  backend: sqlite
  mongo_uri: ""
  mongo_database: studyplan
  timeout: 10s

cache:
  freshness: 5s

sync:
  # poll re-reads after every write; live follows the change hub
  strategy: live

auth:
  jwt_secret: ""
  token_ttl: 720h
  bcrypt_cost: 10

extract:
  provider: anthropic
  model: claude-sonnet-4-5
  max_tokens: 4096
  api_key: ""
  timeout: 90s

server:
  addr: 127.0.0.1:8080
  base_path: /v1
  session_cache_size: 256
  session_ttl: 30m

log:
  file: ""
  max_size_mb: 20
  max_backups: 3
  max_age_days: 28

webhooks: []
`
