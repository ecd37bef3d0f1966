package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models bountyline.yml.
type Config struct {
	Repository struct {
		Owner string `yaml:"owner"`
		Name  string `yaml:"name"`
	} `yaml:"repository"`
	Staking struct {
		DefaultStake      int    `yaml:"default_stake"`
		DefaultBounty     int    `yaml:"default_bounty"`
		StakeLabelPrefix  string `yaml:"stake_label_prefix"`
		BountyLabelPrefix string `yaml:"bounty_label_prefix"`
		ExpiryDays        int    `yaml:"expiry_days"`
	} `yaml:"staking"`
	Scoring struct {
		Endpoint       string `yaml:"endpoint"`
		Concurrency    int    `yaml:"concurrency"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"scoring"`
	Mirrors []MirrorConfig `yaml:"mirrors"`
}

// MirrorConfig describes one endpoint that receives ledger events, e.g. a
// distributed-ledger recording service. Delivery is best effort.
type MirrorConfig struct {
	URL     string   `yaml:"url"`
	Secret  string   `yaml:"secret,omitempty"`
	Events  []string `yaml:"events,omitempty"`
	Enabled *bool    `yaml:"enabled,omitempty"`
}

// FullName returns owner/name for the configured repository.
func (c *Config) FullName() string {
	return c.Repository.Owner + "/" + c.Repository.Name
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Repository.Owner == "" || c.Repository.Name == "" {
		return fmt.Errorf("config.repository.owner and config.repository.name are required")
	}
	if strings.ContainsAny(c.Repository.Owner, "/ ") || strings.ContainsAny(c.Repository.Name, "/ ") {
		return fmt.Errorf("config.repository fields must not contain '/' or spaces")
	}
	if c.Staking.DefaultStake <= 0 {
		return fmt.Errorf("config.staking.default_stake must be positive")
	}
	if c.Staking.DefaultBounty < 0 {
		return fmt.Errorf("config.staking.default_bounty must not be negative")
	}
	if c.Staking.StakeLabelPrefix == "" || c.Staking.BountyLabelPrefix == "" {
		return fmt.Errorf("config.staking label prefixes are required")
	}
	if c.Staking.ExpiryDays <= 0 {
		return fmt.Errorf("config.staking.expiry_days must be positive")
	}
	if c.Scoring.Concurrency <= 0 {
		return fmt.Errorf("config.scoring.concurrency must be positive")
	}
	if c.Scoring.TimeoutSeconds <= 0 {
		return fmt.Errorf("config.scoring.timeout_seconds must be positive")
	}
	for i, m := range c.Mirrors {
		if strings.TrimSpace(m.URL) == "" {
			return fmt.Errorf("config.mirrors[%d].url is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "bountyline.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with bl config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a repository.
func Default(owner, name string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, owner, name))).Decode(&cfg)
	cfg.Repository.Owner = owner
	cfg.Repository.Name = name
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(owner, name string) string {
	return fmt.Sprintf(defaultTemplate, owner, name)
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

const defaultTemplate = `repository:
  owner: %s
  name: %s

staking:
  default_stake: 30
  default_bounty: 20
  stake_label_prefix: "stake:"
  bounty_label_prefix: "bounty:"
  expiry_days: 14

scoring:
  endpoint: ""
  concurrency: 4
  timeout_seconds: 30

mirrors: []
`
