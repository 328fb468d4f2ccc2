package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"accredo/internal/domain"
)

// Config models accredo.yml: the requirement catalog, provisioning plans,
// role descriptions and the classification window for a workspace.
type Config struct {
	Classification struct {
		ExpiringWindowDays int `yaml:"expiring_window_days"`
	} `yaml:"classification"`
	Roles struct {
		Catalog map[string]RoleSpec `yaml:"catalog"`
	} `yaml:"roles"`
	Requirements struct {
		Catalog map[string]RequirementSpec `yaml:"catalog"`
	} `yaml:"requirements"`
	Plans    map[string]Plan `yaml:"plans"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type RoleSpec struct {
	Description string `yaml:"description"`
}

type RequirementSpec struct {
	Category     string `yaml:"category"`
	ValidityDays int    `yaml:"validity_days"`
}

// Plan is a named bundle of tasks a project gets provisioned with.
type Plan struct {
	Description string     `yaml:"description"`
	Tasks       []PlanTask `yaml:"tasks"`
}

type PlanTask struct {
	Requirement string `yaml:"requirement"`
	Role        string `yaml:"role"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// ExpiringWindowDays returns the configured classification window,
// defaulting to 30 days.
func (c *Config) ExpiringWindowDays() int {
	if c == nil || c.Classification.ExpiringWindowDays <= 0 {
		return 30
	}
	return c.Classification.ExpiringWindowDays
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Classification.ExpiringWindowDays < 0 {
		return fmt.Errorf("config.classification.expiring_window_days must not be negative")
	}
	for roleID := range c.Roles.Catalog {
		if !domain.Role(roleID).Valid() {
			return fmt.Errorf("config.roles.catalog contains unknown role %s", roleID)
		}
	}
	for name, spec := range c.Requirements.Catalog {
		if name == "" {
			return fmt.Errorf("config.requirements.catalog contains empty requirement name")
		}
		if spec.Category == "" {
			return fmt.Errorf("requirement %s has empty category", name)
		}
		if spec.ValidityDays < 0 {
			return fmt.Errorf("requirement %s has negative validity_days", name)
		}
	}
	for planName, plan := range c.Plans {
		if len(plan.Tasks) == 0 {
			return fmt.Errorf("plan %s has no tasks", planName)
		}
		seen := make(map[PlanTask]bool, len(plan.Tasks))
		for _, t := range plan.Tasks {
			if t.Requirement == "" {
				return fmt.Errorf("plan %s has task with empty requirement", planName)
			}
			if seen[t] {
				return fmt.Errorf("plan %s lists %s for role %s twice", planName, t.Requirement, t.Role)
			}
			seen[t] = true
			if len(c.Requirements.Catalog) > 0 {
				if _, ok := c.Requirements.Catalog[t.Requirement]; !ok {
					return fmt.Errorf("plan %s references unknown requirement %s", planName, t.Requirement)
				}
			}
			if !domain.Role(t.Role).Valid() {
				return fmt.Errorf("plan %s task %s has unknown role %s", planName, t.Requirement, t.Role)
			}
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "accredo.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found", path)
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

const defaultTemplate = `classification:
  expiring_window_days: 30

roles:
  catalog:
    safety:
      description: "Health and safety coordinator"
    hr:
      description: "Human resources"
    admin:
      description: "Administration and finance"
    operations:
      description: "Site operations manager"

requirements:
  catalog:
    medical.checkup:
      category: medical
      validity_days: 365
    training.safety_basic:
      category: training
      validity_days: 1095
    training.first_aid:
      category: training
      validity_days: 730
    insurance.liability:
      category: corporate
      validity_days: 365
    social_security.certificate:
      category: corporate
      validity_days: 90
    contract.signed:
      category: corporate
      validity_days: 0
    equipment.ppe_delivery:
      category: equipment
      validity_days: 365

plans:
  standard:
    description: "Default requirement set for a contractor engagement"
    tasks:
      - requirement: medical.checkup
        role: hr
      - requirement: training.safety_basic
        role: safety
      - requirement: insurance.liability
        role: admin
      - requirement: social_security.certificate
        role: admin
      - requirement: contract.signed
        role: hr
      - requirement: equipment.ppe_delivery
        role: operations

  minimal:
    description: "Short engagement, paperwork only"
    tasks:
      - requirement: insurance.liability
        role: admin
      - requirement: contract.signed
        role: hr
`
