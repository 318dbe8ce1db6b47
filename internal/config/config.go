// Package config provides YAML-based configuration loading for Wayfare.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. WAYFARE_DB_HOST.
const EnvPrefix = "WAYFARE"

// Config is the top-level Wayfare configuration, loaded from wayfare.yaml.
type Config struct {
	Database DatabaseConfig `yaml:"database" envconfig:"DB"`
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Chat     ChatConfig     `yaml:"chat" envconfig:"CHAT"`
	Realtime RealtimeConfig `yaml:"realtime" envconfig:"REALTIME"`
	Tiers    []TierConfig   `yaml:"tiers" ignored:"true"`
}

// DatabaseConfig selects and addresses the relational store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "mysql" or "sqlite"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Path     string `yaml:"path"` // sqlite file
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret" split_words:"true"`
}

// ChatConfig controls the ephemeral chat window.
type ChatConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	Countdown     string        `yaml:"countdown"` // cron spec for the countdown refresh
	EnforceExpiry bool          `yaml:"enforce_expiry" split_words:"true"`
}

// RealtimeConfig tunes the change bus and the optional broker relay.
type RealtimeConfig struct {
	Buffer   int    `yaml:"buffer"`
	AMQPURL  string `yaml:"amqp_url" envconfig:"AMQP_URL"`
	Exchange string `yaml:"exchange"`
}

// TierConfig describes one trip category a party can propose.
type TierConfig struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Price       string   `yaml:"price"`
	Tag         string   `yaml:"tag"`
	Description string   `yaml:"description"`
	Features    []string `yaml:"features"`
}

// Load reads a YAML config file from path, applies environment overrides,
// and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// LoadEnvFile loads KEY=VALUE pairs from a .env file into the process
// environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load env file %s: %w", path, err)
	}
	return nil
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a Config with every default applied, suitable for a local
// SQLite setup.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	switch c.Database.Driver {
	case "mysql":
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
		if c.Database.Name == "" {
			c.Database.Name = "wayfare"
		}
	case "sqlite":
		if c.Database.Path == "" {
			c.Database.Path = "wayfare.db"
		}
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Chat.TTL == 0 {
		c.Chat.TTL = 24 * time.Hour
	}
	if c.Chat.Countdown == "" {
		c.Chat.Countdown = "@every 1m"
	}
	if c.Realtime.Buffer == 0 {
		c.Realtime.Buffer = 64
	}
	if c.Realtime.Exchange == "" {
		c.Realtime.Exchange = "wayfare.changes"
	}
	if len(c.Tiers) == 0 {
		c.Tiers = DefaultTiers()
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (mysql, sqlite)", c.Database.Driver))
	}
	if c.Chat.TTL < 0 {
		errs = append(errs, "chat.ttl must be positive")
	}
	if c.Realtime.Buffer < 0 {
		errs = append(errs, "realtime.buffer must not be negative")
	}
	seen := make(map[string]bool)
	for i, t := range c.Tiers {
		if t.ID == "" {
			errs = append(errs, fmt.Sprintf("tiers[%d].id is required", i))
			continue
		}
		if seen[t.ID] {
			errs = append(errs, fmt.Sprintf("tiers[%d].id %q is duplicated", i, t.ID))
		}
		seen[t.ID] = true
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DefaultTiers is the built-in trip catalog.
func DefaultTiers() []TierConfig {
	return []TierConfig{
		{
			ID:          "local",
			Name:        "Local Explorer",
			Price:       "£50 - £150",
			Tag:         "First Date Vibes",
			Description: "Curated local experiences perfect for getting to know each other. 4-8 hours of adventure.",
			Features:    []string{"4-8 hours", "Local spots", "Low commitment"},
		},
		{
			ID:          "national",
			Name:        "Weekend Escape",
			Price:       "£200 - £800",
			Tag:         "Mini Adventure",
			Description: "2-3 day trips exploring your country. Boutique stays and unique experiences await.",
			Features:    []string{"2-3 days", "Domestic travel", "Boutique stays"},
		},
		{
			ID:          "international",
			Name:        "International Journey",
			Price:       "£800 - £2,000",
			Tag:         "Passport Required",
			Description: "4-7 days exploring a new country together. Full itinerary with flights and accommodation.",
			Features:    []string{"4-7 days", "Flights included", "Full itinerary"},
		},
		{
			ID:          "exotic",
			Name:        "Exotic Adventure",
			Price:       "£2,000+",
			Tag:         "Bucket List Dream",
			Description: "7-14 days in paradise. Premium everything for once-in-a-lifetime memories.",
			Features:    []string{"7-14 days", "Premium luxury", "Unforgettable"},
		},
	}
}
