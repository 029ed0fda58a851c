// Package config provides YAML-based configuration loading for Switchyard.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/zulandar/switchyard/internal/convention"
	"gopkg.in/yaml.v3"
)

// Config is the top-level Switchyard configuration, loaded from
// switchyard.yaml.
type Config struct {
	DB            DBConfig             `yaml:"db"`
	Server        ServerConfig         `yaml:"server"`
	Sync          SyncConfig           `yaml:"sync"`
	Mirror        MirrorConfig         `yaml:"mirror"`
	Notify        NotifyConfig         `yaml:"notify"`
	Installations []InstallationConfig `yaml:"installations"`
}

// DBConfig selects the backing store: sqlite (default) or mysql (Dolt).
type DBConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
}

// ServerConfig holds webhook/status HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// SyncConfig holds engine-wide reconciliation settings.
type SyncConfig struct {
	// Schedule is a 5-field cron expression for full reconciliation
	// passes. Empty disables scheduled passes.
	Schedule string `yaml:"schedule"`

	// DebounceSeconds coalesces bursts of mirror-change notifications.
	DebounceSeconds int `yaml:"debounce_seconds"`

	// RetryMax bounds retries of a failed remote write before the
	// installation transitions to error.
	RetryMax int `yaml:"retry_max"`

	// RetryBaseSeconds is the initial backoff, doubled per attempt.
	RetryBaseSeconds int `yaml:"retry_base_seconds"`
}

// MirrorConfig holds markdown-mirror settings.
type MirrorConfig struct {
	Dir         string `yaml:"dir"`
	PollSeconds int    `yaml:"poll_seconds"`
}

// NotifyConfig selects a chat platform for sync-error escalations.
// Tokens are read from the named environment variables, never from the
// file itself.
type NotifyConfig struct {
	Platform    string `yaml:"platform"` // "discord", "slack", or empty
	TokenEnv    string `yaml:"token_env"`
	AppTokenEnv string `yaml:"app_token_env"` // slack only
	Channel     string `yaml:"channel"`
}

// InstallationConfig declares one connected remote repository.
type InstallationConfig struct {
	Owner         string               `yaml:"owner"`
	Repo          string               `yaml:"repo"`
	SecretEnv     string               `yaml:"webhook_secret_env"`
	TokenEnv      string               `yaml:"token_env"`
	Strategy      string               `yaml:"strategy"`
	CreateMissing string               `yaml:"create_missing"`
	Conventions   convention.Overrides `yaml:"conventions"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.DB.Driver == "" {
		c.DB.Driver = "sqlite"
	}
	if c.DB.Driver == "sqlite" && c.DB.Path == "" {
		c.DB.Path = "switchyard.db"
	}
	if c.DB.Driver == "mysql" {
		if c.DB.Host == "" {
			c.DB.Host = "127.0.0.1"
		}
		if c.DB.Port == 0 {
			c.DB.Port = 3306
		}
		if c.DB.Database == "" {
			c.DB.Database = "switchyard"
		}
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8088
	}
	if c.Sync.DebounceSeconds == 0 {
		c.Sync.DebounceSeconds = 5
	}
	if c.Sync.RetryMax == 0 {
		c.Sync.RetryMax = 3
	}
	if c.Sync.RetryBaseSeconds == 0 {
		c.Sync.RetryBaseSeconds = 2
	}
	if c.Mirror.Dir == "" {
		c.Mirror.Dir = "issues"
	}
	if c.Mirror.PollSeconds == 0 {
		c.Mirror.PollSeconds = 15
	}
	for i := range c.Installations {
		if c.Installations[i].Strategy == "" {
			c.Installations[i].Strategy = "newest-wins"
		}
		if c.Installations[i].CreateMissing == "" {
			c.Installations[i].CreateMissing = "both"
		}
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.DB.Driver != "sqlite" && c.DB.Driver != "mysql" {
		errs = append(errs, fmt.Sprintf("db.driver %q is not sqlite or mysql", c.DB.Driver))
	}
	if len(c.Installations) == 0 {
		errs = append(errs, "at least one installation is required")
	}
	for i, inst := range c.Installations {
		if inst.Owner == "" {
			errs = append(errs, fmt.Sprintf("installations[%d].owner is required", i))
		}
		if inst.Repo == "" {
			errs = append(errs, fmt.Sprintf("installations[%d].repo is required", i))
		}
		if inst.SecretEnv == "" {
			errs = append(errs, fmt.Sprintf("installations[%d].webhook_secret_env is required", i))
		}
		if inst.TokenEnv == "" {
			errs = append(errs, fmt.Sprintf("installations[%d].token_env is required", i))
		}
		switch inst.Strategy {
		case "local-wins", "remote-wins", "newest-wins":
		default:
			errs = append(errs, fmt.Sprintf("installations[%d].strategy %q is not local-wins, remote-wins, or newest-wins", i, inst.Strategy))
		}
		switch inst.CreateMissing {
		case "remote", "local", "both", "none":
		default:
			errs = append(errs, fmt.Sprintf("installations[%d].create_missing %q is not remote, local, both, or none", i, inst.CreateMissing))
		}
	}
	switch c.Notify.Platform {
	case "", "discord", "slack":
	default:
		errs = append(errs, fmt.Sprintf("notify.platform %q is not discord or slack", c.Notify.Platform))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Secret returns the webhook secret for an installation from its
// configured environment variable.
func (ic *InstallationConfig) Secret() string {
	return os.Getenv(ic.SecretEnv)
}

// Token returns the remote API token for an installation from its
// configured environment variable.
func (ic *InstallationConfig) Token() string {
	return os.Getenv(ic.TokenEnv)
}

// Token returns the chat platform bot token from the configured
// environment variable.
func (nc *NotifyConfig) Token() string {
	return os.Getenv(nc.TokenEnv)
}

// AppToken returns the Slack app-level token from the configured
// environment variable.
func (nc *NotifyConfig) AppToken() string {
	return os.Getenv(nc.AppTokenEnv)
}

// Debounce returns the mirror debounce window as a duration.
func (c *SyncConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceSeconds) * time.Second
}

// RetryBase returns the initial retry backoff as a duration.
func (c *SyncConfig) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseSeconds) * time.Second
}

// PollInterval returns the mirror poll interval as a duration.
func (c *MirrorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

// ByRepo returns the installation config for owner/repo, or nil.
func (c *Config) ByRepo(owner, repo string) *InstallationConfig {
	for i := range c.Installations {
		if c.Installations[i].Owner == owner && c.Installations[i].Repo == repo {
			return &c.Installations[i]
		}
	}
	return nil
}
