// Package config loads and validates the allocator configuration from YAML,
// with environment overrides and a file watcher for runtime changes.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/wsalloc/internal/mangle"
)

// DefaultRootPatterns are the host workspace-root patterns under which the
// allocator intercepts path computation. Any other configured pattern means
// the operator customized the root and accepts path length and character
// issues themselves; the allocator then defers to the host default.
var DefaultRootPatterns = []string{
	"${ITEM_ROOT}/workspace",
	"${BASE}/workspace/${ITEM_FULL_NAME}",
}

// Config is the full service configuration.
type Config struct {
	Allocator   AllocatorConfig   `yaml:"allocator"`
	Reclamation ReclamationConfig `yaml:"reclamation"`
	Sweep       SweepConfig       `yaml:"sweep"`
	Server      ServerConfig      `yaml:"server"`
	Events      EventsConfig      `yaml:"events"`
	Store       StoreConfig       `yaml:"store"`
	Nodes       []NodeConfig      `yaml:"nodes"`
}

// AllocatorConfig controls path mangling.
type AllocatorConfig struct {
	Enabled      bool   `yaml:"enabled"`
	LengthBudget int    `yaml:"length_budget"` // 0 disables mangling; otherwise >= mangle.MinBudget
	RootPattern  string `yaml:"root_pattern"`
}

// ReclamationConfig controls the background deletion pool.
type ReclamationConfig struct {
	Workers         int           `yaml:"workers"`
	QueueSize       int           `yaml:"queue_size"`
	DeletionTimeout time.Duration `yaml:"deletion_timeout"`
}

// SweepConfig controls the periodic orphan sweep.
type SweepConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// ServerConfig is the admin HTTP server address.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// EventsConfig is the optional NATS job-removal feed.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// StoreConfig locates the allocation-record database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// NodeConfig describes one execution host.
type NodeConfig struct {
	Name          string `yaml:"name"`
	WorkspaceRoot string `yaml:"workspace_root"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Allocator: AllocatorConfig{
			Enabled:      true,
			LengthBudget: mangle.DefaultBudget,
			RootPattern:  DefaultRootPatterns[0],
		},
		Reclamation: ReclamationConfig{
			Workers:         4,
			QueueSize:       256,
			DeletionTimeout: 15 * time.Second,
		},
		Sweep: SweepConfig{
			Enabled:  false,
			Interval: time.Hour,
		},
		Server: ServerConfig{Host: "127.0.0.1", Port: 8090},
		Events: EventsConfig{Subject: "jobs.removed"},
		Store:  StoreConfig{Path: "wsalloc.db"},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from .env / .env.local into the process
// environment without overriding variables already set. Missing files are
// not an error.
func LoadEnvFile() {
	for _, p := range []string{".env", ".env.local"} {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err == nil {
			return
		}
	}
}

// applyEnvOverrides maps WSALLOC_* environment variables onto the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WSALLOC_LENGTH_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Allocator.LengthBudget = n
		}
	}
	if v := os.Getenv("WSALLOC_ROOT_PATTERN"); v != "" {
		cfg.Allocator.RootPattern = v
	}
	if v := os.Getenv("WSALLOC_NATS_URL"); v != "" {
		cfg.Events.NATSURL = v
	}
	if v := os.Getenv("WSALLOC_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
}

// Validate rejects configurations the allocator cannot operate under. A
// failed validation never clears a previously loaded valid configuration;
// the watcher keeps the old snapshot.
func (c *Config) Validate() error {
	if b := c.Allocator.LengthBudget; b != 0 && b < mangle.MinBudget {
		return fmt.Errorf("allocator.length_budget %d below floor %d (use 0 to disable mangling)", b, mangle.MinBudget)
	}
	if c.Reclamation.Workers < 1 {
		return fmt.Errorf("reclamation.workers must be at least 1")
	}
	if c.Reclamation.QueueSize < 1 {
		return fmt.Errorf("reclamation.queue_size must be at least 1")
	}
	if c.Reclamation.DeletionTimeout <= 0 {
		return fmt.Errorf("reclamation.deletion_timeout must be positive")
	}
	if c.Sweep.Enabled && c.Sweep.Interval < time.Minute {
		return fmt.Errorf("sweep.interval must be at least 1m")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	seen := make(map[string]struct{}, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.Name == "" || n.WorkspaceRoot == "" {
			return fmt.Errorf("every node needs a name and a workspace_root")
		}
		if _, dup := seen[n.Name]; dup {
			return fmt.Errorf("duplicate node name %q", n.Name)
		}
		seen[n.Name] = struct{}{}
	}
	return nil
}

// IsDefaultRootPattern reports whether pattern is one of the recognized host
// defaults.
func IsDefaultRootPattern(pattern string) bool {
	for _, p := range DefaultRootPatterns {
		if pattern == p {
			return true
		}
	}
	return false
}
