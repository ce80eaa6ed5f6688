// Package config loads crawler settings from an optional YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration makes time.Duration decodable from YAML strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds everything a crawl run needs.
type Config struct {
	// Workspace is the root directory artifacts are written under.
	Workspace string `yaml:"workspace"`

	// RepoWorkers bounds concurrent repository crawls.
	RepoWorkers int `yaml:"repo_workers"`

	// VersionWorkers bounds the per-repository version fan-out.
	VersionWorkers int `yaml:"version_workers"`

	// Timeout bounds the whole run.
	Timeout Duration `yaml:"timeout"`

	// SearchInterval paces code-search pagination; the endpoint has the
	// tightest quota of the platform.
	SearchInterval Duration `yaml:"search_interval"`

	// MigrateCommand is the external schema migration tool. Input and
	// output file paths are appended when it is invoked. Empty disables
	// migration.
	MigrateCommand []string `yaml:"migrate_command"`

	// Token authenticates platform API calls. Never read from the YAML
	// file; set via the GITHUB_TOKEN environment variable.
	Token string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Workspace:      "./workspace/lipr",
		RepoWorkers:    16,
		VersionWorkers: 4,
		Timeout:        Duration(30 * time.Minute),
		SearchInterval: Duration(3 * time.Second),
	}
}

// Load reads a YAML config file over the defaults and applies environment
// overrides. An empty path skips the file and uses defaults plus
// environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("LIPR_WORKSPACE"); v != "" {
		c.Workspace = v
	}
}

func (c *Config) validate() error {
	if c.Workspace == "" {
		return fmt.Errorf("workspace must not be empty")
	}
	if c.RepoWorkers <= 0 {
		return fmt.Errorf("repo_workers must be positive, got %d", c.RepoWorkers)
	}
	if c.VersionWorkers <= 0 {
		return fmt.Errorf("version_workers must be positive, got %d", c.VersionWorkers)
	}
	return nil
}
