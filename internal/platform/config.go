// Package platform wires the application together: configuration discovery,
// gateway construction and the assembly of the screening services into one
// App. The public facade and the CLI both build through here.
package platform

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the per-project configuration file, looked up from the
// working directory upward.
const ConfigFileName = "sieve.yaml"

// Config is the on-disk configuration. Every field can also be set or
// overridden through SIEVE_* environment variables, which win over the
// file; the API key in particular should come from the environment.
type Config struct {
	APIKey      string `yaml:"api_key"`
	LibraryID   string `yaml:"library_id"`
	LibraryType string `yaml:"library_type"`
	BaseURL     string `yaml:"base_url"`

	// Collections names or keys of the funnel endpoints.
	PendingCollection  string `yaml:"pending_collection"`
	IncludedCollection string `yaml:"included_collection"`
	ExcludedCollection string `yaml:"excluded_collection"`

	// Persona is the default reviewer identity for decisions.
	Persona string `yaml:"persona"`

	// Threshold is the fuzzy-match similarity floor for reconciliation.
	Threshold float64 `yaml:"threshold"`

	// Workers bounds concurrent item fetches in snapshot and audit sweeps.
	Workers int `yaml:"workers"`
}

// envOverrides maps environment variables onto config fields.
var envOverrides = []struct {
	name  string
	apply func(*Config, string)
}{
	{"SIEVE_API_KEY", func(c *Config, v string) { c.APIKey = v }},
	{"SIEVE_LIBRARY_ID", func(c *Config, v string) { c.LibraryID = v }},
	{"SIEVE_LIBRARY_TYPE", func(c *Config, v string) { c.LibraryType = v }},
	{"SIEVE_BASE_URL", func(c *Config, v string) { c.BaseURL = v }},
	{"SIEVE_PERSONA", func(c *Config, v string) { c.Persona = v }},
}

// LoadConfig reads the configuration file at path. With an empty path it
// searches for ConfigFileName from the working directory upward and falls
// back to an empty config when none exists; environment overrides apply
// either way.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	for _, e := range envOverrides {
		if v := os.Getenv(e.name); v != "" {
			e.apply(&cfg, v)
		}
	}
	return cfg, nil
}

// findConfig walks from the working directory toward the filesystem root
// and returns the first config file found, or empty.
func findConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
