// Package config handles the .proofrun directory and runtime configuration.
// Every project the tool runs from gets a .proofrun/ folder holding the
// config file, the saved session, and the logs.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ProofrunDir is the name of the directory created in each project.
const ProofrunDir = ".proofrun"

const defaultConfigYAML = `# proofrun configuration
version: 1

# Environment run against when the wizard completes. Only non-production
# environments are selectable interactively.
environment: staging

# Where run workspaces are created, relative to this directory's parent.
output_root: runs

# Launch a visible browser instead of a headless one.
headed: false

# Product API base URLs per environment.
api_base_urls:
  staging: https://staging.api.example.edu

# Browser automation sidecar.
sidecar_url: http://127.0.0.1:4444

merge_poll:
  interval_seconds: 15
  deadline_seconds: 600
`

// MergePollConfig bounds the detached merge-report poll loop.
type MergePollConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	DeadlineSeconds int `yaml:"deadline_seconds"`
}

// FileConfig models .proofrun/config.yaml.
type FileConfig struct {
	Version     int               `yaml:"version"`
	Environment string            `yaml:"environment"`
	OutputRoot  string            `yaml:"output_root"`
	Headed      bool              `yaml:"headed"`
	APIBaseURLs map[string]string `yaml:"api_base_urls"`
	SidecarURL  string            `yaml:"sidecar_url"`
	MergePoll   MergePollConfig   `yaml:"merge_poll"`
}

// EnvOverrides are applied on top of the file config. A .env file in the
// project directory is loaded first, then the process environment wins.
type EnvOverrides struct {
	Email      string `env:"PROOFRUN_EMAIL"`
	Password   string `env:"PROOFRUN_PASSWORD"`
	SchoolID   string `env:"PROOFRUN_SCHOOL"`
	APIKey     string `env:"PROOFRUN_API_KEY"`
	OutputRoot string `env:"PROOFRUN_OUTPUT_ROOT"`
	SidecarURL string `env:"PROOFRUN_SIDECAR_URL"`
	Headed     *bool  `env:"PROOFRUN_HEADED"`
}

// Config holds the runtime configuration.
type Config struct {
	// ProjectDir is the directory the operator ran proofrun from.
	ProjectDir string

	// StateDir is ProjectDir/.proofrun.
	StateDir string

	File FileConfig
	Env  EnvOverrides
}

// Init creates the .proofrun directory structure and a commented default
// config file on first use.
func Init(projectDir string) error {
	stateDir := filepath.Join(projectDir, ProofrunDir)
	for _, dir := range []string{
		stateDir,
		filepath.Join(stateDir, "logs"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return ensureConfigFile(filepath.Join(stateDir, "config.yaml"))
}

// New loads the configuration for a project directory.
func New(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir: projectDir,
		StateDir:   filepath.Join(projectDir, ProofrunDir),
		File:       defaultFileConfig(),
	}
	if err := cfg.loadFile(); err != nil {
		return nil, err
	}
	// Missing .env files are fine; explicit environment always wins.
	_ = godotenv.Load(filepath.Join(projectDir, ".env"))
	if err := env.Parse(&cfg.Env); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	return cfg, nil
}

func defaultFileConfig() FileConfig {
	return FileConfig{
		Version:     1,
		Environment: "staging",
		OutputRoot:  "runs",
		APIBaseURLs: map[string]string{},
		SidecarURL:  "http://127.0.0.1:4444",
		MergePoll:   MergePollConfig{IntervalSeconds: 15, DeadlineSeconds: 600},
	}
}

func (c *Config) loadFile() error {
	path := c.ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	parsed := defaultFileConfig()
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	parsed.applyDefaults()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.File = parsed
	return nil
}

func (fc *FileConfig) applyDefaults() {
	if fc.Version == 0 {
		fc.Version = 1
	}
	if strings.TrimSpace(fc.Environment) == "" {
		fc.Environment = "staging"
	}
	if strings.TrimSpace(fc.OutputRoot) == "" {
		fc.OutputRoot = "runs"
	}
	if fc.APIBaseURLs == nil {
		fc.APIBaseURLs = map[string]string{}
	}
	if fc.MergePoll.IntervalSeconds <= 0 {
		fc.MergePoll.IntervalSeconds = 15
	}
	if fc.MergePoll.DeadlineSeconds <= 0 {
		fc.MergePoll.DeadlineSeconds = 600
	}
}

func (fc FileConfig) validate() error {
	if fc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	for environment, base := range fc.APIBaseURLs {
		if strings.TrimSpace(base) == "" {
			return fmt.Errorf("api_base_urls[%s] is empty", environment)
		}
	}
	return nil
}

// ConfigPath returns the on-disk location of the config file.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.StateDir, "config.yaml")
}

// SessionPath returns where the durable session record lives.
func (c *Config) SessionPath() string {
	return filepath.Join(c.StateDir, "session.json")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.StateDir, "logs")
}

// OutputRoot resolves the workspace root, honoring the env override.
func (c *Config) OutputRoot() string {
	root := c.File.OutputRoot
	if c.Env.OutputRoot != "" {
		root = c.Env.OutputRoot
	}
	if filepath.IsAbs(root) {
		return filepath.Clean(root)
	}
	return filepath.Join(c.ProjectDir, root)
}

// SidecarURL resolves the automation sidecar address.
func (c *Config) SidecarURL() string {
	if c.Env.SidecarURL != "" {
		return c.Env.SidecarURL
	}
	return c.File.SidecarURL
}

// Headed reports whether runs launch a visible browser.
func (c *Config) Headed() bool {
	if c.Env.Headed != nil {
		return *c.Env.Headed
	}
	return c.File.Headed
}

// BaseURL returns the API base URL for an environment.
func (c *Config) BaseURL(environment string) (string, bool) {
	base, ok := c.File.APIBaseURLs[environment]
	return base, ok && base != ""
}

// MergePollInterval returns the poll loop interval.
func (c *Config) MergePollInterval() time.Duration {
	return time.Duration(c.File.MergePoll.IntervalSeconds) * time.Second
}

// MergePollDeadline returns the poll loop deadline.
func (c *Config) MergePollDeadline() time.Duration {
	return time.Duration(c.File.MergePoll.DeadlineSeconds) * time.Second
}

func ensureConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
