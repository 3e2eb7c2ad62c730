package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".timberwatch.yml"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File is the YAML configuration file shape. Every field is optional;
// zero values leave the corresponding Config field untouched so flags
// and defaults win where the file is silent.
type File struct {
	HeuristicURL     string `yaml:"heuristic_url"`
	AuthoritativeURL string `yaml:"authoritative_url"`
	APIKey           string `yaml:"api_key"`
	ClassifyMode     string `yaml:"classify_mode"`
	DataDir          string `yaml:"data_dir"`
	MetricsAddr      string `yaml:"metrics_addr"`

	// Durations are Go duration strings ("30s", "5m"). yaml.v3 has no
	// native time.Duration support, so they are parsed in Apply.
	SessionTimeout string `yaml:"session_timeout"`
	SyncInterval   string `yaml:"sync_interval"`

	SyncBatchSize  int `yaml:"sync_batch_size"`
	SyncMaxRetries int `yaml:"sync_max_retries"`
}

// LoadConfigFile loads hub configuration from a YAML file.
// If the file does not exist, it returns ErrConfigNotFound. Callers
// should handle this based on whether the path was explicitly given by
// the user.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Apply copies the file's non-zero values onto the config.
func (f *File) Apply(c *Config) {
	if f.HeuristicURL != "" {
		c.HeuristicURL = f.HeuristicURL
	}
	if f.AuthoritativeURL != "" {
		c.AuthoritativeURL = f.AuthoritativeURL
	}
	if f.APIKey != "" {
		c.APIKey = f.APIKey
	}
	if f.ClassifyMode != "" {
		c.ClassifyMode = f.ClassifyMode
	}
	if f.DataDir != "" {
		c.DataDir = f.DataDir
	}
	if f.MetricsAddr != "" {
		c.MetricsAddr = f.MetricsAddr
	}
	if d, err := time.ParseDuration(f.SessionTimeout); err == nil && d > 0 {
		c.SessionTimeout = d
	}
	if d, err := time.ParseDuration(f.SyncInterval); err == nil && d > 0 {
		c.SyncInterval = d
	}
	if f.SyncBatchSize > 0 {
		c.SyncBatchSize = f.SyncBatchSize
	}
	if f.SyncMaxRetries > 0 {
		c.SyncMaxRetries = f.SyncMaxRetries
	}
}

// FindConfigFile searches for the configuration file in the following
// order:
// 1. If configPath is specified, use it directly
// 2. Look for .timberwatch.yml in the current directory
// 3. Look for .timberwatch.yml in the XDG config directory
//
// Returns the path to the configuration file if found, or empty string
// if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err == nil {
		cwdConfig := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(cwdConfig); err == nil {
			return cwdConfig
		}
	}

	xdgConfig := filepath.Join(XDGConfigDir(), DefaultConfigFile)
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig
	}

	return ""
}
