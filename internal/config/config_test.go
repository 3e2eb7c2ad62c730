package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	c := NewConfig()
	c.HeuristicURL = "https://classify.example.com/fast"
	c.AuthoritativeURL = "https://classify.example.com/verify"
	return c
}

func TestNewConfigDefaults(t *testing.T) {
	t.Parallel()

	c := NewConfig()
	if c.SessionTimeout != 30*time.Second {
		t.Errorf("SessionTimeout = %v, want 30s", c.SessionTimeout)
	}
	if c.CompletionThreshold != 0.8 {
		t.Errorf("CompletionThreshold = %f, want 0.8", c.CompletionThreshold)
	}
	if c.SyncBatchSize != 10 || c.SyncMaxRetries != 3 {
		t.Errorf("sync batch/retries = %d/%d, want 10/3", c.SyncBatchSize, c.SyncMaxRetries)
	}
	if c.AuthoritativeQuota != 5 || c.RateWindow != 900*time.Second {
		t.Errorf("rate limit = %d/%v, want 5/900s", c.AuthoritativeQuota, c.RateWindow)
	}
	if c.ClassifyMode != "auto" {
		t.Errorf("ClassifyMode = %q, want auto", c.ClassifyMode)
	}
	if c.DataDir == "" {
		t.Error("DataDir is empty")
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:   "local-only needs no endpoints",
			mutate: func(c *Config) { c.ClassifyMode = "local-only"; c.HeuristicURL = ""; c.AuthoritativeURL = "" },
		},
		{
			name:    "zero session timeout",
			mutate:  func(c *Config) { c.SessionTimeout = 0 },
			wantErr: ErrInvalidSessionTimeout,
		},
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.CompletionThreshold = 1.5 },
			wantErr: ErrInvalidCompletionThreshold,
		},
		{
			name:    "zero threshold",
			mutate:  func(c *Config) { c.CompletionThreshold = 0 },
			wantErr: ErrInvalidCompletionThreshold,
		},
		{
			name:    "bad mode",
			mutate:  func(c *Config) { c.ClassifyMode = "turbo" },
			wantErr: ErrInvalidClassifyMode,
		},
		{
			name:    "cloud mode without endpoints",
			mutate:  func(c *Config) { c.AuthoritativeURL = "" },
			wantErr: ErrMissingBackendURL,
		},
		{
			name:    "zero quota",
			mutate:  func(c *Config) { c.AuthoritativeQuota = 0 },
			wantErr: ErrInvalidRateLimit,
		},
		{
			name:    "zero sync retries",
			mutate:  func(c *Config) { c.SyncMaxRetries = 0 },
			wantErr: ErrInvalidSyncSettings,
		},
		{
			name:    "empty data dir",
			mutate:  func(c *Config) { c.DataDir = "" },
			wantErr: ErrMissingDataDir,
		},
		{
			name:    "zero frame queue",
			mutate:  func(c *Config) { c.FrameQueueSize = 0 },
			wantErr: ErrInvalidFrameQueueSize,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := validConfig()
			tt.mutate(c)
			if err := c.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("applies non-zero values", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), DefaultConfigFile)
		yml := `
heuristic_url: https://classify.example.com/fast
authoritative_url: https://classify.example.com/verify
api_key: k-123
classify_mode: cloud-verify
sync_interval: 45s
sync_batch_size: 20
`
		if err := os.WriteFile(path, []byte(yml), 0600); err != nil {
			t.Fatal(err)
		}

		f, err := LoadConfigFile(path)
		if err != nil {
			t.Fatalf("LoadConfigFile() error = %v", err)
		}

		c := NewConfig()
		f.Apply(c)

		if c.HeuristicURL != "https://classify.example.com/fast" || c.APIKey != "k-123" {
			t.Errorf("applied config = %+v", c)
		}
		if c.ClassifyMode != "cloud-verify" {
			t.Errorf("ClassifyMode = %q, want cloud-verify", c.ClassifyMode)
		}
		if c.SyncInterval != 45*time.Second || c.SyncBatchSize != 20 {
			t.Errorf("sync = %v/%d, want 45s/20", c.SyncInterval, c.SyncBatchSize)
		}
		// Fields the file is silent on keep their defaults.
		if c.SyncMaxRetries != DefaultSyncMaxRetries {
			t.Errorf("SyncMaxRetries = %d, want default", c.SyncMaxRetries)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yml")); !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("LoadConfigFile() error = %v, want ErrConfigNotFound", err)
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "bad.yml")
		if err := os.WriteFile(path, []byte("classify_mode: [unterminated"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfigFile(path); err == nil {
			t.Error("LoadConfigFile() succeeded on malformed YAML")
		}
	})
}

func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("explicit path", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "hub.yml")
		if err := os.WriteFile(path, []byte("{}"), 0600); err != nil {
			t.Fatal(err)
		}
		if got := FindConfigFile(path); got != path {
			t.Errorf("FindConfigFile() = %q, want %q", got, path)
		}
	})

	t.Run("explicit path missing", func(t *testing.T) {
		t.Parallel()

		if got := FindConfigFile(filepath.Join(t.TempDir(), "nope.yml")); got != "" {
			t.Errorf("FindConfigFile() = %q, want empty", got)
		}
	})
}
