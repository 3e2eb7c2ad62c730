package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// These values are tuned for the solar-powered field hub and the
// long-range radio's observed loss characteristics.
const (
	// DefaultSessionTimeout is how long a reassembly session may live,
	// counted from its START frame, before eviction. A node sends a
	// whole transfer within seconds; a transfer still open after 30
	// seconds is not going to finish, and its buffer is memory the
	// solar hub cannot spare.
	DefaultSessionTimeout = 30 * time.Second

	// DefaultCompletionThreshold is the fraction of declared frames a
	// transfer must deliver to be reconstructed. The 4-bit rasters
	// survive moderate tail loss, so 0.8 recovers most transfers
	// without classifying garbage.
	DefaultCompletionThreshold = 0.8

	// DefaultIngestInterval is the ingest worker's drain tick. 500ms
	// keeps worst-case frame latency well under the radio's inter-frame
	// gap without busy-polling the queue.
	DefaultIngestInterval = 500 * time.Millisecond

	// DefaultFrameQueueSize bounds the intake channel. A burst from
	// every node at once is a few dozen frames; 256 gives an order of
	// magnitude of headroom before backpressure drops frames.
	DefaultFrameQueueSize = 256

	// DefaultSyncInterval is the sync scheduler's wake interval. The
	// queue tolerates hours of backlog; 30 seconds keeps drain latency
	// low once connectivity returns without hammering the probe.
	DefaultSyncInterval = 30 * time.Second

	// DefaultSyncBatchSize is how many pending items one pass drains.
	// Ten items stays inside a single authoritative rate window even
	// when every item needs a cloud call.
	DefaultSyncBatchSize = 10

	// DefaultSyncMaxRetries is the retry ceiling before a queue item is
	// marked terminally failed. Three attempts separated by sync
	// intervals outlasts transient outages; persistent failures need
	// operator attention, not more retries.
	DefaultSyncMaxRetries = 3

	// DefaultAuthoritativeQuota and DefaultRateWindow bound calls to
	// the authoritative backend: 5 calls per rolling 900 seconds, the
	// service's contracted request budget.
	DefaultAuthoritativeQuota = 5
	DefaultRateWindow         = 900 * time.Second

	// DefaultBackendTimeout bounds one classification round trip over
	// the hub's satellite uplink.
	DefaultBackendTimeout = 10 * time.Second

	// DefaultNetworkCheckInterval is how long a connectivity probe
	// result is trusted. Probing every classification would multiply
	// uplink traffic for no information gain.
	DefaultNetworkCheckInterval = 60 * time.Second

	// DefaultClassifyMode is the routing mode when none is configured.
	// Auto adapts to connectivity, which is the right default for an
	// unattended hub.
	DefaultClassifyMode = "auto"

	// AppName is the application name used for XDG directory paths.
	AppName = "timberwatch"
)

// Config holds all configuration options for the hub.
// This struct is populated from CLI flags and the optional YAML file
// and passed through the application via dependency injection rather
// than global state.
//
// Design decision: We use a single flat struct instead of nested
// structs (e.g., IngestConfig, SyncConfig) for simplicity. The number
// of options is manageable, and nesting would add complexity without
// significant benefit.
type Config struct {
	// SessionTimeout evicts reassembly sessions that outlive it,
	// counted from their START frame.
	SessionTimeout time.Duration

	// CompletionThreshold is the fraction of declared frames a transfer
	// must deliver to be reconstructed, in (0, 1].
	CompletionThreshold float64

	// IngestInterval is the ingest worker's drain tick.
	IngestInterval time.Duration

	// FrameQueueSize bounds the intake channel between the radio
	// reader and the ingest worker.
	FrameQueueSize int

	// HeuristicURL and AuthoritativeURL are the cloud backend
	// endpoints. APIKey is sent as a bearer token when non-empty.
	HeuristicURL     string
	AuthoritativeURL string
	APIKey           string

	// ClassifyMode is the routing mode: cloud-fast, cloud-verify,
	// local-only, or auto.
	ClassifyMode string

	// BackendTimeout bounds one classification call.
	BackendTimeout time.Duration

	// AuthoritativeQuota and RateWindow bound authoritative calls.
	AuthoritativeQuota int
	RateWindow         time.Duration

	// SyncInterval, SyncBatchSize, and SyncMaxRetries control the
	// background sync scheduler.
	SyncInterval   time.Duration
	SyncBatchSize  int
	SyncMaxRetries int

	// NetworkCheckInterval is the connectivity probe cache TTL.
	NetworkCheckInterval time.Duration

	// DataDir is where the database and saved rasters live.
	// Defaults to the XDG data directory.
	DataDir string

	// MetricsAddr, when non-empty, serves Prometheus metrics on that
	// address.
	MetricsAddr string

	// Simulate replaces the radio driver with a synthetic frame source
	// for bench testing without hardware.
	Simulate bool

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only info and above are logged.
	Verbose bool

	// ConfigFilePath is the path to the configuration file. If empty,
	// the tool searches for .timberwatch.yml in the current directory
	// and then in the XDG config directory.
	ConfigFilePath string
}

// NewConfig creates a new Config with default values.
// All fields are set to safe, sensible defaults that work for most
// deployments. Users can override specific values after creation.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (e.g., intervals,
// thresholds). This also serves as documentation of what the defaults
// are.
func NewConfig() *Config {
	return &Config{
		SessionTimeout:       DefaultSessionTimeout,
		CompletionThreshold:  DefaultCompletionThreshold,
		IngestInterval:       DefaultIngestInterval,
		FrameQueueSize:       DefaultFrameQueueSize,
		ClassifyMode:         DefaultClassifyMode,
		BackendTimeout:       DefaultBackendTimeout,
		AuthoritativeQuota:   DefaultAuthoritativeQuota,
		RateWindow:           DefaultRateWindow,
		SyncInterval:         DefaultSyncInterval,
		SyncBatchSize:        DefaultSyncBatchSize,
		SyncMaxRetries:       DefaultSyncMaxRetries,
		NetworkCheckInterval: DefaultNetworkCheckInterval,
		DataDir:              XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for timberwatch.
// On Linux: ~/.local/share/timberwatch
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for timberwatch.
// On Linux: ~/.config/timberwatch
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// RasterDir returns the directory where decompressed rasters are
// saved.
func (c *Config) RasterDir() string {
	return filepath.Join(c.DataDir, "rasters")
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// We chose to return the first error found rather than collecting all
// errors because fixing one error often makes others irrelevant.
func (c *Config) Validate() error {
	if c.SessionTimeout <= 0 {
		return ErrInvalidSessionTimeout
	}

	if c.CompletionThreshold <= 0 || c.CompletionThreshold > 1 {
		return ErrInvalidCompletionThreshold
	}

	if c.IngestInterval <= 0 {
		return ErrInvalidIngestInterval
	}

	if c.FrameQueueSize <= 0 {
		return ErrInvalidFrameQueueSize
	}

	switch c.ClassifyMode {
	case "cloud-fast", "cloud-verify", "local-only", "auto":
	default:
		return ErrInvalidClassifyMode
	}

	// local-only works without endpoints; every other mode needs both
	// cloud backends configured.
	if c.ClassifyMode != "local-only" && !c.Simulate {
		if c.HeuristicURL == "" || c.AuthoritativeURL == "" {
			return ErrMissingBackendURL
		}
	}

	if c.BackendTimeout <= 0 {
		return ErrInvalidBackendTimeout
	}

	if c.AuthoritativeQuota <= 0 || c.RateWindow <= 0 {
		return ErrInvalidRateLimit
	}

	if c.SyncInterval <= 0 || c.SyncBatchSize <= 0 || c.SyncMaxRetries <= 0 {
		return ErrInvalidSyncSettings
	}

	if c.DataDir == "" {
		return ErrMissingDataDir
	}

	return nil
}
