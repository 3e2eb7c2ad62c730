package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to
// use errors.Is() for programmatic error handling while still
// providing human-readable messages.
var (
	// ErrInvalidSessionTimeout is returned when the session timeout is
	// not positive. Sessions must eventually be evicted or stalled
	// transfers would accumulate forever.
	ErrInvalidSessionTimeout = errors.New("invalid session timeout: must be positive")

	// ErrInvalidCompletionThreshold is returned when the completion
	// threshold is outside (0, 1].
	ErrInvalidCompletionThreshold = errors.New("invalid completion threshold: must be in (0, 1]")

	// ErrInvalidIngestInterval is returned when the ingest drain tick
	// is not positive.
	ErrInvalidIngestInterval = errors.New("invalid ingest interval: must be positive")

	// ErrInvalidFrameQueueSize is returned when the intake channel
	// bound is not positive.
	ErrInvalidFrameQueueSize = errors.New("invalid frame queue size: must be positive")

	// ErrInvalidClassifyMode is returned when the routing mode is not
	// one of cloud-fast, cloud-verify, local-only, or auto.
	ErrInvalidClassifyMode = errors.New("invalid classify mode: must be cloud-fast, cloud-verify, local-only, or auto")

	// ErrMissingBackendURL is returned when a cloud routing mode is
	// configured without both backend endpoints.
	ErrMissingBackendURL = errors.New("missing backend URL: cloud modes need heuristic and authoritative endpoints")

	// ErrInvalidBackendTimeout is returned when the backend call
	// timeout is not positive.
	ErrInvalidBackendTimeout = errors.New("invalid backend timeout: must be positive")

	// ErrInvalidRateLimit is returned when the authoritative quota or
	// rate window is not positive.
	ErrInvalidRateLimit = errors.New("invalid rate limit: quota and window must be positive")

	// ErrInvalidSyncSettings is returned when the sync interval, batch
	// size, or retry ceiling is not positive.
	ErrInvalidSyncSettings = errors.New("invalid sync settings: interval, batch size, and max retries must be positive")

	// ErrMissingDataDir is returned when no data directory is
	// configured. The queue's durability contract needs a filesystem
	// home.
	ErrMissingDataDir = errors.New("missing data directory")
)
