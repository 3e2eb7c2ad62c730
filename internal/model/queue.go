package model

import "time"

// SyncStatus is the lifecycle state of an offline queue item.
type SyncStatus string

const (
	// SyncPending means the item awaits authoritative classification.
	SyncPending SyncStatus = "pending"

	// SyncSynced means an authoritative backend confirmed the item.
	SyncSynced SyncStatus = "synced"

	// SyncFailed is terminal: the item exhausted its retries and is
	// kept for audit, never retried again.
	SyncFailed SyncStatus = "failed"
)

// QueueItem is a detection awaiting authoritative cloud verification.
// Items are created when the router could not reach an authoritative
// backend, mutated only by the sync scheduler (status and retry count),
// and never hard-deleted.
type QueueItem struct {
	// ID is the database-assigned identifier.
	ID int64 `json:"id"`

	// CreatedAt orders the queue; draining is strictly oldest-first.
	CreatedAt time.Time `json:"created_at"`

	// NodeID is the originating node.
	NodeID string `json:"node_id"`

	// LocalLabel and LocalConfidence record the non-authoritative
	// classification that triggered queueing.
	LocalLabel      string     `json:"local_label"`
	LocalConfidence int        `json:"local_confidence"`
	LocalTier       ThreatTier `json:"local_tier"`

	// RasterPath points at the saved spectrogram file; RasterB64 holds
	// the raster inline when no file was written. At least one is set.
	RasterPath string `json:"raster_path,omitempty"`
	RasterB64  string `json:"raster_b64,omitempty"`

	// Lat and Lon are the detection's declared coordinates.
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`

	// Battery is the node's battery percentage at capture time.
	Battery int `json:"battery"`

	// Metadata carries arbitrary key/value context for audit.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Status is pending, synced, or failed.
	Status SyncStatus `json:"status"`

	// Result is the authoritative backend's classification, attached
	// once the item has been synced.
	Result *ClassificationResult `json:"result,omitempty"`

	// RetryCount is incremented on each failed sync attempt. Crossing
	// the configured ceiling transitions the item to SyncFailed.
	RetryCount int `json:"retry_count"`

	// SyncedAt is set when the item reaches SyncSynced.
	SyncedAt *time.Time `json:"synced_at,omitempty"`

	// LastError records the most recent sync failure detail.
	LastError string `json:"last_error,omitempty"`
}

// SyncReport summarizes one pass of the background sync scheduler.
// Reports are persisted to the sync_history table for observability.
type SyncReport struct {
	// StartedAt is when the pass began.
	StartedAt time.Time `json:"started_at"`

	// Online reports the connectivity probe outcome. When false the
	// pass did nothing.
	Online bool `json:"online"`

	// ItemsProcessed, ItemsSynced, and ItemsFailed count the batch.
	ItemsProcessed int `json:"items_processed"`
	ItemsSynced    int `json:"items_synced"`
	ItemsFailed    int `json:"items_failed"`

	// Duration is the wall-clock length of the pass.
	Duration time.Duration `json:"duration"`

	// Errors collects per-item failure details.
	Errors []string `json:"errors,omitempty"`
}
