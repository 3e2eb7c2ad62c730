package model

import "time"

// BackendOutcome is the classification recorded for one backend call.
// When a fast and an authoritative backend both run, the merged
// ClassificationResult keeps both outcomes for audit.
type BackendOutcome struct {
	// Backend is the name of the backend that produced this outcome.
	Backend string `json:"backend"`

	// Label is the classification label (see the Label constants).
	Label string `json:"label"`

	// Confidence is the backend's confidence in [0,100].
	Confidence int `json:"confidence"`

	// Tier is the threat tier the backend derived.
	Tier ThreatTier `json:"tier"`
}

// ClassificationResult is the closed record returned by every routing
// attempt. A fresh result is created per attempt; the router may merge a
// primary and a verification outcome into one.
//
// Design decision: Optional conditions (offline substitution, rate
// limiting) are explicit fields rather than string-keyed metadata so the
// dashboard boundary can distinguish "nothing happened" from "something
// failed" without parsing.
type ClassificationResult struct {
	// Backend is the backend (or merged backend pair, e.g.
	// "cloud-heuristic+cloud-authoritative") that produced the result.
	Backend string `json:"backend"`

	// Label is the final classification label.
	Label string `json:"label"`

	// Confidence is the final confidence in [0,100].
	Confidence int `json:"confidence"`

	// Tier is the derived threat tier.
	Tier ThreatTier `json:"tier"`

	// Reasoning is the backend's free-text explanation, if it has one.
	Reasoning string `json:"reasoning,omitempty"`

	// Features lists the acoustic features the backend detected.
	Features []string `json:"features,omitempty"`

	// RecommendedAction tells operators what to do about the detection.
	RecommendedAction string `json:"recommended_action,omitempty"`

	// Success reports whether any backend produced a usable
	// classification. On false, Error holds the last failure detail.
	Success bool `json:"success"`

	// Error holds failure detail when Success is false, or the
	// non-fatal verification error when a verify step failed.
	Error string `json:"error,omitempty"`

	// Offline is true when an authoritative backend was requested but
	// the hub was offline and the local backend answered instead.
	Offline bool `json:"offline,omitempty"`

	// RateLimited is true when the authoritative quota was exhausted and
	// the call was not made. RetryAfter tells the caller how long until
	// the next slot opens.
	RateLimited bool          `json:"rate_limited,omitempty"`
	RetryAfter  time.Duration `json:"retry_after,omitempty"`

	// Primary and Verification record the individual backend outcomes
	// when the cloud-verify cascade ran both backends.
	Primary      *BackendOutcome `json:"primary,omitempty"`
	Verification *BackendOutcome `json:"verification,omitempty"`

	// AnalyzedAt is when the routing attempt completed.
	AnalyzedAt time.Time `json:"analyzed_at"`
}
