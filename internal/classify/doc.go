// Package classify routes reconstructed spectrogram artifacts through
// a cascade of classification backends.
//
// Three backends sit behind one contract: a cloud heuristic (fast,
// cheap), a cloud authoritative service (slow, rate limited, the
// source of truth), and an on-device fallback that works without
// connectivity. The Router picks a cascade from the requested mode,
// consults a sliding rate window before every authoritative call, and
// degrades across backends instead of surfacing errors: a routing
// request always returns a ClassificationResult, failed or not.
package classify
