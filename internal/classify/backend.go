package classify

import (
	"context"
	"fmt"

	"github.com/timberwatch/timberwatch/internal/model"
)

// Backend is a single classification capability. Implementations fill
// every descriptive field of the result and set Success; transport and
// parse failures come back as errors for the Router to handle.
type Backend interface {
	// Name identifies the backend in results and logs.
	Name() string

	// Classify analyzes one artifact. The context bounds the call.
	Classify(ctx context.Context, art *model.Artifact) (model.ClassificationResult, error)
}

// Mode selects which backends a routing request may use.
type Mode string

const (
	// ModeCloudFast sends a single authoritative call, falling back to
	// the on-device backend on failure.
	ModeCloudFast Mode = "cloud-fast"

	// ModeCloudVerify runs the cloud heuristic first and escalates to
	// the authoritative backend when the heuristic sees a threat.
	ModeCloudVerify Mode = "cloud-verify"

	// ModeLocalOnly uses the on-device backend exclusively.
	ModeLocalOnly Mode = "local-only"

	// ModeAuto behaves like cloud-verify when online and local-only
	// when offline.
	ModeAuto Mode = "auto"
)

// ParseMode validates a mode string from configuration or flags.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeCloudFast, ModeCloudVerify, ModeLocalOnly, ModeAuto:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}
