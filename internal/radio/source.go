package radio

import (
	"context"

	"github.com/timberwatch/timberwatch/internal/model"
)

// FrameSource delivers raw radio frames to the pipeline.
type FrameSource interface {
	// Run sends frames to out until the context is cancelled. It must
	// not close out; the pipeline owns the channel. A nil return means
	// the source stopped on cancellation.
	Run(ctx context.Context, out chan<- model.Frame) error
}
