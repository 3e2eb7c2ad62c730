package classify

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/timberwatch/timberwatch/internal/model"
)

// LocalBackend classifies spectrograms on-device with a spectral-band
// energy heuristic. It is far cruder than the cloud backends but needs
// no connectivity, which is what matters when the uplink is down.
//
// The heuristic splits the raster's frequency rows into three bands.
// A chainsaw shows up as sustained tonal energy concentrated in the
// mid band; vehicles rumble in the low band; everything else is
// treated as natural forest sound.
type LocalBackend struct{}

// NewLocalBackend creates the on-device backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{}
}

// Name implements Backend.
func (b *LocalBackend) Name() string {
	return "local-heuristic"
}

// Classify implements Backend. It never touches the network and only
// fails on an unusable raster.
func (b *LocalBackend) Classify(_ context.Context, art *model.Artifact) (model.ClassificationResult, error) {
	if art.Width <= 0 || art.Height <= 0 || len(art.Raster) != art.Width*art.Height {
		return model.ClassificationResult{}, fmt.Errorf("%w: raster %d bytes for %dx%d", ErrMalformedResponse, len(art.Raster), art.Width, art.Height)
	}

	low, mid, high := bandMeans(art.Raster, art.Width, art.Height)
	total := low + mid + high

	res := model.ClassificationResult{
		Backend:    b.Name(),
		Success:    true,
		AnalyzedAt: time.Now(),
	}

	if total == 0 {
		res.Label = model.LabelNatural
		res.Confidence = 90
		res.Tier = model.DeriveTier(res.Label, res.Confidence)
		res.Reasoning = "no acoustic energy in capture"
		res.Features = []string{"silence"}
		res.RecommendedAction = recommendedAction(res.Tier)
		return res, nil
	}

	lowShare := low / total
	midShare := mid / total
	steady := midBandSteadiness(art.Raster, art.Width, art.Height)

	switch {
	case midShare >= 0.5 && steady >= 0.5:
		res.Label = model.LabelChainsaw
		res.Confidence = int(math.Min(100, (midShare*0.6+steady*0.4)*100))
		res.Features = []string{"midband-tonal", "sustained"}
		res.Reasoning = fmt.Sprintf("sustained mid-band energy (share %.2f, steadiness %.2f)", midShare, steady)
	case lowShare >= 0.5:
		res.Label = model.LabelVehicle
		res.Confidence = int(math.Min(100, lowShare*100))
		res.Features = []string{"lowband-rumble"}
		res.Reasoning = fmt.Sprintf("low-band energy dominates (share %.2f)", lowShare)
	default:
		res.Label = model.LabelNatural
		res.Confidence = int((1 - math.Max(midShare, lowShare)) * 100)
		res.Features = []string{"broadband"}
		res.Reasoning = "energy spread across bands without tonal structure"
	}

	res.Tier = model.DeriveTier(res.Label, res.Confidence)
	res.RecommendedAction = recommendedAction(res.Tier)
	return res, nil
}

// bandMeans returns the mean sample value of the low, mid, and high
// frequency thirds of a row-major raster. Row 0 is the lowest band.
func bandMeans(raster []byte, width, height int) (low, mid, high float64) {
	third := height / 3
	if third == 0 {
		third = 1
	}
	var sums [3]float64
	var counts [3]int
	for row := 0; row < height; row++ {
		band := min(row/third, 2)
		for col := 0; col < width; col++ {
			sums[band] += float64(raster[row*width+col])
		}
		counts[band] += width
	}
	for i, c := range counts {
		if c > 0 {
			sums[i] /= float64(c)
		}
	}
	return sums[0], sums[1], sums[2]
}

// midBandSteadiness measures how evenly the mid band's energy is
// spread over time. 1 means perfectly sustained, 0 means a single
// transient burst.
func midBandSteadiness(raster []byte, width, height int) float64 {
	third := height / 3
	if third == 0 {
		third = 1
	}
	start := third
	end := min(2*third, height)

	colMeans := make([]float64, width)
	var total float64
	for col := 0; col < width; col++ {
		var sum float64
		for row := start; row < end; row++ {
			sum += float64(raster[row*width+col])
		}
		colMeans[col] = sum / float64(end-start)
		total += colMeans[col]
	}
	mean := total / float64(width)
	if mean == 0 {
		return 0
	}

	var variance float64
	for _, m := range colMeans {
		variance += (m - mean) * (m - mean)
	}
	variance /= float64(width)

	cv := math.Sqrt(variance) / mean
	return math.Max(0, 1-cv)
}

// recommendedAction maps a tier to the operator action the dashboard
// displays alongside the detection.
func recommendedAction(tier model.ThreatTier) string {
	switch {
	case tier >= model.TierHigh:
		return "dispatch-ranger"
	case tier == model.TierMedium:
		return "review"
	default:
		return "log"
	}
}
