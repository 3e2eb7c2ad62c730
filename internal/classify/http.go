package classify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/timberwatch/timberwatch/internal/model"
)

// defaultBackendTimeout bounds one classification round trip. The
// radio keeps producing frames while a call is in flight, so a slow
// backend must not be allowed to stall the pipeline for long.
const defaultBackendTimeout = 10 * time.Second

// HTTPBackend talks to a remote classification service over JSON POST.
// Both cloud backends are instances of this type pointed at different
// endpoints.
type HTTPBackend struct {
	name     string
	endpoint string
	apiKey   string
	client   *http.Client
}

// HTTPOption configures an HTTPBackend.
type HTTPOption func(*HTTPBackend)

// WithHTTPClient replaces the backend's HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(b *HTTPBackend) { b.client = c }
}

// WithBackendTimeout sets the per-call timeout.
func WithBackendTimeout(d time.Duration) HTTPOption {
	return func(b *HTTPBackend) { b.client.Timeout = d }
}

// NewHTTPBackend creates a backend for one remote endpoint. The name
// appears in results and logs; the API key is sent as a bearer token
// when non-empty.
func NewHTTPBackend(name, endpoint, apiKey string, opts ...HTTPOption) *HTTPBackend {
	b := &HTTPBackend{
		name:     name,
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: defaultBackendTimeout},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements Backend.
func (b *HTTPBackend) Name() string {
	return b.name
}

type classifyRequest struct {
	NodeID          string  `json:"node_id"`
	Lat             float64 `json:"lat"`
	Lon             float64 `json:"lon"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	RasterB64       string  `json:"raster_b64"`
	LocalConfidence int     `json:"local_confidence"`
}

type classifyResponse struct {
	Label             string   `json:"label"`
	Confidence        int      `json:"confidence"`
	Reasoning         string   `json:"reasoning"`
	Features          []string `json:"features"`
	RecommendedAction string   `json:"recommended_action"`
}

// Classify implements Backend. Transport failures and unparseable
// answers come back as ErrBackendUnavailable / ErrMalformedResponse so
// the Router can fall back.
func (b *HTTPBackend) Classify(ctx context.Context, art *model.Artifact) (model.ClassificationResult, error) {
	body, err := json.Marshal(classifyRequest{
		NodeID:          art.NodeID,
		Lat:             art.Lat,
		Lon:             art.Lon,
		Width:           art.Width,
		Height:          art.Height,
		RasterB64:       base64.StdEncoding.EncodeToString(art.Raster),
		LocalConfidence: art.LocalConfidence,
	})
	if err != nil {
		return model.ClassificationResult{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return model.ClassificationResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return model.ClassificationResult{}, fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, b.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.ClassificationResult{}, fmt.Errorf("%w: %s returned %d", ErrBackendUnavailable, b.name, resp.StatusCode)
	}

	var parsed classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return model.ClassificationResult{}, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, b.name, err)
	}
	if parsed.Label == "" {
		return model.ClassificationResult{}, fmt.Errorf("%w: %s: missing label", ErrMalformedResponse, b.name)
	}

	label := normalizeLabel(parsed.Label)
	conf := min(max(parsed.Confidence, 0), 100)
	tier := model.DeriveTier(label, conf)

	action := parsed.RecommendedAction
	if action == "" {
		action = recommendedAction(tier)
	}

	return model.ClassificationResult{
		Backend:           b.name,
		Label:             label,
		Confidence:        conf,
		Tier:              tier,
		Reasoning:         parsed.Reasoning,
		Features:          parsed.Features,
		RecommendedAction: action,
		Success:           true,
		AnalyzedAt:        time.Now(),
	}, nil
}

// normalizeLabel maps a backend's label onto the fixed vocabulary,
// keeping the door open to services with a wider taxonomy.
func normalizeLabel(s string) string {
	switch s {
	case model.LabelChainsaw, model.LabelVehicle, model.LabelNatural:
		return s
	default:
		return model.LabelUnknown
	}
}
