package classify

import (
	"context"
	"log/slog"
	"time"

	"github.com/timberwatch/timberwatch/internal/model"
)

// NetworkProber answers whether the uplink is currently usable. The
// Router probes once per routing request and bases every decision in
// that request on the single answer.
type NetworkProber interface {
	Online() bool
}

// Router chooses and runs classification backends for one artifact at
// a time. It never returns an error: every outcome, including total
// cascade failure, is expressed as a ClassificationResult so callers
// downstream (queueing, dashboards) see explicit flags instead of
// silent gaps.
type Router struct {
	heuristic     Backend
	authoritative Backend
	local         Backend
	window        *RateWindow
	prober        NetworkProber
	logger        *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterLogger sets the logger for routing decisions.
func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

// NewRouter wires the three backends, the shared rate window, and the
// connectivity prober into a Router.
func NewRouter(heuristic, authoritative, local Backend, window *RateWindow, prober NetworkProber, opts ...RouterOption) *Router {
	r := &Router{
		heuristic:     heuristic,
		authoritative: authoritative,
		local:         local,
		window:        window,
		prober:        prober,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Classify routes one artifact through the backends selected by mode.
//
// forceAuthoritative demands authoritative truth: local-only is
// escalated to cloud-verify, and any offline state is a hard
// network-unavailable failure rather than a silent downgrade. Without
// it, an offline request that wanted a cloud backend transparently
// runs on-device and is marked Offline for later re-verification.
func (r *Router) Classify(ctx context.Context, art *model.Artifact, mode Mode, forceAuthoritative bool) model.ClassificationResult {
	online := r.prober.Online()
	effective := mode

	if forceAuthoritative {
		if !online {
			r.logger.Warn("authoritative classification demanded while offline", "node_id", art.NodeID)
			return failureResult(ErrorNetworkUnavailable)
		}
		if effective == ModeLocalOnly {
			effective = ModeCloudVerify
		}
	} else if !online && effective != ModeLocalOnly {
		// A cloud backend was requested but there is no network. Run
		// on-device and flag the result so the caller queues it for
		// authoritative confirmation later.
		res := r.runLocal(ctx, art)
		res.Offline = true
		return res
	}

	if effective == ModeAuto {
		effective = ModeCloudVerify
	}

	switch effective {
	case ModeLocalOnly:
		return r.runLocal(ctx, art)
	case ModeCloudFast:
		return r.cloudFast(ctx, art, forceAuthoritative)
	default:
		return r.cloudVerify(ctx, art, forceAuthoritative)
	}
}

func (r *Router) runLocal(ctx context.Context, art *model.Artifact) model.ClassificationResult {
	res, err := r.local.Classify(ctx, art)
	if err != nil {
		r.logger.Error("local backend failed", "node_id", art.NodeID, "error", err)
		return failureResult(ErrorAllBackendsFailed)
	}
	return res
}

// cloudFast is a single authoritative call with one on-device
// fallback. Forced requests never take the fallback: an on-device
// answer is no stronger than whatever made the caller demand
// authoritative truth in the first place.
func (r *Router) cloudFast(ctx context.Context, art *model.Artifact, force bool) model.ClassificationResult {
	res, limited, err := r.callAuthoritative(ctx, art)
	if limited {
		return res
	}
	if err == nil {
		return res
	}
	if force {
		r.logger.Warn("authoritative backend failed on a forced request",
			"node_id", art.NodeID, "error", err)
		return failureResult(ErrorAllBackendsFailed)
	}

	r.logger.Warn("authoritative backend failed, falling back on-device",
		"node_id", art.NodeID, "error", err)
	fb, ferr := r.local.Classify(ctx, art)
	if ferr != nil {
		r.logger.Error("fallback backend failed", "node_id", art.NodeID, "error", ferr)
		return failureResult(ErrorAllBackendsFailed)
	}
	return fb
}

// cloudVerify runs the cheap heuristic first and escalates to the
// authoritative backend only when the heuristic tier reaches MEDIUM.
// LOW-tier results are not worth spending a rate-window slot on.
// Forced requests always escalate regardless of the heuristic tier.
func (r *Router) cloudVerify(ctx context.Context, art *model.Artifact, force bool) model.ClassificationResult {
	primary, err := r.heuristic.Classify(ctx, art)
	if err != nil {
		r.logger.Warn("heuristic backend failed, falling back authoritative",
			"node_id", art.NodeID, "error", err)
		res, limited, aerr := r.callAuthoritative(ctx, art)
		if limited {
			return res
		}
		if aerr != nil {
			r.logger.Error("fallback backend failed", "node_id", art.NodeID, "error", aerr)
			return failureResult(ErrorAllBackendsFailed)
		}
		return res
	}

	if !force && primary.Tier < model.TierMedium {
		return primary
	}

	verification, limited, aerr := r.callAuthoritative(ctx, art)
	if limited {
		// Keep the heuristic's classification; the flags tell the
		// caller verification was refused and when to retry.
		primary.RateLimited = true
		primary.RetryAfter = verification.RetryAfter
		primary.Primary = outcome(primary)
		return primary
	}
	if aerr != nil {
		r.logger.Warn("verification call failed, keeping heuristic result",
			"node_id", art.NodeID, "error", aerr)
		primary.Primary = outcome(primary)
		return primary
	}
	return merge(primary, verification)
}

// callAuthoritative reserves a rate-window slot and calls the
// authoritative backend. When the window is exhausted the backend is
// not called and a rate-limited result comes back with limited=true.
func (r *Router) callAuthoritative(ctx context.Context, art *model.Artifact) (res model.ClassificationResult, limited bool, err error) {
	ok, wait := r.window.Reserve()
	if !ok {
		r.logger.Warn("authoritative call rate limited",
			"node_id", art.NodeID, "retry_after", wait)
		res = failureResult(ErrorRateLimited)
		res.RateLimited = true
		res.RetryAfter = wait
		return res, true, nil
	}
	res, err = r.authoritative.Classify(ctx, art)
	return res, false, err
}

// merge produces the audit-complete result of a verified
// classification: the heuristic's label, confidence and tier stand,
// the verifier contributes its richer analysis where it has one, and
// both outcomes are recorded.
func merge(primary, verification model.ClassificationResult) model.ClassificationResult {
	merged := primary
	merged.Backend = primary.Backend + "+" + verification.Backend
	if verification.Reasoning != "" {
		merged.Reasoning = verification.Reasoning
	}
	if len(verification.Features) > 0 {
		merged.Features = verification.Features
	}
	if verification.RecommendedAction != "" {
		merged.RecommendedAction = verification.RecommendedAction
	}
	merged.Primary = outcome(primary)
	merged.Verification = outcome(verification)
	return merged
}

func outcome(res model.ClassificationResult) *model.BackendOutcome {
	return &model.BackendOutcome{
		Backend:    res.Backend,
		Label:      res.Label,
		Confidence: res.Confidence,
		Tier:       res.Tier,
	}
}

func failureResult(errMsg string) model.ClassificationResult {
	return model.ClassificationResult{
		Label:      model.LabelUnknown,
		Success:    false,
		Error:      errMsg,
		AnalyzedAt: time.Now(),
	}
}
