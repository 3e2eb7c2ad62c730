// Package metrics exposes Prometheus instrumentation for the hub. A
// nil *PipelineMetrics is a valid no-op receiver, so callers never
// need to guard their observation sites.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms for the ingestion and
// sync pipeline.
type PipelineMetrics struct {
	framesTotal          *prometheus.CounterVec
	artifactsTotal       prometheus.Counter
	droppedTotal         *prometheus.CounterVec
	classificationsTotal *prometheus.CounterVec
	classifyLatency      *prometheus.HistogramVec
	queueDepth           prometheus.Gauge
	syncItemsTotal       *prometheus.CounterVec
	syncPassDuration     prometheus.Histogram
}

// NewPipelineMetrics registers the pipeline metrics on reg, falling
// back to the default registerer when reg is nil.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "timberwatch",
			Subsystem: "ingest",
			Name:      "frames_total",
			Help:      "Total radio frames by emission kind",
		}, []string{"kind"}),
		artifactsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "timberwatch",
			Subsystem: "ingest",
			Name:      "artifacts_total",
			Help:      "Total spectrogram artifacts reassembled",
		}),
		droppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "timberwatch",
			Subsystem: "ingest",
			Name:      "dropped_total",
			Help:      "Total frames or sessions dropped, by reason",
		}, []string{"reason"}),
		classificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "timberwatch",
			Subsystem: "classify",
			Name:      "results_total",
			Help:      "Total classification results by backend and status",
		}, []string{"backend", "status"}),
		classifyLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "timberwatch",
			Subsystem: "classify",
			Name:      "latency_seconds",
			Help:      "Latency of one routing request",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "timberwatch",
			Subsystem: "sync",
			Name:      "queue_pending",
			Help:      "Detections currently pending authoritative sync",
		}),
		syncItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "timberwatch",
			Subsystem: "sync",
			Name:      "items_total",
			Help:      "Total queue items processed by outcome",
		}, []string{"outcome"}),
		syncPassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "timberwatch",
			Subsystem: "sync",
			Name:      "pass_duration_seconds",
			Help:      "Duration of one sync scheduler pass",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.framesTotal,
		m.artifactsTotal,
		m.droppedTotal,
		m.classificationsTotal,
		m.classifyLatency,
		m.queueDepth,
		m.syncItemsTotal,
		m.syncPassDuration,
	)
	return m
}

// ObserveFrame counts one ingested frame by its emission kind.
func (m *PipelineMetrics) ObserveFrame(kind string) {
	if m == nil {
		return
	}
	m.framesTotal.WithLabelValues(kind).Inc()
}

// ObserveArtifact counts one completed reassembly.
func (m *PipelineMetrics) ObserveArtifact() {
	if m == nil {
		return
	}
	m.artifactsTotal.Inc()
}

// ObserveDrop counts one dropped frame or session by reason.
func (m *PipelineMetrics) ObserveDrop(reason string) {
	if m == nil {
		return
	}
	m.droppedTotal.WithLabelValues(reason).Inc()
}

// ObserveClassification counts one routing result.
func (m *PipelineMetrics) ObserveClassification(backend string, success bool, seconds float64) {
	if m == nil {
		return
	}
	status := "ok"
	if !success {
		status = "error"
	}
	m.classificationsTotal.WithLabelValues(backend, status).Inc()
	m.classifyLatency.WithLabelValues(backend).Observe(seconds)
}

// SetQueueDepth records the current pending queue size.
func (m *PipelineMetrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// ObserveSyncItem counts one queue item outcome ("synced" or "failed").
func (m *PipelineMetrics) ObserveSyncItem(outcome string) {
	if m == nil {
		return
	}
	m.syncItemsTotal.WithLabelValues(outcome).Inc()
}

// ObserveSyncPass records the duration of one scheduler pass.
func (m *PipelineMetrics) ObserveSyncPass(seconds float64) {
	if m == nil {
		return
	}
	m.syncPassDuration.Observe(seconds)
}
