package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/irctrakz/relentless/pkg/core"
	"github.com/irctrakz/relentless/pkg/sim"
)

// EngineCollectors is the Prometheus view of the running engines. Gauges
// track each flow's latest sample; counters accumulate the engines'
// decision totals.
type EngineCollectors struct {
	// CongestionWindow is the host window per flow, in packets.
	CongestionWindow *prometheus.GaugeVec

	// RTTWindow and ECNWindow are the engine's two scaled windows per
	// flow, in whole packets.
	RTTWindow *prometheus.GaugeVec
	ECNWindow *prometheus.GaugeVec

	// RTT is the last measured round trip per flow, in seconds. MinRTT and
	// Threshold are the detector's floor estimate and marking threshold.
	RTT       *prometheus.GaugeVec
	MinRTT    *prometheus.GaugeVec
	Threshold *prometheus.GaugeVec

	// QueueDepth is the standing bottleneck queue per flow, in packets.
	QueueDepth *prometheus.GaugeVec

	// Urgency is the deadline gate's pressure score per flow.
	Urgency *prometheus.GaugeVec

	// Delivered and Dropped count packets through each flow's path.
	Delivered *prometheus.CounterVec
	Dropped   *prometheus.CounterVec

	// Increases counts window growth decisions; Decreases counts backoffs
	// by signal, either "rtt" or "ecn".
	Increases *prometheus.CounterVec
	Decreases *prometheus.CounterVec

	// GatedBackoffs counts backoffs suppressed by deadline pressure.
	GatedBackoffs *prometheus.CounterVec

	// ForcedAcks counts acknowledgments forced out by mark flips.
	ForcedAcks *prometheus.CounterVec

	// RecoveryExits counts completed loss-recovery episodes.
	RecoveryExits *prometheus.CounterVec

	mu   sync.Mutex
	prev map[string]flowTotals
}

// flowTotals holds the cumulative counters last folded into Prometheus,
// per flow, so each sample only adds its delta.
type flowTotals struct {
	delivered uint64
	metrics   core.EngineMetrics
}

// NewEngineCollectors builds the collector set and registers it with the
// given registry.
func NewEngineCollectors(registry *prometheus.Registry) *EngineCollectors {
	c := &EngineCollectors{
		CongestionWindow: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "relentless",
			Name:      "congestion_window_packets",
			Help:      "Host congestion window per flow",
		}, []string{"flow"}),

		RTTWindow: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "relentless",
			Name:      "rtt_window_packets",
			Help:      "Delay-driven window per flow",
		}, []string{"flow"}),

		ECNWindow: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "relentless",
			Name:      "ecn_window_packets",
			Help:      "Mark-driven window per flow",
		}, []string{"flow"}),

		RTT: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "relentless",
			Name:      "rtt_seconds",
			Help:      "Last measured round trip per flow",
		}, []string{"flow"}),

		MinRTT: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "relentless",
			Name:      "min_rtt_seconds",
			Help:      "Detector floor RTT estimate per flow",
		}, []string{"flow"}),

		Threshold: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "relentless",
			Name:      "rtt_threshold_seconds",
			Help:      "Detector marking threshold per flow",
		}, []string{"flow"}),

		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "relentless",
			Name:      "queue_depth_packets",
			Help:      "Standing bottleneck queue per flow",
		}, []string{"flow"}),

		Urgency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "relentless",
			Name:      "urgency",
			Help:      "Deadline gate pressure score per flow",
		}, []string{"flow"}),

		Delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relentless",
			Name:      "delivered_packets_total",
			Help:      "Packets delivered through the path",
		}, []string{"flow"}),

		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relentless",
			Name:      "dropped_packets_total",
			Help:      "Packets lost at the bottleneck queue",
		}, []string{"flow"}),

		Increases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relentless",
			Name:      "window_increases_total",
			Help:      "Window growth decisions",
		}, []string{"flow"}),

		Decreases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relentless",
			Name:      "window_decreases_total",
			Help:      "Backoff decisions by congestion signal",
		}, []string{"flow", "signal"}),

		GatedBackoffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relentless",
			Name:      "gated_backoffs_total",
			Help:      "Backoffs suppressed by deadline pressure",
		}, []string{"flow"}),

		ForcedAcks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relentless",
			Name:      "forced_acks_total",
			Help:      "Acknowledgments forced out by mark flips",
		}, []string{"flow"}),

		RecoveryExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relentless",
			Name:      "recovery_exits_total",
			Help:      "Completed loss-recovery episodes",
		}, []string{"flow"}),

		prev: make(map[string]flowTotals),
	}

	registry.MustRegister(
		c.CongestionWindow, c.RTTWindow, c.ECNWindow, c.RTT, c.MinRTT,
		c.Threshold, c.QueueDepth, c.Urgency, c.Delivered, c.Dropped,
		c.Increases, c.Decreases, c.GatedBackoffs, c.ForcedAcks,
		c.RecoveryExits,
	)
	return c
}

// Observe folds one flow sample into the collectors. Safe for concurrent
// use, so it can be handed straight to the runner's sample callback.
func (c *EngineCollectors) Observe(s sim.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.CongestionWindow.WithLabelValues(s.Flow).Set(float64(s.Cwnd))
	c.RTTWindow.WithLabelValues(s.Flow).Set(float64(s.RTTWindow))
	c.ECNWindow.WithLabelValues(s.Flow).Set(float64(s.ECNWindow))
	c.RTT.WithLabelValues(s.Flow).Set(float64(s.RTTUs) / 1e6)
	c.MinRTT.WithLabelValues(s.Flow).Set(float64(s.MinRTTUs) / 1e6)
	c.Threshold.WithLabelValues(s.Flow).Set(float64(s.ThresholdUs) / 1e6)
	c.QueueDepth.WithLabelValues(s.Flow).Set(float64(s.Queue))
	c.Urgency.WithLabelValues(s.Flow).Set(float64(s.Urgency))

	c.Dropped.WithLabelValues(s.Flow).Add(float64(s.Dropped))

	prev := c.prev[s.Flow]
	c.Delivered.WithLabelValues(s.Flow).Add(delta(s.Delivered, prev.delivered))
	c.Increases.WithLabelValues(s.Flow).Add(delta(s.Metrics.Increases, prev.metrics.Increases))
	c.Decreases.WithLabelValues(s.Flow, "rtt").Add(delta(s.Metrics.RTTDecreases, prev.metrics.RTTDecreases))
	c.Decreases.WithLabelValues(s.Flow, "ecn").Add(delta(s.Metrics.ECNDecreases, prev.metrics.ECNDecreases))
	c.GatedBackoffs.WithLabelValues(s.Flow).Add(delta(s.Metrics.GatedBackoffs, prev.metrics.GatedBackoffs))
	c.ForcedAcks.WithLabelValues(s.Flow).Add(delta(s.Metrics.ForcedAcks, prev.metrics.ForcedAcks))
	c.RecoveryExits.WithLabelValues(s.Flow).Add(delta(s.Metrics.RecoveryExits, prev.metrics.RecoveryExits))

	c.prev[s.Flow] = flowTotals{delivered: s.Delivered, metrics: s.Metrics}
}

func delta(cur, prev uint64) float64 {
	if cur > prev {
		return float64(cur - prev)
	}
	return 0
}
