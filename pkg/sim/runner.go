package sim

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/irctrakz/relentless/pkg/cc"
	"github.com/irctrakz/relentless/pkg/core"
	"github.com/irctrakz/relentless/pkg/logging"
	"golang.org/x/sync/errgroup"
)

// Sample is one flow's state after one acknowledgment round.
type Sample struct {
	// Flow is the flow name.
	Flow string `json:"flow"`

	// Tick is the acknowledgment round, counted from zero.
	Tick int `json:"tick"`

	// ElapsedUs is simulated time since the flow started, in microseconds.
	ElapsedUs int64 `json:"elapsed_us"`

	// Cwnd is the host congestion window after the round.
	Cwnd uint32 `json:"cwnd"`

	// Ssthresh is the host slow-start threshold after the round.
	Ssthresh uint32 `json:"ssthresh"`

	// RTTUs is the round's measured RTT in microseconds.
	RTTUs int64 `json:"rtt_us"`

	// MinRTTUs and ThresholdUs are the detector's floor estimate and
	// marking threshold, in microseconds.
	MinRTTUs    int64 `json:"min_rtt_us"`
	ThresholdUs int64 `json:"threshold_us"`

	// Queue is the standing bottleneck queue after the round.
	Queue uint32 `json:"queue"`

	// CE reports whether the round's deliveries were marked.
	CE bool `json:"ce"`

	// Dropped is the number of packets dropped this round.
	Dropped uint32 `json:"dropped"`

	// RTTWindow and ECNWindow are the engine's scaled windows in packets.
	RTTWindow uint32 `json:"rtt_window"`
	ECNWindow uint32 `json:"ecn_window"`

	// Urgency is the deadline gate's pressure score.
	Urgency uint32 `json:"urgency"`

	// Delivered is the cumulative packet count delivered so far.
	Delivered uint64 `json:"delivered"`

	// Metrics is a snapshot of the engine's decision counters.
	Metrics core.EngineMetrics `json:"-"`
}

// FlowResult summarizes one flow at the end of a run.
type FlowResult struct {
	// Flow is the flow name.
	Flow string

	// Ticks is the number of rounds simulated.
	Ticks int

	// Delivered is the total packet count delivered.
	Delivered uint64

	// Dropped is the total packet count lost at the queue.
	Dropped uint64

	// Recoveries is the number of completed loss-recovery episodes.
	Recoveries uint64

	// FinalCwnd is the host window at the end of the run.
	FinalCwnd uint32

	// MinRTT, AvgRTT and MaxRTT summarize the measured round trips.
	MinRTT time.Duration
	AvgRTT time.Duration
	MaxRTT time.Duration

	// Metrics is the engine's final decision counters.
	Metrics core.EngineMetrics
}

// virtualClock is a flow-local time base. It advances by the measured round
// trip each round, so the engine's deadline accounting sees simulated time
// rather than wall time.
type virtualClock struct {
	start time.Time
	now   time.Time
}

func newVirtualClock() *virtualClock {
	start := time.Unix(0, 0)
	return &virtualClock{start: start, now: start}
}

func (c *virtualClock) Now() time.Time          { return c.now }
func (c *virtualClock) advance(d time.Duration) { c.now = c.now.Add(d) }
func (c *virtualClock) elapsed() time.Duration  { return c.now.Sub(c.start) }

// Runner drives one engine per configured flow over the scenario's path
// model, delivering the event stream a host stack would.
type Runner struct {
	scenario Scenario
	base     cc.Config
	seed     int64

	mu       sync.Mutex
	latest   map[string]Sample
	onSample func(Sample)
}

// NewRunner returns a runner for the scenario. The base engine config is
// copied per flow; class and debug come from each flow's config. A non-zero
// seed makes gating draws reproducible, with each flow offset so flows do
// not share a sequence.
func NewRunner(scenario Scenario, base cc.Config, seed int64) *Runner {
	return &Runner{
		scenario: scenario,
		base:     base,
		seed:     seed,
		latest:   make(map[string]Sample),
	}
}

// OnSample registers a callback invoked after every round of every flow.
// Flows run concurrently, so the callback must be safe for concurrent use.
func (r *Runner) OnSample(fn func(Sample)) {
	r.onSample = fn
}

// Latest returns the most recent sample of each flow, ordered by flow name.
func (r *Runner) Latest() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Sample, 0, len(r.latest))
	for _, s := range r.latest {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Flow < out[j].Flow })
	return out
}

// Run simulates every flow to completion and returns their results in
// scenario order.
func (r *Runner) Run(ctx context.Context) ([]FlowResult, error) {
	if err := r.scenario.Validate(); err != nil {
		return nil, err
	}

	results := make([]FlowResult, len(r.scenario.Flows))
	g, ctx := errgroup.WithContext(ctx)
	for i, flow := range r.scenario.Flows {
		i, flow := i, flow
		g.Go(func() error {
			res, err := r.runFlow(ctx, i, flow)
			if err != nil {
				return fmt.Errorf("flow %s: %w", flow.Name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Runner) runFlow(ctx context.Context, idx int, flow FlowConfig) (FlowResult, error) {
	conn := newFlowConn(flow)
	link := &path{cfg: r.scenario.Path}
	clock := newVirtualClock()

	cfg := r.base
	cfg.Class = cc.PriorityClass(flow.Class)
	if flow.Debug {
		cfg.Debug = true
	}
	cfg.Clock = clock.Now
	if r.seed != 0 {
		cfg.Rand = cc.NewRandSource(r.seed + int64(idx))
	} else {
		cfg.Rand = nil
	}

	engine := cc.New(conn, cfg)

	if flow.DelayedAcks {
		engine.Handle(core.AckPolicy{Delayed: true})
	}

	logging.Debugf("sim: flow %s starting, cwnd=%d, capacity=%d pkts, base rtt=%v",
		flow.Name, conn.cwnd, r.scenario.Path.Capacity, r.scenario.Path.BaseRTT())

	var (
		ackedSeq   uint32
		delivered  uint64
		dropped    uint64
		recoveries uint64
		inRecovery bool
		rttSum     time.Duration
		minRTT     time.Duration
		maxRTT     time.Duration
	)
	pace := time.Duration(r.scenario.PaceUs) * time.Microsecond

	for tick := 0; tick < r.scenario.Ticks; tick++ {
		if err := ctx.Err(); err != nil {
			return FlowResult{}, err
		}
		if pace > 0 && tick > 0 {
			select {
			case <-ctx.Done():
				return FlowResult{}, ctx.Err()
			case <-time.After(pace):
			}
		}

		conn.inflight = conn.cwnd
		tr := link.round(conn.inflight)
		clock.advance(tr.rtt)

		acked := tr.delivered
		delivered += uint64(acked)
		rttSum += tr.rtt
		if minRTT == 0 || tr.rtt < minRTT {
			minRTT = tr.rtt
		}
		if tr.rtt > maxRTT {
			maxRTT = tr.rtt
		}

		// Receive path: the mark state is observed before the boundary
		// advances past this round's data, so a forced acknowledgment on a
		// flip covers the pre-flip data.
		if flow.ECN {
			engine.Handle(core.CEState{Present: tr.ce})
		}
		conn.rcvNxt += acked * conn.mss

		// Ack path: echo and byte accounting, then the RTT measurement.
		ackedSeq += acked * conn.mss
		engine.Handle(core.AckEvent{
			ECNEcho:  flow.ECN && tr.ce,
			AckedSeq: ackedSeq,
		})
		engine.Handle(core.RTTSample{Acked: acked, RTT: tr.rtt})

		// Loss path: the host takes its own reduction, the engine gets the
		// last word when recovery completes.
		if tr.dropped > 0 {
			dropped += uint64(tr.dropped)
			conn.retrans += tr.dropped
			conn.ssthresh = engine.Ssthresh()
			if conn.cwnd > conn.ssthresh {
				conn.cwnd = conn.ssthresh
			}
			inRecovery = true
		} else if inRecovery {
			engine.Handle(core.RecoveryDone{})
			inRecovery = false
			recoveries++
		}

		engine.Handle(core.CwndUpdate{Acked: acked})

		snap := engine.Snapshot()
		r.publish(Sample{
			Flow:        flow.Name,
			Tick:        tick,
			ElapsedUs:   clock.elapsed().Microseconds(),
			Cwnd:        conn.cwnd,
			Ssthresh:    conn.ssthresh,
			RTTUs:       tr.rtt.Microseconds(),
			MinRTTUs:    snap.MinRTT.Microseconds(),
			ThresholdUs: snap.Threshold.Microseconds(),
			Queue:       tr.queue,
			CE:          tr.ce,
			Dropped:     tr.dropped,
			RTTWindow:   snap.RTTWindow,
			ECNWindow:   snap.ECNWindow,
			Urgency:     snap.Urgency,
			Delivered:   delivered,
			Metrics:     engine.Metrics(),
		})
	}

	res := FlowResult{
		Flow:       flow.Name,
		Ticks:      r.scenario.Ticks,
		Delivered:  delivered,
		Dropped:    dropped,
		Recoveries: recoveries,
		FinalCwnd:  conn.cwnd,
		MinRTT:     minRTT,
		AvgRTT:     rttSum / time.Duration(r.scenario.Ticks),
		MaxRTT:     maxRTT,
		Metrics:    engine.Metrics(),
	}
	logging.Infof("sim: flow %s done, delivered=%d pkts, drops=%d, final cwnd=%d, rtt min/avg/max=%v/%v/%v",
		res.Flow, res.Delivered, res.Dropped, res.FinalCwnd, res.MinRTT, res.AvgRTT, res.MaxRTT)
	return res, nil
}

func (r *Runner) publish(s Sample) {
	r.mu.Lock()
	r.latest[s.Flow] = s
	fn := r.onSample
	r.mu.Unlock()

	if fn != nil {
		fn(s)
	}
}
