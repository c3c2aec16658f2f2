package cc

import (
	"time"

	"github.com/irctrakz/relentless/pkg/core"
	"github.com/irctrakz/relentless/pkg/logging"
)

const (
	// rttBackoffShift scales the delay-triggered decrease: each newly
	// acknowledged packet removes 1/16 packet from the scaled window.
	rttBackoffShift = 6

	// ecnBackoffShift scales the mark-triggered decrease: each marked
	// packet removes half a packet from the scaled window.
	ecnBackoffShift = 9

	// minSsthresh is the lowest slow-start threshold ever reported.
	minSsthresh = 2
)

// Engine is a per-connection congestion control loop that keeps the pipe
// full through congestion events instead of halving on every signal. It
// runs two independently evolving scaled windows, one driven by queueing
// delay and one by ECN marks, and pins the host's slow-start threshold to
// its own decisions so the host can never ramp past them.
//
// The engine holds no locks. Events for one connection must arrive
// serially, which is the delivery order a host stack produces anyway.
type Engine struct {
	conn core.Conn
	cfg  Config

	rtt  *RTTDetector
	gate *deadlineGate

	rttWnd ScaledWindow
	ecnWnd ScaledWindow

	// Window published at the last update pass, and the same value plus
	// lifetime retransmissions. Their difference at recovery exit is the
	// loss count the threshold is compensated by.
	savedCwnd      uint32
	cwndPlusLosses uint32

	priorAckedSeq uint32
	seenAck       bool

	priorRcvNxt uint32
	ceState     bool
	delayedAck  bool

	metrics core.EngineMetrics
}

// New attaches a fresh engine to conn. Both scaled windows are seeded from
// the connection's current window so the first decision continues from
// wherever the host already was.
func New(conn core.Conn, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		conn: conn,
		cfg:  cfg,
		rtt:  NewRTTDetector(cfg.MarkFraction, cfg.WarmupSamples),
		gate: newDeadlineGate(cfg),
	}
	seed := WindowFromPackets(conn.Cwnd())
	e.rttWnd = seed
	e.ecnWnd = seed

	state := conn.State()
	if conn.ECNCapable() || state == core.StateListen || state == core.StateClosed {
		e.priorRcvNxt = conn.RcvNxt()
	}
	if cfg.Debug {
		logging.Debugf("relentless init: rtt_cwnd=%d, ecn_cwnd=%d, detect=%s",
			uint32(e.rttWnd), uint32(e.ecnWnd), cfg.Detect)
	}
	return e
}

// Handle applies one control-loop event. Unrecognized event types are
// ignored.
func (e *Engine) Handle(ev core.Event) {
	switch ev := ev.(type) {
	case core.CwndUpdate:
		e.updateCwnd()
	case core.RTTSample:
		e.observeRTT(ev)
	case core.AckEvent:
		e.observeAck(ev)
	case core.RecoveryDone:
		e.exitRecovery()
	case core.CEState:
		e.ceTransition(ev.Present)
	case core.AckPolicy:
		e.delayedAck = ev.Delayed
	}
}

// Ssthresh reports the threshold the host should fall back to on its own
// loss reactions: the current window itself, floored at two packets. The
// threshold only mirrors what the window updates already decided, so the
// host's slow-start logic can never grow past the engine's last word.
func (e *Engine) Ssthresh() uint32 {
	if cwnd := e.conn.Cwnd(); cwnd > minSsthresh {
		return cwnd
	}
	return minSsthresh
}

// updateCwnd publishes the engine's window decision back to the host.
func (e *Engine) updateCwnd() {
	conn := e.conn

	// Undo any reduction the host applied on its own: the window is never
	// reported below what is already in flight.
	if inflight := conn.PacketsInFlight(); conn.Cwnd() < inflight {
		conn.SetCwnd(inflight)
	}

	if !conn.IsCwndLimited() {
		return
	}

	cwnd := e.effectiveWindow()
	if e.inSlowStart() {
		if th := conn.Ssthresh(); th < cwnd {
			cwnd = th
		}
	}
	conn.SetCwnd(cwnd)

	e.savedCwnd = conn.Cwnd()
	e.cwndPlusLosses = e.savedCwnd + conn.TotalRetrans()

	if e.cfg.Debug {
		logging.Debugf("relentless: cwnd=%d, ssthresh=%d", conn.Cwnd(), conn.Ssthresh())
	}
}

// observeRTT folds one RTT sample into the delay-driven window.
func (e *Engine) observeRTT(ev core.RTTSample) {
	verdict := e.rtt.Observe(ev.RTT)
	if verdict == VerdictInvalid {
		e.metrics.InvalidSamples++
		return
	}
	e.metrics.RTTSamples++
	if verdict == VerdictWarmingUp {
		return
	}

	if e.rtt.nearFloor(ev.RTT) {
		e.gate.noteWindow(e.conn.Cwnd())
	}
	e.gate.drain(ev.Acked)

	if verdict == VerdictNotCongested {
		e.rttWnd = e.rttWnd.Add(WindowScale)
		e.metrics.Increases++
		return
	}

	if !e.inSlowStart() && !e.gate.admit(e.conn.Cwnd(), e.rtt.MinRTT()) {
		e.metrics.GatedBackoffs++
		if e.cfg.Debug {
			logging.Debugf("relentless gate: backoff suppressed, rtt=%v, cwnd=%d",
				ev.RTT, e.conn.Cwnd())
		}
		return
	}

	e.rttWnd = e.rttWnd.Sub(ev.Acked << rttBackoffShift)
	e.metrics.RTTDecreases++
	if e.inSlowStart() {
		e.conn.SetSsthresh(e.conn.Cwnd())
	}
	if e.cfg.Debug {
		logging.Debugf("relentless backoff: rtt_min=%v, rtt_thresh=%v, rtt=%v, rtt_cwnd=%d",
			e.rtt.MinRTT(), e.rtt.Threshold(), ev.RTT, uint32(e.rttWnd))
	}
}

// exitRecovery compensates the slow-start threshold for losses taken during
// the recovery episode: the window the engine last published, minus only
// the packets actually lost since then.
func (e *Engine) exitRecovery() {
	retrans := e.conn.TotalRetrans()
	th := uint32(minSsthresh)
	if e.cwndPlusLosses > retrans && e.cwndPlusLosses-retrans > th {
		th = e.cwndPlusLosses - retrans
	}
	e.conn.SetSsthresh(th)
	e.metrics.RecoveryExits++
}

// effectiveWindow composes the two scaled windows into the whole-packet
// window reported to the host.
func (e *Engine) effectiveWindow() uint32 {
	switch e.cfg.Detect {
	case DetectECN:
		return e.ecnWnd.Packets()
	case DetectRTT:
		return e.rttWnd.Packets()
	default:
		return e.rttWnd.Min(e.ecnWnd).Packets()
	}
}

// inSlowStart reports whether the host window still sits below its
// slow-start threshold.
func (e *Engine) inSlowStart() bool {
	return e.conn.Cwnd() < e.conn.Ssthresh()
}

// Metrics returns a snapshot copy of the engine's decision counters.
func (e *Engine) Metrics() core.EngineMetrics {
	return e.metrics
}

// Snapshot is a point-in-time diagnostic view of one engine.
type Snapshot struct {
	// RTTWindow is the delay-driven window in whole packets.
	RTTWindow uint32

	// ECNWindow is the mark-driven window in whole packets.
	ECNWindow uint32

	// Effective is the composed window the host would be given.
	Effective uint32

	// MinRTT is the detector's current floor estimate.
	MinRTT time.Duration

	// Threshold is the detector's current marking threshold.
	Threshold time.Duration

	// Observations is the number of valid RTT samples seen.
	Observations uint32

	// CEState reports whether the last receive mark state was CE.
	CEState bool

	// PacketsLeft is the remaining deadline-gate budget for this period.
	PacketsLeft uint32

	// Deadline is when the current gate period ends.
	Deadline time.Time

	// Urgency is the gate's current pressure score in [0, 1024].
	Urgency uint32
}

// Snapshot returns a diagnostic view of the engine without disturbing its
// state.
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		RTTWindow:    e.rttWnd.Packets(),
		ECNWindow:    e.ecnWnd.Packets(),
		Effective:    e.effectiveWindow(),
		MinRTT:       e.rtt.MinRTT(),
		Threshold:    e.rtt.Threshold(),
		Observations: e.rtt.Observations(),
		CEState:      e.ceState,
		PacketsLeft:  e.gate.packetsLeft,
		Deadline:     e.gate.deadline,
	}
	if e.gate.active() {
		s.Urgency = e.gate.urgency(e.cfg.Clock(), e.conn.Cwnd(), e.rtt.MinRTT())
	}
	return s
}
