package cc

import (
	"math"
	"time"
)

// maxUrgency is the top of the urgency scale. A draw in [0, maxUrgency)
// must meet or beat the urgency score for a backoff to be admitted, so a
// score of maxUrgency suppresses every backoff and a score of zero admits
// every one.
const maxUrgency = 1024

// deadlineGate decides whether a detected congestion signal may shrink the
// window. Connections behind on their per-period packet budget become
// progressively less likely to back off; connections under no budget
// pressure always do.
type deadlineGate struct {
	enabled bool
	spec    ClassSpec
	known   bool

	clock func() time.Time
	rand  RandSource

	packetsLeft uint32
	deadline    time.Time

	// Largest host window seen while the RTT sat near its floor. Stands in
	// for the connection's undisturbed peak rate when deriving a quota
	// from a utilization fraction.
	maxWndAtMinRTT uint32
}

func newDeadlineGate(cfg Config) *deadlineGate {
	g := &deadlineGate{
		enabled: cfg.DeadlineAware,
		clock:   cfg.Clock,
		rand:    cfg.Rand,
	}
	if spec, ok := cfg.Classes[cfg.Class]; ok {
		g.spec = spec
		g.known = true
	}
	return g
}

// active reports whether the gate participates in backoff decisions at all.
// A disabled gate, or one whose class has no grant, admits everything.
func (g *deadlineGate) active() bool {
	return g.enabled && g.known
}

// noteWindow records a host window observed while the path was undisturbed.
func (g *deadlineGate) noteWindow(cwnd uint32) {
	if cwnd > g.maxWndAtMinRTT {
		g.maxWndAtMinRTT = cwnd
	}
}

// drain charges newly acknowledged packets against the period budget.
func (g *deadlineGate) drain(acked uint32) {
	if !g.active() {
		return
	}
	if acked >= g.packetsLeft {
		g.packetsLeft = 0
		return
	}
	g.packetsLeft -= acked
}

// refresh draws a new budget and deadline once the previous deadline has
// elapsed. Called with the current time before every gating decision.
func (g *deadlineGate) refresh(now time.Time, rttMin time.Duration) {
	if now.Before(g.deadline) {
		return
	}
	g.packetsLeft = g.quota(rttMin)
	g.deadline = now.Add(g.spec.Period)
}

// quota returns the packet budget for one period: the configured preset, or
// the utilization fraction of what the connection could move at its
// undisturbed peak rate.
func (g *deadlineGate) quota(rttMin time.Duration) uint32 {
	if g.spec.Quota > 0 {
		return g.spec.Quota
	}
	if g.spec.Utilization <= 0 || rttMin <= 0 || g.maxWndAtMinRTT == 0 {
		return 0
	}
	trips := float64(g.spec.Period) / float64(rttMin)
	q := g.spec.Utilization * float64(g.maxWndAtMinRTT) * trips
	if q <= 0 {
		return 0
	}
	if q >= math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(q)
}

// urgency scores deadline pressure on the fixed scale: the time needed to
// drain the remaining budget at the current window, over the time left
// before the deadline. Zero means no pressure, maxUrgency means the
// deadline is already unreachable at the current rate.
func (g *deadlineGate) urgency(now time.Time, cwnd uint32, rttMin time.Duration) uint32 {
	if g.packetsLeft == 0 {
		return 0
	}
	remaining := g.deadline.Sub(now)
	if remaining <= 0 {
		return maxUrgency
	}
	if cwnd == 0 {
		cwnd = 1
	}
	trips := (g.packetsLeft + cwnd - 1) / cwnd
	need := time.Duration(trips) * rttMin
	if need >= remaining {
		return maxUrgency
	}
	return uint32(uint64(need) * maxUrgency / uint64(remaining))
}

// admit reports whether a congestion signal should be honored right now.
// A uniform draw must meet or beat the urgency score: a connection fully
// behind its deadline never backs off, an idle one always does.
func (g *deadlineGate) admit(cwnd uint32, rttMin time.Duration) bool {
	if !g.active() {
		return true
	}
	now := g.clock()
	g.refresh(now, rttMin)
	u := g.urgency(now, cwnd, rttMin)
	if u == 0 {
		return true
	}
	return g.rand.Uint32n(maxUrgency) >= u
}
