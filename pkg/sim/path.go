package sim

import (
	"time"
)

// path is one flow's instance of the single-bottleneck link. Pushing a
// window of packets through it for one round trip yields the measured RTT,
// the standing queue, tail drops, and the mark state.
type path struct {
	cfg    PathConfig
	rounds uint32
}

// transit is the outcome of one round trip.
type transit struct {
	// delivered is the number of packets drained and acknowledged this
	// round.
	delivered uint32

	// dropped is the number of packets tail-dropped at the queue limit.
	dropped uint32

	// queue is the standing queue after the round.
	queue uint32

	// rtt is the measured round trip including queueing delay.
	rtt time.Duration

	// ce reports whether this round's deliveries carried the
	// congestion-experienced mark.
	ce bool
}

// round pushes inflight packets through the bottleneck for one round trip.
// Packets beyond the per-trip capacity queue up; queue beyond the limit is
// dropped, and the configured forced loss claims one more. Each queued
// packet adds one transmission slot of delay.
func (p *path) round(inflight uint32) transit {
	capacity := p.cfg.Capacity
	p.rounds++

	var queue uint32
	if inflight > capacity {
		queue = inflight - capacity
	}

	var dropped uint32
	if queue > p.cfg.QueueLimit {
		dropped = queue - p.cfg.QueueLimit
		queue = p.cfg.QueueLimit
	}

	delivered := inflight - dropped
	if delivered > capacity {
		delivered = capacity
	}
	if p.cfg.LossEveryN > 0 && p.rounds%p.cfg.LossEveryN == 0 && delivered > 1 {
		dropped++
		delivered--
	}

	base := p.cfg.BaseRTT()
	rtt := base + base*time.Duration(queue)/time.Duration(capacity)

	ce := p.cfg.MarkThreshold > 0 && queue >= p.cfg.MarkThreshold

	return transit{
		delivered: delivered,
		dropped:   dropped,
		queue:     queue,
		rtt:       rtt,
		ce:        ce,
	}
}
