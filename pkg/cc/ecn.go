package cc

import (
	"github.com/irctrakz/relentless/pkg/core"
	"github.com/irctrakz/relentless/pkg/logging"
)

// observeAck folds one acknowledgment's mark accounting into the ECN-driven
// window. A duplicate acknowledgment that is not a pure window update counts
// as one segment; an acknowledgment that only moved the receive window
// counts as nothing.
func (e *Engine) observeAck(ev core.AckEvent) {
	mss := e.conn.MSS()
	if mss == 0 {
		mss = 1
	}

	if !e.seenAck {
		// First acknowledgment establishes the byte-count baseline.
		e.seenAck = true
		e.priorAckedSeq = ev.AckedSeq
	}
	ackedBytes := ev.AckedSeq - e.priorAckedSeq
	if ackedBytes == 0 && !ev.WindowUpdate {
		ackedBytes = mss
	}
	if ackedBytes != 0 {
		e.priorAckedSeq = ev.AckedSeq
	}

	if !ev.ECNEcho {
		if e.inSlowStart() {
			e.ecnWnd = e.ecnWnd.Add(WindowScale)
		} else {
			e.ecnWnd = e.ecnWnd.Add(e.ecnWnd.PacedIncrement())
		}
		e.metrics.Increases++
		return
	}

	if e.inSlowStart() {
		e.conn.SetSsthresh(e.conn.Cwnd())
	}
	e.ecnWnd = e.ecnWnd.Sub((ackedBytes / mss) << ecnBackoffShift)
	e.metrics.ECNDecreases++

	if e.cfg.Debug {
		logging.Debugf("relentless backoff: acked_bytes=%d, decrement pkts=%d, ecn_cwnd=%d",
			ackedBytes, ackedBytes/mss, uint32(e.ecnWnd))
	}
}

// ceTransition applies one edge of the congestion-experienced mark state
// machine. When the mark flips while a delayed acknowledgment is still
// pending, that acknowledgment is forced out first, stamped with the
// receive boundary and echo state the pre-edge data deserved. Without the
// forced ack a single coalesced acknowledgment would smear both mark states
// into one signal.
//
// Repeated notifications of the same state are no-ops, so the forced ack
// fires exactly once per edge.
func (e *Engine) ceTransition(present bool) {
	if e.ceState != present && e.delayedAck {
		conn := e.conn
		cur := conn.RcvNxt()

		conn.SetDemandECNEcho(e.ceState)
		conn.SetRcvNxt(e.priorRcvNxt)
		conn.SendAck()
		conn.SetRcvNxt(cur)
		e.metrics.ForcedAcks++
	}

	e.priorRcvNxt = e.conn.RcvNxt()
	e.ceState = present
	e.conn.SetDemandECNEcho(present)
}
