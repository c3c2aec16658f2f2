package sim

import (
	"math"

	"github.com/irctrakz/relentless/pkg/core"
)

// flowConn is the simulated host side of one connection. The runner updates
// its counters each round; the engine reads and writes it through core.Conn.
type flowConn struct {
	cwnd     uint32
	ssthresh uint32
	inflight uint32
	limited  bool
	retrans  uint32
	mss      uint32
	rcvNxt   uint32
	demand   bool
	ecn      bool
	state    core.ConnState

	sentAcks []sentAck
}

// sentAck records one acknowledgment the engine pushed out, with the
// boundary and echo demand it carried at send time.
type sentAck struct {
	rcvNxt uint32
	echo   bool
}

func newFlowConn(cfg FlowConfig) *flowConn {
	return &flowConn{
		cwnd: cfg.InitialCwnd,
		// Slow start until the engine pins the threshold down.
		ssthresh: math.MaxUint32,
		limited:  true,
		mss:      cfg.MSS,
		ecn:      cfg.ECN,
		state:    core.StateEstablished,
	}
}

func (c *flowConn) Cwnd() uint32                { return c.cwnd }
func (c *flowConn) SetCwnd(cwnd uint32)         { c.cwnd = cwnd }
func (c *flowConn) Ssthresh() uint32            { return c.ssthresh }
func (c *flowConn) SetSsthresh(ssthresh uint32) { c.ssthresh = ssthresh }
func (c *flowConn) PacketsInFlight() uint32     { return c.inflight }
func (c *flowConn) IsCwndLimited() bool         { return c.limited }
func (c *flowConn) TotalRetrans() uint32        { return c.retrans }
func (c *flowConn) MSS() uint32                 { return c.mss }
func (c *flowConn) RcvNxt() uint32              { return c.rcvNxt }
func (c *flowConn) SetRcvNxt(seq uint32)        { c.rcvNxt = seq }
func (c *flowConn) SendAck()                    { c.sentAcks = append(c.sentAcks, sentAck{rcvNxt: c.rcvNxt, echo: c.demand}) }
func (c *flowConn) SetDemandECNEcho(d bool)     { c.demand = d }
func (c *flowConn) ECNCapable() bool            { return c.ecn }
func (c *flowConn) State() core.ConnState       { return c.state }
