package core

// ConnState represents the lifecycle state of a host connection as seen at
// controller attachment time.
type ConnState int

const (
	// StateEstablished is a connection with a completed handshake.
	StateEstablished ConnState = iota

	// StateListen is a passive connection awaiting a handshake.
	StateListen

	// StateClosed is a connection that has not started or has finished.
	StateClosed
)

// String returns a human-readable name for the connection state.
func (s ConnState) String() string {
	switch s {
	case StateEstablished:
		return "established"
	case StateListen:
		return "listen"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is a congestion controller's view of one host transport connection.
// It exposes the counters the controller reads and the knobs it writes; the
// host stack owns everything else. All windows are in whole packets.
type Conn interface {
	// Cwnd returns the current congestion window in packets.
	Cwnd() uint32

	// SetCwnd writes the congestion window back to the host, in packets.
	SetCwnd(cwnd uint32)

	// Ssthresh returns the slow-start threshold in packets.
	Ssthresh() uint32

	// SetSsthresh writes the slow-start threshold back to the host.
	SetSsthresh(ssthresh uint32)

	// PacketsInFlight returns the number of sent but unacknowledged packets.
	PacketsInFlight() uint32

	// IsCwndLimited reports whether the connection is currently limited by
	// the congestion window rather than by application data or the peer's
	// receive window.
	IsCwndLimited() bool

	// TotalRetrans returns the cumulative count of retransmitted packets
	// over the connection's lifetime.
	TotalRetrans() uint32

	// MSS returns the maximum segment size in bytes, used to convert
	// acknowledged byte counts into packets.
	MSS() uint32

	// RcvNxt returns the receive-sequence boundary the next outgoing
	// acknowledgment will carry.
	RcvNxt() uint32

	// SetRcvNxt overrides the boundary carried by the next outgoing
	// acknowledgment. Used to acknowledge older data out of band.
	SetRcvNxt(seq uint32)

	// SendAck emits an immediate acknowledgment built from the connection's
	// current receive boundary and echo-demand flag.
	SendAck()

	// SetDemandECNEcho sets or clears the flag that asks the peer to treat
	// outgoing acknowledgments as carrying a congestion echo.
	SetDemandECNEcho(demand bool)

	// ECNCapable reports whether ECN was negotiated on this connection.
	ECNCapable() bool

	// State returns the connection's lifecycle state.
	State() ConnState
}

// CongestionController is a pluggable per-connection control strategy. The
// host stack drives it with the acknowledgment event stream for exactly one
// connection; events for that connection must be delivered serially.
type CongestionController interface {
	// Handle applies one control-loop event to the controller's state.
	Handle(ev Event)

	// Ssthresh returns the window the host should fall back to when it
	// reacts to loss on its own.
	Ssthresh() uint32
}
