package core

import (
	"time"
)

// Event is one input to a congestion controller's control loop. The set of
// event types is closed; controllers switch on the concrete type and ignore
// types they do not recognize.
type Event interface {
	isEvent()
}

// CwndUpdate fires once per acknowledgment round and asks the controller to
// publish its window decision back to the host.
type CwndUpdate struct {
	// Acked is the number of packets newly acknowledged in this round.
	Acked uint32
}

// RTTSample delivers one round-trip-time measurement taken from an
// acknowledgment.
type RTTSample struct {
	// Acked is the number of packets the measured acknowledgment covered.
	Acked uint32

	// RTT is the measured round-trip time. Non-positive values are invalid
	// and must not change controller state.
	RTT time.Duration
}

// AckEvent describes the flags carried by one incoming acknowledgment.
type AckEvent struct {
	// ECNEcho reports whether the acknowledgment carried a congestion echo.
	ECNEcho bool

	// WindowUpdate reports whether the acknowledgment only moved the peer's
	// receive window without covering new data.
	WindowUpdate bool

	// AckedSeq is the cumulative acknowledged sequence number after this
	// acknowledgment was processed.
	AckedSeq uint32
}

// RecoveryDone signals that the host finished a loss-recovery episode and
// is about to leave the recovery state.
type RecoveryDone struct{}

// CEState signals that the receive path observed the IP congestion-experienced
// mark appear or disappear on incoming data.
type CEState struct {
	// Present reports whether the mark is now present.
	Present bool
}

// AckPolicy signals that the host's delayed-acknowledgment scheduler was
// enabled or disabled for the connection.
type AckPolicy struct {
	// Delayed reports whether acknowledgments are now being delayed.
	Delayed bool
}

func (CwndUpdate) isEvent()   {}
func (RTTSample) isEvent()    {}
func (AckEvent) isEvent()     {}
func (RecoveryDone) isEvent() {}
func (CEState) isEvent()      {}
func (AckPolicy) isEvent()    {}
