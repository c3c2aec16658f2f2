package cc

import (
	"time"
)

// markDenominator is the fixed denominator for the queueing-delay budget.
// A mark fraction of 174 over it approximates marking once queueing delay
// exceeds 17% of the connection's floor RTT.
const markDenominator = 1024

// rttMinSentinel is the starting floor estimate. Any plausible first sample
// replaces it.
const rttMinSentinel = time.Second

// Verdict is an RTT detector's judgment of one sample.
type Verdict int

const (
	// VerdictInvalid marks a non-positive sample. It is discarded without
	// touching detector state.
	VerdictInvalid Verdict = iota

	// VerdictWarmingUp means too few samples have been seen to judge
	// congestion. The caller counts the observation and does nothing else.
	VerdictWarmingUp

	// VerdictNotCongested means the sample sat at or below the marking
	// threshold.
	VerdictNotCongested

	// VerdictCongested means the sample exceeded the marking threshold.
	VerdictCongested
)

// String returns a human-readable name for the verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictInvalid:
		return "invalid"
	case VerdictWarmingUp:
		return "warming-up"
	case VerdictNotCongested:
		return "not-congested"
	case VerdictCongested:
		return "congested"
	default:
		return "unknown"
	}
}

// RTTDetector tracks a connection's floor round-trip time and flags samples
// whose queueing delay exceeds a fixed fraction of that floor. The floor
// only ever decreases, so the threshold adapts to the path's true propagation
// delay rather than to transient congestion.
type RTTDetector struct {
	markFraction uint32
	warmup       uint32

	observations uint32
	rttMin       time.Duration
	rttThresh    time.Duration
}

// NewRTTDetector returns a detector that marks samples exceeding
// rttMin + rttMin*markFraction/1024 once warmup valid samples have been
// observed.
func NewRTTDetector(markFraction, warmup uint32) *RTTDetector {
	return &RTTDetector{
		markFraction: markFraction,
		warmup:       warmup,
		rttMin:       rttMinSentinel,
	}
}

// Observe folds one sample into the detector and returns its verdict.
// The floor and threshold are updated before the sample is judged, so a
// sample that sets a new floor is never marked against itself.
func (d *RTTDetector) Observe(rtt time.Duration) Verdict {
	if rtt <= 0 {
		return VerdictInvalid
	}
	d.observations++

	if rtt < d.rttMin {
		d.rttMin = rtt
		d.rttThresh = rtt + rtt*time.Duration(d.markFraction)/markDenominator
	}

	if d.observations < d.warmup {
		return VerdictWarmingUp
	}
	if rtt > d.rttThresh {
		return VerdictCongested
	}
	return VerdictNotCongested
}

// MinRTT returns the lowest valid sample seen so far, or the starting
// sentinel if none has arrived yet.
func (d *RTTDetector) MinRTT() time.Duration {
	return d.rttMin
}

// Threshold returns the current marking threshold. It is zero until the
// first sample below the sentinel establishes a floor.
func (d *RTTDetector) Threshold() time.Duration {
	return d.rttThresh
}

// Observations returns the number of valid samples folded in so far.
func (d *RTTDetector) Observations() uint32 {
	return d.observations
}

// nearFloor reports whether a sample sits close enough to the floor RTT to
// be treated as an undisturbed-path measurement.
func (d *RTTDetector) nearFloor(rtt time.Duration) bool {
	return rtt <= d.rttMin+d.rttMin/8
}
