package sim

import (
	"fmt"
	"time"
)

// Scenario describes one simulated run: a set of flows, the path they run
// over, and how many acknowledgment rounds to simulate.
type Scenario struct {
	// Ticks is the number of acknowledgment rounds to run per flow.
	Ticks int `json:"ticks" yaml:"ticks"`

	// PaceUs slows the run to one round per this many microseconds of
	// wall time, so live metrics and traces can be watched. Zero runs
	// flat out.
	PaceUs int64 `json:"pace_us" yaml:"paceUs"`

	// Flows are the simulated connections. Each flow runs over its own
	// instance of the path.
	Flows []FlowConfig `json:"flows" yaml:"flows"`

	// Path is the bottleneck model shared by all flows' instances.
	Path PathConfig `json:"path" yaml:"path"`
}

// FlowConfig describes one simulated connection.
type FlowConfig struct {
	// Name identifies the flow in logs, metrics and results.
	Name string `json:"name" yaml:"name"`

	// Class is the flow's priority class for deadline-aware gating.
	Class uint8 `json:"class" yaml:"class"`

	// InitialCwnd is the congestion window the flow starts with, in
	// packets.
	InitialCwnd uint32 `json:"initial_cwnd" yaml:"initialCwnd"`

	// MSS is the flow's segment size in bytes.
	MSS uint32 `json:"mss" yaml:"mss"`

	// ECN enables congestion-experienced marking for the flow.
	ECN bool `json:"ecn" yaml:"ecn"`

	// DelayedAcks simulates the receiver's delayed-acknowledgment
	// scheduler, which is what makes forced acknowledgments on mark flips
	// observable.
	DelayedAcks bool `json:"delayed_acks" yaml:"delayedAcks"`

	// Debug enables per-decision engine logging for this flow only.
	Debug bool `json:"debug" yaml:"debug"`
}

// PathConfig is a single-bottleneck path model.
type PathConfig struct {
	// BaseRTTUs is the propagation round-trip time in microseconds, with
	// no queueing.
	BaseRTTUs int64 `json:"base_rtt_us" yaml:"baseRTTUs"`

	// Capacity is the number of packets the bottleneck drains per base
	// round trip. In-flight packets beyond it sit in the queue.
	Capacity uint32 `json:"capacity" yaml:"capacity"`

	// QueueLimit is the queue depth in packets beyond which arrivals are
	// dropped.
	QueueLimit uint32 `json:"queue_limit" yaml:"queueLimit"`

	// MarkThreshold is the queue depth at which the bottleneck starts
	// setting the congestion-experienced mark.
	MarkThreshold uint32 `json:"mark_threshold" yaml:"markThreshold"`

	// LossEveryN forces a single packet loss every N rounds when positive.
	// Zero disables forced loss.
	LossEveryN uint32 `json:"loss_every_n" yaml:"lossEveryN"`
}

// BaseRTT returns the propagation delay as a duration.
func (p PathConfig) BaseRTT() time.Duration {
	return time.Duration(p.BaseRTTUs) * time.Microsecond
}

// Validate checks the scenario for values the runner cannot work with.
func (s *Scenario) Validate() error {
	if s.Ticks <= 0 {
		return fmt.Errorf("scenario needs a positive tick count, got %d", s.Ticks)
	}
	if len(s.Flows) == 0 {
		return fmt.Errorf("scenario needs at least one flow")
	}
	for i, f := range s.Flows {
		if f.Name == "" {
			return fmt.Errorf("flow %d needs a name", i)
		}
		if f.MSS == 0 {
			return fmt.Errorf("flow %s: MSS cannot be zero", f.Name)
		}
		if f.InitialCwnd == 0 {
			return fmt.Errorf("flow %s: initial window cannot be zero", f.Name)
		}
	}
	if s.Path.BaseRTTUs <= 0 {
		return fmt.Errorf("path needs a positive base RTT, got %dus", s.Path.BaseRTTUs)
	}
	if s.Path.Capacity == 0 {
		return fmt.Errorf("path capacity cannot be zero")
	}
	return nil
}
