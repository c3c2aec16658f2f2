package cc

import (
	"fmt"
	"math/rand"
	"time"
)

// DetectMode selects which congestion signals drive the effective window.
type DetectMode int

const (
	// DetectRTT uses only the delay-derived window.
	DetectRTT DetectMode = iota

	// DetectECN uses only the mark-derived window.
	DetectECN

	// DetectBoth reports the smaller of the two windows, so whichever
	// signal fires first caps the rate.
	DetectBoth
)

// String returns a human-readable name for the detect mode.
func (m DetectMode) String() string {
	switch m {
	case DetectRTT:
		return "rtt"
	case DetectECN:
		return "ecn"
	case DetectBoth:
		return "both"
	default:
		return "unknown"
	}
}

// PriorityClass labels a connection for deadline-aware backoff gating.
// Values are host-defined; the engine only uses them as keys into
// Config.Classes.
type PriorityClass uint8

// ClassSpec is the per-period transfer grant for one priority class.
type ClassSpec struct {
	// Quota is the packet budget granted each period. When zero, the
	// budget is derived from Utilization and the connection's observed
	// peak rate instead.
	Quota uint32

	// Period is the accounting period the budget must be spent within.
	Period time.Duration

	// Utilization is the fraction of the connection's peak rate granted
	// per period when Quota is zero. Must be in [0, 1].
	Utilization float64
}

// RandSource supplies the uniform draws consumed by backoff gating.
// Inject a fixed-seed source to make gated runs reproducible.
type RandSource interface {
	// Uint32n returns a uniform value in [0, n). n must be positive.
	Uint32n(n uint32) uint32
}

type mathRandSource struct {
	r *rand.Rand
}

func (s mathRandSource) Uint32n(n uint32) uint32 {
	return uint32(s.r.Int31n(int32(n)))
}

// NewRandSource returns a RandSource backed by math/rand with the given
// seed.
func NewRandSource(seed int64) RandSource {
	return mathRandSource{r: rand.New(rand.NewSource(seed))}
}

// Config carries one engine's tuning. It is copied at construction and
// never read from shared state afterwards, so two engines never influence
// each other through configuration.
type Config struct {
	// MarkFraction is the queueing-delay budget as a numerator over 1024:
	// RTT samples above rtt_min + rtt_min*MarkFraction/1024 count as
	// congestion marks.
	MarkFraction uint32

	// WarmupSamples is the number of valid RTT samples required before the
	// detector may report congestion.
	WarmupSamples uint32

	// Detect selects the signal or signals composing the effective window.
	Detect DetectMode

	// DeadlineAware enables priority/deadline gating of backoff decisions.
	DeadlineAware bool

	// Class is the connection's priority class, looked up in Classes.
	// A class with no entry leaves backoff ungated.
	Class PriorityClass

	// Classes maps priority classes to their per-period grants.
	Classes map[PriorityClass]ClassSpec

	// Debug enables per-decision debug logging for this connection.
	Debug bool

	// Clock supplies the time base for deadline accounting. Defaults to
	// time.Now.
	Clock func() time.Time

	// Rand supplies uniform draws for backoff gating. Defaults to a
	// source seeded from the wall clock.
	Rand RandSource
}

// DefaultConfig returns the standard engine tuning: a 17% queueing-delay
// budget, ten warm-up samples, and both congestion signals armed.
func DefaultConfig() Config {
	return Config{
		MarkFraction:  174,
		WarmupSamples: 10,
		Detect:        DetectBoth,
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c Config) Validate() error {
	switch c.Detect {
	case DetectRTT, DetectECN, DetectBoth:
	default:
		return fmt.Errorf("invalid detect mode: %d", c.Detect)
	}
	for class, spec := range c.Classes {
		if spec.Utilization < 0 || spec.Utilization > 1 {
			return fmt.Errorf("class %d: utilization %v outside [0, 1]", class, spec.Utilization)
		}
		if c.DeadlineAware && spec.Period <= 0 {
			return fmt.Errorf("class %d: non-positive period %v", class, spec.Period)
		}
	}
	return nil
}

// withDefaults fills in the injectable collaborators left unset.
func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Rand == nil {
		c.Rand = NewRandSource(time.Now().UnixNano())
	}
	return c
}
