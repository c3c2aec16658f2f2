package core

// EngineMetrics contains counters for one congestion controller's decisions.
// Controllers update it inline on their event path; callers read it through
// a snapshot copy.
type EngineMetrics struct {
	// RTTSamples is the number of valid round-trip-time samples observed.
	RTTSamples uint64

	// InvalidSamples is the number of non-positive samples discarded.
	InvalidSamples uint64

	// Increases is the number of window increase decisions.
	Increases uint64

	// RTTDecreases is the number of delay-triggered window decreases.
	RTTDecreases uint64

	// ECNDecreases is the number of mark-triggered window decreases.
	ECNDecreases uint64

	// GatedBackoffs is the number of congestion signals suppressed by the
	// deadline gate.
	GatedBackoffs uint64

	// ForcedAcks is the number of acknowledgments forced out to keep a
	// congestion-mark transition visible.
	ForcedAcks uint64

	// RecoveryExits is the number of loss-recovery episodes the controller
	// compensated for.
	RecoveryExits uint64
}
