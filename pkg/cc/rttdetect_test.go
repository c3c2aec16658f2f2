package cc

import (
	"testing"
	"time"
)

// TestDetectorWarmupBoundary tests that judging starts exactly when the
// warm-up count is reached.
func TestDetectorWarmupBoundary(t *testing.T) {
	d := NewRTTDetector(174, 3)

	if v := d.Observe(100 * time.Microsecond); v != VerdictWarmingUp {
		t.Errorf("Expected sample 1 to be warming-up, got %s", v)
	}
	if v := d.Observe(100 * time.Microsecond); v != VerdictWarmingUp {
		t.Errorf("Expected sample 2 to be warming-up, got %s", v)
	}
	if v := d.Observe(100 * time.Microsecond); v != VerdictNotCongested {
		t.Errorf("Expected sample 3 to be judged, got %s", v)
	}
}

// TestDetectorThresholdValue tests the threshold arithmetic at the default
// marking fraction.
func TestDetectorThresholdValue(t *testing.T) {
	d := NewRTTDetector(174, 1)

	d.Observe(100 * time.Microsecond)

	// 100000ns + 100000*174/1024 = 116992ns.
	if got := d.Threshold(); got != 116992*time.Nanosecond {
		t.Errorf("Expected threshold 116992ns, got %v", got)
	}
	if got := d.MinRTT(); got != 100*time.Microsecond {
		t.Errorf("Expected floor 100us, got %v", got)
	}
}

// TestDetectorMinimumOnlyDecreases tests that the floor is monotonic and the
// threshold is recomputed only on new minima.
func TestDetectorMinimumOnlyDecreases(t *testing.T) {
	d := NewRTTDetector(174, 1)

	d.Observe(100 * time.Microsecond)
	d.Observe(90 * time.Microsecond)

	if got := d.MinRTT(); got != 90*time.Microsecond {
		t.Errorf("Expected floor 90us, got %v", got)
	}
	want := 90*time.Microsecond + 90*time.Microsecond*174/1024
	if got := d.Threshold(); got != want {
		t.Errorf("Expected threshold %v, got %v", want, got)
	}

	// A later sample above the floor must not move either value.
	d.Observe(95 * time.Microsecond)
	if got := d.MinRTT(); got != 90*time.Microsecond {
		t.Errorf("Expected floor to stay at 90us, got %v", got)
	}
	if got := d.Threshold(); got != want {
		t.Errorf("Expected threshold to stay at %v, got %v", want, got)
	}
}

// TestDetectorVerdicts tests classification on both sides of the threshold.
func TestDetectorVerdicts(t *testing.T) {
	d := NewRTTDetector(174, 1)

	if v := d.Observe(100 * time.Microsecond); v != VerdictNotCongested {
		t.Errorf("Expected the floor-setting sample to be clean, got %s", v)
	}
	if v := d.Observe(110 * time.Microsecond); v != VerdictNotCongested {
		t.Errorf("Expected 110us under the 116.992us threshold to be clean, got %s", v)
	}
	if v := d.Observe(150 * time.Microsecond); v != VerdictCongested {
		t.Errorf("Expected 150us above the threshold to be congested, got %s", v)
	}
}

// TestDetectorInvalidSamples tests that non-positive samples change nothing.
func TestDetectorInvalidSamples(t *testing.T) {
	d := NewRTTDetector(174, 1)

	if v := d.Observe(0); v != VerdictInvalid {
		t.Errorf("Expected zero sample to be invalid, got %s", v)
	}
	if v := d.Observe(-5 * time.Millisecond); v != VerdictInvalid {
		t.Errorf("Expected negative sample to be invalid, got %s", v)
	}
	if got := d.Observations(); got != 0 {
		t.Errorf("Expected 0 observations, got %d", got)
	}
	if got := d.MinRTT(); got != rttMinSentinel {
		t.Errorf("Expected floor still at the sentinel, got %v", got)
	}
}

// TestDetectorNearFloor tests the undisturbed-path tolerance band.
func TestDetectorNearFloor(t *testing.T) {
	d := NewRTTDetector(174, 1)
	d.Observe(100 * time.Microsecond)

	if !d.nearFloor(100 * time.Microsecond) {
		t.Errorf("Expected the floor itself to be near the floor")
	}
	if !d.nearFloor(112 * time.Microsecond) {
		t.Errorf("Expected 112us inside the eighth-of-floor band")
	}
	if d.nearFloor(113 * time.Microsecond) {
		t.Errorf("Expected 113us outside the eighth-of-floor band")
	}
}
