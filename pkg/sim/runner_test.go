package sim

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/irctrakz/relentless/pkg/cc"
)

func TestRunnerMarkingKeepsQueueShort(t *testing.T) {
	scenario := Scenario{
		Ticks: 200,
		Flows: []FlowConfig{
			{Name: "bulk", InitialCwnd: 10, MSS: 1460, ECN: true, DelayedAcks: true},
		},
		Path: PathConfig{BaseRTTUs: 100, Capacity: 10, QueueLimit: 40, MarkThreshold: 2},
	}
	r := NewRunner(scenario, cc.DefaultConfig(), 1)

	results, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected one flow result, got %d", len(results))
	}
	res := results[0]

	// Delay and mark control hold the window near capacity, so the queue
	// never builds anywhere near its limit.
	if res.Dropped != 0 {
		t.Errorf("Expected no drops under mark control, got %d", res.Dropped)
	}
	if res.Delivered < 1800 || res.Delivered > 2000 {
		t.Errorf("Expected delivery near capacity over 200 rounds, got %d packets", res.Delivered)
	}
	if res.FinalCwnd < 2 || res.FinalCwnd > 20 {
		t.Errorf("Expected the final window near capacity, got %d", res.FinalCwnd)
	}
	if res.MinRTT != 100*time.Microsecond {
		t.Errorf("Expected the minimum RTT at the base of 100us, got %v", res.MinRTT)
	}

	// Both congestion signals fired, and every mark flip under delayed
	// acks forced an immediate acknowledgment.
	if res.Metrics.Increases == 0 {
		t.Error("Expected clean rounds to grow the windows")
	}
	if res.Metrics.ECNDecreases == 0 {
		t.Error("Expected marks to shrink the ECN window")
	}
	if res.Metrics.RTTDecreases == 0 {
		t.Error("Expected queueing delay to shrink the RTT window")
	}
	if res.Metrics.ForcedAcks == 0 {
		t.Error("Expected mark flips to force acknowledgments")
	}
}

func TestRunnerRecoveryCompensation(t *testing.T) {
	scenario := Scenario{
		Ticks: 120,
		Flows: []FlowConfig{
			{Name: "lossy", InitialCwnd: 4, MSS: 1460},
		},
		Path: PathConfig{BaseRTTUs: 100, Capacity: 5, QueueLimit: 40, LossEveryN: 25},
	}
	r := NewRunner(scenario, cc.DefaultConfig(), 1)

	results, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	res := results[0]

	// Four forced losses, each followed by a clean round that completes
	// recovery.
	if res.Dropped != 4 {
		t.Errorf("Expected 4 forced losses, got %d", res.Dropped)
	}
	if res.Recoveries != 4 {
		t.Errorf("Expected 4 completed recoveries, got %d", res.Recoveries)
	}
	if res.Metrics.RecoveryExits != 4 {
		t.Errorf("Expected 4 recovery exits in the engine counters, got %d", res.Metrics.RecoveryExits)
	}

	// Losses do not collapse the window: it stays pinned near the path's
	// capacity of 5.
	if res.FinalCwnd < 4 || res.FinalCwnd > 7 {
		t.Errorf("Expected the final window near capacity, got %d", res.FinalCwnd)
	}
	if res.Delivered < 500 || res.Delivered > 600 {
		t.Errorf("Expected delivery near capacity over 120 rounds, got %d packets", res.Delivered)
	}
}

func TestRunnerSamplesAndCallback(t *testing.T) {
	scenario := Scenario{
		Ticks: 20,
		Flows: []FlowConfig{
			{Name: "a", InitialCwnd: 10, MSS: 1460},
			{Name: "b", InitialCwnd: 10, MSS: 1460},
		},
		Path: PathConfig{BaseRTTUs: 100, Capacity: 10, QueueLimit: 40},
	}
	r := NewRunner(scenario, cc.DefaultConfig(), 1)

	var calls int64
	r.OnSample(func(Sample) { atomic.AddInt64(&calls, 1) })

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := atomic.LoadInt64(&calls); got != 40 {
		t.Errorf("Expected the callback for every round of every flow (40), got %d", got)
	}

	latest := r.Latest()
	if len(latest) != 2 {
		t.Fatalf("Expected a latest sample per flow, got %d", len(latest))
	}
	if latest[0].Flow != "a" || latest[1].Flow != "b" {
		t.Errorf("Expected samples ordered by flow name, got %s, %s", latest[0].Flow, latest[1].Flow)
	}
	if latest[0].Tick != 19 {
		t.Errorf("Expected the last round's sample, got tick %d", latest[0].Tick)
	}
}

func TestRunnerCancelledContext(t *testing.T) {
	scenario := Scenario{
		Ticks: 1000,
		Flows: []FlowConfig{{Name: "a", InitialCwnd: 10, MSS: 1460}},
		Path:  PathConfig{BaseRTTUs: 100, Capacity: 10, QueueLimit: 40},
	}
	r := NewRunner(scenario, cc.DefaultConfig(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Run(ctx); err == nil {
		t.Error("Expected a cancelled run to fail")
	}
}

func TestRunnerRejectsInvalidScenario(t *testing.T) {
	r := NewRunner(Scenario{}, cc.DefaultConfig(), 0)

	if _, err := r.Run(context.Background()); err == nil {
		t.Error("Expected an empty scenario to be rejected")
	}
}
