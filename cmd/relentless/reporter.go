package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/irctrakz/relentless/pkg/logging"
	"github.com/irctrakz/relentless/pkg/sim"
)

// runReporter logs one status line per flow on a fixed interval while the
// scenario runs. Only worth watching on a paced run; an unpaced scenario
// finishes before the first tick. REPORT_INTERVAL overrides the default.
func runReporter(ctx context.Context, runner *sim.Runner) {
	d := 5 * time.Second
	if iv := strings.TrimSpace(os.Getenv("REPORT_INTERVAL")); iv != "" {
		if parsed, err := time.ParseDuration(iv); err == nil && parsed > 0 {
			d = parsed
		}
	}

	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dumpStatus(runner)
		}
	}
}

func dumpStatus(runner *sim.Runner) {
	for _, s := range runner.Latest() {
		logging.Infof("status: flow=%s tick=%d cwnd=%d rtt=%dus queue=%d ce=%v delivered=%d backoffs=%d/%d forced_acks=%d",
			s.Flow, s.Tick, s.Cwnd, s.RTTUs, s.Queue, s.CE, s.Delivered,
			s.Metrics.RTTDecreases, s.Metrics.ECNDecreases, s.Metrics.ForcedAcks)
	}
}
