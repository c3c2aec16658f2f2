package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/sync/errgroup"

	"github.com/irctrakz/relentless/pkg/config"
	"github.com/irctrakz/relentless/pkg/logging"
	"github.com/irctrakz/relentless/pkg/metrics"
	"github.com/irctrakz/relentless/pkg/probe"
	"github.com/irctrakz/relentless/pkg/sim"
	"github.com/irctrakz/relentless/pkg/trace"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML or JSON config file")
	probeTarget := flag.String("probe", "", "ICMP-probe a live target instead of running the scenario")
	probeCount := flag.Int("probe-count", 20, "echoes to send in probe mode")
	probeInterval := flag.Duration("probe-interval", 200*time.Millisecond, "delay between echoes in probe mode")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		if err := config.LoadFromFile(*configPath, cfg); err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	config.LoadFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.ApplyLogging(); err != nil {
		log.Fatalf("logging: %v", err)
	}

	// DEBUG env raises the level past whatever the config asked for.
	dval := strings.ToLower(strings.TrimSpace(os.Getenv("DEBUG")))
	if dval == "1" || dval == "true" || dval == "yes" || dval == "on" {
		logging.SetLevel(logging.DebugLevel)
	}
	cfg.ApplyDebugFlows()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigc := make(chan os.Signal, 2)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		logging.Infof("signal received, shutting down")
		cancel()
	}()

	if *probeTarget != "" {
		runProbe(ctx, cfg, *probeTarget, *probeCount, *probeInterval)
		return
	}
	runScenario(ctx, cfg)
}

func runScenario(ctx context.Context, cfg *config.Config) {
	runner := sim.NewRunner(cfg.Scenario, cfg.BuildEngine(), cfg.Engine.Seed)

	var (
		server     *metrics.Server
		collectors *metrics.EngineCollectors
		streamer   *trace.Streamer
	)
	if cfg.Metrics.Enabled || cfg.Trace.Enabled {
		server = metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path, cfg.Metrics.Pprof)
	}
	if cfg.Metrics.Enabled {
		collectors = metrics.NewEngineCollectors(server.Registry())
	}
	if cfg.Trace.Enabled {
		streamer = trace.NewStreamer()
		server.Handle(cfg.Trace.Path, streamer)
	}
	if collectors != nil || streamer != nil {
		runner.OnSample(func(s sim.Sample) {
			if collectors != nil {
				collectors.Observe(s)
			}
			if streamer != nil {
				streamer.Publish(s)
			}
		})
	}
	if server != nil {
		server.Start()
		defer server.Stop()
	}
	if streamer != nil {
		defer streamer.Close()
	}

	// The reporter lives exactly as long as the run: stop fires once the
	// scenario goroutine returns, which unwinds the reporter through gctx.
	rctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(rctx)

	var results []sim.FlowResult
	g.Go(func() error {
		defer stop()
		var err error
		results, err = runner.Run(gctx)
		return err
	})
	g.Go(func() error {
		runReporter(gctx, runner)
		return nil
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			logging.Warnf("run interrupted: %v", err)
			return
		}
		log.Fatalf("run: %v", err)
	}
	printSummary(results)
}

func printSummary(results []sim.FlowResult) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{
		"Flow", "Ticks", "Delivered", "Dropped", "Recoveries", "Final Cwnd",
		"RTT Min/Avg/Max", "Backoffs RTT/ECN", "Gated", "Forced Acks",
	})
	for _, r := range results {
		table.Append([]string{
			r.Flow,
			strconv.Itoa(r.Ticks),
			strconv.FormatUint(r.Delivered, 10),
			strconv.FormatUint(r.Dropped, 10),
			strconv.FormatUint(r.Recoveries, 10),
			strconv.FormatUint(uint64(r.FinalCwnd), 10),
			fmt.Sprintf("%v/%v/%v", r.MinRTT, r.AvgRTT, r.MaxRTT),
			fmt.Sprintf("%d/%d", r.Metrics.RTTDecreases, r.Metrics.ECNDecreases),
			strconv.FormatUint(r.Metrics.GatedBackoffs, 10),
			strconv.FormatUint(r.Metrics.ForcedAcks, 10),
		})
	}
	table.Render()
}

func runProbe(ctx context.Context, cfg *config.Config, target string, count int, interval time.Duration) {
	p, err := probe.New(target, interval, count, cfg.BuildEngine())
	if err != nil {
		log.Fatalf("probe: %v", err)
	}

	report, err := p.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("probe: %v", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{
		"Target", "Sent", "Received", "RTT Min/Avg/Max", "Warmup", "Clean", "Congested", "Threshold",
	})
	table.Append([]string{
		report.Target,
		strconv.Itoa(report.Sent),
		strconv.Itoa(report.Received),
		fmt.Sprintf("%v/%v/%v", report.MinRTT, report.AvgRTT, report.MaxRTT),
		strconv.Itoa(report.Warmup),
		strconv.Itoa(report.Clean),
		strconv.Itoa(report.Congested),
		report.Threshold.String(),
	})
	table.Render()

	if report.Received > 0 {
		logging.Infof("probe: measured floor %v, set scenario base_rtt_us=%d to mirror this path",
			report.MinRTT, report.MinRTT.Microseconds())
	}
}
