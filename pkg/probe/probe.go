package probe

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/irctrakz/relentless/pkg/cc"
	"github.com/irctrakz/relentless/pkg/logging"
)

const payloadSize = 56

// Prober measures round trips to a live target with ICMP echoes and runs
// them through the same delay detector the engine uses, so the report says
// what an engine on this path would conclude.
//
// The raw ICMP socket needs CAP_NET_RAW or root.
type Prober struct {
	target   string
	addr     *net.IPAddr
	interval time.Duration
	timeout  time.Duration
	count    int

	session *session
}

// Report summarizes one probe run.
type Report struct {
	// Target is the probed address.
	Target string

	// Sent and Received count echoes out and replies back.
	Sent     int
	Received int

	// MinRTT, AvgRTT and MaxRTT summarize the measured round trips.
	MinRTT time.Duration
	AvgRTT time.Duration
	MaxRTT time.Duration

	// Warmup, Clean and Congested count the detector's verdicts.
	Warmup    int
	Clean     int
	Congested int

	// Threshold is the detector's final marking threshold.
	Threshold time.Duration
}

// New resolves the target and prepares a prober. The detector is tuned
// with the engine config's mark fraction and warmup.
func New(target string, interval time.Duration, count int, cfg cc.Config) (*Prober, error) {
	if count <= 0 {
		return nil, fmt.Errorf("probe needs a positive echo count, got %d", count)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("probe needs a positive interval, got %v", interval)
	}
	addr, err := net.ResolveIPAddr("ip4", target)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", target, err)
	}

	return &Prober{
		target:   target,
		addr:     addr,
		interval: interval,
		timeout:  2 * time.Second,
		count:    count,
		session:  newSession(cfg.MarkFraction, cfg.WarmupSamples),
	}, nil
}

// Run sends the configured number of echoes, one per interval, and returns
// the accumulated report.
func (p *Prober) Run(ctx context.Context) (Report, error) {
	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return Report{}, fmt.Errorf("failed to open raw ICMP socket: %w", err)
	}
	defer conn.Close()

	id := os.Getpid() & 0xffff
	logging.Infof("probe: %s with %d echoes every %v", p.addr, p.count, p.interval)

	for seq := 1; seq <= p.count; seq++ {
		if err := ctx.Err(); err != nil {
			return p.session.report(p.target), err
		}

		req, err := echoRequest(id, seq)
		if err != nil {
			return p.session.report(p.target), err
		}
		sent := time.Now()
		if _, err := conn.WriteTo(req, p.addr); err != nil {
			return p.session.report(p.target), fmt.Errorf("failed to send echo: %w", err)
		}
		p.session.sent++

		if rtt, ok := p.awaitReply(conn, id, seq, sent); ok {
			obs := p.session.observe(rtt)
			logging.Infof("probe: reply from %s: seq=%d, rtt=%v, verdict=%s",
				p.addr, seq, rtt, obs.Verdict)
		} else {
			logging.Warnf("probe: no reply for seq=%d within %v", seq, p.timeout)
		}

		if seq < p.count {
			select {
			case <-ctx.Done():
				return p.session.report(p.target), ctx.Err()
			case <-time.After(p.interval):
			}
		}
	}

	return p.session.report(p.target), nil
}

// awaitReply reads until the matching echo reply arrives or the timeout
// passes. Unrelated ICMP traffic on the raw socket is skipped.
func (p *Prober) awaitReply(conn *icmp.PacketConn, id, seq int, sent time.Time) (time.Duration, bool) {
	buf := make([]byte, 1500)
	deadline := sent.Add(p.timeout)

	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return 0, false
		}
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			return 0, false
		}
		if gotSeq, ok := matchReply(buf[:n], id); ok && gotSeq == seq {
			return time.Since(sent), true
		}
	}
}

// echoRequest builds one ICMP echo request.
func echoRequest(id, seq int) ([]byte, error) {
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   id,
			Seq:  seq,
			Data: make([]byte, payloadSize),
		},
	}
	bts, err := msg.Marshal(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal echo: %w", err)
	}
	return bts, nil
}

// matchReply parses an incoming message and returns its sequence number if
// it is an echo reply belonging to this prober.
func matchReply(data []byte, id int) (int, bool) {
	msg, err := icmp.ParseMessage(ipv4.ICMPTypeEchoReply.Protocol(), data)
	if err != nil {
		return 0, false
	}
	if msg.Type != ipv4.ICMPTypeEchoReply {
		return 0, false
	}
	echo, ok := msg.Body.(*icmp.Echo)
	if !ok || echo.ID != id {
		return 0, false
	}
	return echo.Seq, true
}
