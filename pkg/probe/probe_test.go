package probe

import (
	"testing"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/irctrakz/relentless/pkg/cc"
)

func TestSessionVerdictCounts(t *testing.T) {
	s := newSession(174, 3)
	s.sent = 4

	// Two warmup replies, then a clean and a congested one.
	for i := 0; i < 2; i++ {
		if obs := s.observe(100 * time.Microsecond); obs.Verdict != cc.VerdictWarmingUp {
			t.Errorf("Expected reply %d to be warming up, got %s", i+1, obs.Verdict)
		}
	}
	if obs := s.observe(100 * time.Microsecond); obs.Verdict != cc.VerdictNotCongested {
		t.Errorf("Expected a clean verdict at the base RTT, got %s", obs.Verdict)
	}
	if obs := s.observe(200 * time.Microsecond); obs.Verdict != cc.VerdictCongested {
		t.Errorf("Expected a congested verdict past the threshold, got %s", obs.Verdict)
	}

	r := s.report("192.0.2.1")
	if r.Sent != 4 || r.Received != 4 {
		t.Errorf("Expected 4 sent and 4 received, got %d/%d", r.Sent, r.Received)
	}
	if r.Warmup != 2 || r.Clean != 1 || r.Congested != 1 {
		t.Errorf("Expected verdict counts 2/1/1, got %d/%d/%d", r.Warmup, r.Clean, r.Congested)
	}
	if r.MinRTT != 100*time.Microsecond {
		t.Errorf("Expected min RTT of 100us, got %v", r.MinRTT)
	}
	if r.MaxRTT != 200*time.Microsecond {
		t.Errorf("Expected max RTT of 200us, got %v", r.MaxRTT)
	}
	if r.AvgRTT != 125*time.Microsecond {
		t.Errorf("Expected average RTT of 125us, got %v", r.AvgRTT)
	}
}

func TestSessionEmptyReport(t *testing.T) {
	s := newSession(174, 10)
	s.sent = 3

	r := s.report("192.0.2.1")

	if r.Received != 0 {
		t.Errorf("Expected no replies, got %d", r.Received)
	}
	if r.AvgRTT != 0 {
		t.Errorf("Expected no average without replies, got %v", r.AvgRTT)
	}
}

func TestEchoRequestShape(t *testing.T) {
	req, err := echoRequest(7, 3)
	if err != nil {
		t.Fatalf("Failed to build echo request: %v", err)
	}

	msg, err := icmp.ParseMessage(ipv4.ICMPTypeEcho.Protocol(), req)
	if err != nil {
		t.Fatalf("Failed to parse the request back: %v", err)
	}
	if msg.Type != ipv4.ICMPTypeEcho {
		t.Errorf("Expected an echo request, got %v", msg.Type)
	}
	echo, ok := msg.Body.(*icmp.Echo)
	if !ok {
		t.Fatal("Expected an echo body")
	}
	if echo.ID != 7 || echo.Seq != 3 {
		t.Errorf("Expected id=7 seq=3, got id=%d seq=%d", echo.ID, echo.Seq)
	}

	// A request never matches as a reply.
	if _, ok := matchReply(req, 7); ok {
		t.Error("Expected a request not to match as a reply")
	}
}

func TestMatchReply(t *testing.T) {
	reply := icmp.Message{
		Type: ipv4.ICMPTypeEchoReply,
		Code: 0,
		Body: &icmp.Echo{ID: 7, Seq: 5, Data: make([]byte, payloadSize)},
	}
	bts, err := reply.Marshal(nil)
	if err != nil {
		t.Fatalf("Failed to marshal reply: %v", err)
	}

	seq, ok := matchReply(bts, 7)
	if !ok {
		t.Fatal("Expected the reply to match")
	}
	if seq != 5 {
		t.Errorf("Expected seq 5, got %d", seq)
	}

	// A different prober's ID does not match.
	if _, ok := matchReply(bts, 8); ok {
		t.Error("Expected a foreign id to be rejected")
	}

	// Truncated data does not match.
	if _, ok := matchReply(bts[:4], 7); ok {
		t.Error("Expected truncated data to be rejected")
	}
}
