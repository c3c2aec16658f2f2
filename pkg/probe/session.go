package probe

import (
	"time"

	"github.com/irctrakz/relentless/pkg/cc"
)

// session folds echo replies into the detector and the running statistics.
// It never touches the socket, so the accounting is testable on its own.
type session struct {
	detector *cc.RTTDetector

	sent     int
	received int

	rttSum time.Duration
	minRTT time.Duration
	maxRTT time.Duration

	warmup    int
	clean     int
	congested int
}

// observation is the detector's view of one reply.
type observation struct {
	Verdict   cc.Verdict
	MinRTT    time.Duration
	Threshold time.Duration
}

func newSession(markFraction, warmupSamples uint32) *session {
	return &session{detector: cc.NewRTTDetector(markFraction, warmupSamples)}
}

func (s *session) observe(rtt time.Duration) observation {
	s.received++
	s.rttSum += rtt
	if s.minRTT == 0 || rtt < s.minRTT {
		s.minRTT = rtt
	}
	if rtt > s.maxRTT {
		s.maxRTT = rtt
	}

	v := s.detector.Observe(rtt)
	switch v {
	case cc.VerdictWarmingUp:
		s.warmup++
	case cc.VerdictNotCongested:
		s.clean++
	case cc.VerdictCongested:
		s.congested++
	}

	return observation{
		Verdict:   v,
		MinRTT:    s.detector.MinRTT(),
		Threshold: s.detector.Threshold(),
	}
}

func (s *session) report(target string) Report {
	r := Report{
		Target:    target,
		Sent:      s.sent,
		Received:  s.received,
		MinRTT:    s.minRTT,
		MaxRTT:    s.maxRTT,
		Warmup:    s.warmup,
		Clean:     s.clean,
		Congested: s.congested,
		Threshold: s.detector.Threshold(),
	}
	if s.received > 0 {
		r.AvgRTT = s.rttSum / time.Duration(s.received)
	}
	return r
}
