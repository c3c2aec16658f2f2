package trace

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/irctrakz/relentless/pkg/logging"
	"github.com/irctrakz/relentless/pkg/sim"
)

// Streamer fans engine samples out to websocket subscribers as JSON, one
// message per sample. A subscriber that cannot keep up loses samples
// rather than stalling the publisher.
type Streamer struct {
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	conn *websocket.Conn
	out  chan sim.Sample
}

// NewStreamer returns a streamer ready to mount as an HTTP handler.
func NewStreamer() *Streamer {
	return &Streamer{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subs: make(map[*subscriber]struct{}),
	}
}

// ServeHTTP upgrades the request and streams samples until the client goes
// away.
func (s *Streamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Debugf("trace: upgrade failed: %v", err)
		return
	}

	sub := &subscriber{conn: conn, out: make(chan sim.Sample, 256)}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	n := len(s.subs)
	s.mu.Unlock()
	logging.Infof("trace: subscriber connected from %s (%d active)", conn.RemoteAddr(), n)

	go s.writeLoop(sub)

	// Drain the client side until it closes. Incoming frames carry
	// nothing, the stream is one way.
	defer s.drop(sub)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Streamer) writeLoop(sub *subscriber) {
	for smp := range sub.out {
		if err := sub.conn.WriteJSON(smp); err != nil {
			sub.conn.Close()
			return
		}
	}
}

// Publish sends the sample to every subscriber. Safe for concurrent use,
// so it can be handed straight to the runner's sample callback.
func (s *Streamer) Publish(smp sim.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sub := range s.subs {
		select {
		case sub.out <- smp:
		default:
		}
	}
}

// Subscribers returns the number of connected clients.
func (s *Streamer) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close disconnects every subscriber.
func (s *Streamer) Close() {
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		s.drop(sub)
	}
}

// drop removes the subscriber exactly once, ending its write loop.
func (s *Streamer) drop(sub *subscriber) {
	s.mu.Lock()
	if _, ok := s.subs[sub]; ok {
		delete(s.subs, sub)
		close(sub.out)
	}
	s.mu.Unlock()
	sub.conn.Close()
}
