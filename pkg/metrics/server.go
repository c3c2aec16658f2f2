package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/irctrakz/relentless/pkg/logging"
)

// Server exposes the Prometheus registry, a health endpoint and optional
// pprof handlers over one HTTP listener. Extra handlers can be mounted on
// the same listener before Start.
type Server struct {
	listen      string
	metricsPath string
	enablePprof bool

	registry *prometheus.Registry
	extra    map[string]http.Handler

	httpServer *http.Server
	started    time.Time
}

// HealthStatus is the health endpoint's response body.
type HealthStatus struct {
	Status    string        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    time.Duration `json:"uptime"`
}

// NewServer builds a server with its own registry, so nothing leaks into
// the global one, and registers the Go and process collectors on it.
func NewServer(listen, metricsPath string, enablePprof bool) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Server{
		listen:      listen,
		metricsPath: metricsPath,
		enablePprof: enablePprof,
		registry:    registry,
		extra:       make(map[string]http.Handler),
	}
}

// Registry returns the server's registry for registering collectors.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Handle mounts an extra handler on the server's listener. Must be called
// before Start.
func (s *Server) Handle(path string, h http.Handler) {
	s.extra[path] = h
}

// Start begins serving in the background.
func (s *Server) Start() {
	s.started = time.Now()
	s.httpServer = &http.Server{
		Addr:         s.listen,
		Handler:      s.handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logging.Infof("metrics: serving on %s%s", s.listen, s.metricsPath)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Errorf("metrics: server error: %v", err)
		}
	}()
}

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle(s.metricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          s.registry,
	}))
	mux.HandleFunc("/health", s.handleHealth)

	if s.enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	for path, h := range s.extra {
		mux.Handle(path, h)
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(s.started),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// Stop shuts the listener down, waiting up to five seconds for in-flight
// requests.
func (s *Server) Stop() {
	if s.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.httpServer.Shutdown(ctx)
}
