// Package config provides configuration handling for the relentless
// congestion-control engine and its scenario driver.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/irctrakz/relentless/pkg/cc"
	"github.com/irctrakz/relentless/pkg/logging"
	"github.com/irctrakz/relentless/pkg/sim"
	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration.
type Config struct {
	// Engine contains the congestion engine tuning.
	Engine EngineConfig `json:"engine" yaml:"engine"`

	// Scenario contains the simulated run driven by the scenario command.
	Scenario sim.Scenario `json:"scenario" yaml:"scenario"`

	// Metrics contains the Prometheus endpoint configuration.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// Trace contains the live decision-trace streaming configuration.
	Trace TraceConfig `json:"trace" yaml:"trace"`

	// Logging contains the logging configuration.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// EngineConfig contains tuning for the congestion engine.
type EngineConfig struct {
	// MarkFraction is the queueing-delay budget as a numerator over 1024.
	MarkFraction uint32 `json:"mark_fraction" yaml:"markFraction"`

	// WarmupSamples is the number of RTT samples required before the
	// detector may report congestion.
	WarmupSamples uint32 `json:"warmup_samples" yaml:"warmupSamples"`

	// Detect selects the congestion signal: 0 delay only, 1 marks only,
	// 2 the minimum of both.
	Detect int `json:"detect" yaml:"detect"`

	// DeadlineAware enables priority/deadline gating of backoffs.
	DeadlineAware bool `json:"deadline_aware" yaml:"deadlineAware"`

	// Classes maps priority classes to their per-period grants.
	Classes map[uint8]ClassConfig `json:"classes" yaml:"classes"`

	// Seed seeds the gating draws for reproducible runs. Zero uses the
	// wall clock.
	Seed int64 `json:"seed" yaml:"seed"`

	// DebugFlows lists flow names that get per-decision trace logging,
	// so one flow can be watched without drowning the log.
	DebugFlows []string `json:"debug_flows" yaml:"debugFlows"`
}

// ClassConfig contains the per-period grant for one priority class.
type ClassConfig struct {
	// Quota is the packet budget per period. Zero derives the budget from
	// Utilization and the observed peak rate.
	Quota uint32 `json:"quota" yaml:"quota"`

	// PeriodMs is the accounting period in milliseconds.
	PeriodMs int `json:"period_ms" yaml:"periodMs"`

	// Utilization is the fraction of the peak rate granted when Quota is
	// zero.
	Utilization float64 `json:"utilization" yaml:"utilization"`
}

// MetricsConfig contains configuration for the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled turns the metrics HTTP server on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Listen is the address the metrics server binds to.
	Listen string `json:"listen" yaml:"listen"`

	// Path is the URL path metrics are exposed on.
	Path string `json:"path" yaml:"path"`

	// Pprof exposes the runtime profiler under /debug/pprof.
	Pprof bool `json:"pprof" yaml:"pprof"`
}

// TraceConfig contains configuration for live decision-trace streaming.
type TraceConfig struct {
	// Enabled turns the websocket trace stream on. It shares the metrics
	// listener.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Path is the URL path the websocket is served on.
	Path string `json:"path" yaml:"path"`
}

// LoggingConfig contains configuration for logging.
type LoggingConfig struct {
	// Level is the logging level (trace, debug, info, warn, error).
	Level string `json:"level" yaml:"level"`

	// File is the log file path.
	File string `json:"file" yaml:"file"`

	// MaxSize is the maximum size of the log file in megabytes.
	MaxSize int `json:"maxSize" yaml:"maxSize"`

	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int `json:"maxBackups" yaml:"maxBackups"`

	// MaxAge is the maximum number of days to retain old log files.
	MaxAge int `json:"maxAge" yaml:"maxAge"`
}

// DefaultConfig returns the default configuration: default engine tuning,
// a single bulk flow over a shallow-buffered path, metrics and tracing off.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			MarkFraction:  174,
			WarmupSamples: 10,
			Detect:        int(cc.DetectBoth),
			Classes:       map[uint8]ClassConfig{},
		},
		Scenario: sim.Scenario{
			Ticks: 400,
			Flows: []sim.FlowConfig{
				{
					Name:        "bulk",
					InitialCwnd: 10,
					MSS:         1460,
					ECN:         true,
					DelayedAcks: true,
				},
			},
			Path: sim.PathConfig{
				BaseRTTUs:     100,
				Capacity:      10,
				QueueLimit:    40,
				MarkThreshold: 7,
			},
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  ":9121",
			Path:    "/metrics",
		},
		Trace: TraceConfig{
			Enabled: false,
			Path:    "/trace",
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// BuildEngine converts the engine section into a runtime engine
// configuration. Per-flow fields (class, debug) are filled in by the
// caller.
func (c *Config) BuildEngine() cc.Config {
	ec := cc.DefaultConfig()
	ec.MarkFraction = c.Engine.MarkFraction
	ec.WarmupSamples = c.Engine.WarmupSamples
	ec.Detect = cc.DetectMode(c.Engine.Detect)
	ec.DeadlineAware = c.Engine.DeadlineAware
	if len(c.Engine.Classes) > 0 {
		ec.Classes = make(map[cc.PriorityClass]cc.ClassSpec, len(c.Engine.Classes))
		for class, spec := range c.Engine.Classes {
			ec.Classes[cc.PriorityClass(class)] = cc.ClassSpec{
				Quota:       spec.Quota,
				Period:      time.Duration(spec.PeriodMs) * time.Millisecond,
				Utilization: spec.Utilization,
			}
		}
	}
	if c.Engine.Seed != 0 {
		ec.Rand = cc.NewRandSource(c.Engine.Seed)
	}
	return ec
}

// ApplyDebugFlows marks the scenario flows named in Engine.DebugFlows for
// per-decision trace logging. Unknown names are reported so a typo does
// not silently trace nothing.
func (c *Config) ApplyDebugFlows() {
	for _, name := range c.Engine.DebugFlows {
		found := false
		for i := range c.Scenario.Flows {
			if c.Scenario.Flows[i].Name == name {
				c.Scenario.Flows[i].Debug = true
				found = true
			}
		}
		if !found {
			logging.Warnf("config: debug flow %q not in scenario", name)
		}
	}
}

// LoadFromFile loads configuration from a file.
func LoadFromFile(path string, config *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Determine file format based on extension
	switch {
	case strings.HasSuffix(path, ".json"):
		if err := json.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv(config *Config) {
	// Engine config
	if val := os.Getenv("ENGINE_MARK_FRACTION"); val != "" {
		if frac, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.Engine.MarkFraction = uint32(frac)
		}
	}
	if val := os.Getenv("ENGINE_WARMUP_SAMPLES"); val != "" {
		if warmup, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.Engine.WarmupSamples = uint32(warmup)
		}
	}
	if val := os.Getenv("ENGINE_DETECT"); val != "" {
		if detect, err := strconv.Atoi(val); err == nil {
			config.Engine.Detect = detect
		}
	}
	if val := os.Getenv("ENGINE_DEADLINE_AWARE"); val != "" {
		config.Engine.DeadlineAware = val == "true" || val == "1"
	}
	if val := os.Getenv("ENGINE_SEED"); val != "" {
		if seed, err := strconv.ParseInt(val, 10, 64); err == nil {
			config.Engine.Seed = seed
		}
	}
	if val := os.Getenv("ENGINE_DEBUG_FLOWS"); val != "" {
		config.Engine.DebugFlows = nil
		for _, name := range strings.Split(val, ",") {
			if name = strings.TrimSpace(name); name != "" {
				config.Engine.DebugFlows = append(config.Engine.DebugFlows, name)
			}
		}
	}

	// Metrics config
	if val := os.Getenv("METRICS_ENABLED"); val != "" {
		config.Metrics.Enabled = val == "true" || val == "1"
	}
	if val := os.Getenv("METRICS_LISTEN"); val != "" {
		config.Metrics.Listen = val
	}
	if val := os.Getenv("METRICS_PPROF"); val != "" {
		config.Metrics.Pprof = val == "true" || val == "1"
	}

	// Trace config
	if val := os.Getenv("TRACE_ENABLED"); val != "" {
		config.Trace.Enabled = val == "true" || val == "1"
	}

	// Logging config
	if val := os.Getenv("LOGGING_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("LOGGING_FILE"); val != "" {
		config.Logging.File = val
	}
	if val := os.Getenv("LOGGING_MAX_SIZE"); val != "" {
		if maxSize, err := strconv.Atoi(val); err == nil {
			config.Logging.MaxSize = maxSize
		}
	}
	if val := os.Getenv("LOGGING_MAX_BACKUPS"); val != "" {
		if maxBackups, err := strconv.Atoi(val); err == nil {
			config.Logging.MaxBackups = maxBackups
		}
	}
	if val := os.Getenv("LOGGING_MAX_AGE"); val != "" {
		if maxAge, err := strconv.Atoi(val); err == nil {
			config.Logging.MaxAge = maxAge
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate the engine section through its runtime form
	if err := c.BuildEngine().Validate(); err != nil {
		return fmt.Errorf("invalid engine config: %w", err)
	}

	// Validate the scenario
	if err := c.Scenario.Validate(); err != nil {
		return fmt.Errorf("invalid scenario: %w", err)
	}

	// Validate the metrics endpoint
	if c.Metrics.Enabled {
		if c.Metrics.Listen == "" {
			return fmt.Errorf("metrics enabled without a listen address")
		}
		if c.Metrics.Path == "" {
			return fmt.Errorf("metrics enabled without a path")
		}
	}
	if c.Trace.Enabled && c.Trace.Path == "" {
		return fmt.Errorf("trace enabled without a path")
	}

	// Validate the logging config
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	return nil
}

// ApplyLogging applies the logging configuration.
func (c *Config) ApplyLogging() error {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		level = logging.InfoLevel
	}
	logging.SetLevel(level)

	// Enable file logging if configured
	if c.Logging.File != "" {
		dir := "."
		filename := c.Logging.File
		if lastSlash := strings.LastIndex(c.Logging.File, "/"); lastSlash != -1 {
			dir = c.Logging.File[:lastSlash]
			filename = c.Logging.File[lastSlash+1:]
		}

		err := logging.EnableFileLogging(
			dir,
			filename,
			c.Logging.MaxSize,
			c.Logging.MaxBackups,
			c.Logging.MaxAge,
		)
		if err != nil {
			return fmt.Errorf("failed to enable file logging: %w", err)
		}
	}

	return nil
}

// SaveToFile saves the configuration to a file.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	// Determine file format based on extension
	switch {
	case strings.HasSuffix(path, ".json"):
		data, err = json.MarshalIndent(c, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		data, err = yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}

	// Create directory if it doesn't exist
	if lastSlash := strings.LastIndex(path, "/"); lastSlash != -1 {
		if err := os.MkdirAll(path[:lastSlash], 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Write to file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
