// Package config defines service configuration and its defaults.
//
// Conventions:
//   - Defaults live in New; Load layers a YAML file and the environment on top.
//   - Validation errors wrap ErrInvalidConfig, source errors wrap ErrLoadConfig.
package config

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"
)

// Flag store kinds.
const (
	FlagStoreFile   = "file"
	FlagStoreSQLite = "sqlite"
	FlagStoreMemory = "memory"
)

// Analysis backend modes.
const (
	AnalysisRemote    = "remote"
	AnalysisSimulated = "simulated"
)

// Entitlement gate modes.
const (
	GateStatic = "static"
	GateRemote = "remote"
)

// Gate policies applied after the paywall resolves.
const (
	GatePolicyProceed = "proceed"
	GatePolicyRequire = "require"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the control API listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// OnboardingSteps is the number of onboarding pages.
	OnboardingSteps int `koanf:"onboarding_steps"`

	// FlagStore selects where the onboarding flag lives: file, sqlite or memory.
	FlagStore     string `koanf:"flag_store"`
	FlagStorePath string `koanf:"flag_store_path"`

	// AnalysisMode selects the backend: remote or simulated.
	AnalysisMode      string `koanf:"analysis_mode"`
	AnalysisURL       string `koanf:"analysis_url"`
	AnalysisTimeoutMS int    `koanf:"analysis_timeout_ms"`
	JPEGQuality       int    `koanf:"jpeg_quality"`

	// Simulated backend knobs.
	SimulatedLatencyMinMS int     `koanf:"simulated_latency_min_ms"`
	SimulatedLatencyMaxMS int     `koanf:"simulated_latency_max_ms"`
	SimulatedFailureRate  float64 `koanf:"simulated_failure_rate"`

	// Entitlement gate.
	GateMode         string `koanf:"gate_mode"`
	GateURL          string `koanf:"gate_url"`
	StaticEntitled   bool   `koanf:"static_entitled"`
	PaywallPlacement string `koanf:"paywall_placement"`
	GatePolicy       string `koanf:"gate_policy"`

	// MaxUploadBytes caps image uploads on the control API.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// MaxImagePixels caps width*height of decoded images.
	MaxImagePixels int64 `koanf:"max_image_pixels"`

	// MailboxSize bounds the runner command mailbox.
	MailboxSize int `koanf:"mailbox_size"`

	// IdempotencyCacheSize bounds remembered intent responses.
	IdempotencyCacheSize int `koanf:"idempotency_cache_size"`

	// DefaultLanguage is used for failure messages without Accept-Language.
	DefaultLanguage string `koanf:"default_language"`

	// Metrics. Disabled metrics still serve /metrics, with nothing recorded.
	MetricsEnabled           bool      `koanf:"metrics_enabled"`
	MetricsNamespace         string    `koanf:"metrics_namespace"`
	MetricsSubsystem         string    `koanf:"metrics_subsystem"`
	MetricsBuckets           []float64 `koanf:"metrics_histogram_buckets"`
	MetricsRefreshIntervalMS int       `koanf:"metrics_refresh_interval_ms"`
	// MetricsLabels are constant labels, e.g. "env=prod,region=eu".
	MetricsLabels string `koanf:"metrics_labels"`
}

var metricName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		OnboardingSteps:       4,
		FlagStore:             FlagStoreFile,
		FlagStorePath:         "skincheck-state.yaml",
		AnalysisMode:          AnalysisSimulated,
		AnalysisTimeoutMS:     30_000,
		JPEGQuality:           80,
		SimulatedLatencyMinMS: 800,
		SimulatedLatencyMaxMS: 2000,
		SimulatedFailureRate:  0,
		GateMode:              GateStatic,
		StaticEntitled:        true,
		PaywallPlacement:      "StartAnalysis",
		GatePolicy:            GatePolicyProceed,
		MaxUploadBytes:        10 << 20,
		MaxImagePixels:        24_000_000,
		MailboxSize:           64,
		IdempotencyCacheSize:  1024,
		DefaultLanguage:       "en",

		MetricsEnabled:           true,
		MetricsNamespace:         "skincheck",
		MetricsSubsystem:         "flow",
		MetricsRefreshIntervalMS: 10_000,
	}
}

// AnalysisTimeout returns the backend client timeout.
func (c *Config) AnalysisTimeout() time.Duration {
	return time.Duration(c.AnalysisTimeoutMS) * time.Millisecond
}

// SimulatedLatency returns the simulated backend latency bounds.
func (c *Config) SimulatedLatency() (time.Duration, time.Duration) {
	return time.Duration(c.SimulatedLatencyMinMS) * time.Millisecond,
		time.Duration(c.SimulatedLatencyMaxMS) * time.Millisecond
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.OnboardingSteps < 1:
		return invalid("onboarding_steps must be at least 1")
	case c.JPEGQuality < 1 || c.JPEGQuality > 100:
		return invalid("jpeg_quality must be within [1,100]")
	case c.MailboxSize < 1:
		return invalid("mailbox_size must be at least 1")
	case c.MaxUploadBytes < 1:
		return invalid("max_upload_bytes must be positive")
	case c.MaxImagePixels < 1:
		return invalid("max_image_pixels must be positive")
	case c.SimulatedFailureRate < 0 || c.SimulatedFailureRate > 1:
		return invalid("simulated_failure_rate must be within [0,1]")
	case strings.TrimSpace(c.PaywallPlacement) == "":
		return invalid("paywall_placement must not be empty")
	}

	switch c.FlagStore {
	case FlagStoreMemory:
	case FlagStoreFile, FlagStoreSQLite:
		if c.FlagStorePath == "" {
			return invalid("flag_store_path must not be empty for " + c.FlagStore)
		}
	default:
		return invalid("unknown flag_store: " + c.FlagStore)
	}

	switch c.AnalysisMode {
	case AnalysisSimulated:
		if c.SimulatedLatencyMaxMS < c.SimulatedLatencyMinMS {
			return invalid("simulated_latency_max_ms must not be below simulated_latency_min_ms")
		}
	case AnalysisRemote:
		if err := checkURL("analysis_url", c.AnalysisURL); err != nil {
			return err
		}
	default:
		return invalid("unknown analysis_mode: " + c.AnalysisMode)
	}

	switch c.GateMode {
	case GateStatic:
	case GateRemote:
		if err := checkURL("gate_url", c.GateURL); err != nil {
			return err
		}
	default:
		return invalid("unknown gate_mode: " + c.GateMode)
	}

	switch c.GatePolicy {
	case GatePolicyProceed, GatePolicyRequire:
	default:
		return invalid("unknown gate_policy: " + c.GatePolicy)
	}
	return c.validateMetrics()
}

func (c *Config) validateMetrics() error {
	switch {
	case !metricName.MatchString(c.MetricsNamespace):
		return invalid("metrics_namespace is not a valid metric name")
	case c.MetricsSubsystem != "" && !metricName.MatchString(c.MetricsSubsystem):
		return invalid("metrics_subsystem is not a valid metric name")
	case c.MetricsRefreshIntervalMS < 1:
		return invalid("metrics_refresh_interval_ms must be positive")
	}
	for i := 1; i < len(c.MetricsBuckets); i++ {
		if c.MetricsBuckets[i] <= c.MetricsBuckets[i-1] {
			return invalid("metrics_histogram_buckets must be strictly increasing")
		}
	}
	_, err := c.MetricLabels()
	return err
}

// MetricsRefreshInterval returns how often process metrics are sampled.
func (c *Config) MetricsRefreshInterval() time.Duration {
	return time.Duration(c.MetricsRefreshIntervalMS) * time.Millisecond
}

// MetricLabels parses MetricsLabels into constant labels.
func (c *Config) MetricLabels() (map[string]string, error) {
	labels := make(map[string]string)
	for pair := range strings.SplitSeq(c.MetricsLabels, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		switch {
		case !ok:
			return nil, invalid("metrics_labels: " + pair + " is not name=value")
		case !metricName.MatchString(name) || strings.HasPrefix(name, "__"):
			return nil, invalid("metrics_labels: invalid label name " + name)
		case slices.Contains(reservedLabels, name):
			return nil, invalid("metrics_labels: " + name + " is used by a metric")
		}
		labels[name] = strings.TrimSpace(value)
	}
	return labels, nil
}

// reservedLabels are variable labels of exported metrics; a constant label
// with the same name would fail registration.
var reservedLabels = []string{
	"event", "from", "to", "state", "kind", "screen", "result", "placement",
	"risk_level", "status_code", "endpoint", "method", "component", "error_type", "le",
}

func checkURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return invalid(key + " must be an absolute URL")
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}
