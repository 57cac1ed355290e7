// Package metrics provides Prometheus metrics for the skincheck flow service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Screens enumerates the label values of the current-screen gauge. Kept here
// so the gauge can zero every screen except the active one.
var Screens = []string{
	"onboarding",
	"home",
	"acquiring_image",
	"capturing_photo",
	"confirming_photo",
	"analyzing",
	"showing_results",
}

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Flow
	transitions        *prometheus.CounterVec
	invalidTransitions *prometheus.CounterVec
	contractViolations *prometheus.CounterVec
	currentScreen      *prometheus.GaugeVec
	onboardingSteps    prometheus.Counter
	flowsStarted       prometheus.Counter

	// Entitlement gate
	entitlementChecks  *prometheus.CounterVec
	paywallPresented   *prometheus.CounterVec
	paywallWaitLatency prometheus.Histogram

	// Analysis
	analysisLatency  prometheus.Histogram
	analysisResults  *prometheus.CounterVec
	analysisFailures *prometheus.CounterVec
	backendRequests  *prometheus.CounterVec
	backendLatency   prometheus.Histogram

	// Runner mailbox
	mailboxSize     prometheus.Gauge
	mailboxCapacity prometheus.Gauge
	mailboxRejected prometheus.Counter
	commandLatency  prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	idempotentReplays   prometheus.Counter

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// Process
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// installed pairs the global manager with the registry it registered in.
type installed struct {
	manager  *Manager
	registry *prometheus.Registry
}

var current atomic.Pointer[installed] //nolint:gochecknoglobals // singleton metrics manager

func init() { //nolint:gochecknoinits // global metrics setup
	Init()
}

// Init replaces the global manager with one built from opts on a fresh
// registry without Go runtime collectors. Collectors recorded before Init
// are dropped with the old registry.
func Init(opts ...Option) {
	registry := prometheus.NewRegistry()
	opts = append(opts, WithPrometheusRegistry(registry))
	current.Store(&installed{manager: NewManager(opts...), registry: registry})
}

func global() *Manager {
	return current.Load().manager
}

// active returns the global manager, or nil when recording is disabled.
func active() *Manager {
	if m := global(); m.enabled {
		return m
	}
	return nil
}

// Enabled reports whether recorders update the collectors.
func Enabled() bool {
	return global().enabled
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "skincheck",
		subsystem:        "flow",
		histogramBuckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.transitions = auto.NewCounterVec(
		m.counterOpts("transitions_total", "Screen transitions applied, by event and endpoints"),
		[]string{"event", "from", "to"},
	)
	m.invalidTransitions = auto.NewCounterVec(
		m.counterOpts("invalid_transitions_total", "Events rejected because the current screen does not accept them"),
		[]string{"event", "state"},
	)
	m.contractViolations = auto.NewCounterVec(
		m.counterOpts("contract_violations_total", "Contract violations detected by the coordinator"),
		[]string{"kind"},
	)
	m.currentScreen = auto.NewGaugeVec(
		m.gaugeOpts("current_screen", "1 for the active screen, 0 for the others"),
		[]string{"screen"},
	)
	m.onboardingSteps = auto.NewCounter(m.counterOpts("onboarding_steps_total", "Onboarding step changes"))
	m.flowsStarted = auto.NewCounter(m.counterOpts("flows_started_total", "Image acquisition flows started from home"))

	m.entitlementChecks = auto.NewCounterVec(
		m.counterOpts("entitlement_checks_total", "Entitlement checks by result"),
		[]string{"result"},
	)
	m.paywallPresented = auto.NewCounterVec(
		m.counterOpts("paywall_presented_total", "Paywall presentations by placement"),
		[]string{"placement"},
	)
	m.paywallWaitLatency = auto.NewHistogram(m.histogramOpts("paywall_wait_milliseconds", "Time spent waiting for the paywall to resolve"))

	m.analysisLatency = auto.NewHistogram(m.histogramOpts("analysis_latency_milliseconds", "End-to-end analysis protocol latency"))
	m.analysisResults = auto.NewCounterVec(
		m.counterOpts("analysis_results_total", "Completed analyses by risk level"),
		[]string{"risk_level"},
	)
	m.analysisFailures = auto.NewCounterVec(
		m.counterOpts("analysis_failures_total", "Failed analyses by failure kind"),
		[]string{"kind"},
	)
	m.backendRequests = auto.NewCounterVec(
		m.counterOpts("backend_requests_total", "Analysis backend requests by status code"),
		[]string{"status_code"},
	)
	m.backendLatency = auto.NewHistogram(m.histogramOpts("backend_latency_milliseconds", "Analysis backend round-trip latency"))

	m.mailboxSize = auto.NewGauge(m.gaugeOpts("mailbox_size", "Commands waiting in the runner mailbox"))
	m.mailboxCapacity = auto.NewGauge(m.gaugeOpts("mailbox_capacity", "Runner mailbox capacity"))
	m.mailboxRejected = auto.NewCounter(m.counterOpts("mailbox_rejected_total", "Commands rejected because the mailbox was full or closed"))
	m.commandLatency = auto.NewHistogram(m.histogramOpts("command_latency_milliseconds", "Time from command submission to completion"))

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "HTTP requests by endpoint, method and status"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.idempotentReplays = auto.NewCounter(m.counterOpts("idempotent_replays_total", "Intent responses replayed from the idempotency cache"))

	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Errors by component and type"),
		[]string{"component", "error_type"},
	)
	m.errorRateByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "Errors by endpoint"),
		[]string{"endpoint", "method", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutines", "Live goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_milliseconds", "Average GC pause"))
}

// RecordTransition counts an applied transition and moves the screen gauge.
func RecordTransition(event, from, to string) {
	if m := active(); m != nil {
		m.transitions.WithLabelValues(event, from, to).Inc()
	}
	UpdateCurrentScreen(to)
}

// RecordInvalidTransition counts an event rejected from state.
func RecordInvalidTransition(event, state string) {
	if m := active(); m != nil {
		m.invalidTransitions.WithLabelValues(event, state).Inc()
	}
}

// RecordContractViolation counts a contract violation of the given kind.
func RecordContractViolation(kind string) {
	if m := active(); m != nil {
		m.contractViolations.WithLabelValues(kind).Inc()
	}
}

// UpdateCurrentScreen sets the active screen to 1 and every other screen to 0.
func UpdateCurrentScreen(screen string) {
	m := active()
	if m == nil {
		return
	}
	for _, s := range Screens {
		v := 0.0
		if s == screen {
			v = 1
		}
		m.currentScreen.WithLabelValues(s).Set(v)
	}
}

// RecordOnboardingStep counts an onboarding step change.
func RecordOnboardingStep() {
	if m := active(); m != nil {
		m.onboardingSteps.Inc()
	}
}

// RecordFlowStarted counts a new acquisition flow.
func RecordFlowStarted() {
	if m := active(); m != nil {
		m.flowsStarted.Inc()
	}
}

// RecordEntitlementCheck counts an entitlement check: "entitled", "not_entitled" or "error".
func RecordEntitlementCheck(result string) {
	if m := active(); m != nil {
		m.entitlementChecks.WithLabelValues(result).Inc()
	}
}

// RecordPaywallPresented counts a paywall presentation and the wait for it.
func RecordPaywallPresented(placement string, waitMs float64) {
	if m := active(); m != nil {
		m.paywallPresented.WithLabelValues(placement).Inc()
		m.paywallWaitLatency.Observe(waitMs)
	}
}

// RecordAnalysisLatency records the protocol latency in milliseconds.
func RecordAnalysisLatency(latencyMs float64) {
	if m := active(); m != nil {
		m.analysisLatency.Observe(latencyMs)
	}
}

// RecordAnalysisResult counts a successful analysis.
func RecordAnalysisResult(riskLevel string) {
	if m := active(); m != nil {
		m.analysisResults.WithLabelValues(riskLevel).Inc()
	}
}

// RecordAnalysisFailure counts a failed analysis by kind.
func RecordAnalysisFailure(kind string) {
	if m := active(); m != nil {
		m.analysisFailures.WithLabelValues(kind).Inc()
	}
}

// RecordBackendRequest records an analysis backend round trip.
func RecordBackendRequest(statusCode string, latencyMs float64) {
	if m := active(); m != nil {
		m.backendRequests.WithLabelValues(statusCode).Inc()
		m.backendLatency.Observe(latencyMs)
	}
}

// UpdateMailboxSize sets the number of queued runner commands.
func UpdateMailboxSize(size int) {
	if m := active(); m != nil {
		m.mailboxSize.Set(float64(size))
	}
}

// UpdateMailboxCapacity sets the runner mailbox capacity.
func UpdateMailboxCapacity(capacity int) {
	if m := active(); m != nil {
		m.mailboxCapacity.Set(float64(capacity))
	}
}

// RecordMailboxRejected counts a rejected command.
func RecordMailboxRejected() {
	if m := active(); m != nil {
		m.mailboxRejected.Inc()
	}
}

// RecordCommandLatency records how long a command took end to end.
func RecordCommandLatency(latencyMs float64) {
	if m := active(); m != nil {
		m.commandLatency.Observe(latencyMs)
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if m := active(); m != nil {
		m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if m := active(); m != nil {
		m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// RecordIdempotentReplay counts a replayed intent response.
func RecordIdempotentReplay() {
	if m := active(); m != nil {
		m.idempotentReplays.Inc()
	}
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if m := active(); m != nil {
		m.errorRateByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if m := active(); m != nil {
		m.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

// GetRegistry returns the registry of the global manager.
func GetRegistry() *prometheus.Registry {
	return current.Load().registry
}

// UpdateSystemMemoryUsage sets the allocated heap size.
func UpdateSystemMemoryUsage(bytes uint64) {
	if m := active(); m != nil {
		m.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the number of live goroutines.
func UpdateSystemGoroutineCount(count int) {
	if m := active(); m != nil {
		m.systemGoroutineCount.Set(float64(count))
	}
}

// RecordSystemGCPauseTime records the average GC pause.
func RecordSystemGCPauseTime(pauseMs float64) {
	if m := active(); m != nil {
		m.systemGCPauseTime.Observe(pauseMs)
	}
}

// RefreshInterval is how often process metrics should be sampled.
func RefreshInterval() time.Duration {
	return global().refreshInterval
}
