package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	simBuckets     []float64
	enabled        bool
	constLabels    map[string]string
	registry       prometheus.Registerer

	// Upstream API calls
	apiCalls      *prometheus.CounterVec
	apiQuotaWarns *prometheus.CounterVec
	apiLatency    *prometheus.HistogramVec

	// Simulations
	simulations     *prometheus.CounterVec
	simDuration     prometheus.Histogram
	simcacheLookups *prometheus.CounterVec
	simcacheSize    prometheus.Gauge

	// Scheduling
	unitsQueued   *prometheus.CounterVec
	unitsInFlight *prometheus.GaugeVec
	queueDepth    prometheus.Gauge

	// Progress
	progressEvents *prometheus.CounterVec

	// Orchestration
	orchestratorState *prometheus.GaugeVec
	playersProcessed  *prometheus.CounterVec
	runsActive        prometheus.Gauge
	runsStored        *prometheus.GaugeVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
}

var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "simbot",
		subsystem:      "",
		latencyBuckets: prometheus.DefBuckets,
		simBuckets:     []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		enabled:        true,
		constLabels:    make(map[string]string),
		registry:       prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	if !m.enabled {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.apiCalls = m.counterVec("api_calls_total",
		"Upstream API calls by service and outcome", "service", "outcome")
	m.apiQuotaWarns = m.counterVec("api_quota_exceeded_total",
		"Calls issued while an advisory quota window was already exceeded", "service", "window")
	m.apiLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "api_call_duration_milliseconds",
		Help:        "Upstream API call latency in milliseconds",
		Buckets:     prometheus.ExponentialBuckets(5, 2, 12),
		ConstLabels: m.constLabels,
	}, []string{"service"})

	m.simulations = m.counterVec("simulations_total",
		"Simulator executions by outcome", "outcome")
	m.simDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "simulation_duration_seconds",
		Help:        "Wall time of a single simulator execution",
		Buckets:     m.simBuckets,
		ConstLabels: m.constLabels,
	})
	m.simcacheLookups = m.counterVec("simcache_lookups_total",
		"Simulation cache lookups by result (hit, miss, poisoned)", "result")
	m.simcacheSize = m.gauge("simcache_entries",
		"Entries held by the most recently updated simulation cache")

	m.unitsQueued = m.counterVec("scheduler_units_queued_total",
		"Simulation units accepted by a scheduler", "strategy")
	m.unitsInFlight = m.gaugeVec("scheduler_units_in_flight",
		"Simulation units currently executing", "strategy")
	m.queueDepth = m.gauge("scheduler_queue_depth",
		"Units waiting in the local work queue")

	m.progressEvents = m.counterVec("progress_events_total",
		"Progress events by kind and delivery result", "kind", "result")

	m.orchestratorState = m.gaugeVec("orchestrator_state",
		"1 for the state an orchestrator is currently in", "state")
	m.playersProcessed = m.counterVec("players_processed_total",
		"Players whose suite finished, by outcome", "outcome")
	m.runsActive = m.gauge("runs_active", "Guild runs currently executing")
	m.runsStored = m.gaugeVec("runs_stored",
		"Run records held by the run store, by status", "status")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.latencyBuckets,
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = m.counterVec("errors_by_component_total",
		"Errors by component and error type", "component", "error_type")
}

// RecordAPICall records an upstream call outcome (ok, transport_error, upstream_error, http_error).
func RecordAPICall(service, outcome string, latencyMs float64) {
	globalManager.apiCalls.WithLabelValues(service, outcome).Inc()
	globalManager.apiLatency.WithLabelValues(service).Observe(latencyMs)
}

// RecordQuotaExceeded counts a call made while the given window ("second" or "hour") was over its ceiling.
func RecordQuotaExceeded(service, window string) {
	globalManager.apiQuotaWarns.WithLabelValues(service, window).Inc()
}

// RecordSimulation records one simulator execution.
func RecordSimulation(outcome string, seconds float64) {
	globalManager.simulations.WithLabelValues(outcome).Inc()
	globalManager.simDuration.Observe(seconds)
}

// RecordCacheLookup counts a simulation cache lookup.
func RecordCacheLookup(result string) {
	globalManager.simcacheLookups.WithLabelValues(result).Inc()
}

// UpdateCacheSize sets the simulation cache entry gauge.
func UpdateCacheSize(n int) {
	globalManager.simcacheSize.Set(float64(n))
}

// RecordUnitQueued counts a unit accepted by the named scheduler strategy.
func RecordUnitQueued(strategy string) {
	globalManager.unitsQueued.WithLabelValues(strategy).Inc()
}

// AddUnitsInFlight adjusts the in-flight gauge of a scheduler strategy by delta.
func AddUnitsInFlight(strategy string, delta int) {
	globalManager.unitsInFlight.WithLabelValues(strategy).Add(float64(delta))
}

// UpdateQueueDepth sets the local queue depth.
func UpdateQueueDepth(n int) {
	globalManager.queueDepth.Set(float64(n))
}

// RecordProgressEvent counts a progress event by kind and result (published, dropped, upstream_error).
func RecordProgressEvent(kind, result string) {
	globalManager.progressEvents.WithLabelValues(kind, result).Inc()
}

// UpdateOrchestratorState moves the state gauge from one state to another.
func UpdateOrchestratorState(from, to string) {
	if from != "" {
		globalManager.orchestratorState.WithLabelValues(from).Dec()
	}
	globalManager.orchestratorState.WithLabelValues(to).Inc()
}

// RecordPlayerProcessed counts a finished player suite by outcome (scored, error, cancelled).
func RecordPlayerProcessed(outcome string) {
	globalManager.playersProcessed.WithLabelValues(outcome).Inc()
}

// AddRunsActive adjusts the active runs gauge by delta.
func AddRunsActive(delta int) {
	globalManager.runsActive.Add(float64(delta))
}

// UpdateRunsStored sets the number of stored runs with the given status.
func UpdateRunsStored(status string, n int) {
	globalManager.runsStored.WithLabelValues(status).Set(float64(n))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Value returns the current value of a counter or gauge sample in the custom
// registry whose labels include every pair in labels. Name is the full metric name.
func Value(name string, labels map[string]string) (float64, error) {
	families, err := customRegistry.Gather()
	if err != nil {
		return 0, err
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if !hasLabels(metric, labels) {
				continue
			}
			switch {
			case metric.GetCounter() != nil:
				return metric.GetCounter().GetValue(), nil
			case metric.GetGauge() != nil:
				return metric.GetGauge().GetValue(), nil
			}
		}
	}
	return 0, ErrNotFound
}

func hasLabels(metric *dto.Metric, want map[string]string) bool {
	matched := 0
	for _, lp := range metric.GetLabel() {
		if v, ok := want[lp.GetName()]; ok && v == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
